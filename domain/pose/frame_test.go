package pose

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

const eps = 1e-9

func vecNear(a, b r3.Vec) bool {
	return math.Abs(a.X-b.X) < eps && math.Abs(a.Y-b.Y) < eps && math.Abs(a.Z-b.Z) < eps
}

func quatNear(a, b quat.Number) bool {
	// q and -q are the same rotation
	d1 := quat.Abs(quat.Sub(a, b))
	d2 := quat.Abs(quat.Add(a, b))
	return d1 < eps || d2 < eps
}

func TestDisplayPosition(t *testing.T) {
	got := DisplayPosition(r3.Vec{X: 1, Y: 2, Z: 3})
	want := r3.Vec{X: 1, Y: 3, Z: -2}
	if got != want {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestCorrectiveMatchesPositionMapping(t *testing.T) {
	for _, v := range []r3.Vec{{X: 1}, {Y: 1}, {Z: 1}, {X: 1, Y: 2, Z: 3}, {X: -0.5, Y: 0.25, Z: 4}} {
		if got, want := Rotate(corrective, v), DisplayPosition(v); !vecNear(got, want) {
			t.Errorf("Rotate(corrective, %v): expected %v, got %v", v, want, got)
		}
	}
}

func TestDisplayOrientation(t *testing.T) {
	// Identity robot pose: robot up (z) shows as display up (y).
	if got := Rotate(DisplayOrientation(identity), AxisZ); !vecNear(got, AxisY) {
		t.Errorf("Expected robot up to map to display up, got %v", got)
	}

	// A yaw about robot z is a rotation about display y once converted.
	yaw := AxisAngle(AxisZ, math.Pi/2)
	got := Rotate(DisplayOrientation(yaw), AxisX)
	want := DisplayPosition(Rotate(yaw, AxisX))
	if !vecNear(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestRobotQuaternion(t *testing.T) {
	q, ok := RobotQuaternion([]float64{2, 0, 0, 0})
	if !ok || !quatNear(q, identity) {
		t.Errorf("Expected normalized identity, got %v (ok=%v)", q, ok)
	}

	// [w, x, y, z] is scalar first.
	q, _ = RobotQuaternion([]float64{math.Sqrt2 / 2, 0, 0, math.Sqrt2 / 2})
	if !quatNear(q, AxisAngle(AxisZ, math.Pi/2)) {
		t.Errorf("Expected 90° about z, got %v", q)
	}

	for _, bad := range [][]float64{nil, {1, 0, 0}, {0, 0, 0, 0}, {math.NaN(), 0, 0, 1}} {
		if _, ok := RobotQuaternion(bad); ok {
			t.Errorf("Expected %v to be rejected", bad)
		}
	}
}
