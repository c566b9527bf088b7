// Package pose maps robot telemetry onto the articulated display model.
//
// The robot reports in a z-up frame with scalar-first quaternions. The display
// is y-up. Positions convert as (x, y, z) -> (x, z, -y) and orientations are
// pre-multiplied by a -90° rotation about X, which is the same change of basis.
package pose

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	AxisX = r3.Vec{X: 1}
	AxisY = r3.Vec{Y: 1}
	AxisZ = r3.Vec{Z: 1}
)

// corrective takes z-up coordinates to y-up.
var corrective = AxisAngle(AxisX, -math.Pi/2)

var identity = quat.Number{Real: 1}

// DisplayPosition converts a robot-frame position to the display frame.
func DisplayPosition(p r3.Vec) r3.Vec {
	return r3.Vec{X: p.X, Y: p.Z, Z: -p.Y}
}

// DisplayOrientation converts a robot-frame orientation to the display frame.
func DisplayOrientation(q quat.Number) quat.Number {
	return quat.Mul(corrective, q)
}

// RobotQuaternion builds a unit quaternion from [w, x, y, z]. ok is false if
// wxyz does not hold four finite values with a non-zero norm.
func RobotQuaternion(wxyz []float64) (q quat.Number, ok bool) {
	if len(wxyz) != 4 {
		return quat.Number{}, false
	}
	for _, v := range wxyz {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return quat.Number{}, false
		}
	}
	q = quat.Number{Real: wxyz[0], Imag: wxyz[1], Jmag: wxyz[2], Kmag: wxyz[3]}
	n := quat.Abs(q)
	if n == 0 {
		return quat.Number{}, false
	}
	return quat.Scale(1/n, q), true
}

// RobotPosition builds a vector from [x, y, z].
func RobotPosition(xyz []float64) (p r3.Vec, ok bool) {
	if len(xyz) != 3 {
		return r3.Vec{}, false
	}
	for _, v := range xyz {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return r3.Vec{}, false
		}
	}
	return r3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]}, true
}

// AxisAngle returns the rotation of angle radians about the unit vector axis.
func AxisAngle(axis r3.Vec, angle float64) quat.Number {
	s, c := math.Sincos(angle / 2)
	return quat.Number{Real: c, Imag: axis.X * s, Jmag: axis.Y * s, Kmag: axis.Z * s}
}

// Rotate applies the unit quaternion q to v.
func Rotate(q quat.Number, v r3.Vec) r3.Vec {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vec{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}
