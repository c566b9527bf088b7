package teleop

import (
	"math"
	"testing"
	"time"
)

func TestApplyDeadzone(t *testing.T) {
	const dz = 0.15

	for _, v := range []float64{0, 0.05, -0.1, 0.1499, -0.1499} {
		if got := ApplyDeadzone(v, dz); got != 0 {
			t.Errorf("ApplyDeadzone(%v): expected exactly 0, got %v", v, got)
		}
	}

	if got := ApplyDeadzone(1, dz); got != 1 {
		t.Errorf("Expected full deflection to map to 1, got %v", got)
	}
	if got := ApplyDeadzone(-1, dz); got != -1 {
		t.Errorf("Expected full negative deflection to map to -1, got %v", got)
	}
	if got := ApplyDeadzone(1.7, dz); got != 1 {
		t.Errorf("Expected out-of-range input clamped to 1, got %v", got)
	}
	if got := ApplyDeadzone(math.NaN(), dz); got != 0 {
		t.Errorf("Expected NaN to map to 0, got %v", got)
	}

	want := (0.575 - dz) / (1 - dz)
	if got := ApplyDeadzone(-0.575, dz); math.Abs(got+want) > 1e-12 {
		t.Errorf("Expected %v, got %v", -want, got)
	}

	// Continuous and monotonic past the edge.
	prev := 0.0
	for v := dz; v <= 1.0; v += 0.01 {
		got := ApplyDeadzone(v, dz)
		if got < prev {
			t.Fatalf("Output decreased at %v: %v < %v", v, got, prev)
		}
		prev = got
	}
}

func TestAnalogRateLimit(t *testing.T) {
	rec := &recorder{}
	a := NewAnalog(rec.Send)
	a.Connect("pad-0")

	start := time.Unix(100, 0)
	state := DeviceInputState{DeviceID: "pad-0", Axes: []float64{0, -1, 0}}

	if !a.Poll(start, state) {
		t.Fatal("Expected first sample accepted")
	}
	if a.Poll(start.Add(10*time.Millisecond), state) {
		t.Error("Expected sample within 20ms to be rejected")
	}
	if !a.Poll(start.Add(20*time.Millisecond), state) {
		t.Error("Expected sample at 20ms to be accepted")
	}
	if len(rec.commands) != 2 {
		t.Errorf("Expected 2 commands, got %d", len(rec.commands))
	}
}

func TestAnalogInversionAndScale(t *testing.T) {
	rec := &recorder{}
	a := NewAnalog(rec.Send)
	a.SetMaxVelocity(0.5)
	a.Connect("pad-0")

	// stick up-left, right stick right
	a.Poll(time.Unix(0, 0), DeviceInputState{DeviceID: "pad-0", Axes: []float64{-1, -1, 1, 0}})
	got := rec.last()
	if got.XVel != 0.5 || got.YVel != 0.5 || got.AngVel != -0.5 {
		t.Errorf("Expected (0.5, 0.5, -0.5), got %+v", got)
	}

	a.Poll(time.Unix(1, 0), DeviceInputState{DeviceID: "pad-0", Axes: []float64{0.01}})
	got = rec.last()
	if !got.IsZero() || math.Signbit(got.XVel) || math.Signbit(got.YVel) {
		t.Errorf("Expected positive zero command, got %+v", got)
	}
}

func TestAnalogIgnoresOtherDevices(t *testing.T) {
	rec := &recorder{}
	a := NewAnalog(rec.Send)

	if a.Poll(time.Unix(0, 0), DeviceInputState{DeviceID: "pad-0", Axes: []float64{1}}) {
		t.Error("Expected poll without a connected device to be ignored")
	}
	a.Connect("pad-0")
	if a.Poll(time.Unix(0, 0), DeviceInputState{DeviceID: "pad-1", Axes: []float64{1}}) {
		t.Error("Expected poll from another device to be ignored")
	}
	if a.Disconnect("pad-1") {
		t.Error("Expected disconnect of inactive device to be ignored")
	}
	if len(rec.commands) != 0 {
		t.Errorf("Expected no commands, got %v", rec.commands)
	}
}

func TestAnalogDisconnectEmitsSingleZero(t *testing.T) {
	rec := &recorder{}
	a := NewAnalog(rec.Send)
	a.Connect("pad-0")
	a.Poll(time.Unix(0, 0), DeviceInputState{DeviceID: "pad-0", Axes: []float64{0, -1, 0}})

	a.Disconnect("pad-0")
	a.Disconnect("pad-0")

	if len(rec.commands) != 2 {
		t.Fatalf("Expected sample plus one zero, got %d", len(rec.commands))
	}
	if !rec.last().IsZero() {
		t.Errorf("Expected zero command on disconnect, got %+v", rec.last())
	}
	if a.Connected() {
		t.Error("Expected device disconnected")
	}
}

func TestAnalogReplacingDeviceEmitsZero(t *testing.T) {
	rec := &recorder{}
	a := NewAnalog(rec.Send)
	a.Connect("pad-0")
	a.Poll(time.Unix(0, 0), DeviceInputState{DeviceID: "pad-0", Axes: []float64{0, -1, 0}})

	a.Connect("pad-1")

	if len(rec.commands) != 2 {
		t.Fatalf("Expected sample plus one zero, got %d", len(rec.commands))
	}
	if !rec.last().IsZero() {
		t.Errorf("Expected zero command when the device is replaced, got %+v", rec.last())
	}
	if a.DeviceID() != "pad-1" || !a.Connected() {
		t.Errorf("Expected pad-1 active, got %q connected=%v", a.DeviceID(), a.Connected())
	}

	// A centred device is replaced silently.
	a.Connect("pad-2")
	if len(rec.commands) != 2 {
		t.Errorf("Expected no extra command for an idle device, got %d", len(rec.commands))
	}
}

func TestAnalogRuntimeClamps(t *testing.T) {
	a := NewAnalog(nil)

	if got := a.SetDeadzone(1.5); got != MaxDeadzone {
		t.Errorf("Expected deadzone clamped to %v, got %v", MaxDeadzone, got)
	}
	if got := a.SetDeadzone(-1); got != 0 {
		t.Errorf("Expected deadzone clamped to 0, got %v", got)
	}
	if got := a.SetMaxVelocity(5); got != MaxVelocityCeiling {
		t.Errorf("Expected max velocity clamped to %v, got %v", MaxVelocityCeiling, got)
	}
	if got := a.SetMaxVelocity(-2); got != 0 {
		t.Errorf("Expected max velocity clamped to 0, got %v", got)
	}
}
