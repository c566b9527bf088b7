package teleop

import (
	"fmt"

	"github.com/open-teleop/go2bridge/pkg/protocol"
)

// Axis names one component of a velocity command.
type Axis string

const (
	AxisForward Axis = "x_vel"
	AxisStrafe  Axis = "y_vel"
	AxisRotate  Axis = "ang_vel"
)

// Valid reports whether a is a known axis.
func (a Axis) Valid() bool {
	switch a {
	case AxisForward, AxisStrafe, AxisRotate:
		return true
	}
	return false
}

func setAxis(cmd *protocol.VelocityCommand, axis Axis, value float64) {
	switch axis {
	case AxisForward:
		cmd.XVel = value
	case AxisStrafe:
		cmd.YVel = value
	case AxisRotate:
		cmd.AngVel = value
	}
}

// KeyBinding maps one physical key to a value on one axis.
type KeyBinding struct {
	Key   string  `json:"key"`
	Axis  Axis    `json:"axis"`
	Value float64 `json:"value"`
}

// Keymap is an ordered list of bindings. Keys are matched exactly, so upper and
// lower case letters need their own entries.
type Keymap []KeyBinding

// DefaultKeymap returns the WASD/QE layout plus the arrow keys.
func DefaultKeymap() Keymap {
	return Keymap{
		{Key: "w", Axis: AxisForward, Value: 1.0},
		{Key: "W", Axis: AxisForward, Value: 1.0},
		{Key: "s", Axis: AxisForward, Value: -1.0},
		{Key: "S", Axis: AxisForward, Value: -1.0},
		{Key: "a", Axis: AxisStrafe, Value: 1.0},
		{Key: "A", Axis: AxisStrafe, Value: 1.0},
		{Key: "d", Axis: AxisStrafe, Value: -1.0},
		{Key: "D", Axis: AxisStrafe, Value: -1.0},
		{Key: "q", Axis: AxisRotate, Value: 1.0},
		{Key: "Q", Axis: AxisRotate, Value: 1.0},
		{Key: "e", Axis: AxisRotate, Value: -1.0},
		{Key: "E", Axis: AxisRotate, Value: -1.0},
		{Key: "ArrowUp", Axis: AxisForward, Value: 1.0},
		{Key: "ArrowDown", Axis: AxisForward, Value: -1.0},
		{Key: "ArrowLeft", Axis: AxisStrafe, Value: 1.0},
		{Key: "ArrowRight", Axis: AxisStrafe, Value: -1.0},
	}
}

// Validate checks every binding has a key, a known axis and a value in [-1, 1],
// and that no key is bound twice.
func (k Keymap) Validate() error {
	seen := make(map[string]bool, len(k))
	for i, b := range k {
		if b.Key == "" {
			return fmt.Errorf("keymap entry %d: empty key", i)
		}
		if !b.Axis.Valid() {
			return fmt.Errorf("keymap entry %d (%s): unknown axis %q", i, b.Key, b.Axis)
		}
		if b.Value < -1 || b.Value > 1 {
			return fmt.Errorf("keymap entry %d (%s): value %v out of range [-1, 1]", i, b.Key, b.Value)
		}
		if seen[b.Key] {
			return fmt.Errorf("keymap entry %d: key %q bound twice", i, b.Key)
		}
		seen[b.Key] = true
	}
	return nil
}

func (k Keymap) index() map[string]KeyBinding {
	m := make(map[string]KeyBinding, len(k))
	for _, b := range k {
		m[b.Key] = b
	}
	return m
}
