package session

import (
	"errors"
	"fmt"

	"github.com/open-teleop/go2bridge/domain/teleop"
)

// DeviceEventType names an operator device event.
type DeviceEventType string

const (
	EventKeyDown             DeviceEventType = "keydown"
	EventKeyUp               DeviceEventType = "keyup"
	EventGamepadConnected    DeviceEventType = "gamepad_connected"
	EventGamepadDisconnected DeviceEventType = "gamepad_disconnected"
	EventGamepadState        DeviceEventType = "gamepad_state"
	// EventBlur releases every held key, as when the operator window loses focus.
	EventBlur DeviceEventType = "blur"
)

// ErrTornDown is returned for events that arrive after Teardown.
var ErrTornDown = errors.New("session torn down")

// DeviceEvent is one keyboard or gamepad event from a collaborator.
type DeviceEvent struct {
	Type     DeviceEventType `json:"type"`
	Key      string          `json:"key,omitempty"`
	DeviceID string          `json:"device_id,omitempty"`
	Axes     []float64       `json:"axes,omitempty"`
	Buttons  []bool          `json:"buttons,omitempty"`
}

// HandleDevice feeds one event into the input pipeline. handled is false for
// keys that are not mapped so the collaborator can keep its default
// behaviour. Gamepad samples are stored and polled on the next Tick.
func (s *Session) HandleDevice(ev DeviceEvent) (handled bool, err error) {
	if s.torn {
		return false, ErrTornDown
	}

	switch ev.Type {
	case EventKeyDown:
		handled = s.pipeline.KeyDown(ev.Key)
	case EventKeyUp:
		handled = s.pipeline.KeyUp(ev.Key)
	case EventBlur:
		s.pipeline.ReleaseKeys()
		handled = true
	case EventGamepadConnected:
		if ev.DeviceID == "" {
			return false, fmt.Errorf("gamepad event without device_id")
		}
		s.pipeline.ConnectDevice(ev.DeviceID)
		s.pad = nil
		handled = true
	case EventGamepadDisconnected:
		s.pipeline.DisconnectDevice(ev.DeviceID)
		if s.pad != nil && s.pad.DeviceID == ev.DeviceID {
			s.pad = nil
		}
		handled = true
	case EventGamepadState:
		if ev.DeviceID == "" {
			return false, fmt.Errorf("gamepad event without device_id")
		}
		s.pad = &teleop.DeviceInputState{
			DeviceID: ev.DeviceID,
			Axes:     append([]float64(nil), ev.Axes...),
			Buttons:  append([]bool(nil), ev.Buttons...),
		}
		handled = true
	default:
		return false, fmt.Errorf("unknown device event type %q", ev.Type)
	}

	s.diagnostics.UpdateInput(s.pipeline.ActiveKeys(), s.pipeline.AnalogConnected())
	return handled, nil
}
