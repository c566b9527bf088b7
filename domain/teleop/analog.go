package teleop

import (
	"math"
	"time"

	"github.com/open-teleop/go2bridge/pkg/protocol"
)

const (
	DefaultDeadzone     = 0.15
	DefaultMaxVelocity  = 1.0
	DefaultUpdateRateHz = 50.0

	MaxDeadzone        = 0.95
	MaxVelocityCeiling = 2.0
)

// AxisMapping gives the raw device axis index feeding each logical axis.
type AxisMapping struct {
	Strafe  int `json:"strafe"`
	Forward int `json:"forward"`
	Rotate  int `json:"rotate"`
}

// DefaultAxisMapping is left stick X/Y then right stick X.
func DefaultAxisMapping() AxisMapping {
	return AxisMapping{Strafe: 0, Forward: 1, Rotate: 2}
}

// DeviceInputState is one read of an analog device.
type DeviceInputState struct {
	DeviceID string    `json:"device_id"`
	Axes     []float64 `json:"axes"`
	Buttons  []bool    `json:"buttons,omitempty"`
}

func (s DeviceInputState) axis(i int) float64 {
	if i < 0 || i >= len(s.Axes) {
		return 0
	}
	return s.Axes[i]
}

// ApplyDeadzone zeroes |v| < dz and rescales the rest so the output runs
// continuously from 0 at the deadzone edge to ±1 at the extreme.
func ApplyDeadzone(v, dz float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Max(-1, math.Min(1, v))
	if dz >= 1 {
		return 0
	}
	if dz < 0 {
		dz = 0
	}
	mag := math.Abs(v)
	if mag < dz {
		return 0
	}
	return math.Copysign((mag-dz)/(1-dz), v)
}

// Analog samples one continuous device at a bounded rate.
type Analog struct {
	deadzone    float64
	maxVelocity float64
	period      time.Duration
	axes        AxisMapping

	deviceID   string
	connected  bool
	lastSample time.Time
	sampled    bool
	command    protocol.VelocityCommand
	emit       func(protocol.VelocityCommand)
}

// NewAnalog creates a sampler with default settings. emit may be nil.
func NewAnalog(emit func(protocol.VelocityCommand)) *Analog {
	if emit == nil {
		emit = func(protocol.VelocityCommand) {}
	}
	a := &Analog{axes: DefaultAxisMapping(), emit: emit}
	a.SetDeadzone(DefaultDeadzone)
	a.SetMaxVelocity(DefaultMaxVelocity)
	a.SetUpdateRate(DefaultUpdateRateHz)
	return a
}

// SetDeadzone clamps to [0, MaxDeadzone] and returns the value applied.
func (a *Analog) SetDeadzone(v float64) float64 {
	a.deadzone = clampRange(v, 0, MaxDeadzone)
	return a.deadzone
}

// SetMaxVelocity clamps to [0, MaxVelocityCeiling] and returns the value applied.
func (a *Analog) SetMaxVelocity(v float64) float64 {
	a.maxVelocity = clampRange(v, 0, MaxVelocityCeiling)
	return a.maxVelocity
}

// SetUpdateRate sets the sampling ceiling in Hz. Non-positive rates fall back
// to the default.
func (a *Analog) SetUpdateRate(hz float64) {
	if hz <= 0 || math.IsNaN(hz) {
		hz = DefaultUpdateRateHz
	}
	a.period = time.Duration(float64(time.Second) / hz)
}

func (a *Analog) SetAxisMapping(m AxisMapping) { a.axes = m }

func (a *Analog) Deadzone() float64    { return a.deadzone }
func (a *Analog) MaxVelocity() float64 { return a.maxVelocity }

// Connect makes id the active device, replacing any previous one. A deflected
// command from the device being replaced is cancelled with one zero.
func (a *Analog) Connect(id string) {
	stale := a.connected && !a.command.IsZero()
	a.deviceID = id
	a.connected = true
	a.sampled = false
	a.command = protocol.VelocityCommand{}
	if stale {
		a.emit(a.command)
	}
}

// Disconnect releases id if it is the active device and emits a single zero
// command. It reports whether id was active.
func (a *Analog) Disconnect(id string) bool {
	if !a.connected || id != a.deviceID {
		return false
	}
	a.connected = false
	a.deviceID = ""
	a.command = protocol.VelocityCommand{}
	a.emit(a.command)
	return true
}

// Poll takes a sample if the active device is connected and at least one
// period has passed since the last accepted sample. It reports whether the
// sample was accepted.
func (a *Analog) Poll(now time.Time, state DeviceInputState) bool {
	if !a.connected || state.DeviceID != a.deviceID {
		return false
	}
	if a.sampled && now.Sub(a.lastSample) < a.period {
		return false
	}
	a.lastSample = now
	a.sampled = true

	// Stick up and stick left read negative on the device.
	cmd := protocol.VelocityCommand{
		XVel:   a.invert(state.axis(a.axes.Forward)),
		YVel:   a.invert(state.axis(a.axes.Strafe)),
		AngVel: a.invert(state.axis(a.axes.Rotate)),
	}
	a.command = cmd.Clamp(a.maxVelocity)
	a.emit(a.command)
	return true
}

func (a *Analog) invert(raw float64) float64 {
	v := ApplyDeadzone(raw, a.deadzone) * a.maxVelocity
	if v == 0 {
		return 0 // no negative zero on the wire
	}
	return -v
}

func (a *Analog) Connected() bool                   { return a.connected }
func (a *Analog) DeviceID() string                  { return a.deviceID }
func (a *Analog) Command() protocol.VelocityCommand { return a.command }

// Deflected reports whether the last sample was off centre.
func (a *Analog) Deflected() bool {
	return a.connected && !a.command.IsZero()
}

func clampRange(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
