// Package teleop turns operator device events into velocity commands.
//
// Two producers feed one Sink: a Keyboard driven by press/release events and
// an Analog sampler polled once per display refresh. A Pipeline is owned by the
// event loop and is not safe for concurrent use.
package teleop

import (
	"fmt"
	"math"
	"time"

	"github.com/open-teleop/go2bridge/pkg/log"
	"github.com/open-teleop/go2bridge/pkg/protocol"
)

// Sink receives every command the pipeline decides to transmit.
type Sink interface {
	Send(cmd protocol.VelocityCommand)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(cmd protocol.VelocityCommand)

func (f SinkFunc) Send(cmd protocol.VelocityCommand) { f(cmd) }

// Precedence decides which producer wins when both are active.
type Precedence string

const (
	// PrecedenceAnalog lets a deflected stick suppress keyboard output. A
	// centred stick yields to held keys.
	PrecedenceAnalog Precedence = "analog"
	// PrecedenceLastWriter transmits whatever producer spoke last.
	PrecedenceLastWriter Precedence = "last_writer"
)

func (p Precedence) Valid() bool {
	return p == PrecedenceAnalog || p == PrecedenceLastWriter
}

// Source identifies the producer of a command.
type Source string

const (
	SourceKeyboard Source = "keyboard"
	SourceAnalog   Source = "analog"
)

// CommandEvent describes one transmitted command.
type CommandEvent struct {
	Source     Source
	Command    protocol.VelocityCommand
	ActiveKeys []string
	Time       time.Time
}

// Settings is the runtime-tunable part of the pipeline.
type Settings struct {
	Deadzone     float64     `json:"deadzone"`
	MaxVelocity  float64     `json:"max_velocity"`
	UpdateRateHz float64     `json:"update_rate_hz"`
	Precedence   Precedence  `json:"precedence"`
	AxisMapping  AxisMapping `json:"axis_mapping"`
	Keymap       Keymap      `json:"keymap"`
}

// DefaultSettings returns the stock input configuration.
func DefaultSettings() Settings {
	return Settings{
		Deadzone:     DefaultDeadzone,
		MaxVelocity:  DefaultMaxVelocity,
		UpdateRateHz: DefaultUpdateRateHz,
		Precedence:   PrecedenceAnalog,
		AxisMapping:  DefaultAxisMapping(),
		Keymap:       DefaultKeymap(),
	}
}

// Validate rejects settings that cannot be applied. Deadzone and velocity
// outside their ranges are clamped on apply, not rejected.
func (s Settings) Validate() error {
	if math.IsNaN(s.Deadzone) || math.IsNaN(s.MaxVelocity) {
		return fmt.Errorf("deadzone and max_velocity must be numbers")
	}
	if s.UpdateRateHz <= 0 || s.UpdateRateHz > 1000 {
		return fmt.Errorf("update_rate_hz must be in (0, 1000], got %v", s.UpdateRateHz)
	}
	if !s.Precedence.Valid() {
		return fmt.Errorf("unknown precedence %q", s.Precedence)
	}
	m := s.AxisMapping
	if m.Strafe < 0 || m.Forward < 0 || m.Rotate < 0 {
		return fmt.Errorf("axis_mapping indices must be non-negative")
	}
	if err := s.Keymap.Validate(); err != nil {
		return fmt.Errorf("invalid keymap: %w", err)
	}
	return nil
}

// Pipeline arbitrates between the keyboard and analog producers and forwards
// the outcome to its Sink.
type Pipeline struct {
	sink       Sink
	logger     log.Logger
	now        func() time.Time
	keyboard   *Keyboard
	analog     *Analog
	precedence Precedence
	settings   Settings

	last     protocol.VelocityCommand
	sent     bool
	detached bool

	listeners []func(CommandEvent)
}

// NewPipeline builds a pipeline with default settings. now supplies event
// timestamps and may be nil.
func NewPipeline(sink Sink, now func() time.Time, logger log.Logger) *Pipeline {
	if logger == nil {
		logger = log.NewDiscardLogger()
	}
	if now == nil {
		now = time.Now
	}
	p := &Pipeline{
		sink:   sink,
		now:    now,
		logger: logger.WithField("component", "input"),
	}
	p.keyboard = NewKeyboard(nil, p.fromKeyboard)
	p.analog = NewAnalog(p.fromAnalog)
	if err := p.Apply(DefaultSettings()); err != nil {
		p.logger.Errorf("Default input settings rejected: %v", err)
	}
	return p
}

// Apply reconfigures the pipeline. Deadzone and max velocity are clamped to
// their runtime ranges and Settings reports the clamped values. Held keys are
// released.
func (p *Pipeline) Apply(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	s.Deadzone = p.analog.SetDeadzone(s.Deadzone)
	s.MaxVelocity = p.analog.SetMaxVelocity(s.MaxVelocity)
	p.analog.SetUpdateRate(s.UpdateRateHz)
	p.analog.SetAxisMapping(s.AxisMapping)
	p.keyboard.SetKeymap(s.Keymap)
	p.precedence = s.Precedence
	p.settings = s
	p.logger.Infof("Input settings applied: deadzone=%.2f max_velocity=%.2f rate=%.0fHz precedence=%s keys=%d",
		s.Deadzone, s.MaxVelocity, s.UpdateRateHz, s.Precedence, len(s.Keymap))
	return nil
}

// Settings returns the settings currently in effect.
func (p *Pipeline) Settings() Settings { return p.settings }

// OnCommand registers a listener for transmitted commands.
func (p *Pipeline) OnCommand(fn func(CommandEvent)) {
	p.listeners = append(p.listeners, fn)
}

// KeyDown and KeyUp report whether the key is mapped.
func (p *Pipeline) KeyDown(key string) bool {
	if p.detached {
		return false
	}
	return p.keyboard.Press(key)
}

func (p *Pipeline) KeyUp(key string) bool {
	if p.detached {
		return false
	}
	return p.keyboard.Release(key)
}

// ReleaseKeys drops every held key, transmitting once if any was held.
func (p *Pipeline) ReleaseKeys() {
	if p.detached {
		return
	}
	p.keyboard.ReleaseAll()
}

// ConnectDevice makes id the active analog device.
func (p *Pipeline) ConnectDevice(id string) {
	if p.detached {
		return
	}
	p.analog.Connect(id)
	p.logger.Infof("Analog device connected: %s", id)
}

// DisconnectDevice releases id. A disconnect of the active device transmits
// exactly one zero command.
func (p *Pipeline) DisconnectDevice(id string) {
	if p.detached {
		return
	}
	if p.analog.Disconnect(id) {
		p.logger.Infof("Analog device disconnected: %s", id)
	}
}

// Poll offers an analog sample. Samples arriving faster than the update rate
// are ignored.
func (p *Pipeline) Poll(now time.Time, state DeviceInputState) bool {
	if p.detached {
		return false
	}
	return p.analog.Poll(now, state)
}

// Detach stops accepting device events. Held keys are dropped without
// transmitting.
func (p *Pipeline) Detach() {
	p.detached = true
	p.keyboard.emit = func(protocol.VelocityCommand) {}
	p.analog.emit = func(protocol.VelocityCommand) {}
	p.keyboard.ReleaseAll()
}

func (p *Pipeline) ActiveKeys() []string { return p.keyboard.Active() }

func (p *Pipeline) AnalogConnected() bool { return p.analog.Connected() }

// LastCommand returns the last transmitted command.
func (p *Pipeline) LastCommand() protocol.VelocityCommand { return p.last }

func (p *Pipeline) fromKeyboard(cmd protocol.VelocityCommand) {
	if p.precedence == PrecedenceAnalog && p.analog.Deflected() {
		return
	}
	p.transmit(SourceKeyboard, cmd)
}

func (p *Pipeline) fromAnalog(cmd protocol.VelocityCommand) {
	if !p.analog.Connected() {
		// disconnect: the zero always goes out
		p.transmit(SourceAnalog, cmd)
		return
	}
	if p.precedence == PrecedenceAnalog && cmd.IsZero() && len(p.keyboard.active) > 0 {
		if kb := p.keyboard.Command(); !p.sent || kb != p.last {
			p.transmit(SourceKeyboard, kb)
		}
		return
	}
	p.transmit(SourceAnalog, cmd)
}

func (p *Pipeline) transmit(src Source, cmd protocol.VelocityCommand) {
	p.last = cmd
	p.sent = true
	p.sink.Send(cmd)

	if len(p.listeners) == 0 {
		return
	}
	ev := CommandEvent{
		Source:     src,
		Command:    cmd,
		ActiveKeys: p.keyboard.Active(),
		Time:       p.now(),
	}
	for _, fn := range p.listeners {
		fn(ev)
	}
}
