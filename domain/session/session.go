// Package session composes one connection manager, input pipeline and pose
// synchronizer into an operator session driven by a single event loop.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/open-teleop/go2bridge/domain/diagnostic"
	"github.com/open-teleop/go2bridge/domain/pose"
	"github.com/open-teleop/go2bridge/domain/teleop"
	"github.com/open-teleop/go2bridge/pkg/connection"
	"github.com/open-teleop/go2bridge/pkg/log"
	"github.com/open-teleop/go2bridge/pkg/loop"
	"github.com/open-teleop/go2bridge/pkg/protocol"
)

// Telemetry receives everything worth recording. Errors are logged.
type Telemetry interface {
	PublishState(frame *protocol.StateFrame) error
	PublishCommand(ev teleop.CommandEvent) error
	PublishStatus(st connection.Status) error
}

// Options wires a session. Scheduler and Dialer are required.
type Options struct {
	URL         string
	Backoff     connection.Backoff
	Dialer      connection.Dialer
	Scheduler   loop.Scheduler
	Topology    pose.Topology
	Settings    *teleop.Settings
	Diagnostics *diagnostic.DiagnosticService
	Telemetry   Telemetry
	Logger      log.Logger
}

// Session is owned by the event loop: every method except ID and
// Diagnostics must run there.
type Session struct {
	id          string
	logger      log.Logger
	sched       loop.Scheduler
	manager     *connection.Manager
	pipeline    *teleop.Pipeline
	sync        *pose.Synchronizer
	diagnostics *diagnostic.DiagnosticService
	telemetry   Telemetry

	pad         *teleop.DeviceInputState
	unsubscribe func()
	torn        bool

	statusListeners []func(connection.Status)
	frameListeners  []func(pose.Frame)
	inputListeners  []func(InputState)
}

// InputState is what operator clients display about the input side.
type InputState struct {
	ActiveKeys      []string                 `json:"active_keys"`
	AnalogConnected bool                     `json:"analog_connected"`
	Command         protocol.VelocityCommand `json:"command"`
	Source          string                   `json:"source,omitempty"`
}

// New builds the components and wires them together. Nothing connects until
// Start.
func New(opts Options) (*Session, error) {
	if opts.Scheduler == nil || opts.Dialer == nil {
		return nil, fmt.Errorf("session requires a scheduler and a dialer")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewDiscardLogger()
	}
	id := uuid.NewString()
	logger = logger.WithField("session", id[:8])

	topology := opts.Topology
	if topology.Len() == 0 {
		topology = pose.Go2()
	}
	synchronizer, err := pose.NewSynchronizer(topology, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build model: %w", err)
	}

	diag := opts.Diagnostics
	if diag == nil {
		diag = diagnostic.NewDiagnosticService()
	}

	s := &Session{
		id:          id,
		logger:      logger,
		sched:       opts.Scheduler,
		sync:        synchronizer,
		diagnostics: diag,
		telemetry:   opts.Telemetry,
	}

	s.manager = connection.NewManager(connection.Options{
		URL:       opts.URL,
		Backoff:   opts.Backoff,
		Dialer:    opts.Dialer,
		Scheduler: opts.Scheduler,
		Logger:    logger,
	})
	s.pipeline = teleop.NewPipeline(s.manager, opts.Scheduler.Now, logger)
	if opts.Settings != nil {
		if err := s.pipeline.Apply(*opts.Settings); err != nil {
			return nil, fmt.Errorf("invalid input settings: %w", err)
		}
	}

	s.manager.OnFrame(s.recordFrame)
	s.unsubscribe = s.manager.Subscribe(s.sync.Offer)
	s.manager.OnStatus(s.handleStatus)
	s.pipeline.OnCommand(s.handleCommand)
	diag.UpdateStatus(s.manager.Status())
	return s, nil
}

// ID identifies the session in logs and status messages.
func (s *Session) ID() string { return s.id }

// Diagnostics may be read from any goroutine.
func (s *Session) Diagnostics() *diagnostic.DiagnosticService { return s.diagnostics }

// Start opens the backend connection.
func (s *Session) Start() {
	if s.torn {
		return
	}
	s.logger.Infof("Session started")
	s.manager.Connect()
}

// OnStatus registers a listener for connection status transitions.
func (s *Session) OnStatus(fn func(connection.Status)) {
	s.statusListeners = append(s.statusListeners, fn)
}

// OnFrame registers a listener for model frames. It fires on refresh ticks
// that changed the model.
func (s *Session) OnFrame(fn func(pose.Frame)) {
	s.frameListeners = append(s.frameListeners, fn)
}

// OnInput registers a listener for input state changes.
func (s *Session) OnInput(fn func(InputState)) {
	s.inputListeners = append(s.inputListeners, fn)
}

// Status returns the current connection status.
func (s *Session) Status() connection.Status { return s.manager.Status() }

// Frame returns the current model frame.
func (s *Session) Frame() pose.Frame { return s.sync.Frame() }

// Input returns the current input state.
func (s *Session) Input() InputState {
	return InputState{
		ActiveKeys:      s.pipeline.ActiveKeys(),
		AnalogConnected: s.pipeline.AnalogConnected(),
		Command:         s.pipeline.LastCommand(),
	}
}

// InputSettings returns the pipeline settings in effect.
func (s *Session) InputSettings() teleop.Settings { return s.pipeline.Settings() }

// ApplyInputSettings reconfigures the pipeline.
func (s *Session) ApplyInputSettings(settings teleop.Settings) error {
	if s.torn {
		return fmt.Errorf("session torn down")
	}
	return s.pipeline.Apply(settings)
}

// Tick is the display refresh: it polls the analog device with its latest
// sample and applies the newest pose snapshot.
func (s *Session) Tick(now time.Time) {
	if s.torn {
		return
	}
	if s.pad != nil {
		s.pipeline.Poll(now, *s.pad)
	}
	changed := s.sync.Tick()
	frame := s.sync.Frame()
	s.diagnostics.RecordRenderTick(now, frame.Sequence, frame.Visible)
	if !changed {
		return
	}
	for _, fn := range s.frameListeners {
		fn(frame)
	}
}

// LoadGeometry loads segment geometry off the loop and attaches it on the
// loop. Geometry that arrives after teardown is released.
func (s *Session) LoadGeometry(ctx context.Context, loader pose.GeometryLoader) {
	topology := s.sync.Topology()
	logger := s.logger
	go func() {
		set := pose.LoadGeometry(ctx, loader, topology, logger)
		if !s.sched.Deliver(func() { s.sync.AttachGeometry(set) }) {
			set.Release()
		}
	}()
}

// Teardown stops reconnection, closes the transport, releases the model and
// detaches device input, in that order. It is idempotent.
func (s *Session) Teardown() {
	if s.torn {
		return
	}
	s.torn = true
	s.logger.Infof("Session teardown")

	s.manager.Stop()
	s.unsubscribe()
	s.sync.Dispose()
	s.pipeline.Detach()
	s.pad = nil
}

func (s *Session) recordFrame(frame *protocol.StateFrame) {
	s.diagnostics.RecordFrame(s.sched.Now(), frame)
	if s.telemetry != nil {
		if err := s.telemetry.PublishState(frame); err != nil {
			s.logger.Debugf("State republish failed: %v", err)
		}
	}
}

func (s *Session) handleStatus(st connection.Status) {
	s.diagnostics.UpdateStatus(st)
	if s.telemetry != nil {
		if err := s.telemetry.PublishStatus(st); err != nil {
			s.logger.Debugf("Status publish failed: %v", err)
		}
	}
	for _, fn := range s.statusListeners {
		fn(st)
	}
}

func (s *Session) handleCommand(ev teleop.CommandEvent) {
	s.diagnostics.RecordCommand(ev)
	if s.telemetry != nil {
		if err := s.telemetry.PublishCommand(ev); err != nil {
			s.logger.Debugf("Command publish failed: %v", err)
		}
	}
	in := InputState{
		ActiveKeys:      ev.ActiveKeys,
		AnalogConnected: s.pipeline.AnalogConnected(),
		Command:         ev.Command,
		Source:          string(ev.Source),
	}
	for _, fn := range s.inputListeners {
		fn(in)
	}
}
