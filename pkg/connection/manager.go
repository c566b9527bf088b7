// Package connection maintains the single transport to the robot backend and
// recovers it automatically after drops.
//
// A Manager is not safe for concurrent use. Every method and every callback it
// invokes runs on the event loop behind its Scheduler; transport goroutines only
// hand work to that loop with Deliver, so dial results, frames and closes are
// never dropped when the queue is full.
package connection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/open-teleop/go2bridge/pkg/log"
	"github.com/open-teleop/go2bridge/pkg/loop"
	"github.com/open-teleop/go2bridge/pkg/protocol"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrOutboundFull = errors.New("outbound buffer full")
)

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status is published on every state transition.
type Status struct {
	State     State
	Attempts  int
	NextDelay time.Duration
	URL       string
	Err       error
}

// Connected reports whether the transport is up.
func (s Status) Connected() bool { return s.State == Connected }

// Conn is an open transport. Send must not block.
type Conn interface {
	// Start begins delivering inbound messages. onClose is called at most once.
	Start(onMessage func([]byte), onClose func(error))
	Send(data []byte) error
	Close() error
}

// Dialer opens transports. Dial may block; the Manager calls it off the loop.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// StateHandler receives accepted state frames.
type StateHandler func(frame *protocol.StateFrame)

// Options configures a Manager.
type Options struct {
	URL       string
	Backoff   Backoff
	Dialer    Dialer
	Scheduler loop.Scheduler
	Logger    log.Logger
}

type subscriber struct {
	id int
	fn StateHandler
}

// Manager owns the transport, its state machine and the reconnect policy.
type Manager struct {
	url     string
	backoff Backoff
	dialer  Dialer
	sched   loop.Scheduler
	logger  log.Logger

	state     State
	attempts  int
	nextDelay time.Duration
	lastErr   error

	// generation tags transport events; anything from an older one is ignored
	generation uint64
	conn       Conn
	cancelDial context.CancelFunc
	retry      loop.Timer
	stopped    bool

	subscribers []subscriber
	nextSubID   int
	statusFns   []func(Status)
	frameFns    []StateHandler
}

// NewManager creates a Manager in the Disconnected state. Nothing is dialed
// until Connect is called.
func NewManager(opts Options) *Manager {
	if opts.Backoff == (Backoff{}) {
		opts.Backoff = DefaultBackoff()
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDiscardLogger()
	}
	return &Manager{
		url:     opts.URL,
		backoff: opts.Backoff,
		dialer:  opts.Dialer,
		sched:   opts.Scheduler,
		logger:  opts.Logger.WithField("component", "connection"),
	}
}

// Connect starts a connection attempt. It is a no-op while Connecting,
// Connected, waiting for a scheduled retry, or after Stop.
func (m *Manager) Connect() {
	if m.stopped || m.state != Disconnected || m.retry != nil {
		return
	}
	m.dial()
}

// Send transmits a command. It is dropped silently unless Connected; encoding
// and transport errors are logged and swallowed.
func (m *Manager) Send(cmd protocol.VelocityCommand) {
	if m.state != Connected || m.conn == nil {
		return
	}
	data, err := protocol.EncodeCommand(cmd)
	if err != nil {
		m.logger.Errorf("Dropping command: %v", err)
		return
	}
	if err := m.conn.Send(data); err != nil {
		m.logger.Warnf("Failed to send command: %v", err)
	}
}

// Subscribe registers a state frame handler and returns a function removing it.
func (m *Manager) Subscribe(fn StateHandler) (unsubscribe func()) {
	m.nextSubID++
	id := m.nextSubID
	m.subscribers = append(m.subscribers, subscriber{id: id, fn: fn})
	return func() {
		for i, s := range m.subscribers {
			if s.id == id {
				m.subscribers = append(m.subscribers[:i:i], m.subscribers[i+1:]...)
				return
			}
		}
	}
}

// OnStatus registers a callback fired on every state transition.
func (m *Manager) OnStatus(fn func(Status)) {
	m.statusFns = append(m.statusFns, fn)
}

// OnFrame registers a counter hook invoked once per accepted frame, before
// subscribers.
func (m *Manager) OnFrame(fn StateHandler) {
	m.frameFns = append(m.frameFns, fn)
}

func (m *Manager) State() State { return m.state }

// Attempts returns the number of consecutive failed attempts.
func (m *Manager) Attempts() int { return m.attempts }

// NextDelay returns the delay of the pending retry, or zero.
func (m *Manager) NextDelay() time.Duration { return m.nextDelay }

// Status returns a snapshot of the current state.
func (m *Manager) Status() Status {
	return Status{
		State:     m.state,
		Attempts:  m.attempts,
		NextDelay: m.nextDelay,
		URL:       m.url,
		Err:       m.lastErr,
	}
}

// Stop prevents any further reconnect and closes the live transport. It is
// safe to call more than once.
func (m *Manager) Stop() {
	if m.stopped {
		return
	}
	m.stopped = true
	m.generation++

	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	if m.conn != nil {
		if err := m.conn.Close(); err != nil {
			m.logger.Debugf("Close error during stop: %v", err)
		}
		m.conn = nil
	}
	m.nextDelay = 0
	m.setState(Disconnected)
	m.logger.Infof("Connection manager stopped")
}

func (m *Manager) dial() {
	m.generation++
	gen := m.generation
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelDial = cancel
	m.nextDelay = 0
	m.setState(Connecting)

	m.logger.Infof("Connecting to %s (attempt %d)", m.url, m.attempts+1)
	dialer, url, sched := m.dialer, m.url, m.sched
	go func() {
		conn, err := dialer.Dial(ctx, url)
		if !sched.Deliver(func() { m.handleDial(gen, conn, err) }) && conn != nil {
			conn.Close()
		}
	}()
}

func (m *Manager) handleDial(gen uint64, conn Conn, err error) {
	if gen != m.generation || m.stopped {
		if conn != nil {
			conn.Close()
		}
		return
	}
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	if err != nil {
		m.logger.Warnf("Connection attempt failed: %v", err)
		m.lastErr = err
		m.scheduleReconnect()
		return
	}

	m.conn = conn
	m.attempts = 0
	m.lastErr = nil

	// The handshake precedes anything a status listener might send.
	if err := conn.Send(protocol.EncodeWebConnect()); err != nil {
		m.logger.Warnf("Failed to send handshake: %v", err)
	}
	conn.Start(
		func(data []byte) { m.sched.Deliver(func() { m.handleMessage(gen, data) }) },
		func(err error) { m.sched.Deliver(func() { m.handleClose(gen, err) }) },
	)
	m.logger.Infof("Connected to %s", m.url)
	m.setState(Connected)
}

func (m *Manager) handleMessage(gen uint64, data []byte) {
	if gen != m.generation || m.conn == nil {
		return
	}
	frame, err := protocol.Decode(data)
	if err != nil {
		if errors.Is(err, protocol.ErrMalformed) {
			m.logger.Debugf("Discarding frame: %v", err)
		}
		return
	}

	for _, fn := range m.frameFns {
		m.deliver("frame hook", fn, frame)
	}
	// Copy so a handler may unsubscribe during dispatch.
	subs := append([]subscriber(nil), m.subscribers...)
	for _, s := range subs {
		m.deliver(fmt.Sprintf("subscriber %d", s.id), s.fn, frame)
	}
}

func (m *Manager) deliver(name string, fn StateHandler, frame *protocol.StateFrame) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Errorf("Panic in %s: %v", name, r)
		}
	}()
	fn(frame)
}

func (m *Manager) handleClose(gen uint64, err error) {
	if gen != m.generation || m.conn == nil {
		return
	}
	m.conn = nil
	if err != nil {
		m.logger.Warnf("Connection closed: %v", err)
	} else {
		m.logger.Infof("Connection closed")
	}
	m.lastErr = err
	m.scheduleReconnect()
}

func (m *Manager) scheduleReconnect() {
	if m.stopped {
		m.setState(Disconnected)
		return
	}
	m.attempts++
	m.nextDelay = m.backoff.Delay(m.attempts)
	m.logger.Infof("Reconnecting in %v (attempt %d)", m.nextDelay, m.attempts)

	m.retry = m.sched.AfterFunc(m.nextDelay, func() {
		m.retry = nil
		if m.stopped {
			return
		}
		m.dial()
	})
	m.setState(Disconnected)
}

func (m *Manager) setState(s State) {
	if s == m.state {
		return
	}
	m.state = s

	status := m.Status()
	for _, fn := range m.statusFns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Errorf("Panic in status listener: %v", r)
				}
			}()
			fn(status)
		}()
	}
}
