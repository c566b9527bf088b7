package zeromq

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pebbe/zmq4"

	customlog "github.com/open-teleop/go2bridge/pkg/log"
)

// Common errors
var (
	ErrServiceClosed      = errors.New("zeromq service is closed")
	ErrInvalidMessage     = errors.New("invalid message format")
	ErrUnknownMessageType = errors.New("unknown message type")
)

// Request/response message types
const (
	MsgTypeConfigRequest  = "CONFIG_REQUEST"
	MsgTypeConfigResponse = "CONFIG_RESPONSE"
	MsgTypeStatusRequest  = "STATUS_REQUEST"
	MsgTypeStatusResponse = "STATUS_RESPONSE"
	MsgTypeError          = "ERROR"
)

const (
	socketTimeout = 1 * time.Second
	pollInterval  = 500 * time.Millisecond
)

// ZeroMQMessage is the JSON envelope used on both sockets.
type ZeroMQMessage struct {
	Type      string      `json:"type"`
	Timestamp float64     `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// ErrorResponse represents an error response message
type ErrorResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// NewMessage stamps an envelope with the current time in fractional seconds.
func NewMessage(messageType string, data interface{}) ZeroMQMessage {
	return ZeroMQMessage{
		Type:      messageType,
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
		Data:      data,
	}
}

// MessageHandler defines the interface for handlers that process specific message types
type MessageHandler interface {
	HandleMessage(data []byte) ([]byte, error)
}

// HandlerFunc is a function type that implements MessageHandler
type HandlerFunc func(data []byte) ([]byte, error)

// HandleMessage calls the function
func (f HandlerFunc) HandleMessage(data []byte) ([]byte, error) {
	return f(data)
}

// Options configures the service sockets.
type Options struct {
	RequestAddress string
	PublishAddress string
	Logger         customlog.Logger
}

// MessageReceiver answers requests on a REP socket. The socket is owned by
// the receive goroutine and closed by it on exit.
type MessageReceiver struct {
	socket     *zmq4.Socket
	dispatcher *MessageDispatcher
	poller     *zmq4.Poller
	logger     customlog.Logger
	running    atomic.Bool
	started    atomic.Bool
	wg         *sync.WaitGroup
}

func newMessageReceiver(ctx *zmq4.Context, address string, dispatcher *MessageDispatcher, logger customlog.Logger, wg *sync.WaitGroup) (*MessageReceiver, error) {
	socket, err := ctx.NewSocket(zmq4.REP)
	if err != nil {
		return nil, fmt.Errorf("failed to create REP socket: %w", err)
	}
	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set linger option: %w", err)
	}
	if err := socket.SetRcvtimeo(socketTimeout); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set receive timeout: %w", err)
	}
	if err := socket.SetSndtimeo(socketTimeout); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set send timeout: %w", err)
	}
	if err := socket.Bind(address); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to bind to %s: %w", address, err)
	}

	poller := zmq4.NewPoller()
	poller.Add(socket, zmq4.POLLIN)

	logger.Infof("MessageReceiver initialized on %s", address)
	return &MessageReceiver{
		socket:     socket,
		dispatcher: dispatcher,
		poller:     poller,
		logger:     logger,
		wg:         wg,
	}, nil
}

// Start begins the message receiving loop
func (r *MessageReceiver) Start() {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	r.running.Store(true)
	r.wg.Add(1)
	go r.run()
}

func (r *MessageReceiver) run() {
	defer r.wg.Done()
	defer r.socket.Close()
	r.logger.Debugf("MessageReceiver started")

	for r.running.Load() {
		sockets, err := r.poller.Poll(pollInterval)
		if err != nil {
			if r.running.Load() {
				r.logger.Warnf("Error polling socket: %v", err)
			}
			continue
		}
		if len(sockets) == 0 {
			continue
		}

		msg, err := r.socket.RecvBytes(0)
		if err != nil {
			if r.running.Load() {
				r.logger.Warnf("Error receiving message: %v", err)
			}
			continue
		}
		r.logger.Debugf("Received request (%d bytes)", len(msg))

		response, err := r.dispatcher.Dispatch(msg)
		if err != nil {
			r.logger.Warnf("Error dispatching message: %v", err)
			code := 500
			if errors.Is(err, ErrInvalidMessage) || errors.Is(err, ErrUnknownMessageType) {
				code = 400
			}
			response, _ = json.Marshal(NewMessage(MsgTypeError, ErrorResponse{Message: err.Error(), Code: code}))
		}

		// REP must answer every request before it can receive the next one.
		if _, err := r.socket.SendBytes(response, 0); err != nil && r.running.Load() {
			r.logger.Warnf("Error sending response: %v", err)
		}
	}
	r.logger.Debugf("MessageReceiver stopped")
}

// Stop halts the receive loop. The goroutine notices within one poll
// interval. A receiver that never started closes its socket here.
func (r *MessageReceiver) Stop() {
	r.running.Store(false)
	if r.started.CompareAndSwap(false, true) {
		r.socket.Close()
	}
}

// MessageSender publishes topic-framed messages on a PUB socket.
type MessageSender struct {
	socket  *zmq4.Socket
	logger  customlog.Logger
	running bool
	mu      sync.Mutex
}

func newMessageSender(ctx *zmq4.Context, address string, logger customlog.Logger) (*MessageSender, error) {
	socket, err := ctx.NewSocket(zmq4.PUB)
	if err != nil {
		return nil, fmt.Errorf("failed to create PUB socket: %w", err)
	}
	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set linger option: %w", err)
	}
	if err := socket.Bind(address); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to bind to %s: %w", address, err)
	}

	logger.Infof("MessageSender initialized on %s", address)
	return &MessageSender{
		socket:  socket,
		logger:  logger,
		running: true,
	}, nil
}

// PublishMessage sends the topic frame followed by the payload frame.
func (s *MessageSender) PublishMessage(topic string, message []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrServiceClosed
	}
	if _, err := s.socket.Send(topic, zmq4.SNDMORE); err != nil {
		return fmt.Errorf("failed to send topic: %w", err)
	}
	if _, err := s.socket.SendBytes(message, 0); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Close cleans up resources
func (s *MessageSender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	if s.socket != nil {
		s.socket.Close()
		s.socket = nil
	}
}

// MessageDispatcher routes JSON requests to handlers by their type field.
type MessageDispatcher struct {
	handlers map[string]MessageHandler
	logger   customlog.Logger
	mu       sync.RWMutex
}

// NewMessageDispatcher creates a new message dispatcher
func NewMessageDispatcher(logger customlog.Logger) *MessageDispatcher {
	return &MessageDispatcher{
		handlers: make(map[string]MessageHandler),
		logger:   logger,
	}
}

// RegisterHandler adds a handler for a specific message type
func (d *MessageDispatcher) RegisterHandler(messageType string, handler MessageHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[messageType] = handler
	d.logger.Debugf("Registered handler for message type: %s", messageType)
}

// Dispatch processes a message and routes it to the appropriate handler
func (d *MessageDispatcher) Dispatch(data []byte) ([]byte, error) {
	var msg ZeroMQMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrInvalidMessage)
	}

	d.mu.RLock()
	handler, exists := d.handlers[msg.Type]
	d.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessageType, msg.Type)
	}

	d.logger.Debugf("Dispatching message of type: %s", msg.Type)
	return handler.HandleMessage(data)
}

// Service owns the REP request socket and the PUB telemetry socket.
type Service struct {
	ctx        *zmq4.Context
	receiver   *MessageReceiver
	sender     *MessageSender
	dispatcher *MessageDispatcher
	logger     customlog.Logger
	running    atomic.Bool
	stopOnce   sync.Once
	wg         *sync.WaitGroup
}

// NewService binds both sockets. Nothing is received until Start.
func NewService(opts Options) (*Service, error) {
	logger := opts.Logger
	if logger == nil {
		logger = customlog.NewDiscardLogger()
	}
	logger = logger.WithField("component", "zeromq")

	ctx, err := zmq4.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create ZMQ context: %w", err)
	}

	dispatcher := NewMessageDispatcher(logger)
	wg := &sync.WaitGroup{}

	receiver, err := newMessageReceiver(ctx, opts.RequestAddress, dispatcher, logger, wg)
	if err != nil {
		ctx.Term()
		return nil, err
	}

	sender, err := newMessageSender(ctx, opts.PublishAddress, logger)
	if err != nil {
		receiver.socket.Close()
		ctx.Term()
		return nil, err
	}

	return &Service{
		ctx:        ctx,
		receiver:   receiver,
		sender:     sender,
		dispatcher: dispatcher,
		logger:     logger,
		wg:         wg,
	}, nil
}

// RegisterHandler adds a handler for a specific message type
func (s *Service) RegisterHandler(messageType string, handler MessageHandler) {
	s.dispatcher.RegisterHandler(messageType, handler)
}

// RegisterHandlerFunc adds a handler function for a specific message type
func (s *Service) RegisterHandlerFunc(messageType string, handler func([]byte) ([]byte, error)) {
	s.dispatcher.RegisterHandler(messageType, HandlerFunc(handler))
}

// Start begins answering requests and accepting publishes.
func (s *Service) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}
	s.logger.Infof("Starting ZeroMQ service")
	s.receiver.Start()
	return nil
}

// Stop halts the receiver, closes both sockets and terminates the context.
// It is safe to call on a service that was never started.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Infof("Stopping ZeroMQ service")
		s.running.Store(false)
		s.receiver.Stop()
		s.sender.Close()
		s.wg.Wait()
		s.ctx.Term()
		s.logger.Infof("ZeroMQ service stopped")
	})
}

// PublishMessage sends a message with the given topic
func (s *Service) PublishMessage(topic string, message []byte) error {
	if !s.running.Load() {
		return ErrServiceClosed
	}
	return s.sender.PublishMessage(topic, message)
}

// PublishJSON publishes a JSON-serializable message with the given topic
func (s *Service) PublishJSON(topic string, messageType string, data interface{}) error {
	msgData, err := json.Marshal(NewMessage(messageType, data))
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return s.PublishMessage(topic, msgData)
}
