package zeromq

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pebbe/zmq4"

	customlog "github.com/open-teleop/go2bridge/pkg/log"
)

// TopicHandler receives one decoded telemetry message. Raw holds the
// payload frame as published.
type TopicHandler func(topic string, msg ZeroMQMessage, raw []byte)

// Subscriber connects a SUB socket to a telemetry publisher.
type Subscriber struct {
	ctx     *zmq4.Context
	socket  *zmq4.Socket
	poller  *zmq4.Poller
	logger  customlog.Logger
	running atomic.Bool
	stop    sync.Once
	wg      sync.WaitGroup
}

// NewSubscriber connects to address and subscribes to topics. No topics
// means every topic.
func NewSubscriber(address string, topics []string, logger customlog.Logger) (*Subscriber, error) {
	if logger == nil {
		logger = customlog.NewDiscardLogger()
	}
	ctx, err := zmq4.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create ZMQ context: %w", err)
	}
	socket, err := ctx.NewSocket(zmq4.SUB)
	if err != nil {
		ctx.Term()
		return nil, fmt.Errorf("failed to create SUB socket: %w", err)
	}
	fail := func(err error) (*Subscriber, error) {
		socket.Close()
		ctx.Term()
		return nil, err
	}
	if err := socket.SetLinger(0); err != nil {
		return fail(fmt.Errorf("failed to set linger option: %w", err))
	}
	if len(topics) == 0 {
		topics = []string{""}
	}
	for _, t := range topics {
		if err := socket.SetSubscribe(t); err != nil {
			return fail(fmt.Errorf("failed to subscribe to %q: %w", t, err))
		}
	}
	if err := socket.Connect(address); err != nil {
		return fail(fmt.Errorf("failed to connect to %s: %w", address, err))
	}

	poller := zmq4.NewPoller()
	poller.Add(socket, zmq4.POLLIN)
	return &Subscriber{
		ctx:    ctx,
		socket: socket,
		poller: poller,
		logger: logger.WithField("component", "zmq-subscriber"),
	}, nil
}

// Start runs handler for every message until Stop.
func (s *Subscriber) Start(handler TopicHandler) {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	s.wg.Add(1)
	go s.receiveLoop(handler)
}

// Stop ends the receive loop and releases the socket.
func (s *Subscriber) Stop() {
	s.stop.Do(func() {
		if s.running.CompareAndSwap(true, false) {
			s.wg.Wait()
		} else {
			s.socket.Close()
		}
		s.ctx.Term()
	})
}

func (s *Subscriber) receiveLoop(handler TopicHandler) {
	defer s.wg.Done()
	defer s.socket.Close()

	for s.running.Load() {
		polled, err := s.poller.Poll(pollInterval)
		if err != nil || len(polled) == 0 {
			continue
		}
		parts, err := s.socket.RecvMessageBytes(0)
		if err != nil {
			s.logger.Warnf("Error receiving message: %v", err)
			continue
		}
		if len(parts) != 2 {
			s.logger.Warnf("Dropping message with %d frames", len(parts))
			continue
		}
		var msg ZeroMQMessage
		if err := json.Unmarshal(parts[1], &msg); err != nil {
			s.logger.Warnf("Dropping undecodable message on %s: %v", parts[0], err)
			continue
		}
		handler(string(parts[0]), msg, parts[1])
	}
}
