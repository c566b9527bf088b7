package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/open-teleop/go2bridge/pkg/log"
)

const (
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultWriteTimeout     = 2 * time.Second
	DefaultOutboundBuffer   = 64
	DefaultPingInterval     = 15 * time.Second
)

// WSDialer dials the backend over gorilla/websocket. Each connection gets a
// writer goroutine fed by a bounded buffer.
type WSDialer struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	OutboundBuffer   int
	PingInterval     time.Duration
	Logger           log.Logger
}

// Dial opens a websocket to url.
func (d *WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: orDefault(d.HandshakeTimeout, DefaultHandshakeTimeout),
	}

	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}

	size := d.OutboundBuffer
	if size <= 0 {
		size = DefaultOutboundBuffer
	}
	logger := d.Logger
	if logger == nil {
		logger = log.NewDiscardLogger()
	}

	return &wsConn{
		ws:           ws,
		out:          make(chan []byte, size),
		done:         make(chan struct{}),
		writeTimeout: orDefault(d.WriteTimeout, DefaultWriteTimeout),
		pingInterval: orDefault(d.PingInterval, DefaultPingInterval),
		logger:       logger.WithField("remote", url),
	}, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

type wsConn struct {
	ws           *websocket.Conn
	out          chan []byte
	done         chan struct{}
	writeTimeout time.Duration
	pingInterval time.Duration
	logger       log.Logger

	startOnce sync.Once
	closeOnce sync.Once
	closeErr  error
}

func (c *wsConn) Start(onMessage func([]byte), onClose func(error)) {
	c.startOnce.Do(func() {
		go c.writeLoop()
		go c.readLoop(onMessage, onClose)
	})
}

// Send queues data for the writer. It never blocks; a full buffer drops the
// message.
func (c *wsConn) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}

	select {
	case c.out <- data:
		return nil
	default:
		c.logger.Warnf("Outbound buffer full (%d), dropping message", cap(c.out))
		return ErrOutboundFull
	}
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		deadline := time.Now().Add(c.writeTimeout)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

func (c *wsConn) readLoop(onMessage func([]byte), onClose func(error)) {
	var err error
	for {
		var msgType int
		var data []byte
		msgType, data, err = c.ws.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		onMessage(data)
	}

	select {
	case <-c.done:
		// closed locally
		err = nil
	default:
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			err = nil
		}
	}
	c.Close()
	onClose(err)
}

func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.out:
			c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warnf("Write failed: %v", err)
				c.ws.Close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
				c.logger.Debugf("Ping failed: %v", err)
			}
		}
	}
}
