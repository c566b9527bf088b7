package api

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	customlog "github.com/open-teleop/go2bridge/pkg/log"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	clientBuffer   = 64
)

type outbound struct {
	binary bool
	data   []byte
}

// Client is one websocket peer. Only its write pump writes to the conn.
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan outbound
	done chan struct{}
	once sync.Once
}

// Hub tracks the clients of one websocket endpoint and fans messages out to
// them. A client whose buffer is full is disconnected.
type Hub struct {
	name    string
	logger  customlog.Logger
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub creates an empty hub.
func NewHub(name string, logger customlog.Logger) *Hub {
	return &Hub{
		name:    name,
		logger:  logger.WithField("hub", name),
		clients: make(map[string]*Client),
	}
}

// Register adds conn under a fresh id.
func (h *Hub) Register(conn *websocket.Conn) *Client {
	c := &Client{
		ID:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan outbound, clientBuffer),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c.ID] = c
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Infof("Client %s connected from %s (%d total)", c.ID, conn.RemoteAddr(), count)
	return c
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c.ID]
	delete(h.clients, c.ID)
	count := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.logger.Infof("Client %s disconnected (%d remaining)", c.ID, count)
	}
	c.close()
}

// Broadcast queues data for every client.
func (h *Hub) Broadcast(data []byte, binary bool) {
	h.mu.RLock()
	var slow []*Client
	for _, c := range h.clients {
		if !c.enqueue(outbound{binary: binary, data: data}) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warnf("Dropping slow client %s", c.ID)
		h.unregister(c)
	}
}

// BroadcastJSON encodes v and broadcasts it as a text message.
func (h *Hub) BroadcastJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(data, false)
	return nil
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for id, c := range h.clients {
		clients = append(clients, c)
		delete(h.clients, id)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

// SendJSON queues v for this client only.
func (c *Client) SendJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if !c.enqueue(outbound{data: data}) {
		c.hub.unregister(c)
	}
	return nil
}

func (c *Client) enqueue(msg outbound) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

// Run pumps messages until the peer goes away. onMessage receives text
// frames; it may be nil for send-only endpoints. Run blocks and must be
// called from the fiber websocket handler.
func (c *Client) Run(onMessage func(data []byte)) {
	written := make(chan struct{})
	go func() {
		defer close(written)
		c.writePump()
	}()
	c.readPump(onMessage)
	// the conn is recycled once the handler returns
	<-written
}

func (c *Client) readPump(onMessage func(data []byte)) {
	defer c.hub.unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warnf("Client %s read error: %v", c.ID, err)
			}
			return
		}
		if mt != websocket.TextMessage || onMessage == nil {
			continue
		}
		onMessage(data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			wsType := websocket.TextMessage
			if msg.binary {
				wsType = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(wsType, msg.data); err != nil {
				c.hub.unregister(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.unregister(c)
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
