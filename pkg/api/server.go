package api

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/open-teleop/go2bridge/domain/diagnostic"
	"github.com/open-teleop/go2bridge/domain/pose"
	"github.com/open-teleop/go2bridge/domain/session"
	"github.com/open-teleop/go2bridge/pkg/connection"
	customlog "github.com/open-teleop/go2bridge/pkg/log"
	"github.com/open-teleop/go2bridge/services"
)

// Poster runs fn on the event loop that owns the session.
type Poster interface {
	Post(fn func()) bool
	Deliver(fn func()) bool
}

// StatusMessage is pushed to operator clients on every link transition.
type StatusMessage struct {
	Type        string `json:"type"`
	SessionID   string `json:"session_id"`
	State       string `json:"state"`
	URL         string `json:"url"`
	Attempts    int    `json:"attempts"`
	NextDelayMs int64  `json:"next_delay_ms"`
	Error       string `json:"error,omitempty"`
}

// InputMessage is pushed to operator clients when a command goes out.
type InputMessage struct {
	Type string `json:"type"`
	session.InputState
}

// ErrorMessage reports a rejected client message.
type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// ServerOptions wires the HTTP surface. ConfigService and Diagnostics are
// optional.
type ServerOptions struct {
	AppName       string
	Loop          Poster
	Session       *session.Session
	ConfigService services.InputConfigService
	Diagnostics   *diagnostic.DiagnosticService
	Logger        customlog.Logger
}

// Server is the operator-facing fiber app: device events in, status and
// pose frames out.
type Server struct {
	app       *fiber.App
	loop      Poster
	session   *session.Session
	operators *Hub
	renderers *Hub
	builder   *flatbuffers.Builder
	logger    customlog.Logger
}

// NewServer builds the app and subscribes to the session. It must run on the
// session's loop or before the loop starts.
func NewServer(opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = customlog.NewDiscardLogger()
	}
	logger = logger.WithField("component", "api")
	name := opts.AppName
	if name == "" {
		name = "go2bridge operator"
	}

	s := &Server{
		app: fiber.New(fiber.Config{
			AppName:               name,
			ErrorHandler:          customErrorHandler,
			DisableStartupMessage: true,
		}),
		loop:      opts.Loop,
		session:   opts.Session,
		operators: NewHub("operator", logger),
		renderers: NewHub("render", logger),
		builder:   flatbuffers.NewBuilder(4096),
		logger:    logger,
	}

	s.app.Use(recover.New())
	s.app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "online",
			"service": name,
			"session": s.session.ID(),
		})
	})
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})
	diag := opts.Diagnostics
	if diag == nil {
		diag = s.session.Diagnostics()
	}
	s.app.Get("/api/diagnostics", diag.GetMetricsHandler)
	if opts.ConfigService != nil {
		RegisterConfigRoutes(s.app, opts.ConfigService, logger)
	}

	ws := s.app.Group("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	ws.Get("/operator", websocket.New(s.handleOperator))
	ws.Get("/render", websocket.New(s.handleRender))

	s.session.OnStatus(func(st connection.Status) {
		s.operators.BroadcastJSON(s.statusMessage(st))
	})
	s.session.OnInput(func(in session.InputState) {
		s.operators.BroadcastJSON(InputMessage{Type: "input", InputState: in})
	})
	s.session.OnFrame(func(f pose.Frame) {
		if s.renderers.ClientCount() == 0 {
			return
		}
		s.renderers.Broadcast(EncodePoseFrame(s.builder, f, time.Now()), true)
	})
	return s
}

// App exposes the fiber app, for tests and extra routes.
func (s *Server) App() *fiber.App { return s.app }

// Operators and Renderers expose the client hubs.
func (s *Server) Operators() *Hub { return s.operators }
func (s *Server) Renderers() *Hub { return s.renderers }

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Infof("Operator server listening on %s", addr)
	return s.app.Listen(addr)
}

// Serve serves on an existing listener until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown disconnects websocket clients and stops the app.
func (s *Server) Shutdown(ctx context.Context) error {
	s.operators.CloseAll()
	s.renderers.CloseAll()
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) statusMessage(st connection.Status) StatusMessage {
	msg := StatusMessage{
		Type:        "status",
		SessionID:   s.session.ID(),
		State:       st.State.String(),
		URL:         st.URL,
		Attempts:    st.Attempts,
		NextDelayMs: st.NextDelay.Milliseconds(),
	}
	if st.Err != nil {
		msg.Error = st.Err.Error()
	}
	return msg
}

func (s *Server) handleOperator(conn *websocket.Conn) {
	client := s.operators.Register(conn)
	s.loop.Post(func() {
		client.SendJSON(s.statusMessage(s.session.Status()))
		client.SendJSON(InputMessage{Type: "input", InputState: s.session.Input()})
	})

	// gamepads this operator brought in, touched only by the read pump
	devices := make(map[string]bool)
	client.Run(func(data []byte) {
		var ev session.DeviceEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			client.SendJSON(ErrorMessage{Type: "error", Error: "invalid device event: " + err.Error()})
			return
		}
		switch ev.Type {
		case session.EventGamepadConnected, session.EventGamepadState:
			if ev.DeviceID != "" {
				devices[ev.DeviceID] = true
			}
		case session.EventGamepadDisconnected:
			delete(devices, ev.DeviceID)
		}
		if !s.loop.Deliver(func() {
			if _, err := s.session.HandleDevice(ev); err != nil {
				client.SendJSON(ErrorMessage{Type: "error", Error: err.Error()})
			}
		}) {
			client.SendJSON(ErrorMessage{Type: "error", Error: "operator loop unavailable"})
		}
	})

	// A vanished operator must not leave keys held or a gamepad deflected.
	s.loop.Deliver(func() {
		s.session.HandleDevice(session.DeviceEvent{Type: session.EventBlur})
		for id := range devices {
			s.session.HandleDevice(session.DeviceEvent{Type: session.EventGamepadDisconnected, DeviceID: id})
		}
	})
}

func (s *Server) handleRender(conn *websocket.Conn) {
	client := s.renderers.Register(conn)
	s.loop.Post(func() {
		data := EncodePoseFrame(s.builder, s.session.Frame(), time.Now())
		if !client.enqueue(outbound{binary: true, data: data}) {
			s.renderers.unregister(client)
		}
	})
	client.Run(nil)
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
