package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/open-teleop/go2bridge/domain/session"
	"github.com/open-teleop/go2bridge/domain/teleop"
	"github.com/open-teleop/go2bridge/pkg/connection"
	"github.com/open-teleop/go2bridge/pkg/loop"
	"github.com/open-teleop/go2bridge/services"
)

type backendConn struct {
	mu        sync.Mutex
	sent      []string
	onMessage func([]byte)
}

func (c *backendConn) Start(onMessage func([]byte), onClose func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = onMessage
}

func (c *backendConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, string(data))
	return nil
}

func (c *backendConn) Close() error { return nil }

func (c *backendConn) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func (c *backendConn) deliver(data string) {
	c.mu.Lock()
	fn := c.onMessage
	c.mu.Unlock()
	fn([]byte(data))
}

type backendDialer struct {
	conn *backendConn
	once sync.Once
}

func (d *backendDialer) Dial(ctx context.Context, url string) (connection.Conn, error) {
	var conn connection.Conn
	d.once.Do(func() { conn = d.conn })
	if conn == nil {
		return nil, errors.New("connection refused")
	}
	return conn, nil
}

type testEnv struct {
	loop    *loop.Loop
	session *session.Session
	server  *Server
	backend *backendConn
	base    string
	cfgPath string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	l := loop.New(256, nil)
	backend := &backendConn{}
	sess, err := session.New(session.Options{
		URL:       "ws://robot/ws",
		Dialer:    &backendDialer{conn: backend},
		Scheduler: l,
	})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	cfgPath := filepath.Join(t.TempDir(), "input_config.yaml")
	cfgSvc, err := services.NewInputConfigService(cfgPath, nil)
	if err != nil {
		t.Fatalf("Failed to create config service: %v", err)
	}
	cfgSvc.SetApplier(func(s teleop.Settings) error {
		var applyErr error
		if err := l.Invoke(func() { applyErr = sess.ApplyInputSettings(s) }); err != nil {
			return err
		}
		return applyErr
	})

	srv := NewServer(ServerOptions{Loop: l, Session: sess, ConfigService: cfgSvc})
	if err := l.Start(); err != nil {
		t.Fatalf("Failed to start loop: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	go srv.Serve(ln)

	env := &testEnv{loop: l, session: sess, server: srv, backend: backend, cfgPath: cfgPath,
		base: ln.Addr().String()}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		l.Invoke(sess.Teardown)
		srv.Shutdown(ctx)
		l.Stop()
	})
	return env
}

func (e *testEnv) connectBackend(t *testing.T) {
	t.Helper()
	e.loop.Invoke(e.session.Start)
	waitFor(t, func() bool {
		var ok bool
		e.loop.Invoke(func() { ok = e.session.Status().Connected() })
		return ok
	}, "backend connected")
}

func (e *testEnv) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s%s", e.base, path), nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readJSON(t *testing.T, ws *websocket.Conn) map[string]interface{} {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg map[string]interface{}
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	return msg
}

func readUntilType(t *testing.T, ws *websocket.Conn, typ string) map[string]interface{} {
	t.Helper()
	for i := 0; i < 20; i++ {
		if msg := readJSON(t, ws); msg["type"] == typ {
			return msg
		}
	}
	t.Fatalf("No %s message received", typ)
	return nil
}

func TestHealthAndDiagnostics(t *testing.T) {
	env := newTestEnv(t)
	app := env.server.App()

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil || resp.StatusCode != 200 {
		t.Fatalf("Expected healthy, got %v (%v)", resp, err)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/api/diagnostics", nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"connection_state":"disconnected"`) {
		t.Errorf("Unexpected diagnostics body: %s", body)
	}

	resp, _ = app.Test(httptest.NewRequest("GET", "/ws/operator", nil))
	if resp.StatusCode != 426 {
		t.Errorf("Expected 426 for plain GET on websocket route, got %d", resp.StatusCode)
	}
	body, _ = io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"error"`) {
		t.Errorf("Expected JSON error body, got %s", body)
	}
}

func TestInputConfigRoutes(t *testing.T) {
	env := newTestEnv(t)
	app := env.server.App()

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/config/input", nil))
	if err != nil || resp.StatusCode != 200 {
		t.Fatalf("Expected 200, got %v (%v)", resp, err)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-yaml" {
		t.Errorf("Expected YAML content type, got %s", ct)
	}

	req := httptest.NewRequest("PUT", "/api/v1/config/input", strings.NewReader("version: \"2\"\nconfig_id: slow\ninput:\n  max_velocity: 0.5\n"))
	req.Header.Set("Content-Type", "application/x-yaml")
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("Expected 200, got %d: %s (%v)", resp.StatusCode, body, err)
	}
	var maxVel float64
	env.loop.Invoke(func() { maxVel = env.session.InputSettings().MaxVelocity })
	if maxVel != 0.5 {
		t.Errorf("Expected max velocity 0.5 applied, got %v", maxVel)
	}

	req = httptest.NewRequest("PUT", "/api/v1/config/input", strings.NewReader("version: \"2\"\nconfig_id: x\ninput:\n  precedence: loudest\n"))
	resp, _ = app.Test(req)
	if resp.StatusCode != 400 {
		t.Errorf("Expected 400 for invalid config, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest("PUT", "/api/v1/config/input", nil)
	resp, _ = app.Test(req)
	if resp.StatusCode != 400 {
		t.Errorf("Expected 400 for empty body, got %d", resp.StatusCode)
	}

	resp, _ = app.Test(httptest.NewRequest("GET", "/api/v1/config/input/settings", nil))
	var settings teleop.Settings
	json.NewDecoder(resp.Body).Decode(&settings)
	if settings.MaxVelocity != 0.5 {
		t.Errorf("Expected effective max velocity 0.5, got %v", settings.MaxVelocity)
	}
}

func TestOperatorSocketDrivesBackend(t *testing.T) {
	env := newTestEnv(t)
	ws := env.dial(t, "/ws/operator")

	first := readJSON(t, ws)
	if first["type"] != "status" || first["state"] != "disconnected" {
		t.Fatalf("Expected initial disconnected status, got %v", first)
	}
	if first["session_id"] != env.session.ID() {
		t.Errorf("Expected session id %s, got %v", env.session.ID(), first["session_id"])
	}

	env.connectBackend(t)
	readUntilType(t, ws, "status")

	ws.WriteJSON(session.DeviceEvent{Type: session.EventKeyDown, Key: "w"})
	input := readUntilType(t, ws, "input")
	if cmd := input["command"].(map[string]interface{}); cmd["x_vel"] != float64(1) {
		t.Errorf("Expected x_vel 1 echoed, got %v", cmd)
	}
	waitFor(t, func() bool {
		for _, m := range env.backend.Sent() {
			if m == `{"type":"command","x_vel":1,"y_vel":0,"ang_vel":0}` {
				return true
			}
		}
		return false
	}, "command at backend")

	ws.WriteMessage(websocket.TextMessage, []byte("{not json"))
	if msg := readUntilType(t, ws, "error"); !strings.Contains(msg["error"].(string), "invalid device event") {
		t.Errorf("Unexpected error message: %v", msg)
	}

	// Losing the operator releases held keys.
	ws.Close()
	waitFor(t, func() bool {
		sent := env.backend.Sent()
		return sent[len(sent)-1] == `{"type":"command","x_vel":0,"y_vel":0,"ang_vel":0}`
	}, "zero command after operator disconnect")
}

func TestOperatorLossReleasesGamepad(t *testing.T) {
	env := newTestEnv(t)
	ws := env.dial(t, "/ws/operator")
	readUntilType(t, ws, "status")
	env.connectBackend(t)

	const forward = `{"type":"command","x_vel":1,"y_vel":0,"ang_vel":0}`
	const zero = `{"type":"command","x_vel":0,"y_vel":0,"ang_vel":0}`
	last := func() string {
		sent := env.backend.Sent()
		if len(sent) == 0 {
			return ""
		}
		return sent[len(sent)-1]
	}

	ws.WriteJSON(session.DeviceEvent{Type: session.EventGamepadConnected, DeviceID: "pad-0"})
	ws.WriteJSON(session.DeviceEvent{Type: session.EventGamepadState, DeviceID: "pad-0", Axes: []float64{0, -1, 0}})
	waitFor(t, func() bool {
		env.loop.Invoke(func() { env.session.Tick(time.Now()) })
		return last() == forward
	}, "gamepad command at backend")

	ws.Close()
	waitFor(t, func() bool {
		var connected bool
		env.loop.Invoke(func() { connected = env.session.Input().AnalogConnected })
		return !connected && last() == zero
	}, "gamepad released after operator disconnect")

	// Later refreshes must not replay the stale sample.
	env.loop.Invoke(func() { env.session.Tick(time.Now().Add(time.Second)) })
	if got := last(); got != zero {
		t.Errorf("Expected robot to stay stopped, got %s", got)
	}
}

func TestRenderSocketStreamsFrames(t *testing.T) {
	env := newTestEnv(t)
	ws := env.dial(t, "/ws/render")

	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	mt, data, err := ws.ReadMessage()
	if err != nil || mt != websocket.BinaryMessage {
		t.Fatalf("Expected initial binary frame, got type %d (%v)", mt, err)
	}
	frame, _, err := DecodePoseFrame(data)
	if err != nil {
		t.Fatalf("Failed to decode initial frame: %v", err)
	}
	if frame.Visible || len(frame.Nodes) != 13 {
		t.Errorf("Expected hidden 13-node model, got visible=%v nodes=%d", frame.Visible, len(frame.Nodes))
	}

	env.connectBackend(t)
	env.backend.deliver(`{"type":"state","base_pos":[0,0,0.3],"base_quat":[1,0,0,0],"joint_pos":[]}`)
	waitFor(t, func() bool {
		var n uint64
		env.loop.Invoke(func() { n = env.session.Diagnostics().Snapshot().FramesTotal })
		return n == 1
	}, "frame accepted")
	env.loop.Invoke(func() { env.session.Tick(time.Now()) })

	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err = ws.ReadMessage()
	if err != nil {
		t.Fatalf("Expected pose frame, got %v", err)
	}
	frame, _, err = DecodePoseFrame(data)
	if err != nil {
		t.Fatalf("Failed to decode frame: %v", err)
	}
	if !frame.Visible || frame.Sequence != 1 {
		t.Errorf("Expected visible frame with sequence 1, got visible=%v seq=%d", frame.Visible, frame.Sequence)
	}
	if n := env.server.Renderers().ClientCount(); n != 1 {
		t.Errorf("Expected 1 render client, got %d", n)
	}
}
