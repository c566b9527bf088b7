package connection

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newEchoBackend(t *testing.T, received chan<- string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == "bye" {
				return
			}
			received <- string(data)
			if string(data) == `{"type":"web_connect"}` {
				ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"state","base_pos":[1,2,3]}`))
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWSDialerRoundTrip(t *testing.T) {
	received := make(chan string, 4)
	srv := newEchoBackend(t, received)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	d := &WSDialer{HandshakeTimeout: time.Second}
	conn, err := d.Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer conn.Close()

	messages := make(chan string, 4)
	closed := make(chan error, 1)
	if err := conn.Send([]byte(`{"type":"web_connect"}`)); err != nil {
		t.Fatalf("Failed to queue handshake: %v", err)
	}
	conn.Start(func(b []byte) { messages <- string(b) }, func(err error) { closed <- err })

	select {
	case got := <-received:
		if got != `{"type":"web_connect"}` {
			t.Errorf("Expected handshake, got %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Backend never received the handshake")
	}

	select {
	case got := <-messages:
		if !strings.Contains(got, `"state"`) {
			t.Errorf("Expected state frame, got %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Never received state frame")
	}

	conn.Send([]byte("bye"))
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected close callback after server drop")
	}

	if err := conn.Send([]byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected after close, got %v", err)
	}
}

func TestWSDialerRefused(t *testing.T) {
	d := &WSDialer{HandshakeTimeout: 200 * time.Millisecond}
	if _, err := d.Dial(context.Background(), "ws://127.0.0.1:1/ws"); err == nil {
		t.Fatal("Expected dial error")
	}
}

func TestWSSendDropsWhenFull(t *testing.T) {
	received := make(chan string, 4)
	srv := newEchoBackend(t, received)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	d := &WSDialer{OutboundBuffer: 1}
	conn, err := d.Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer conn.Close()

	// Not started: nothing drains the buffer.
	if err := conn.Send([]byte("a")); err != nil {
		t.Fatalf("Expected first send to queue, got %v", err)
	}
	if err := conn.Send([]byte("b")); !errors.Is(err, ErrOutboundFull) {
		t.Errorf("Expected ErrOutboundFull, got %v", err)
	}
}
