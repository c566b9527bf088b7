package zeromq

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/pebbe/zmq4"

	"github.com/open-teleop/go2bridge/pkg/config"
	customlog "github.com/open-teleop/go2bridge/pkg/log"
)

func freeAddress(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to find a free port: %v", err)
	}
	defer l.Close()
	return fmt.Sprintf("tcp://127.0.0.1:%d", l.Addr().(*net.TCPAddr).Port)
}

func startService(t *testing.T) (*Service, string, string) {
	t.Helper()
	reqAddr, pubAddr := freeAddress(t), freeAddress(t)
	svc, err := NewService(Options{RequestAddress: reqAddr, PublishAddress: pubAddr, Logger: customlog.NewDiscardLogger()})
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	if err := svc.Start(); err != nil {
		t.Fatalf("Failed to start service: %v", err)
	}
	t.Cleanup(svc.Stop)
	return svc, reqAddr, pubAddr
}

func request(t *testing.T, addr string, msg ZeroMQMessage) ZeroMQMessage {
	t.Helper()
	socket, err := zmq4.NewSocket(zmq4.REQ)
	if err != nil {
		t.Fatalf("Failed to create REQ socket: %v", err)
	}
	defer socket.Close()
	socket.SetLinger(0)
	socket.SetRcvtimeo(5 * time.Second)
	if err := socket.Connect(addr); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}

	reqData, _ := json.Marshal(msg)
	if _, err := socket.SendBytes(reqData, 0); err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	respData, err := socket.RecvBytes(0)
	if err != nil {
		t.Fatalf("Failed to receive response: %v", err)
	}
	var resp ZeroMQMessage
	if err := json.Unmarshal(respData, &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	return resp
}

func TestDispatcherErrors(t *testing.T) {
	d := NewMessageDispatcher(customlog.NewDiscardLogger())
	d.RegisterHandler("PING", HandlerFunc(func([]byte) ([]byte, error) { return []byte("pong"), nil }))

	if _, err := d.Dispatch([]byte("not json")); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("Expected ErrInvalidMessage, got %v", err)
	}
	if _, err := d.Dispatch([]byte(`{"timestamp":1}`)); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("Expected ErrInvalidMessage for missing type, got %v", err)
	}
	if _, err := d.Dispatch([]byte(`{"type":"NOPE"}`)); !errors.Is(err, ErrUnknownMessageType) {
		t.Errorf("Expected ErrUnknownMessageType, got %v", err)
	}
	resp, err := d.Dispatch([]byte(`{"type":"PING"}`))
	if err != nil || string(resp) != "pong" {
		t.Errorf("Expected pong, got %q (%v)", resp, err)
	}
}

func TestConfigAndStatusRequests(t *testing.T) {
	svc, reqAddr, _ := startService(t)
	current := &config.Config{Version: "1.0", ConfigID: "bench"}
	RegisterHandlers(svc,
		func() *config.Config { return current },
		func() interface{} { return map[string]int{"frames": 7} },
		customlog.NewDiscardLogger())

	resp := request(t, reqAddr, NewMessage(MsgTypeConfigRequest, nil))
	if resp.Type != MsgTypeConfigResponse {
		t.Fatalf("Expected %s, got %s", MsgTypeConfigResponse, resp.Type)
	}
	data, ok := resp.Data.(map[string]interface{})
	if !ok || data["config_id"] != "bench" {
		t.Errorf("Expected config_id bench, got %v", resp.Data)
	}

	resp = request(t, reqAddr, NewMessage(MsgTypeStatusRequest, nil))
	if resp.Type != MsgTypeStatusResponse {
		t.Fatalf("Expected %s, got %s", MsgTypeStatusResponse, resp.Type)
	}
	if data := resp.Data.(map[string]interface{}); data["frames"] != float64(7) {
		t.Errorf("Expected frames 7, got %v", data["frames"])
	}

	resp = request(t, reqAddr, NewMessage("SHUTDOWN", nil))
	if resp.Type != MsgTypeError {
		t.Fatalf("Expected %s, got %s", MsgTypeError, resp.Type)
	}
	if code := resp.Data.(map[string]interface{})["code"]; code != float64(400) {
		t.Errorf("Expected code 400, got %v", code)
	}
}

func TestPublishReachesSubscriber(t *testing.T) {
	svc, _, pubAddr := startService(t)

	sub, err := NewSubscriber(pubAddr, []string{TopicOperatorStatus}, nil)
	if err != nil {
		t.Fatalf("Failed to create subscriber: %v", err)
	}
	defer sub.Stop()

	got := make(chan string, 16)
	sub.Start(func(topic string, msg ZeroMQMessage, raw []byte) {
		got <- topic + "|" + msg.Type
	})

	// PUB drops messages until the subscription has propagated, so keep
	// publishing until one arrives.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case v := <-got:
			if v != TopicOperatorStatus+"|"+MsgTypeStatus {
				t.Fatalf("Expected status message, got %s", v)
			}
			return
		case <-tick.C:
			svc.PublishJSON(TopicRobotState, MsgTypeRobotState, nil)
			svc.PublishJSON(TopicOperatorStatus, MsgTypeStatus, StatusRecord{State: "connected"})
		case <-deadline:
			t.Fatal("Timed out waiting for published message")
		}
	}
}

func TestPublishAfterStop(t *testing.T) {
	svc, _, _ := startService(t)
	svc.Stop()
	if err := svc.PublishJSON(TopicRobotState, MsgTypeRobotState, nil); !errors.Is(err, ErrServiceClosed) {
		t.Errorf("Expected ErrServiceClosed, got %v", err)
	}
	svc.Stop()
}
