package protocol

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func TestEncodeWebConnect(t *testing.T) {
	var m map[string]interface{}
	if err := json.Unmarshal(EncodeWebConnect(), &m); err != nil {
		t.Fatalf("Failed to parse web_connect: %v", err)
	}
	if len(m) != 1 || m["type"] != "web_connect" {
		t.Errorf("Expected only type=web_connect, got %v", m)
	}
}

func TestEncodeCommand(t *testing.T) {
	data, err := EncodeCommand(VelocityCommand{XVel: 1, YVel: -0.5, AngVel: 0.25})
	if err != nil {
		t.Fatalf("Failed to encode command: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Failed to parse command: %v", err)
	}
	if m["type"] != "command" {
		t.Errorf("Expected type command, got %v", m["type"])
	}
	if m["x_vel"] != 1.0 || m["y_vel"] != -0.5 || m["ang_vel"] != 0.25 {
		t.Errorf("Unexpected velocities: %v", m)
	}
}

func TestEncodeCommandNaN(t *testing.T) {
	if _, err := EncodeCommand(VelocityCommand{XVel: math.NaN()}); err == nil {
		t.Fatal("Expected error for NaN velocity")
	}
}

func TestDecodeState(t *testing.T) {
	raw := []byte(`{"type":"state","base_pos":[1,2,3],"base_quat":[1,0,0,0],"joint_pos":[0.1,0.2],"timestamp":1700000000000}`)
	frame, err := Decode(raw)
	if err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if !frame.HasBasePose() {
		t.Error("Expected usable base pose")
	}
	if len(frame.JointPos) != 2 || frame.JointPos[1] != 0.2 {
		t.Errorf("Unexpected joint_pos: %v", frame.JointPos)
	}
	if string(frame.Raw) != string(raw) {
		t.Errorf("Expected raw frame to be kept")
	}

	now := time.UnixMilli(1700000000040)
	latency, ok := frame.Latency(now)
	if !ok || latency != 40*time.Millisecond {
		t.Errorf("Expected 40ms latency, got %v (ok=%v)", latency, ok)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"not json", `{"type":`, ErrMalformed},
		{"other type", `{"type":"command","x_vel":1}`, ErrUnknownType},
		{"missing type", `{"base_pos":[1,2,3]}`, ErrUnknownType},
		{"bad field", `{"type":"state","base_pos":"oops"}`, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestHasBasePose(t *testing.T) {
	tests := []struct {
		name  string
		frame StateFrame
		want  bool
	}{
		{"complete", StateFrame{BasePos: []float64{0, 0, 0}, BaseQuat: []float64{1, 0, 0, 0}}, true},
		{"short position", StateFrame{BasePos: []float64{0, 0}, BaseQuat: []float64{1, 0, 0, 0}}, false},
		{"missing quaternion", StateFrame{BasePos: []float64{0, 0, 0}}, false},
		{"nan", StateFrame{BasePos: []float64{math.NaN(), 0, 0}, BaseQuat: []float64{1, 0, 0, 0}}, false},
		{"zero quaternion", StateFrame{BasePos: []float64{0, 0, 0}, BaseQuat: []float64{0, 0, 0, 0}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.frame.HasBasePose(); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestVelocityCommandClamp(t *testing.T) {
	c := VelocityCommand{XVel: 3, YVel: -3, AngVel: 0.5}.Clamp(2)
	if c.XVel != 2 || c.YVel != -2 || c.AngVel != 0.5 {
		t.Errorf("Unexpected clamp result: %+v", c)
	}
}
