package api

import (
	"math"
	"testing"
	"time"

	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/open-teleop/go2bridge/domain/pose"
	"github.com/open-teleop/go2bridge/pkg/protocol"
)

func syncedFrame(t *testing.T) pose.Frame {
	t.Helper()
	s, err := pose.NewSynchronizer(pose.Go2(), nil)
	if err != nil {
		t.Fatalf("Failed to build synchronizer: %v", err)
	}
	frame, err := protocol.Decode([]byte(`{"type":"state","base_pos":[0.1,0.2,0.3],"base_quat":[0.9238795,0,0,0.3826834],"joint_pos":[0.1,0.8,-1.5,-0.1,0.8,-1.5]}`))
	if err != nil {
		t.Fatalf("Failed to decode state: %v", err)
	}
	s.Offer(frame)
	if !s.Tick() {
		t.Fatal("Expected tick to change the model")
	}
	return s.Frame()
}

func TestPoseFrameRoundTrip(t *testing.T) {
	want := syncedFrame(t)
	stamp := time.Unix(1700000000, 123456789)

	b := flatbuffers.NewBuilder(0)
	data := EncodePoseFrame(b, want, stamp)
	// reusing the builder must not disturb the returned bytes
	EncodePoseFrame(b, pose.Frame{}, time.Now())

	got, gotStamp, err := DecodePoseFrame(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !gotStamp.Equal(stamp) {
		t.Errorf("Expected stamp %v, got %v", stamp, gotStamp)
	}
	if got.Sequence != want.Sequence || got.Visible != want.Visible {
		t.Errorf("Expected seq %d visible %v, got seq %d visible %v", want.Sequence, want.Visible, got.Sequence, got.Visible)
	}
	if len(got.Nodes) != len(want.Nodes) {
		t.Fatalf("Expected %d nodes, got %d", len(want.Nodes), len(got.Nodes))
	}
	for i := range want.Nodes {
		w, g := want.Nodes[i], got.Nodes[i]
		if w.Name != g.Name || w.Parent != g.Parent {
			t.Errorf("Node %d: expected %s/%s, got %s/%s", i, w.Name, w.Parent, g.Name, g.Parent)
		}
		if w.Position != g.Position || w.WorldPosition != g.WorldPosition {
			t.Errorf("Node %s: position mismatch", w.Name)
		}
		if w.Orientation != g.Orientation || w.WorldOrientation != g.WorldOrientation {
			t.Errorf("Node %s: orientation mismatch", w.Name)
		}
		if w.JointAngle != g.JointAngle {
			t.Errorf("Node %s: expected joint %v, got %v", w.Name, w.JointAngle, g.JointAngle)
		}
	}

	thigh, ok := got.Node("FR_thigh")
	if !ok || math.Abs(thigh.JointAngle-0.8) > 1e-12 {
		t.Errorf("Expected FR_thigh joint 0.8, got %v (%v)", thigh.JointAngle, ok)
	}
}

func TestDecodePoseFrameRejectsGarbage(t *testing.T) {
	if _, _, err := DecodePoseFrame([]byte{1, 2}); err == nil {
		t.Error("Expected error for short input")
	}
	garbage := []byte{0xff, 0xff, 0xff, 0x7f, 0, 0, 0, 0, 1, 2, 3, 4}
	if _, _, err := DecodePoseFrame(garbage); err == nil {
		t.Error("Expected error for corrupt input")
	}
}
