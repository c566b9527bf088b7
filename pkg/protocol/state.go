package protocol

import (
	"encoding/json"
	"math"
	"time"
)

// StateFrame is one telemetry snapshot in the robot's native frame
// (z up, quaternion scalar first). It is treated as immutable once decoded.
type StateFrame struct {
	Type       MessageType `json:"type"`
	BasePos    []float64   `json:"base_pos,omitempty"`
	BaseQuat   []float64   `json:"base_quat,omitempty"`
	JointPos   []float64   `json:"joint_pos,omitempty"`
	JointVel   []float64   `json:"joint_vel,omitempty"`
	JointNames []string    `json:"joint_names,omitempty"`
	Timestamp  *float64    `json:"timestamp,omitempty"` // epoch milliseconds

	// Raw keeps the frame as received, for republishing.
	Raw json.RawMessage `json:"-"`
}

// HasBasePose reports whether the frame carries a usable base position and
// orientation.
func (f *StateFrame) HasBasePose() bool {
	if f == nil || len(f.BasePos) != 3 || len(f.BaseQuat) != 4 {
		return false
	}
	for _, v := range f.BasePos {
		if !finite(v) {
			return false
		}
	}
	norm := 0.0
	for _, v := range f.BaseQuat {
		if !finite(v) {
			return false
		}
		norm += v * v
	}
	return norm > 0
}

// Latency returns now minus the origin timestamp. ok is false when the frame
// has no timestamp.
func (f *StateFrame) Latency(now time.Time) (latency time.Duration, ok bool) {
	if f == nil || f.Timestamp == nil || !finite(*f.Timestamp) {
		return 0, false
	}
	originMs := *f.Timestamp
	nowMs := float64(now.UnixNano()) / float64(time.Millisecond)
	return time.Duration((nowMs - originMs) * float64(time.Millisecond)), true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
