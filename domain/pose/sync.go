package pose

import (
	"math"

	"github.com/open-teleop/go2bridge/pkg/log"
	"github.com/open-teleop/go2bridge/pkg/protocol"
)

// Synchronizer is the single owner of a Model. Snapshots are offered as they
// arrive and applied once per display refresh; only the latest offered
// snapshot is ever applied. It is not safe for concurrent use.
type Synchronizer struct {
	model    *Model
	logger   log.Logger
	pending  *protocol.StateFrame
	sequence uint64
	applied  uint64
	dropped  uint64
	disposed bool
}

// NewSynchronizer builds a hidden model for t.
func NewSynchronizer(t Topology, logger log.Logger) (*Synchronizer, error) {
	if logger == nil {
		logger = log.NewDiscardLogger()
	}
	m, err := NewModel(t)
	if err != nil {
		return nil, err
	}
	return &Synchronizer{model: m, logger: logger.WithField("component", "pose")}, nil
}

// Offer stores f as the snapshot for the next Tick, replacing any that has
// not been applied yet.
func (s *Synchronizer) Offer(f *protocol.StateFrame) {
	if f == nil || s.disposed {
		return
	}
	if s.pending != nil {
		s.dropped++
	}
	s.pending = f
}

// Tick applies the pending snapshot, if any, and reports whether the model
// changed.
func (s *Synchronizer) Tick() bool {
	f := s.pending
	if f == nil || s.disposed {
		return false
	}
	s.pending = nil
	s.applied++

	changed := false
	pos, posOK := RobotPosition(f.BasePos)
	q, quatOK := RobotQuaternion(f.BaseQuat)
	if posOK && quatOK {
		s.model.setBase(DisplayPosition(pos), DisplayOrientation(q))
		changed = true
		if !s.model.visible {
			s.model.visible = true
			s.logger.Infof("Robot visible")
		}
	}
	if s.model.setJoints(f.JointPos) {
		changed = true
	}
	if changed {
		s.sequence++
	}
	return changed
}

// Topology returns the static segment layout.
func (s *Synchronizer) Topology() Topology { return s.model.Topology() }

// Frame returns a copy of every node transform.
func (s *Synchronizer) Frame() Frame {
	return s.model.snapshot(s.sequence)
}

func (s *Synchronizer) Visible() bool { return s.model.visible }

// Stats returns how many snapshots were applied and how many were superseded
// before a refresh picked them up.
func (s *Synchronizer) Stats() (applied, superseded uint64) {
	return s.applied, s.dropped
}

// AttachGeometry hands loaded geometry to the model. Entries for unknown
// segments, or arriving after Dispose, are released.
func (s *Synchronizer) AttachGeometry(set GeometrySet) {
	for name, g := range set {
		if s.disposed || !s.model.attach(name, g) {
			g.Release()
		}
	}
}

// Dispose releases all geometry and hides the model. Later offers are ignored.
func (s *Synchronizer) Dispose() {
	if s.disposed {
		return
	}
	s.disposed = true
	s.pending = nil
	s.model.release()
	s.logger.Infof("Model disposed")
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
