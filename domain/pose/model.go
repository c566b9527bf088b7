package pose

import (
	"fmt"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

type node struct {
	spec        NodeSpec
	parent      int
	position    r3.Vec
	orientation quat.Number
	angle       float64
	geometry    Geometry
}

// Model is the articulated hierarchy: one transform per rigid segment. Only a
// Synchronizer mutates it.
type Model struct {
	topology Topology
	nodes    []node
	index    map[string]int
	visible  bool
}

// NewModel builds the hierarchy for t with every joint at rest and the model
// hidden.
func NewModel(t Topology) (*Model, error) {
	m := &Model{
		topology: t,
		nodes:    make([]node, 0, t.Len()),
		index:    make(map[string]int, t.Len()),
	}
	for _, spec := range t.Nodes() {
		if _, dup := m.index[spec.Name]; dup {
			return nil, fmt.Errorf("duplicate segment %q", spec.Name)
		}
		parent := -1
		if spec.Parent != "" {
			p, ok := m.index[spec.Parent]
			if !ok {
				return nil, fmt.Errorf("segment %q: parent %q must be declared first", spec.Name, spec.Parent)
			}
			parent = p
		}
		m.index[spec.Name] = len(m.nodes)
		m.nodes = append(m.nodes, node{
			spec:        spec,
			parent:      parent,
			position:    spec.Offset,
			orientation: identity,
		})
	}
	return m, nil
}

func (m *Model) Len() int           { return len(m.nodes) }
func (m *Model) Visible() bool      { return m.visible }
func (m *Model) Topology() Topology { return m.topology }

// Transform describes one segment. Position and Orientation are relative to
// the parent; the World fields are composed down from the root.
type Transform struct {
	Name             string
	Parent           string
	Position         r3.Vec
	Orientation      quat.Number
	WorldPosition    r3.Vec
	WorldOrientation quat.Number
	JointAngle       float64
	HasGeometry      bool
}

// Frame is an immutable copy of the model at one refresh.
type Frame struct {
	Sequence uint64
	Visible  bool
	Nodes    []Transform
}

// Node looks up a segment by name.
func (f Frame) Node(name string) (Transform, bool) {
	for _, n := range f.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return Transform{}, false
}

func (m *Model) snapshot(seq uint64) Frame {
	out := Frame{
		Sequence: seq,
		Visible:  m.visible,
		Nodes:    make([]Transform, len(m.nodes)),
	}
	for i, n := range m.nodes {
		t := Transform{
			Name:        n.spec.Name,
			Parent:      n.spec.Parent,
			Position:    n.position,
			Orientation: n.orientation,
			JointAngle:  n.angle,
			HasGeometry: n.geometry != nil,
		}
		if n.parent < 0 {
			t.WorldPosition = n.position
			t.WorldOrientation = n.orientation
		} else {
			p := out.Nodes[n.parent]
			t.WorldPosition = r3.Add(p.WorldPosition, Rotate(p.WorldOrientation, n.position))
			t.WorldOrientation = quat.Mul(p.WorldOrientation, n.orientation)
		}
		out.Nodes[i] = t
	}
	return out
}

func (m *Model) setBase(pos r3.Vec, q quat.Number) {
	m.nodes[0].position = pos
	m.nodes[0].orientation = q
}

// setJoints applies angles to the joints they cover. Joints past the end of
// angles and non-finite angles are left as they were.
func (m *Model) setJoints(angles []float64) bool {
	changed := false
	for i := range m.nodes {
		n := &m.nodes[i]
		j := n.spec.Joint
		if j < 0 || j >= len(angles) || !finite(angles[j]) {
			continue
		}
		n.angle = angles[j]
		n.orientation = AxisAngle(n.spec.Axis, angles[j])
		changed = true
	}
	return changed
}

func (m *Model) attach(name string, g Geometry) bool {
	i, ok := m.index[name]
	if !ok {
		return false
	}
	if old := m.nodes[i].geometry; old != nil {
		old.Release()
	}
	m.nodes[i].geometry = g
	return true
}

func (m *Model) release() {
	for i := range m.nodes {
		if g := m.nodes[i].geometry; g != nil {
			g.Release()
			m.nodes[i].geometry = nil
		}
	}
	m.visible = false
}
