package pose

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// BaseNode is the root segment.
const BaseNode = "base_link"

// NodeSpec describes one rigid segment. Joint is the index into joint_pos
// driving the segment, or -1 for the base.
type NodeSpec struct {
	Name   string
	Parent string
	Offset r3.Vec
	Axis   r3.Vec
	Joint  int
	Meshes []string
}

// Topology is the static segment hierarchy. Parents precede children.
type Topology struct {
	nodes []NodeSpec
}

// Nodes returns a copy of the segment list.
func (t Topology) Nodes() []NodeSpec {
	out := make([]NodeSpec, len(t.nodes))
	copy(out, t.nodes)
	for i := range out {
		out[i].Meshes = append([]string(nil), out[i].Meshes...)
	}
	return out
}

func (t Topology) Len() int { return len(t.nodes) }

// JointCount returns the number of joint-driven segments.
func (t Topology) JointCount() int {
	n := 0
	for _, s := range t.nodes {
		if s.Joint >= 0 {
			n++
		}
	}
	return n
}

type legSpec struct {
	name     string
	pos      r3.Vec
	hipY     float64
	mirrored bool
}

// calf hangs below the thigh joint
var calfOffset = r3.Vec{Z: -0.213}

// Go2 returns the quadruped hierarchy: base_link plus hip, thigh and calf for
// each of the FL, FR, RL and RR legs. joint_pos is ordered leg by leg in that
// order, hip first.
func Go2() Topology {
	legs := []legSpec{
		{name: "FL", pos: r3.Vec{X: 0.1934, Y: 0.0465}, hipY: 0.0955},
		{name: "FR", pos: r3.Vec{X: 0.1934, Y: -0.0465}, hipY: -0.0955, mirrored: true},
		{name: "RL", pos: r3.Vec{X: -0.1934, Y: 0.0465}, hipY: 0.0955},
		{name: "RR", pos: r3.Vec{X: -0.1934, Y: -0.0465}, hipY: -0.0955, mirrored: true},
	}

	nodes := []NodeSpec{{
		Name:   BaseNode,
		Joint:  -1,
		Meshes: []string{"base_0", "base_1", "base_2", "base_3", "base_4"},
	}}

	for i, leg := range legs {
		thigh, calf := "thigh", "calf"
		if leg.mirrored {
			thigh, calf = "thigh_mirror", "calf_mirror"
		}
		hip := leg.name + "_hip"
		nodes = append(nodes,
			NodeSpec{Name: hip, Parent: BaseNode, Offset: leg.pos, Axis: AxisX, Joint: i * 3,
				Meshes: []string{"hip_0", "hip_1"}},
			NodeSpec{Name: leg.name + "_thigh", Parent: hip, Offset: r3.Vec{Y: leg.hipY}, Axis: AxisY, Joint: i*3 + 1,
				Meshes: []string{thigh + "_0", thigh + "_1"}},
			NodeSpec{Name: leg.name + "_calf", Parent: leg.name + "_thigh", Offset: calfOffset, Axis: AxisY, Joint: i*3 + 2,
				Meshes: []string{calf + "_0", calf + "_1", "foot"}},
		)
	}
	return Topology{nodes: nodes}
}
