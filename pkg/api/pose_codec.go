package api

import (
	"fmt"
	"time"

	flatbuffers "github.com/google/flatbuffers/go"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/open-teleop/go2bridge/domain/pose"
	fb "github.com/open-teleop/go2bridge/pkg/flatbuffers/go2bridge/pose"
)

// EncodePoseFrame serializes a model frame as a PoseFrame flatbuffer. The
// builder is reset and reused; the returned slice is a copy.
func EncodePoseFrame(builder *flatbuffers.Builder, frame pose.Frame, stamp time.Time) []byte {
	builder.Reset()

	nodes := make([]flatbuffers.UOffsetT, len(frame.Nodes))
	for i, n := range frame.Nodes {
		name := builder.CreateString(n.Name)
		var parent flatbuffers.UOffsetT
		if n.Parent != "" {
			parent = builder.CreateString(n.Parent)
		}

		fb.NodeTransformStart(builder)
		fb.NodeTransformAddName(builder, name)
		if n.Parent != "" {
			fb.NodeTransformAddParent(builder, parent)
		}
		fb.NodeTransformAddPosition(builder, fb.CreateVec3(builder, n.Position.X, n.Position.Y, n.Position.Z))
		fb.NodeTransformAddOrientation(builder, createQuat(builder, n.Orientation))
		fb.NodeTransformAddWorldPosition(builder, fb.CreateVec3(builder, n.WorldPosition.X, n.WorldPosition.Y, n.WorldPosition.Z))
		fb.NodeTransformAddWorldOrientation(builder, createQuat(builder, n.WorldOrientation))
		fb.NodeTransformAddJointAngle(builder, n.JointAngle)
		nodes[i] = fb.NodeTransformEnd(builder)
	}

	fb.PoseFrameStartNodesVector(builder, len(nodes))
	for i := len(nodes) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(nodes[i])
	}
	nodeVector := builder.EndVector(len(nodes))

	fb.PoseFrameStart(builder)
	fb.PoseFrameAddSequence(builder, frame.Sequence)
	fb.PoseFrameAddTimestampNs(builder, stamp.UnixNano())
	fb.PoseFrameAddVisible(builder, frame.Visible)
	fb.PoseFrameAddNodes(builder, nodeVector)
	builder.Finish(fb.PoseFrameEnd(builder))

	return append([]byte(nil), builder.FinishedBytes()...)
}

func createQuat(builder *flatbuffers.Builder, q quat.Number) flatbuffers.UOffsetT {
	return fb.CreateQuat(builder, q.Real, q.Imag, q.Jmag, q.Kmag)
}

// DecodePoseFrame is the inverse of EncodePoseFrame. Geometry presence is not
// carried on the wire.
func DecodePoseFrame(data []byte) (frame pose.Frame, stamp time.Time, err error) {
	if len(data) < 8 {
		return pose.Frame{}, time.Time{}, fmt.Errorf("pose frame too short: %d bytes", len(data))
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("corrupt pose frame: %v", r)
		}
	}()

	root := fb.GetRootAsPoseFrame(data, 0)
	frame.Sequence = root.Sequence()
	frame.Visible = root.Visible()
	stamp = time.Unix(0, root.TimestampNs())

	var (
		node fb.NodeTransform
		v    fb.Vec3
		q    fb.Quat
	)
	frame.Nodes = make([]pose.Transform, 0, root.NodesLength())
	for i := 0; i < root.NodesLength(); i++ {
		if !root.Nodes(&node, i) {
			continue
		}
		t := pose.Transform{
			Name:       string(node.Name()),
			Parent:     string(node.Parent()),
			JointAngle: node.JointAngle(),
		}
		if p := node.Position(&v); p != nil {
			t.Position = r3.Vec{X: p.X(), Y: p.Y(), Z: p.Z()}
		}
		if o := node.Orientation(&q); o != nil {
			t.Orientation = quat.Number{Real: o.W(), Imag: o.X(), Jmag: o.Y(), Kmag: o.Z()}
		}
		if p := node.WorldPosition(&v); p != nil {
			t.WorldPosition = r3.Vec{X: p.X(), Y: p.Y(), Z: p.Z()}
		}
		if o := node.WorldOrientation(&q); o != nil {
			t.WorldOrientation = quat.Number{Real: o.W(), Imag: o.X(), Jmag: o.Y(), Kmag: o.Z()}
		}
		frame.Nodes = append(frame.Nodes, t)
	}
	return frame, stamp, nil
}
