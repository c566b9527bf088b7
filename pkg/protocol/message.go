// Package protocol defines the JSON text frames exchanged with the robot backend.
//
//	client → backend  {"type":"web_connect"}
//	client → backend  {"type":"command","x_vel":..,"y_vel":..,"ang_vel":..}
//	backend → client  {"type":"state","base_pos":[..],"base_quat":[w,x,y,z],"joint_pos":[..],...}
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// MessageType is the "type" tag carried by every frame.
type MessageType string

const (
	TypeWebConnect MessageType = "web_connect"
	TypeCommand    MessageType = "command"
	TypeState      MessageType = "state"
)

var (
	ErrMalformed   = errors.New("malformed frame")
	ErrUnknownType = errors.New("unknown frame type")
)

// envelope is decoded first to find the tag.
type envelope struct {
	Type MessageType `json:"type"`
}

// VelocityCommand is the normalized forward/strafe/rotation request.
// It is always replaced as a whole, never mutated in place.
type VelocityCommand struct {
	XVel   float64 `json:"x_vel"`
	YVel   float64 `json:"y_vel"`
	AngVel float64 `json:"ang_vel"`
}

// IsZero reports whether all three axes are exactly zero.
func (c VelocityCommand) IsZero() bool {
	return c.XVel == 0 && c.YVel == 0 && c.AngVel == 0
}

// Clamp limits every axis to [-limit, limit].
func (c VelocityCommand) Clamp(limit float64) VelocityCommand {
	return VelocityCommand{
		XVel:   clamp(c.XVel, limit),
		YVel:   clamp(c.YVel, limit),
		AngVel: clamp(c.AngVel, limit),
	}
}

func clamp(v, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, v))
}

type commandMessage struct {
	Type MessageType `json:"type"`
	VelocityCommand
}

// EncodeWebConnect returns the identification frame sent right after the
// transport opens.
func EncodeWebConnect() []byte {
	return []byte(`{"type":"web_connect"}`)
}

// EncodeCommand serializes a command frame. Non-finite velocities cannot be
// represented in JSON and produce an error.
func EncodeCommand(cmd VelocityCommand) ([]byte, error) {
	data, err := json.Marshal(commandMessage{Type: TypeCommand, VelocityCommand: cmd})
	if err != nil {
		return nil, fmt.Errorf("failed to encode command: %w", err)
	}
	return data, nil
}

// Decode parses an inbound frame. Only state frames are accepted; anything
// else yields ErrUnknownType, and unparseable input yields ErrMalformed.
func Decode(data []byte) (*StateFrame, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type != TypeState {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	var frame StateFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	frame.Raw = append(json.RawMessage(nil), data...)
	return &frame, nil
}
