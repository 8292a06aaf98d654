package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Zidane-Khaled/RetroVerse/internal/input"
)

var ErrMalformed = errors.New("malformed message")
var ErrUnknownType = errors.New("unknown message type")

type Type string

const (
	TypeStart      Type = "start"      // server -> client
	TypeInput      Type = "input"      // both ways, via relay
	TypeCheckpoint Type = "checkpoint" // both ways, via relay
	TypePause      Type = "pause"      // server -> client
	TypePing       Type = "ping"       // client -> server
	TypePong       Type = "pong"       // server -> client
)

type Role string

const (
	RolePrimary   Role = "primary"
	RoleSecondary Role = "secondary"
)

func (r Role) Valid() bool { return r == RolePrimary || r == RoleSecondary }

// Other returns the opposite seat.
func (r Role) Other() Role {
	if r == RolePrimary {
		return RoleSecondary
	}
	return RolePrimary
}

// ReasonPeerDisconnected is the pause reason sent when the other side leaves.
const ReasonPeerDisconnected = "peer disconnected"

// InputPacket carries one frame of one player's buttons. Seq is stamped by
// the relay and is absent on the originating send.
type InputPacket struct {
	Frame   input.Frame `json:"frame"`
	Buttons input.State `json:"buttons"`
	Seq     *uint64     `json:"seq,omitempty"`
}

// Checkpoint is a periodic state digest. Timestamp is unix milliseconds at
// the sender.
type Checkpoint struct {
	Frame     input.Frame `json:"frame"`
	Digest    string      `json:"digest"`
	Timestamp int64       `json:"timestamp"`
}

// Envelope is every message on the wire; Type selects which of the other
// fields are meaningful.
type Envelope struct {
	Type       Type         `json:"type"`
	Role       Role         `json:"role,omitempty"`
	Packet     *InputPacket `json:"packet,omitempty"`
	Checkpoint *Checkpoint  `json:"checkpoint,omitempty"`
	Reason     string       `json:"reason,omitempty"`
}

func Start(role Role) Envelope { return Envelope{Type: TypeStart, Role: role} }

func Pause(reason string) Envelope { return Envelope{Type: TypePause, Reason: reason} }

func Ping() Envelope { return Envelope{Type: TypePing} }

func Pong() Envelope { return Envelope{Type: TypePong} }

func Input(frame input.Frame, buttons input.State) Envelope {
	return Envelope{Type: TypeInput, Packet: &InputPacket{Frame: frame, Buttons: buttons}}
}

func CheckpointMsg(cp Checkpoint) Envelope {
	return Envelope{Type: TypeCheckpoint, Checkpoint: &cp}
}

func Encode(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses one wire message and checks that the fields its type
// requires are present.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch e.Type {
	case TypeStart:
		if !e.Role.Valid() {
			return Envelope{}, fmt.Errorf("%w: start without role", ErrMalformed)
		}
	case TypeInput:
		if e.Packet == nil {
			return Envelope{}, fmt.Errorf("%w: input without packet", ErrMalformed)
		}
	case TypeCheckpoint:
		if e.Checkpoint == nil {
			return Envelope{}, fmt.Errorf("%w: checkpoint without body", ErrMalformed)
		}
	case TypePause, TypePing, TypePong:
	case "":
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
	}
	return e, nil
}

// StampSeq sets packet.seq on a raw input message. Every other field,
// including ones this package does not know, is forwarded untouched.
func StampSeq(data []byte, seq uint64) ([]byte, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var packet map[string]json.RawMessage
	if err := json.Unmarshal(top["packet"], &packet); err != nil || packet == nil {
		return nil, fmt.Errorf("%w: input without packet", ErrMalformed)
	}
	if err := setField(packet, "seq", seq); err != nil {
		return nil, err
	}
	if err := setField(top, "packet", packet); err != nil {
		return nil, err
	}
	return json.Marshal(top)
}

// StampRole sets the top-level role on a raw message, leaving the rest of it
// as sent.
func StampRole(data []byte, role Role) ([]byte, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := setField(top, "role", role); err != nil {
		return nil, err
	}
	return json.Marshal(top)
}

func setField(obj map[string]json.RawMessage, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	obj[key] = raw
	return nil
}
