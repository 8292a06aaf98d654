package engine

import (
	"crypto/sha1"
	"encoding/binary"
	"fmt"

	"github.com/Zidane-Khaled/RetroVerse/internal/input"
	"github.com/Zidane-Khaled/RetroVerse/internal/protocol"
)

// Engine is the deterministic simulation driven in lockstep. Two engines fed
// the same sequence of inputs must produce equal digests.
type Engine interface {
	Tick(local, remote input.State)
	Digest() string
	Reset()
}

// Seater is implemented by engines that need to know which controller port
// the local player occupies. The driver calls Seat once the role is known.
type Seater interface {
	Seat(role protocol.Role)
}

const (
	FieldWidth  = 256
	FieldHeight = 240
)

type Player struct {
	X, Y  int
	Score uint32
	Held  uint16 // buttons held on the previous tick
	Trace uint32 // folds in every input seen, so any input difference shows in the digest
}

// Arena is a small reference engine: two players move around a wrapping
// field and score on fresh A presses. It stands in for an emulator in tests
// and in the headless peer.
type Arena struct {
	seat    protocol.Role
	frame   uint64
	players [2]Player
}

func NewArena() *Arena {
	a := &Arena{seat: protocol.RolePrimary}
	a.Reset()
	return a
}

func (a *Arena) Seat(role protocol.Role) {
	if role.Valid() {
		a.seat = role
	}
}

// Tick routes local and remote input to controller ports by seat so both
// sides run the same port assignment.
func (a *Arena) Tick(local, remote input.State) {
	p1, p2 := local, remote
	if a.seat == protocol.RoleSecondary {
		p1, p2 = remote, local
	}
	a.players[0] = step(a.players[0], p1)
	a.players[1] = step(a.players[1], p2)
	a.frame++
}

func (a *Arena) Reset() {
	a.frame = 0
	a.players[0] = Player{X: FieldWidth / 4, Y: FieldHeight / 2}
	a.players[1] = Player{X: 3 * FieldWidth / 4, Y: FieldHeight / 2}
}

func (a *Arena) Frame() uint64 { return a.frame }

func (a *Arena) Players() [2]Player { return a.players }

// Digest is a sha1 of the serialised state. sha1 is fine here, this is not a
// cryptographic task.
func (a *Arena) Digest() string {
	var buf [8 + 2*18]byte
	binary.BigEndian.PutUint64(buf[0:], a.frame)
	off := 8
	for _, p := range a.players {
		binary.BigEndian.PutUint32(buf[off:], uint32(p.X))
		binary.BigEndian.PutUint32(buf[off+4:], uint32(p.Y))
		binary.BigEndian.PutUint32(buf[off+8:], p.Score)
		binary.BigEndian.PutUint16(buf[off+12:], p.Held)
		binary.BigEndian.PutUint32(buf[off+14:], p.Trace)
		off += 18
	}
	return fmt.Sprintf("%x", sha1.Sum(buf[:]))
}

func step(p Player, in input.State) Player {
	speed := 1
	if in.B {
		speed = 2
	}
	if in.Left {
		p.X -= speed
	}
	if in.Right {
		p.X += speed
	}
	if in.Up {
		p.Y -= speed
	}
	if in.Down {
		p.Y += speed
	}
	p.X = wrap(p.X, FieldWidth)
	p.Y = wrap(p.Y, FieldHeight)

	bits := in.Bits()
	pressed := bits &^ p.Held
	if pressed&uint16(input.ButtonA) != 0 {
		p.Score++
	}
	if pressed&uint16(input.ButtonStart) != 0 {
		p.Score = 0
	}
	p.Held = bits
	p.Trace = p.Trace*16777619 ^ uint32(bits)
	return p
}

func wrap(v, n int) int {
	v %= n
	if v < 0 {
		v += n
	}
	return v
}

// Frame is one tick of merged input as seen by the primary seat.
type Frame struct {
	P1, P2 input.State
}

// Replay runs frames from a fresh arena seated as primary and returns it.
func Replay(frames []Frame) *Arena {
	a := NewArena()
	for _, f := range frames {
		a.Tick(f.P1, f.P2)
	}
	return a
}
