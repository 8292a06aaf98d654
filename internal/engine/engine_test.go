package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zidane-Khaled/RetroVerse/internal/input"
	"github.com/Zidane-Khaled/RetroVerse/internal/protocol"
)

func scripted(n int) []Frame {
	frames := make([]Frame, n)
	for i := range frames {
		frames[i] = Frame{
			P1: input.FromBits(uint16(i*7) & 0x0fff),
			P2: input.FromBits(uint16(i*13+5) & 0x0fff),
		}
	}
	return frames
}

func TestArena_BothSeatsAgree(t *testing.T) {
	frames := scripted(180)

	primary := NewArena()
	secondary := NewArena()
	secondary.Seat(protocol.RoleSecondary)

	for _, f := range frames {
		// each side sees its own input as local
		primary.Tick(f.P1, f.P2)
		secondary.Tick(f.P2, f.P1)
	}

	assert.Equal(t, primary.Digest(), secondary.Digest())
	assert.Equal(t, primary.Players(), secondary.Players())
}

func TestArena_SingleBitFlipChangesDigest(t *testing.T) {
	frames := scripted(120)
	want := Replay(frames).Digest()

	for _, bit := range []input.Button{input.ButtonLeft, input.ButtonA, input.ButtonStart} {
		flipped := append([]Frame(nil), frames...)
		flipped[60].P2 = input.FromBits(flipped[60].P2.Bits() ^ uint16(bit))

		assert.NotEqual(t, want, Replay(flipped).Digest(), "bit %#x", bit)
	}
}

func TestArena_DigestDeterministic(t *testing.T) {
	frames := scripted(60)
	assert.Equal(t, Replay(frames).Digest(), Replay(frames).Digest())
}

func TestArena_MovementWraps(t *testing.T) {
	a := NewArena()
	start := a.Players()[0]

	for i := 0; i < FieldWidth; i++ {
		a.Tick(input.State{Left: true}, input.State{})
	}

	require.Equal(t, uint64(FieldWidth), a.Frame())
	assert.Equal(t, start.X, a.Players()[0].X)
}

func TestArena_ScoreOnFreshPressOnly(t *testing.T) {
	a := NewArena()
	a.Tick(input.State{A: true}, input.State{})
	a.Tick(input.State{A: true}, input.State{})
	a.Tick(input.State{}, input.State{})
	a.Tick(input.State{A: true}, input.State{})

	assert.Equal(t, uint32(2), a.Players()[0].Score)
	assert.Equal(t, uint32(0), a.Players()[1].Score)
}

func TestArena_Reset(t *testing.T) {
	fresh := NewArena().Digest()
	a := Replay(scripted(30))
	require.NotEqual(t, fresh, a.Digest())

	a.Reset()

	assert.Equal(t, fresh, a.Digest())
}
