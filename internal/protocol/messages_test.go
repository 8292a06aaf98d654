package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zidane-Khaled/RetroVerse/internal/input"
)

func TestEncode_InputOmitsSeqUntilStamped(t *testing.T) {
	data, err := Encode(Input(12, input.State{A: true}))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "seq")

	seq := uint64(7)
	e := Input(12, input.State{A: true})
	e.Packet.Seq = &seq
	data, err = Encode(e)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"seq":7`)
}

func TestEncode_WireShapes(t *testing.T) {
	cases := []struct {
		name string
		msg  Envelope
		want string
	}{
		{"start", Start(RoleSecondary), `{"type":"start","role":"secondary"}`},
		{"pause", Pause(ReasonPeerDisconnected), `{"type":"pause","reason":"peer disconnected"}`},
		{"ping", Ping(), `{"type":"ping"}`},
		{"pong", Pong(), `{"type":"pong"}`},
		{
			"checkpoint",
			CheckpointMsg(Checkpoint{Frame: 60, Digest: "abc", Timestamp: 5}),
			`{"type":"checkpoint","checkpoint":{"frame":60,"digest":"abc","timestamp":5}}`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := Encode(tc.msg)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(data))
		})
	}
}

func TestDecode_Input(t *testing.T) {
	e, err := Decode([]byte(`{"type":"input","packet":{"frame":3,"buttons":{"up":true,"start":true},"seq":41}}`))
	require.NoError(t, err)

	require.NotNil(t, e.Packet)
	assert.Equal(t, input.Frame(3), e.Packet.Frame)
	assert.Equal(t, input.State{Up: true, Start: true}, e.Packet.Buttons)
	require.NotNil(t, e.Packet.Seq)
	assert.Equal(t, uint64(41), *e.Packet.Seq)
}

func TestDecode_Rejects(t *testing.T) {
	cases := []struct {
		name string
		data string
		want error
	}{
		{"not json", `{"type":`, ErrMalformed},
		{"missing type", `{"reason":"x"}`, ErrMalformed},
		{"unknown type", `{"type":"rewind"}`, ErrUnknownType},
		{"input without packet", `{"type":"input"}`, ErrMalformed},
		{"checkpoint without body", `{"type":"checkpoint","role":"primary"}`, ErrMalformed},
		{"start with bad role", `{"type":"start","role":"p3"}`, ErrMalformed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.data))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRole_Other(t *testing.T) {
	assert.Equal(t, RoleSecondary, RolePrimary.Other())
	assert.Equal(t, RolePrimary, RoleSecondary.Other())
}

func TestStampSeq_KeepsOtherFields(t *testing.T) {
	out, err := StampSeq([]byte(`{"type":"input","packet":{"frame":4,"buttons":{"a":true},"extra":"x"},"note":1}`), 9)
	require.NoError(t, err)

	assert.JSONEq(t, `{"type":"input","packet":{"frame":4,"buttons":{"a":true},"extra":"x","seq":9},"note":1}`, string(out))
	e, err := Decode(out)
	require.NoError(t, err)
	require.NotNil(t, e.Packet.Seq)
	assert.Equal(t, uint64(9), *e.Packet.Seq)
}

func TestStampSeq_OverwritesForgedSeq(t *testing.T) {
	out, err := StampSeq([]byte(`{"type":"input","packet":{"frame":0,"buttons":{},"seq":1000}}`), 3)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"input","packet":{"frame":0,"buttons":{},"seq":3}}`, string(out))
}

func TestStampSeq_RejectsMissingPacket(t *testing.T) {
	_, err := StampSeq([]byte(`{"type":"input"}`), 1)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestStampRole(t *testing.T) {
	out, err := StampRole([]byte(`{"type":"checkpoint","role":"primary","checkpoint":{"frame":60,"digest":"d","timestamp":1}}`), RoleSecondary)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"checkpoint","role":"secondary","checkpoint":{"frame":60,"digest":"d","timestamp":1}}`, string(out))
}
