package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zidane-Khaled/RetroVerse/internal/protocol"
)

func TestHub_Create_Get_SamePointer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(ctx, nil, nil)

	s1 := h.Create(ctx, "ZED123")
	s2 := h.Get(ctx, "ZED123")

	require.NotNil(t, s1)
	assert.Same(t, s1, s2)
}

func TestHub_CreateRejectsTakenCode(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(ctx, nil, nil)

	require.NotNil(t, h.Create(ctx, "ZED123"))
	assert.Nil(t, h.Create(ctx, "ZED123"))
	assert.Nil(t, h.Get(ctx, "NOPE00"))
}

func TestHub_EnsureCreatesOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(ctx, nil, nil)

	s1 := h.Ensure(ctx, DefaultCode)
	s2 := h.Ensure(ctx, DefaultCode)

	require.NotNil(t, s1)
	assert.Same(t, s1, s2)
	assert.Len(t, h.List(ctx), 1)
}

func TestHub_EmptySessionIsRemoved(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(ctx, nil, nil)

	s := h.Ensure(ctx, DefaultCode)
	p := join(t, s, "c1")
	s.Leave(p.role, p.id)

	require.Eventually(t, func() bool {
		return h.Get(ctx, DefaultCode) == nil
	}, time.Second, 10*time.Millisecond)

	fresh := h.Ensure(ctx, DefaultCode)
	require.NotNil(t, fresh)
	assert.NotSame(t, s, fresh)
}

func TestHub_EnsureNeverReturnsEndedSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(ctx, nil, nil)

	s := h.Ensure(ctx, DefaultCode)
	p := join(t, s, "c1")
	s.Leave(p.role, p.id)
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatalf("session did not end")
	}

	// asked straight away, whether or not the removal has been processed
	fresh := h.Ensure(ctx, DefaultCode)
	require.NotNil(t, fresh)
	assert.NotSame(t, s, fresh)
	select {
	case <-fresh.Done():
		t.Fatalf("ensure returned an ended session")
	default:
	}
	q := join(t, fresh, "c2")
	assert.Equal(t, protocol.RolePrimary, q.role)
}

func TestHub_GetAndListSkipEndedSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(ctx, nil, nil)

	s := h.Create(ctx, "GONE01")
	require.NotNil(t, s)
	p := join(t, s, "c1")
	s.Leave(p.role, p.id)
	<-s.Done()

	assert.Nil(t, h.Get(ctx, "GONE01"))
	assert.Empty(t, h.List(ctx))
}

func TestHub_SequenceIsProcessWide(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(ctx, nil, nil)

	a := h.Ensure(ctx, "AAAAAA")
	b := h.Ensure(ctx, "BBBBBB")
	a1, a2 := pair(t, a)
	b1, b2 := pair(t, b)

	a.Relay(ctx, a1.role, []byte(`{"type":"input","packet":{"frame":0,"buttons":{}}}`))
	first := recvMsg(t, a2.out, 100*time.Millisecond)
	b.Relay(ctx, b1.role, []byte(`{"type":"input","packet":{"frame":0,"buttons":{}}}`))
	second := recvMsg(t, b2.out, 100*time.Millisecond)

	assert.Equal(t, *first.Packet.Seq+1, *second.Packet.Seq)
}

func TestHub_ShutdownEndsSessions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(ctx, nil, nil)

	s := h.Ensure(ctx, DefaultCode)
	p1, p2 := pair(t, s)

	h.Shutdown()

	recvClosed(t, p1.out, 200*time.Millisecond)
	recvClosed(t, p2.out, 200*time.Millisecond)
	<-h.Done()
	assert.Nil(t, h.Get(ctx, DefaultCode))
}
