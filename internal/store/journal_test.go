package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryJournal_FiltersByCode(t *testing.T) {
	ctx := context.Background()
	j := NewMemoryJournal()

	require.NoError(t, j.Append(ctx, Event{SessionCode: "AAA111", Kind: EventOpened}))
	require.NoError(t, j.Append(ctx, Event{SessionCode: "BBB222", Kind: EventOpened}))
	require.NoError(t, j.Append(ctx, Event{SessionCode: "AAA111", Kind: EventJoined, Role: "primary"}))

	got, err := j.Events(ctx, "AAA111")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, EventOpened, got[0].Kind)
	assert.Equal(t, EventJoined, got[1].Kind)
	assert.Less(t, got[0].ID, got[1].ID)

	none, err := j.Events(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecorder_FlushesOnClose(t *testing.T) {
	j := NewMemoryJournal()
	r := NewRecorder(j, nil, 16)

	r.Record(Event{SessionCode: "default", Kind: EventJoined})
	r.Record(Event{SessionCode: "default", Kind: EventLeft})
	require.NoError(t, r.Close())

	got, err := j.Events(context.Background(), "default")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.False(t, got[0].At.IsZero())

	// after close events are discarded rather than panicking
	r.Record(Event{SessionCode: "default", Kind: EventClosed})
	require.NoError(t, r.Close())
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() { r.Record(Event{Kind: EventOpened}) })
}
