package input

// Retention is how many frames behind the current one a Buffer keeps.
const Retention = 60

// Buffer stores one participant's input per frame. Frames that were never
// recorded are predicted with the most recently recorded state.
//
// A Buffer is not safe for concurrent use; its owner serialises access.
type Buffer struct {
	entries   map[Frame]State
	lastKnown State
}

func NewBuffer() *Buffer {
	return &Buffer{entries: make(map[Frame]State)}
}

// Record stores s for frame f, overwriting any previous entry, and makes s
// the prediction for unrecorded frames.
func (b *Buffer) Record(f Frame, s State) {
	b.entries[f] = s
	b.lastKnown = s
}

// Get returns the recorded state for f, or the prediction if f was never
// recorded. An empty buffer predicts all buttons released.
func (b *Buffer) Get(f Frame) State {
	if s, ok := b.entries[f]; ok {
		return s
	}
	return b.lastKnown
}

func (b *Buffer) IsRecorded(f Frame) bool {
	_, ok := b.entries[f]
	return ok
}

// Prune drops every entry older than current-Retention. The prediction is
// left alone.
func (b *Buffer) Prune(current Frame) {
	if current <= Retention {
		return
	}
	cutoff := current - Retention
	for f := range b.entries {
		if f < cutoff {
			delete(b.entries, f)
		}
	}
}

func (b *Buffer) Reset() {
	clear(b.entries)
	b.lastKnown = State{}
}

func (b *Buffer) Len() int { return len(b.entries) }
