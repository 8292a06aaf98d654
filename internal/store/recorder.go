package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const appendTimeout = 5 * time.Second

// Recorder writes events to a Journal from its own goroutine so callers on
// the relay's hot path never wait on the database. Events are dropped when
// the queue is full.
type Recorder struct {
	journal Journal
	log     *zap.Logger
	ch      chan Event
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewRecorder(j Journal, log *zap.Logger, size int) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Recorder{
		journal: j,
		log:     log,
		ch:      make(chan Event, size),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.ch {
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		if err := r.journal.Append(ctx, e); err != nil {
			r.log.Warn("journal append failed",
				zap.String("code", e.SessionCode),
				zap.String("kind", string(e.Kind)),
				zap.Error(err),
			)
		}
		cancel()
	}
}

// Record queues e. A nil Recorder discards everything.
func (r *Recorder) Record(e Event) {
	if r == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.ch <- e:
	default:
		r.log.Warn("journal queue full, dropping event", zap.String("code", e.SessionCode))
	}
}

func (r *Recorder) Journal() Journal { return r.journal }

// Close flushes queued events and closes the journal.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.ch)
	r.mu.Unlock()

	<-r.done
	return r.journal.Close()
}
