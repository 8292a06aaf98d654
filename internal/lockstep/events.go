package lockstep

import (
	"github.com/Zidane-Khaled/RetroVerse/internal/input"
	"github.com/Zidane-Khaled/RetroVerse/internal/protocol"
)

// Desync describes a checkpoint whose digests disagree.
type Desync struct {
	Frame  input.Frame
	Local  string
	Remote string
}

// EventSink receives the coordinator's externally visible state changes.
// Callbacks run on the goroutine that caused the change, never while the
// coordinator holds its lock.
type EventSink interface {
	OnReady(role protocol.Role)
	OnPause(reason string)
	OnDesync(d Desync)
}

type nopSink struct{}

func (nopSink) OnReady(protocol.Role) {}
func (nopSink) OnPause(string)        {}
func (nopSink) OnDesync(Desync)       {}

type EventKind string

const (
	EventReady  EventKind = "ready"
	EventPause  EventKind = "pause"
	EventDesync EventKind = "desync"
)

type Event struct {
	Kind   EventKind
	Role   protocol.Role // EventReady
	Reason string        // EventPause
	Desync Desync        // EventDesync
}

// EventQueue is an EventSink that buffers events on a channel for a driver
// to poll. Events are dropped when the buffer is full.
type EventQueue struct {
	ch chan Event
}

func NewEventQueue(size int) *EventQueue {
	return &EventQueue{ch: make(chan Event, size)}
}

func (q *EventQueue) Events() <-chan Event { return q.ch }

func (q *EventQueue) OnReady(role protocol.Role) { q.push(Event{Kind: EventReady, Role: role}) }
func (q *EventQueue) OnPause(reason string)      { q.push(Event{Kind: EventPause, Reason: reason}) }
func (q *EventQueue) OnDesync(d Desync)          { q.push(Event{Kind: EventDesync, Desync: d}) }

func (q *EventQueue) push(e Event) {
	select {
	case q.ch <- e:
	default:
	}
}

// Poll returns the next buffered event without blocking.
func (q *EventQueue) Poll() (Event, bool) {
	select {
	case e := <-q.ch:
		return e, true
	default:
		return Event{}, false
	}
}
