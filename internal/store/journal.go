package store

import (
	"context"
	"sync"
	"time"
)

type EventKind string

const (
	EventOpened   EventKind = "opened"
	EventJoined   EventKind = "joined"
	EventPaired   EventKind = "paired"
	EventLeft     EventKind = "left"
	EventRejected EventKind = "rejected"
	EventClosed   EventKind = "closed"
)

// Event is one lifecycle entry of a relay session. Payloads are never
// journaled.
type Event struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SessionCode string    `gorm:"index;size:64;not null" json:"session_code"`
	Kind        EventKind `gorm:"size:16;not null" json:"kind"`
	Role        string    `gorm:"size:16" json:"role,omitempty"`
	ConnID      string    `gorm:"size:36" json:"conn_id,omitempty"`
	At          time.Time `gorm:"not null" json:"at"`
}

func (Event) TableName() string { return "session_events" }

// Journal persists session lifecycle events.
type Journal interface {
	Append(ctx context.Context, e Event) error
	Events(ctx context.Context, code string) ([]Event, error)
	Close() error
}

// MemoryJournal keeps events in process. Used when no database is
// configured, and in tests.
type MemoryJournal struct {
	mu     sync.Mutex
	events []Event
	nextID uint
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

func (m *MemoryJournal) Append(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	e.ID = m.nextID
	m.events = append(m.events, e)
	return nil
}

func (m *MemoryJournal) Events(_ context.Context, code string) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Event{}
	for _, e := range m.events {
		if e.SessionCode == code {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryJournal) Close() error { return nil }
