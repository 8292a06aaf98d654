package relay

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Zidane-Khaled/RetroVerse/internal/store"
)

// DefaultCode is the session joined by connections that name none.
const DefaultCode = "default"

type HubMsg interface{ isHubMsg() }

type CreateSession struct {
	Code  string
	Reply chan *Session // nil if the code is taken
}

type GetSession struct {
	Code  string
	Reply chan *Session
}

type EnsureSession struct {
	Code  string
	Reply chan *Session
}

// RemoveSession drops Session from the registry if it is still the one
// registered under Code.
type RemoveSession struct {
	Code    string
	Session *Session
}

type ListSessions struct {
	Reply chan []*Session
}

type ShutdownHub struct{}

func (CreateSession) isHubMsg() {}
func (GetSession) isHubMsg()    {}
func (EnsureSession) isHubMsg() {}
func (RemoveSession) isHubMsg() {}
func (ListSessions) isHubMsg()  {}
func (ShutdownHub) isHubMsg()   {}

// Hub is the registry of live sessions, keyed by session code.
type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*Session
	seq      atomic.Uint64
	log      *zap.Logger
	journal  *store.Recorder
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewHub(parent context.Context, log *zap.Logger, journal *store.Recorder) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*Session),
		log:      log,
		journal:  journal,
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

// Journal returns the journal sessions record into, or nil.
func (h *Hub) Journal() store.Journal {
	if h.journal == nil {
		return nil
	}
	return h.journal.Journal()
}

// ask sends m and waits for the session reply. It returns nil once the hub
// has stopped.
func (h *Hub) ask(ctx context.Context, m HubMsg, reply chan *Session) *Session {
	select {
	case h.inbox <- m:
	case <-h.ctx.Done():
		return nil
	case <-ctx.Done():
		return nil
	}
	select {
	case s := <-reply:
		return s
	case <-h.ctx.Done():
		return nil
	case <-ctx.Done():
		return nil
	}
}

func (h *Hub) Create(ctx context.Context, code string) *Session {
	reply := make(chan *Session, 1)
	return h.ask(ctx, CreateSession{Code: code, Reply: reply}, reply)
}

func (h *Hub) Get(ctx context.Context, code string) *Session {
	reply := make(chan *Session, 1)
	return h.ask(ctx, GetSession{Code: code, Reply: reply}, reply)
}

func (h *Hub) Ensure(ctx context.Context, code string) *Session {
	reply := make(chan *Session, 1)
	return h.ask(ctx, EnsureSession{Code: code, Reply: reply}, reply)
}

func (h *Hub) List(ctx context.Context) []*Session {
	reply := make(chan []*Session, 1)
	select {
	case h.inbox <- ListSessions{Reply: reply}:
	case <-h.ctx.Done():
		return nil
	case <-ctx.Done():
		return nil
	}
	select {
	case all := <-reply:
		return all
	case <-h.ctx.Done():
		return nil
	case <-ctx.Done():
		return nil
	}
}

func (h *Hub) Shutdown() {
	select {
	case h.inbox <- ShutdownHub{}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) remove(s *Session) {
	select {
	case h.inbox <- RemoveSession{Code: s.Code(), Session: s}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) newSession(code string) *Session {
	s := NewSession(h.ctx, code, SessionConfig{
		Seq:     &h.seq,
		Logger:  h.log,
		Journal: h.journal,
		OnEmpty: h.remove,
	})
	h.sessions[code] = s
	h.log.Info("session opened", zap.String("code", code))
	return s
}

// live returns the session registered under code unless it has already
// ended; an ended session whose RemoveSession is still queued is dropped.
func (h *Hub) live(code string) *Session {
	s := h.sessions[code]
	if s == nil {
		return nil
	}
	select {
	case <-s.Done():
		delete(h.sessions, code)
		return nil
	default:
		return s
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateSession:
				if h.live(msg.Code) != nil {
					msg.Reply <- nil
					break
				}
				msg.Reply <- h.newSession(msg.Code)

			case GetSession:
				msg.Reply <- h.live(msg.Code) // May be nil

			case EnsureSession:
				if s := h.live(msg.Code); s != nil {
					msg.Reply <- s
					break
				}
				msg.Reply <- h.newSession(msg.Code)

			case RemoveSession:
				if h.sessions[msg.Code] == msg.Session {
					delete(h.sessions, msg.Code)
					h.log.Info("session removed", zap.String("code", msg.Code))
				}

			case ListSessions:
				all := make([]*Session, 0, len(h.sessions))
				for code := range h.sessions {
					if s := h.live(code); s != nil {
						all = append(all, s)
					}
				}
				msg.Reply <- all

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for _, s := range h.sessions {
		select {
		case s.Inbox() <- Shutdown{}:
		case <-s.Done():
		}
	}
	clear(h.sessions)
	h.cancel()
}
