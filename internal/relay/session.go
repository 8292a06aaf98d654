package relay

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Zidane-Khaled/RetroVerse/internal/protocol"
	"github.com/Zidane-Khaled/RetroVerse/internal/store"
)

var ErrSessionFull = errors.New("session full")
var ErrSessionClosed = errors.New("session closed")

type Msg interface{ isSessionMsg() }

type Join struct {
	ConnID string
	Outbox chan []byte // encoded messages for this connection; closed by the session
	Reply  chan JoinResult
}

func (Join) isSessionMsg() {}

type JoinResult struct {
	Role protocol.Role
	Err  error
}

type Leave struct {
	Role   protocol.Role
	ConnID string
}

func (Leave) isSessionMsg() {}

// FromPeer is one raw frame read from the connection seated at Role.
type FromPeer struct {
	Role protocol.Role
	Data []byte
}

func (FromPeer) isSessionMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isSessionMsg() {}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

type View struct {
	Code      string          `json:"code"`
	Occupants int             `json:"occupants"`
	Roles     []protocol.Role `json:"roles"`
}

type participant struct {
	connID  string
	outbox  chan []byte
	started bool
}

type SessionConfig struct {
	Seq     *atomic.Uint64 // shared by every session of the process
	Logger  *zap.Logger
	Journal *store.Recorder
	// OnEmpty runs on its own goroutine once the last participant leaves.
	OnEmpty func(*Session)
}

// Session pairs at most two connections and forwards their messages. It
// never keeps payloads beyond forwarding them.
type Session struct {
	code    string
	inbox   chan Msg
	seats   map[protocol.Role]*participant
	seq     *atomic.Uint64
	log     *zap.Logger
	journal *store.Recorder
	onEmpty func(*Session)
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewSession(parent context.Context, code string, cfg SessionConfig) *Session {
	ctx, cancel := context.WithCancel(parent)
	if cfg.Seq == nil {
		cfg.Seq = new(atomic.Uint64)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &Session{
		code:    code,
		inbox:   make(chan Msg, 64),
		seats:   make(map[protocol.Role]*participant, 2),
		seq:     cfg.Seq,
		log:     cfg.Logger.With(zap.String("code", code)),
		journal: cfg.Journal,
		onEmpty: cfg.OnEmpty,
		ctx:     ctx,
		cancel:  cancel,
	}
	s.record(store.EventOpened, "", "")

	go s.loop()
	return s
}

func (s *Session) Code() string { return s.code }

func (s *Session) Inbox() chan<- Msg { return s.inbox }

// Done is closed once the session has ended and accepts no more messages.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

// Join seats a connection and returns its role.
func (s *Session) Join(ctx context.Context, connID string, outbox chan []byte) (protocol.Role, error) {
	reply := make(chan JoinResult, 1)
	if !s.post(ctx, Join{ConnID: connID, Outbox: outbox, Reply: reply}) {
		return "", ErrSessionClosed
	}
	select {
	case res := <-reply:
		return res.Role, res.Err
	case <-s.Done():
		return "", ErrSessionClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Session) Leave(role protocol.Role, connID string) {
	s.post(context.Background(), Leave{Role: role, ConnID: connID})
}

func (s *Session) Relay(ctx context.Context, role protocol.Role, data []byte) {
	s.post(ctx, FromPeer{Role: role, Data: data})
}

func (s *Session) View(ctx context.Context) (View, bool) {
	reply := make(chan View, 1)
	if !s.post(ctx, GetState{Reply: reply}) {
		return View{}, false
	}
	select {
	case v := <-reply:
		return v, true
	case <-s.Done():
		return View{}, false
	case <-ctx.Done():
		return View{}, false
	}
}

func (s *Session) post(ctx context.Context, m Msg) bool {
	select {
	case s.inbox <- m:
		return true
	case <-s.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Join:
				s.join(msg)

			case Leave:
				if s.leave(msg) {
					return
				}

			case FromPeer:
				s.relay(msg)

			case GetState:
				msg.Reply <- s.view()

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

func (s *Session) join(msg Join) {
	var role protocol.Role
	switch {
	case s.seats[protocol.RolePrimary] == nil:
		role = protocol.RolePrimary
	case s.seats[protocol.RoleSecondary] == nil:
		role = protocol.RoleSecondary
	default:
		s.log.Info("rejecting connection, session full", zap.String("conn", msg.ConnID))
		s.record(store.EventRejected, "", msg.ConnID)
		msg.Reply <- JoinResult{Err: ErrSessionFull}
		return
	}

	s.seats[role] = &participant{connID: msg.ConnID, outbox: msg.Outbox}
	msg.Reply <- JoinResult{Role: role}
	s.log.Info("participant joined", zap.String("role", string(role)), zap.String("conn", msg.ConnID))
	s.record(store.EventJoined, role, msg.ConnID)

	if len(s.seats) < 2 {
		return
	}
	// a side left alone after a disconnect is not started again
	for r, p := range s.seats {
		if p.started {
			continue
		}
		p.started = true
		s.sendTo(r, protocol.Start(r))
	}
	s.log.Info("session paired")
	s.record(store.EventPaired, "", "")
}

// leave frees the seat and reports whether the session has ended.
func (s *Session) leave(msg Leave) bool {
	p := s.seats[msg.Role]
	if p == nil || p.connID != msg.ConnID {
		return false
	}

	paired := len(s.seats) == 2
	delete(s.seats, msg.Role)
	close(p.outbox)
	s.log.Info("participant left", zap.String("role", string(msg.Role)), zap.String("conn", msg.ConnID))
	s.record(store.EventLeft, msg.Role, msg.ConnID)

	if paired {
		s.sendTo(msg.Role.Other(), protocol.Pause(protocol.ReasonPeerDisconnected))
	}

	if len(s.seats) > 0 {
		return false
	}
	s.record(store.EventClosed, "", "")
	s.cancel()
	if s.onEmpty != nil {
		go s.onEmpty(s)
	}
	return true
}

func (s *Session) relay(msg FromPeer) {
	if s.seats[msg.Role] == nil {
		return
	}

	env, err := protocol.Decode(msg.Data)
	if err != nil {
		s.log.Warn("ignoring message", zap.String("role", string(msg.Role)), zap.Error(err))
		return
	}

	switch env.Type {
	case protocol.TypeInput:
		to := msg.Role.Other()
		if s.seats[to] == nil {
			return
		}
		seq := s.seq.Add(1)
		out, err := protocol.StampSeq(msg.Data, seq)
		if err != nil {
			s.log.Warn("ignoring message", zap.String("role", string(msg.Role)), zap.Error(err))
			return
		}
		s.sendRaw(to, env.Type, out)
		s.log.Debug("relayed input",
			zap.String("from", string(msg.Role)),
			zap.Uint64("frame", uint64(env.Packet.Frame)),
			zap.Uint64("seq", seq),
		)

	case protocol.TypeCheckpoint:
		out, err := protocol.StampRole(msg.Data, msg.Role)
		if err != nil {
			s.log.Warn("ignoring message", zap.String("role", string(msg.Role)), zap.Error(err))
			return
		}
		s.sendRaw(msg.Role.Other(), env.Type, out)
		s.log.Debug("relayed checkpoint",
			zap.String("from", string(msg.Role)),
			zap.Uint64("frame", uint64(env.Checkpoint.Frame)),
		)

	case protocol.TypePing:
		s.sendTo(msg.Role, protocol.Pong())

	default:
		s.log.Debug("not relaying", zap.String("type", string(env.Type)))
	}
}

func (s *Session) sendTo(role protocol.Role, env protocol.Envelope) {
	data, err := protocol.Encode(env)
	if err != nil {
		s.log.Error("encode failed", zap.Error(err))
		return
	}
	s.sendRaw(role, env.Type, data)
}

// sendRaw never blocks: a missing destination or a full outbox drops the
// message.
func (s *Session) sendRaw(role protocol.Role, typ protocol.Type, data []byte) {
	p := s.seats[role]
	if p == nil {
		return
	}
	select {
	case p.outbox <- data:
	default:
		s.log.Warn("outbox full, dropping message", zap.String("to", string(role)), zap.String("type", string(typ)))
	}
}

func (s *Session) view() View {
	v := View{Code: s.code, Occupants: len(s.seats), Roles: []protocol.Role{}}
	for _, r := range []protocol.Role{protocol.RolePrimary, protocol.RoleSecondary} {
		if s.seats[r] != nil {
			v.Roles = append(v.Roles, r)
		}
	}
	return v
}

func (s *Session) shutdown() {
	for r, p := range s.seats {
		close(p.outbox)
		delete(s.seats, r)
	}
	s.cancel()
}

func (s *Session) record(kind store.EventKind, role protocol.Role, connID string) {
	s.journal.Record(store.Event{SessionCode: s.code, Kind: kind, Role: string(role), ConnID: connID})
}
