package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Zidane-Khaled/RetroVerse/internal/relay"
)

// CloseReasonSessionFull is sent, with StatusPolicyViolation, to a
// connection that finds both seats taken.
const CloseReasonSessionFull = "session full"

type Options struct {
	// ReadTimeout bounds how long a keepalive ping may go unanswered.
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	OutboxSize     int
	OriginPatterns []string
}

func (o Options) withDefaults() Options {
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 3 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 15 * time.Second
	}
	if o.OutboxSize <= 0 {
		o.OutboxSize = 64
	}
	return o
}

// Handler upgrades /ws requests and seats them in a relay session. Without
// a code the connection joins the default session.
func Handler(h *relay.Hub, log *zap.Logger, opts Options) http.HandlerFunc {
	opts = opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}

	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		lookup := func(ctx context.Context) *relay.Session {
			if code == "" {
				return h.Ensure(ctx, relay.DefaultCode)
			}
			return h.Get(ctx, code)
		}

		s := lookup(r.Context())
		if s == nil {
			if code == "" {
				http.Error(w, "relay unavailable", http.StatusServiceUnavailable)
			} else {
				http.Error(w, "session not found", http.StatusNotFound)
			}
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		connID := uuid.NewString()
		out := make(chan []byte, opts.OutboxSize)
		role, err := s.Join(r.Context(), connID, out)
		if errors.Is(err, relay.ErrSessionClosed) {
			// the session emptied between lookup and join; the registry
			// hands out its successor
			if s = lookup(r.Context()); s != nil {
				role, err = s.Join(r.Context(), connID, out)
			}
		}
		if s == nil {
			conn.Close(websocket.StatusPolicyViolation, "session not found")
			return
		}
		clog := log.With(zap.String("code", s.Code()), zap.String("conn", connID))
		switch {
		case errors.Is(err, relay.ErrSessionFull):
			conn.Close(websocket.StatusPolicyViolation, CloseReasonSessionFull)
			return
		case err != nil:
			clog.Info("join failed", zap.Error(err))
			conn.Close(websocket.StatusTryAgainLater, "session closed")
			return
		}
		defer s.Leave(role, connID)
		clog = clog.With(zap.String("role", string(role)))
		clog.Info("client connected")

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for data := range out {
				ctx, cancel := context.WithTimeout(writeCtx, opts.WriteTimeout)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					clog.Debug("write failed", zap.Error(err))
					conn.CloseNow()
					return
				}
			}
			// the session closed our outbox: we left, or the relay is stopping
			conn.Close(websocket.StatusGoingAway, "session ended")
		}()

		// Keepalive: a participant waiting for its peer sends nothing, so
		// liveness is checked with pings rather than a read deadline.
		go func() {
			t := time.NewTicker(opts.PingInterval)
			defer t.Stop()
			for {
				select {
				case <-writeCtx.Done():
					return
				case <-t.C:
					ctx, cancel := context.WithTimeout(writeCtx, opts.ReadTimeout)
					err := conn.Ping(ctx)
					cancel()
					if err != nil {
						if writeCtx.Err() == nil {
							clog.Info("keepalive failed", zap.Error(err))
						}
						conn.CloseNow()
						return
					}
				}
			}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					clog.Info("client disconnected")
				default:
					clog.Info("client connection lost", zap.Error(err))
				}
				return
			}

			s.Relay(r.Context(), role, data)
		}
	}
}
