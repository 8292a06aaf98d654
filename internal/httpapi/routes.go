package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Zidane-Khaled/RetroVerse/internal/relay"
	"github.com/Zidane-Khaled/RetroVerse/internal/ws"
)

func SetupRoutes(h *relay.Hub, log *zap.Logger, wsOpts ws.Options) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()

	// Public routes
	r.Post("/sessions", CreateSession(h, log))
	r.Get("/sessions", ListSessions(h))
	r.Get("/sessions/{code}/events", SessionEvents(h))
	r.Get("/healthz", Healthz(h))
	r.Get("/ws", ws.Handler(h, log, wsOpts))
	return r
}
