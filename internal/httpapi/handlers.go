package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Zidane-Khaled/RetroVerse/internal/relay"
)

const (
	codeAttempts = 16
	codeLength   = 6
	// no 0/O or 1/I, codes are read aloud and typed by hand
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// GenerateCode returns a random session code. The alphabet has 32 symbols,
// so each random byte maps onto it without bias.
func GenerateCode() (string, error) {
	var buf [codeLength]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf[:]), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// CreateSession registers a fresh session under a random code.
func CreateSession(h *relay.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < codeAttempts; i++ {
			code, err := GenerateCode()
			if err != nil {
				http.Error(w, "failed to generate code", http.StatusInternalServerError)
				return
			}
			if s := h.Create(r.Context(), code); s != nil {
				writeJSON(w, http.StatusCreated, struct {
					Code string `json:"code"`
				}{Code: code})
				return
			}
			log.Debug("collision on code, regenerating", zap.String("code", code))
		}
		http.Error(w, "failed to create session", http.StatusServiceUnavailable)
	}
}

func ListSessions(h *relay.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		views := []relay.View{}
		for _, s := range h.List(ctx) {
			// sessions that end meanwhile are skipped
			if v, ok := s.View(ctx); ok {
				views = append(views, v)
			}
		}
		sort.Slice(views, func(i, j int) bool { return views[i].Code < views[j].Code })
		writeJSON(w, http.StatusOK, views)
	}
}

// SessionEvents lists the journaled lifecycle of one session, including
// sessions that have already ended.
func SessionEvents(h *relay.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		j := h.Journal()
		if j == nil {
			http.Error(w, "journal disabled", http.StatusNotFound)
			return
		}
		events, err := j.Events(r.Context(), chi.URLParam(r, "code"))
		if err != nil {
			http.Error(w, "failed to read journal", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, events)
	}
}

// Healthz reports liveness along with the number of open sessions. It fails
// once the registry has stopped.
func Healthz(h *relay.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-h.Done():
			writeJSON(w, http.StatusServiceUnavailable, healthStatus{Status: "stopping"})
			return
		default:
		}
		writeJSON(w, http.StatusOK, healthStatus{Status: "ok", Sessions: len(h.List(r.Context()))})
	}
}

type healthStatus struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}
