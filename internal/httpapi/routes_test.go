package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zidane-Khaled/RetroVerse/internal/relay"
	"github.com/Zidane-Khaled/RetroVerse/internal/store"
	"github.com/Zidane-Khaled/RetroVerse/internal/ws"
)

func newServer(t *testing.T) (*httptest.Server, *relay.Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	rec := store.NewRecorder(store.NewMemoryJournal(), nil, 64)
	h := relay.NewHub(ctx, nil, rec)
	srv := httptest.NewServer(SetupRoutes(h, nil, ws.Options{}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		_ = rec.Close()
	})
	return srv, h
}

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		assert.Regexp(t, `^[A-HJ-NP-Z2-9]{6}$`, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 45)
}

func TestHealthz(t *testing.T) {
	srv, h := newServer(t)
	require.NotNil(t, h.Create(context.Background(), "HLTH01"))

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got healthStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, healthStatus{Status: "ok", Sessions: 1}, got)
}

func TestHealthzAfterShutdown(t *testing.T) {
	srv, h := newServer(t)
	h.Shutdown()
	<-h.Done()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCreateAndListSessions(t *testing.T) {
	srv, h := newServer(t)

	resp, err := http.Post(srv.URL+"/sessions", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.Code)
	require.NotNil(t, h.Get(context.Background(), created.Code))

	list, err := http.Get(srv.URL + "/sessions")
	require.NoError(t, err)
	defer list.Body.Close()

	var views []relay.View
	require.NoError(t, json.NewDecoder(list.Body).Decode(&views))
	require.Len(t, views, 1)
	assert.Equal(t, created.Code, views[0].Code)
	assert.Equal(t, 0, views[0].Occupants)
}

func TestSessionEvents(t *testing.T) {
	srv, h := newServer(t)
	require.NotNil(t, h.Create(context.Background(), "EVT001"))

	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/sessions/EVT001/events")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var events []store.Event
		if json.NewDecoder(resp.Body).Decode(&events) != nil {
			return false
		}
		return len(events) == 1 && events[0].Kind == store.EventOpened
	}, time.Second, 20*time.Millisecond)
}

func TestWebsocketUnknownCode(t *testing.T) {
	srv, _ := newServer(t)

	resp, err := http.Get(srv.URL + "/ws?code=NOPE00")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
