package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/guardarr/internal/config"
	"github.com/jmylchreest/guardarr/internal/http/handlers"
	"github.com/jmylchreest/guardarr/internal/watchdog"
)

type staticLister struct {
	statuses []watchdog.Status
}

func (s *staticLister) Statuses() []watchdog.Status { return s.statuses }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.ServerConfig{Host: "127.0.0.1", Port: 0}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(cfg, logger, "test")
}

func TestServer_ChannelsRoute(t *testing.T) {
	srv := newTestServer(t)
	lister := &staticLister{statuses: []watchdog.Status{
		{ChannelID: "101", ChannelName: "News HD", Speed: 1.01, HasSpeed: true, ProbeRunning: true},
	}}
	handlers.NewChannelsHandler(lister).Register(srv.API())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/channels", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var body struct {
		Count    int `json:"count"`
		Channels []struct {
			ChannelID string  `json:"channel_id"`
			Speed     float64 `json:"speed"`
		} `json:"channels"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "101", body.Channels[0].ChannelID)
	assert.InDelta(t, 1.01, body.Channels[0].Speed, 0.0001)
}

func TestServer_HealthRoute(t *testing.T) {
	srv := newTestServer(t)
	handlers.NewHealthHandler("1.2.3").Register(srv.API())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "1.2.3", body.Version)
}

func TestServer_UnknownRoute(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
