package server

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /sessions", h.CreateSession)
	mux.HandleFunc("GET /sessions", h.ListSessions)
	mux.HandleFunc("GET /sessions/{id}", h.GetSession)
	mux.HandleFunc("DELETE /sessions/{id}", h.DeleteSession)

	// Lifecycle and playback controls
	mux.HandleFunc("POST /sessions/{id}/begin", h.BeginSession)
	mux.HandleFunc("POST /sessions/{id}/restart", h.RestartSession)
	mux.HandleFunc("POST /sessions/{id}/pause", h.PauseSession)
	mux.HandleFunc("POST /sessions/{id}/resume", h.ResumeSession)
	mux.HandleFunc("POST /sessions/{id}/skip", h.SkipSession)
	mux.HandleFunc("POST /sessions/{id}/mute", h.MuteSession)
	mux.HandleFunc("POST /sessions/{id}/seek", h.SeekSession)
	mux.HandleFunc("POST /sessions/{id}/resize", h.ResizeSession)
	mux.HandleFunc("POST /sessions/{id}/visibility", h.SetVisibility)

	// Stream access
	mux.HandleFunc("GET /sessions/{id}/timemap", h.GetTimeMap)
	mux.HandleFunc("GET /sessions/{id}/stream", h.GetStream)
	mux.HandleFunc("GET /sessions/{id}/events", h.SessionEvents)

	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
