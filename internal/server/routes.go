package server

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maauso/speech-dataset-maker/internal/metrics"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// Metrics receives per-request counters. Optional.
	Metrics *metrics.Metrics
	// Gatherer is exposed on GET /metrics when set.
	Gatherer prometheus.Gatherer
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
	mux.HandleFunc("GET /datasets", h.ListDatasets)
	mux.HandleFunc("GET /datasets/{name}/next", h.NextSentence)
	mux.HandleFunc("POST /datasets/{name}/takes", h.CreateTake)
	mux.HandleFunc("GET /takes/{id}", h.GetTake)
	mux.HandleFunc("GET /takes/{id}/audio", h.GetTakeAudio)
	mux.HandleFunc("POST /takes/{id}/save", h.SaveTake)
	mux.HandleFunc("DELETE /takes/{id}", h.DiscardTake)

	if cfg.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		MetricsMiddleware(cfg.Metrics),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
