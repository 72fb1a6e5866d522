// Package api serves the token list and live chart streams over HTTP and WebSocket.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"pump-candles/internal/chart"
	"pump-candles/internal/domain"
	"pump-candles/internal/observability"
)

// Store is the read side of the candle store used by the API.
type Store interface {
	chart.Store
	ListTokens(ctx context.Context) ([]domain.Token, error)
}

// Options configures the API server.
type Options struct {
	// Session is the template for every chart session. ID and Logger are set per session.
	Session chart.Options
	// WriteTimeout bounds a single WebSocket frame write.
	WriteTimeout time.Duration
	// StaticDir is served at / when set.
	StaticDir string
	Logger    *log.Logger
}

// DefaultOptions returns the default API options.
func DefaultOptions() Options {
	return Options{
		Session:      chart.DefaultOptions(),
		WriteTimeout: 10 * time.Second,
	}
}

// Server exposes the HTTP routes.
type Server struct {
	store  Store
	opts   Options
	logger *log.Logger
}

// NewServer creates an API server.
func NewServer(store Store, opts Options) *Server {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultOptions().WriteTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		store:  store,
		opts:   opts,
		logger: logger,
	}
}

// Handler returns the routed handler with permissive CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.Handler())
	mux.HandleFunc("GET /tokens", s.handleTokens)
	mux.HandleFunc("GET /chart_data_ws/{token}/{resolution}", s.handleChart)

	if s.opts.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(s.opts.StaticDir)))
	}

	return cors(mux)
}

// handleTokens lists known mints as [mint, metadata|null] pairs.
func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.store.ListTokens(r.Context())
	if err != nil {
		s.logger.Printf("list tokens: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list tokens"})
		return
	}

	pairs := make([][2]interface{}, 0, len(tokens))
	for _, t := range tokens {
		pairs = append(pairs, [2]interface{}{t.Mint, t.Metadata})
	}
	writeJSON(w, http.StatusOK, pairs)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
