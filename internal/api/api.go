// Package api provides HTTP handlers and the main API server logic for clinichat.
//
// It exposes the chat, image-analysis and title endpoints consumed by the
// browser client, plus the persisted session-history endpoints. The API
// integrates the intake collector, the GenAI gateway and the history store.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/clinichat/clinichat/internal/genai"
	"github.com/clinichat/clinichat/internal/intake"
	"github.com/clinichat/clinichat/internal/store"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// DefaultGatewayTimeout bounds every model gateway call; expiry surfaces to
// the caller exactly like any other gateway failure.
const DefaultGatewayTimeout = 60 * time.Second

// Opts holds configuration options for the API server.
type Opts struct {
	Addr           string
	GatewayTimeout time.Duration
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the server listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithGatewayTimeout sets the timeout applied to model gateway calls.
func WithGatewayTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.GatewayTimeout = d
	}
}

// Server bundles the dependencies required by the HTTP handlers.
type Server struct {
	addr           string
	gatewayTimeout time.Duration
	collector      *intake.Collector
	sessions       *intake.SessionStore
	gaClient       genai.ClientInterface
	history        store.Store
}

// NewServer constructs an API server over the given collaborators.
func NewServer(collector *intake.Collector, sessions *intake.SessionStore, gaClient genai.ClientInterface, history store.Store, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = DefaultGatewayTimeout
	}
	slog.Debug("api.NewServer: constructing server", "addr", cfg.Addr, "gatewayTimeout", cfg.GatewayTimeout)
	return &Server{
		addr:           cfg.Addr,
		gatewayTimeout: cfg.GatewayTimeout,
		collector:      collector,
		sessions:       sessions,
		gaClient:       gaClient,
		history:        history,
	}
}

// Handler returns the server's HTTP handler with CORS applied. The browser
// client is served from a different origin, so every endpoint is reachable
// cross-origin.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", s.chatHandler)
	mux.HandleFunc("/api/analyze-image", s.analyzeImageHandler)
	mux.HandleFunc("/api/generate-title", s.generateTitleHandler)
	mux.HandleFunc("/api/sessions", s.sessionsHandler)
	mux.HandleFunc("/api/sessions/", s.sessionMessagesHandler)
	return corsMiddleware(mux)
}

// Run starts the HTTP server and blocks until it exits.
func (s *Server) Run() error {
	slog.Info("api.Run: clinichat API listening", "addr", s.addr)
	return http.ListenAndServe(s.addr, s.Handler())
}

// gatewayContext derives the bounded context used for model gateway calls.
func (s *Server) gatewayContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.gatewayTimeout)
}

// isGatewayTimeout reports whether a gateway error was caused by the call
// deadline rather than the upstream API.
func isGatewayTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
