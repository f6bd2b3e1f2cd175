// Package api exposes the assistant over HTTP as a small JSON API:
// a chat endpoint that runs one conversation turn, read-only views of
// conversation history and the call trace, and a health check.
package api

import (
	"errors"
	"net/http"

	"github.com/evscmms/assistant/internal/calltrace"
	"github.com/evscmms/assistant/internal/conversation"
	"github.com/evscmms/assistant/internal/log"
)

// ServerConfig wires the API server.
type ServerConfig struct {
	Logger     log.Logger
	Runner     TurnRunner          // Required
	Store      *conversation.Store // Required
	Trace      *calltrace.Log      // Required
	TrustProxy bool                // Trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	RateBurst  int                 // Per-IP burst size (0 = default 30)
}

// Server is the JSON API HTTP server.
type Server struct {
	handler http.Handler
}

// NewServer configures all routes and the middleware stack.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Runner == nil {
		return nil, errors.New("turn runner is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("conversation store is required")
	}
	if cfg.Trace == nil {
		return nil, errors.New("call trace is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	ch := &chatHandler{runner: cfg.Runner, logger: logger}
	vh := &conversationHandler{store: cfg.Store, trace: cfg.Trace, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/ai/chat", ch.chat)
	mux.HandleFunc("GET /api/ai/conversations/{id}", vh.get)
	mux.HandleFunc("GET /api/ai/conversations/{id}/trace", vh.getTrace)
	mux.HandleFunc("GET /health", health)

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 30
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack, outermost first:
	//   Recovery → Logging → RateLimit → Routes
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)

	return &Server{handler: handler}, nil
}

// Handler returns the root handler for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.handler
}
