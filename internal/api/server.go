// Package api exposes the coaching service over a JSON HTTP API. Routing
// uses net/http method patterns; cross-cutting concerns (panic recovery,
// request IDs, logging, CORS, per-IP rate limiting) are a middleware stack
// assembled in NewServer.
package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nutribot/nutribot/internal/chat"
	"github.com/nutribot/nutribot/internal/memory"
	"github.com/nutribot/nutribot/internal/storage"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger      *slog.Logger
	Chat        *chat.Service  // Required
	Store       *storage.Store // Required
	Memory      *memory.Store  // Required
	DB          *sql.DB        // Optional: nil disables DB ping in /ready
	UploadDir   string         // Required: meal photo storage directory
	MaxUploadMB int            // Upload size cap (0 = default 10)
	CORSOrigins []string       // Allowed origins for CORS
	TrustProxy  bool           // Trust X-Real-IP/X-Forwarded-For headers
	RateBurst   int            // Rate limiter burst size per IP (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Chat == nil {
		return nil, errors.New("chat service is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("storage store is required")
	}
	if cfg.Memory == nil {
		return nil, errors.New("memory store is required")
	}
	if cfg.UploadDir == "" {
		return nil, errors.New("upload directory is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxUploadMB := cfg.MaxUploadMB
	if maxUploadMB <= 0 {
		maxUploadMB = 10
	}

	ch := &chatHandler{service: cfg.Chat, logger: logger}
	uh := &uploadHandler{dir: cfg.UploadDir, maxBytes: int64(maxUploadMB) << 20, logger: logger}
	ph := &profileHandler{store: cfg.Store, logger: logger}
	cvh := &conversationHandler{store: cfg.Store, logger: logger}
	mh := &memoryHandler{store: cfg.Memory, logger: logger}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/chat", ch.send)
	mux.HandleFunc("POST /api/v1/upload-image", uh.upload)

	mux.HandleFunc("GET /api/v1/users/{user_id}/profile", ph.get)
	mux.HandleFunc("PUT /api/v1/users/{user_id}/profile", ph.put)

	mux.HandleFunc("GET /api/v1/conversations/{user_id}", cvh.list)
	mux.HandleFunc("GET /api/v1/conversations/{user_id}/{conversation_id}/messages", cvh.messages)

	mux.HandleFunc("GET /api/v1/memory/{user_id}", mh.get)

	// Uploaded meal photos are served back for clients and for the vision
	// model's local reads.
	mux.Handle("GET /uploads/", http.StripPrefix("/uploads/",
		http.FileServer(http.Dir(cfg.UploadDir))))

	// Rate limiter: per-IP token bucket (1 token/sec refill)
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Routes
	// RequestID must be before Logging so request_id is available in log
	// attributes. CORS must be before RateLimit so preflight OPTIONS gets
	// proper CORS headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w)
		handler.ServeHTTP(w, r)
	})

	// Top-level mux keeps health probes outside the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.DB))
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
