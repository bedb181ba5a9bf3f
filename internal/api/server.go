// Package api exposes the tool orchestration engine over HTTP: the tool-call
// endpoint, the tool catalogue, export downloads, and health probes.
package api

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cityair/conductor/internal/export"
	"github.com/cityair/conductor/internal/log"
	"github.com/cityair/conductor/internal/schema"
)

// ServerConfig contains everything the API server routes to.
type ServerConfig struct {
	Logger     log.Logger
	Dispatcher ToolCaller          // Required
	Catalog    []schema.ToolSchema // Serialized tool catalogue
	Exports    *export.Spool       // Required
	Pool       *pgxpool.Pool       // Optional: nil degrades /ready to liveness
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates an API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if cfg.Exports == nil {
		return nil, errors.New("export spool is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	th := &toolsHandler{dispatcher: cfg.Dispatcher, catalog: cfg.Catalog, logger: logger}
	eh := &exportsHandler{spool: cfg.Exports, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/tools/call", th.callTool)
	mux.HandleFunc("GET /api/v1/tools", th.listTools)
	mux.HandleFunc("GET /api/v1/exports/{id}", eh.download)

	// Middleware stack, outermost first: Recovery → Logging → Routes.
	var handler http.Handler = mux
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.Handle("GET /ready", readiness(cfg.Pool, logger))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
