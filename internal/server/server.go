package server

import (
	"log/slog"
	"net/http"

	"github.com/claude/haeingest/internal/ingest/hae"
	"github.com/claude/haeingest/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServiceName is reported by the info endpoint.
const ServiceName = "haeingest"

// Server holds dependencies for HTTP handlers.
type Server struct {
	store        storage.Writer
	hae          *hae.Provider
	log          *slog.Logger
	apiKey       string
	maxBodyBytes int64
	version      string
	router       chi.Router
}

const defaultMaxBodyBytes int64 = 32 << 20

// Options carries the tunables that are not collaborators.
type Options struct {
	APIKey       string
	MaxBodyBytes int64
	Version      string
}

// New creates a new Server with all routes configured.
func New(store storage.Writer, haeProvider *hae.Provider, opts Options, log *slog.Logger) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	s := &Server{
		store:        store,
		hae:          haeProvider,
		log:          log,
		apiKey:       opts.APIKey,
		maxBodyBytes: opts.MaxBodyBytes,
		version:      opts.Version,
		router:       chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestID)
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)

	s.router.Get("/", s.handleInfo)
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/v1/catalog", s.handleCatalog)
	s.router.Handle("/metrics", promhttp.Handler())

	// Ingest endpoints. Health Auto Export lets users pick any URL, so the
	// legacy paths stay routed alongside the versioned one.
	s.router.Group(func(r chi.Router) {
		r.Use(APIKeyAuth(s.apiKey))
		r.Post("/", s.handleIngest)
		r.Post("/api/healthdata", s.handleIngest)
		r.Post("/ingest", s.handleIngest)
		r.Post("/api/v1/ingest", s.handleIngest)
		r.Get("/api/v1/imports", s.handleImports)
	})
}

// SetMCP mounts an MCP transport at /mcp behind the API key.
func (s *Server) SetMCP(h http.Handler) {
	s.router.With(APIKeyAuth(s.apiKey)).Handle("/mcp", h)
}
