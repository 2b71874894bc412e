package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sentinel-privacy/sentinel/internal/anonymizer"
	"github.com/sentinel-privacy/sentinel/internal/config"
	"github.com/sentinel-privacy/sentinel/internal/evidence"
	"github.com/sentinel-privacy/sentinel/internal/otel"
	"github.com/sentinel-privacy/sentinel/internal/ratelimit"
)

const defaultTimeout = 30 * time.Second

// Server holds all dependencies for the HTTP API.
type Server struct {
	router       *chi.Mux
	anonymizer   *anonymizer.Anonymizer
	auditStore   *evidence.Store
	auditGen     *evidence.Generator
	limiter      ratelimit.Limiter
	apiKeys      map[string]string
	entities     []string
	corsOrigins  []string
	maxBodyBytes int64
	version      string
	startTime    time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithAuditStore enables the audit trail and the /v1/audit endpoints.
func WithAuditStore(store *evidence.Store) Option {
	return func(s *Server) {
		s.auditStore = store
		if store != nil {
			s.auditGen = evidence.NewGenerator(store)
		}
	}
}

// WithRateLimiter sets the per-caller rate limiter (optional).
func WithRateLimiter(l ratelimit.Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

// WithCORSOrigins sets allowed CORS origins (e.g. ["*"]).
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithMaxBodyBytes caps request bodies on the anonymize/deanonymize routes.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) { s.maxBodyBytes = n }
}

// WithEntities reports the active entity types on /health?detail=true.
func WithEntities(entities []string) Option {
	return func(s *Server) { s.entities = entities }
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer builds a Server with the required dependencies and optional Option(s).
func NewServer(anon *anonymizer.Anonymizer, apiKeys map[string]string, opts ...Option) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		anonymizer:   anon,
		apiKeys:      apiKeys,
		maxBodyBytes: config.DefaultMaxBodyBytes,
		startTime:    time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.apiKeys == nil {
		s.apiKeys = make(map[string]string)
	}
	return s
}

// Routes returns the configured http.Handler (chi router with all middleware and routes).
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(otel.MiddlewareWithStatus())
	if len(s.corsOrigins) > 0 {
		r.Use(CORSMiddleware(s.corsOrigins))
	}

	// Unauthenticated
	r.Get("/health", s.handleHealth)
	r.Get("/v1/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.apiKeys))
		r.Use(RateLimitMiddleware(s.limiter))
		r.Use(middleware.Timeout(defaultTimeout))

		r.Post("/anonymize", s.handleAnonymize)
		r.Post("/deanonymize", s.handleDeanonymize)
		r.Post("/v1/anonymize", s.handleAnonymize)
		r.Post("/v1/deanonymize", s.handleDeanonymize)

		if s.auditStore != nil {
			r.Get("/v1/audit", s.handleAuditList)
			r.Get("/v1/audit/{id}", s.handleAuditGet)
			r.Get("/v1/audit/{id}/verify", s.handleAuditVerify)
		}
	})

	return r
}
