package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Iron-Ham/planningpoker/internal/logging"
	"github.com/Iron-Ham/planningpoker/internal/registry"
)

// MaxNameLength bounds team and participant names.
const MaxNameLength = 50

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger for access logs and failures.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithWaitTimeout overrides how long a message poll waits. The registry
// default applies otherwise.
func WithWaitTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.waitTimeout = d
	}
}

// WithOriginPatterns sets the origins allowed to open a message stream.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) {
		s.originPatterns = patterns
	}
}

// Server serves the HTTP API of one registry.
type Server struct {
	registry       *registry.Registry
	logger         *logging.Logger
	waitTimeout    time.Duration
	originPatterns []string
}

// NewServer creates a Server for reg.
func NewServer(reg *registry.Registry, opts ...Option) *Server {
	s := &Server{
		registry:    reg,
		logger:      logging.NopLogger(),
		waitTimeout: reg.WaitTimeout(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("api")
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)

	r.Route("/api/teams", func(r chi.Router) {
		r.Get("/", s.listTeams)
		r.Post("/", s.createTeam)

		r.Route("/{team}", func(r chi.Router) {
			r.Get("/", s.getTeam)
			r.Post("/members", s.joinTeam)

			r.Route("/members/{member}", func(r chi.Router) {
				r.Delete("/", s.disconnect)
				r.Post("/reconnect", s.reconnect)
				r.Post("/estimate/start", s.startEstimate)
				r.Post("/estimate/cancel", s.cancelEstimate)
				r.Put("/estimate", s.submitEstimate)
				r.Get("/messages", s.messages)
				r.Get("/stream", s.stream)
			})
		})
	})
	return r
}

// accessLog logs one line per request through the server logger.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
