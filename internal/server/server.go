// Package server exposes flipbook sessions over HTTP.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog/log"

	"github.com/local/flipbook/internal/access"
	"github.com/local/flipbook/internal/flipbook"
	"github.com/local/flipbook/internal/intake"
	"github.com/local/flipbook/internal/metrics"
	"github.com/local/flipbook/internal/statuscheck"
)

// Dependencies are the services the handlers call.
type Dependencies struct {
	Books   *flipbook.Registry
	Intake  *intake.Intake
	Auth    access.Authorizer
	Checker *statuscheck.Checker
}

// Options tunes the HTTP layer.
type Options struct {
	// RateLimit is the number of /flipbooks requests allowed per client IP
	// in RateWindow; zero disables limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Server routes requests to the flipbook registry.
type Server struct {
	router  chi.Router
	books   *flipbook.Registry
	intake  *intake.Intake
	auth    access.Authorizer
	checker *statuscheck.Checker
	opts    Options
}

// New builds the router.
func New(deps Dependencies, opts Options) *Server {
	if opts.RateWindow <= 0 {
		opts.RateWindow = time.Minute
	}
	s := &Server{
		router:  chi.NewRouter(),
		books:   deps.Books,
		intake:  deps.Intake,
		auth:    deps.Auth,
		checker: deps.Checker,
		opts:    opts,
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/flipbooks", func(r chi.Router) {
		if s.opts.RateLimit > 0 {
			r.Use(httprate.LimitByIP(s.opts.RateLimit, s.opts.RateWindow))
		}
		r.Use(s.requireGrant)

		r.Post("/", s.handleCreate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleView)
			r.Delete("/", s.handleDelete)
			r.Post("/document", s.handleDocument)
			r.Get("/pages", s.handlePages)
			r.Get("/pages/{index}", s.handlePage)
			r.Post("/next", s.handleNext)
			r.Post("/prev", s.handlePrev)
			r.Post("/sync", s.handleSync)
			r.Put("/appearance", s.handleAppearance)
			r.Put("/logo", s.handleSetLogo)
			r.Get("/logo", s.handleGetLogo)
			r.Delete("/logo", s.handleClearLogo)
		})
	})
}

// requireGrant resolves the caller's grant and stores it on the request
// context. Denied requests stop here.
func (s *Server) requireGrant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		grant := s.auth.Authorize(r)
		if !grant.Allowed() {
			writeError(w, r, access.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(access.WithGrant(r.Context(), grant)))
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		ev := log.Debug()
		if ww.Status() >= http.StatusInternalServerError {
			ev = log.Warn()
		}
		ev.Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
