// Package server exposes the translation pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/valpere/doktran/internal"
	"github.com/valpere/doktran/internal/auth"
	"github.com/valpere/doktran/internal/blob"
	"github.com/valpere/doktran/internal/config"
	"github.com/valpere/doktran/internal/orchestrator"
	"github.com/valpere/doktran/internal/speech"
	"github.com/valpere/doktran/internal/store"
)

// multipartSlack is allowed on top of the upload limit for form fields and
// multipart framing.
const multipartSlack = 1 << 20

type Server struct {
	cfg   *config.Config
	orch  *orchestrator.Orchestrator
	store *store.Store
	blobs blob.Store
	synth speech.Synthesizer
	auth  *auth.Authenticator
	log   *logrus.Logger
}

// Deps are the components a Server is assembled from. Speech may be nil when
// no synthesizer is configured.
type Deps struct {
	Config       *config.Config
	Orchestrator *orchestrator.Orchestrator
	Store        *store.Store
	Blobs        blob.Store
	Speech       speech.Synthesizer
	Auth         *auth.Authenticator
	Logger       *logrus.Logger
}

func New(d Deps) *Server {
	return &Server{
		cfg:   d.Config,
		orch:  d.Orchestrator,
		store: d.Store,
		blobs: d.Blobs,
		synth: d.Speech,
		auth:  d.Auth,
		log:   d.Logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-ID", "X-Result-URL"},
		AllowCredentials: !containsWildcard(s.cfg.Server.CORSOrigins),
		MaxAge:           300,
	}))
	r.Use(maxBodySize(s.cfg.Server.MaxUploadBytes + multipartSlack))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "Welcome to the doktran translation service (v%s)\n", internal.Version)
	})
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", s.auth.Login)
		r.Get("/callback", s.auth.Callback)
		r.Get("/logout", s.auth.Logout)
		r.Post("/logout", s.auth.Logout)
		r.Get("/me", s.auth.Me)
	})

	if local, ok := s.blobs.(*blob.LocalStore); ok {
		prefix := strings.TrimSuffix(local.BaseURL(), "/")
		r.With(s.auth.Middleware).Handle(prefix+"/*", http.StripPrefix(prefix, local.Handler()))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.auth.Middleware)

		r.Get("/languages", s.handleLanguages)
		r.Post("/translate", s.handleTranslate)
		r.Post("/translate/html", s.handleTranslateHTML)
		r.Post("/translate/excel", s.handleTranslateExcel)
		r.Post("/speech", s.handleSpeech)

		r.Get("/history", s.handleListHistory)
		r.Get("/history/{id}", s.handleGetHistory)
		r.Delete("/history/{id}", s.handleDeleteHistory)

		r.Get("/glossary", s.handleListGlossary)
		r.Post("/glossary", s.handleAddGlossary)
		r.Delete("/glossary/{id}", s.handleDeleteGlossary)
	})

	return r
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", srv.Addr).Info("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.log.Info("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		jsonResponse(w, map[string]string{"status": "unhealthy", "error": err.Error()}, http.StatusServiceUnavailable)
		return
	}
	jsonResponse(w, map[string]string{"status": "healthy"}, http.StatusOK)
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return len(origins) == 0
}
