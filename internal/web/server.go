package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/justestif/go-mixpoint/internal/deck"
	"github.com/justestif/go-mixpoint/internal/library"
	"github.com/justestif/go-mixpoint/internal/notify"
	"github.com/justestif/go-mixpoint/internal/session"
)

// DefaultAddr is the default server address.
const DefaultAddr = "127.0.0.1:8080"

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr          string
	Session       *session.Store
	Deck          *deck.Deck
	Tracks        *library.Tracks
	Mixes         *library.Mixes
	Sets          *library.Sets
	Notifications *notify.Buffer
	Logger        *zap.Logger
}

// Server is the HTTP server for the session API.
type Server struct {
	router   chi.Router
	server   *http.Server
	handlers *Handlers
	logger   *zap.Logger
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Session == nil || cfg.Deck == nil || cfg.Tracks == nil || cfg.Mixes == nil || cfg.Sets == nil {
		return nil, errors.New("session, deck, tracks, mixes and sets are required")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Notifications == nil {
		cfg.Notifications = notify.NewBuffer(1)
	}

	router := chi.NewRouter()
	s := &Server{
		router:   router,
		handlers: NewHandlers(cfg),
		logger:   cfg.Logger,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	h := s.handlers

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/state/{key}", h.GetState)
		r.Put("/state/{key}", h.PutState)
		r.Patch("/state/mixState", h.PatchMixState)
		r.Patch("/state/setState", h.PatchSetState)
		r.Post("/state/mixState/tracks", h.PutTrackState)
		r.Get("/events", h.Events)

		r.Route("/slots/{slot}", func(r chi.Router) {
			r.Post("/load", h.LoadTrack)
			r.Post("/bpm", h.AdjustBPM)
			r.Post("/bpm/reset", h.ResetBPM)
			r.Get("/rate", h.PlaybackRate)
			r.Delete("/", h.EjectTrack)
		})
		r.Put("/sync", h.SetBPMSync)

		r.Get("/tracks", h.ListTracks)
		r.Get("/tracks/groups", h.TempoGroups)
		r.Get("/tracks/{id}", h.GetTrack)
		r.Delete("/tracks/{id}", h.RemoveTrack)

		r.Post("/mixes", h.AddMix)
		r.Post("/mixes/current", h.SaveMix)
		r.Get("/mixes/{id}", h.GetMix)
		r.Put("/mixes/{id}", h.ReplaceMix)
		r.Delete("/mixes/{id}", h.RemoveMix)

		r.Post("/sets", h.AddSet)
		r.Get("/sets/{id}", h.GetSet)
		r.Delete("/sets/{id}", h.RemoveSet)

		r.Get("/notifications", h.Notifications)
	})
}

// requestLogger logs one line per request.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("requestId", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting server", zap.String("addr", "http://"+s.server.Addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Run starts the server and handles graceful shutdown on interrupt signals
// or when ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}
