// Package server exposes the admin HTTP API: tracker CRUD, poll history,
// the event log and title search. All /api routes require a bearer token;
// /healthz is open for probes.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	logx "viewtrack/pkg/logx"

	"viewtrack/internal/tracker"
)

// Config is the HTTP listener setup. An empty Token disables the API
// routes entirely rather than serving them unauthenticated.
type Config struct {
	Addr         string
	Token        string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	return c
}

type Server struct {
	httpServer *http.Server
	log        logx.Logger
}

func New(cfg Config, svc *tracker.Service, log logx.Logger) *Server {
	cfg = cfg.withDefaults()
	h := &handlers{svc: svc, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.health)

	if cfg.Token != "" {
		auth := bearerAuth(cfg.Token)
		api := http.NewServeMux()
		api.HandleFunc("POST /api/trackers", h.createTracker)
		api.HandleFunc("GET /api/trackers", h.listTrackers)
		api.HandleFunc("GET /api/trackers/{id}", h.getTracker)
		api.HandleFunc("POST /api/trackers/{id}/stop", h.stopTracker)
		api.HandleFunc("DELETE /api/trackers/{id}", h.deleteTracker)
		api.HandleFunc("GET /api/trackers/{id}/records", h.listRecords)
		api.HandleFunc("GET /api/events", h.listEvents)
		api.HandleFunc("GET /api/search", h.search)
		mux.Handle("/api/", auth(api))
	} else {
		log.Warn("api token not set, admin api disabled")
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      requestLog(log)(mux),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		log: log,
	}
}

// Run blocks until the context is cancelled or the listener fails, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", logx.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutCtx)
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
