// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package api serves a read-only HTTP view of the running firewall: health,
// Prometheus metrics, NAT and ACL tables, and a live event stream.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/tsdasari9/firewall/internal/clock"
	"github.com/tsdasari9/firewall/internal/engine"
	"github.com/tsdasari9/firewall/internal/errors"
	"github.com/tsdasari9/firewall/internal/logging"
	"github.com/tsdasari9/firewall/internal/metrics"
)

// ServerConfig holds HTTP server timeouts and limits.
type ServerConfig struct {
	ReadHeaderTimeout time.Duration // Slowloris prevention
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	ShutdownTimeout   time.Duration
}

// DefaultServerConfig returns conservative server defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
		ShutdownTimeout:   5 * time.Second,
	}
}

// StatsFunc returns the dispatch loop's counters for /api/status.
type StatsFunc func() any

// ServerOptions holds dependencies for the API server.
type ServerOptions struct {
	Policies *engine.Policies
	Registry *metrics.Registry
	// Optional.
	Collector *metrics.Collector
	Hub       *Hub
	Stats     StatsFunc
	Logger    *logging.Logger
	Config    *ServerConfig
}

// Server handles API requests.
type Server struct {
	policies   *engine.Policies
	registry   *metrics.Registry
	collector  *metrics.Collector
	hub        *Hub
	stats      StatsFunc
	logger     *logging.Logger
	cfg        *ServerConfig
	instanceID string
	startTime  time.Time
	router     *mux.Router
}

// NewServer creates a new API server with the provided options.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Policies == nil || opts.Policies.NAT == nil || opts.Policies.ACL == nil {
		return nil, errors.New(errors.KindValidation, "api server needs NAT and ACL policies")
	}
	if opts.Registry == nil {
		return nil, errors.New(errors.KindValidation, "api server needs a metrics registry")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.WithComponent("api")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = DefaultServerConfig()
	}

	s := &Server{
		policies:   opts.Policies,
		registry:   opts.Registry,
		collector:  opts.Collector,
		hub:        opts.Hub,
		stats:      opts.Stats,
		logger:     logger,
		cfg:        cfg,
		instanceID: uuid.New().String(),
		startTime:  clock.Now(),
	}
	s.initRoutes()
	return s, nil
}

func (s *Server) initRoutes() {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.registry.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/nat", s.handleNAT).Methods(http.MethodGet)
	api.HandleFunc("/nat/{address}/{port:[0-9]+}", s.handleNATLookup).Methods(http.MethodGet)
	api.HandleFunc("/acl", s.handleACL).Methods(http.MethodGet)
	if s.hub != nil {
		api.Handle("/events", s.hub).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondWithError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	s.router = r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) InstanceID() string {
	return s.instanceID
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, errors.KindUnavailable, "listen on %s", addr)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		MaxHeaderBytes:    s.cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server listening", "addr", ln.Addr().String(), "instance", s.instanceID)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, errors.KindUnavailable, "api server")
	case <-ctx.Done():
	}

	if s.hub != nil {
		s.hub.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, errors.KindInternal, "api server shutdown")
	}
	s.logger.Info("API server stopped")
	return nil
}
