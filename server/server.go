// Package server exposes a project's functions over HTTP, or through a
// websocket relay with [Server.Expose].
//
// Every request re-reads the project descriptor and opens the project
// through the executor, so edits to runit.json or to source files take
// effect without a restart. Discovery results are cached per file
// version; the invocation itself always runs fresh.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"

	"github.com/caffeineduck/runit/cache"
	"github.com/caffeineduck/runit/executor"
	"github.com/caffeineduck/runit/project"
	"github.com/caffeineduck/runit/sandbox"
)

// Server serves one project directory.
type Server struct {
	cfg      Config
	registry *executor.Registry
	cache    *cache.Cache
	tools    *executor.Tools
	backend  sandbox.Backend
	log      hclog.Logger
	router   *gin.Engine

	started  time.Time
	base     context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
	inFlight atomic.Int64
	counters counters
}

type counters struct {
	total       atomic.Int64
	succeeded   atomic.Int64
	failed      atomic.Int64
	notFound    atomic.Int64
	unavailable atomic.Int64
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Requests are logged under "http".
func WithLogger(l hclog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithBackend replaces the backend built from Config.
func WithBackend(b sandbox.Backend) Option {
	return func(s *Server) { s.backend = b }
}

// WithCache sets the discovery cache.
func WithCache(c *cache.Cache) Option {
	return func(s *Server) { s.cache = c }
}

// WithTools sets where loader and runner scripts are installed.
func WithTools(t *executor.Tools) Option {
	return func(s *Server) { s.tools = t }
}

// New creates a server for cfg.Dir using the languages in registry.
func New(cfg Config, registry *executor.Registry, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		registry: registry,
		log:      hclog.NewNullLogger(),
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cache == nil {
		s.cache = cache.New(cache.WithTTL(cfg.CacheTTL), cache.WithMaxEntries(cfg.CacheEntries))
	}
	if s.tools == nil {
		s.tools = executor.NewTools(executor.DefaultToolsDir())
	}
	if s.backend == nil {
		backend, err := s.newBackend()
		if err != nil {
			return nil, err
		}
		s.backend = backend
	}

	s.base, s.cancel = context.WithCancel(context.Background())
	s.router = s.routes()
	return s, nil
}

func (s *Server) newBackend() (sandbox.Backend, error) {
	opts := []sandbox.Option{
		sandbox.WithTimeout(s.cfg.Timeout),
		sandbox.WithLogger(s.log.Named("sandbox")),
		sandbox.WithQueueTimeout(s.cfg.QueueTimeout),
	}

	var base sandbox.Backend
	switch s.cfg.Isolation {
	case IsolationContainer:
		image := s.cfg.Image
		if image == "" {
			desc, err := project.Load(s.cfg.Dir)
			if err != nil {
				return nil, fmt.Errorf("container isolation needs an image: %w", err)
			}
			image = desc.ID
		}
		if image == "" {
			return nil, errors.New("container isolation needs an image or a project _id")
		}
		opts = append(opts,
			sandbox.WithDockerBinary(s.cfg.DockerBinary),
			sandbox.WithNetwork(s.cfg.Network),
		)
		for _, dir := range s.cfg.Mounts {
			opts = append(opts, sandbox.WithMount(dir))
		}
		base = sandbox.NewContainer(image, opts...)
	default:
		base = sandbox.NewLocal(opts...)
	}

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = executor.DefaultWorkers()
	}
	return sandbox.NewPool(base, workers, opts...), nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Close cancels every in-flight invocation.
func (s *Server) Close() { s.cancel() }

// Run serves on cfg.Addr until ctx is done or SIGINT/SIGTERM arrives. New
// requests are refused with 503 once shutdown starts; in-flight requests
// get cfg.Grace to finish before their invocations are cancelled. When
// cfg.Expose is set, Run answers calls relayed from that endpoint instead
// of listening.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if s.cfg.Expose != "" {
		return s.Expose(ctx, s.cfg.Expose)
	}

	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener, without signal handling.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.cancel()

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.base },
	}

	if s.cfg.Watch {
		w, err := Watch(s.base, s.cfg.Dir, s.cache, s.log.Named("watch"))
		if err != nil {
			s.log.Warn("file watching disabled", "error", err)
		} else {
			defer w.Close()
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.log.Info("serving project", "addr", ln.Addr().String(), "dir", s.cfg.Dir, "isolation", s.cfg.Isolation)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.stopping.Store(true)
	s.log.Info("shutting down", "grace", s.cfg.Grace, "in_flight", s.inFlight.Load())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("grace period elapsed, cancelling invocations", "error", err)
		s.cancel()
		srv.Close()
	}
	s.log.Info("server stopped")
	return nil
}

// Stopping reports whether shutdown has started.
func (s *Server) Stopping() bool { return s.stopping.Load() }

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(
		gin.CustomRecoveryWithWriter(s.log.StandardWriter(&hclog.StandardLoggerOptions{ForceLevel: hclog.Error}), s.recovered),
		requestID(),
		accessLog(s.log.Named("http")),
	)

	for _, path := range []string{"/health", "/healthz"} {
		r.GET(path, s.health)
	}
	for _, path := range []string{"/ready", "/readyz"} {
		r.GET(path, s.ready)
	}
	r.GET("/metrics", s.metrics)

	r.NoRoute(s.invoke)
	return r
}

func (s *Server) recovered(c *gin.Context, err any) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, failure(fmt.Sprintf("internal error: %v", err)))
}
