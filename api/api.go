package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/papercomputeco/substream/pkg/logger"
	"github.com/papercomputeco/substream/pkg/storage"
	"github.com/papercomputeco/substream/pkg/watcher"
	"github.com/papercomputeco/substream/pkg/worker"
)

// Awaiter submits a transaction and waits for its terminal status.
// *fuel.Client satisfies it.
type Awaiter interface {
	AwaitTransactionStatus(ctx context.Context, encodedTx string) (*watcher.Outcome, error)
	URL() string
}

// Recorder takes finished watches off the request path.
// *worker.Pool satisfies it.
type Recorder interface {
	Enqueue(job worker.Job) bool
}

// Option configures optional Server collaborators.
type Option func(*Server)

// WithAwaiter enables POST /v1/watches.
func WithAwaiter(a Awaiter) Option {
	return func(s *Server) {
		s.awaiter = a
	}
}

// WithRecorder records watches asynchronously. Without one, records are
// stored before the response is sent.
func WithRecorder(r Recorder) Option {
	return func(s *Server) {
		s.recorder = r
	}
}

// WithGatherer exposes g on GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithMCP serves h on /mcp.
func WithMCP(h http.Handler) Option {
	return func(s *Server) {
		s.mcp = h
	}
}

// Server is the API server for submitting transactions and querying
// recorded watches.
type Server struct {
	config   Config
	storer   storage.Driver
	awaiter  Awaiter
	recorder Recorder
	gatherer prometheus.Gatherer
	mcp      http.Handler
	logger   *slog.Logger
	app      *fiber.App

	// ctx bounds in-flight watches; Shutdown cancels it.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a new API server.
// The storer is injected to allow sharing with the worker pool that
// records watches.
func NewServer(config Config, storer storage.Driver, log *slog.Logger, opts ...Option) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config: config,
		storer: storer,
		logger: logger.OrNop(log),
		app:    app,
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	app.Get("/ping", s.handlePing)
	app.Get("/v1/watches", s.handleListWatches)
	app.Get("/v1/watches/:id", s.handleGetWatch)
	app.Post("/v1/watches", s.handleCreateWatch)

	if s.gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	if s.mcp != nil {
		app.All("/mcp", adaptor.HTTPHandler(s.mcp))
	}

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown cancels in-flight watches and then gracefully shuts down the API
// server.
func (s *Server) Shutdown() error {
	s.cancel()
	return s.app.Shutdown()
}
