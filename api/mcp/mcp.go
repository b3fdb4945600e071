// Package mcp provides an MCP (Model Context Protocol) server over recorded
// transaction watches.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/substream/pkg/logger"
	"github.com/papercomputeco/substream/pkg/storage"
	"github.com/papercomputeco/substream/pkg/utils"
	"github.com/papercomputeco/substream/pkg/watcher"
	"github.com/papercomputeco/substream/pkg/worker"
)

// Awaiter submits a transaction and waits for its terminal status.
type Awaiter interface {
	AwaitTransactionStatus(ctx context.Context, encodedTx string) (*watcher.Outcome, error)
	URL() string
}

// Recorder takes finished watches off the request path.
type Recorder interface {
	Enqueue(job worker.Job) bool
}

type Config struct {
	// Driver serves list_watches and get_watch, and stores awaited watches
	// when no Recorder is set.
	Driver storage.Driver

	// Awaiter enables the await_transaction_status tool.
	Awaiter Awaiter

	// Recorder records awaited watches asynchronously (optional).
	Recorder Recorder

	// WatchTimeout bounds each await_transaction_status call. Zero means
	// no limit beyond the caller's.
	WatchTimeout time.Duration

	Logger *slog.Logger
}

type Server struct {
	config    Config
	logger    *slog.Logger
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the watch tools.
func NewServer(c Config) (*Server, error) {
	if c.Driver == nil {
		return nil, errors.New("storage driver is required")
	}

	s := &Server{
		config: c,
		logger: logger.OrNop(c.Logger),
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "substream",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        listWatchesToolName,
		Description: listWatchesDescription,
	}, s.handleListWatches)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        getWatchToolName,
		Description: getWatchDescription,
	}, s.handleGetWatch)

	if c.Awaiter != nil {
		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        awaitToolName,
			Description: awaitDescription,
		}, s.handleAwait)
	}

	s.mcpServer = mcpServer

	// Stateless: every request is served by the same server.
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// MCPServer returns the underlying server, for connecting other transports.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}
