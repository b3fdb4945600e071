// Package fuel submits an encoded Fuel transaction through the
// submitAndAwaitStatus subscription and waits for its terminal status.
package fuel

import (
	"context"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/papercomputeco/substream/pkg/logger"
	"github.com/papercomputeco/substream/pkg/metrics"
	"github.com/papercomputeco/substream/pkg/subscription"
	"github.com/papercomputeco/substream/pkg/watcher"
)

// SubmitAndAwaitStatus is the subscription document that submits a
// transaction and streams its status until it is included or dropped.
//
//go:embed submit_and_await_status.graphql
var SubmitAndAwaitStatus string

// Transaction status kinds reported by submitAndAwaitStatus.
const (
	SubmittedStatus   = "SubmittedStatus"
	SuccessStatus     = "SuccessStatus"
	FailureStatus     = "FailureStatus"
	SqueezedOutStatus = "SqueezedOutStatus"
)

// DefaultFailureReason is reported for a FailureStatus without a reason.
const DefaultFailureReason = "transaction failed"

// ErrInvalidTransaction is returned for an encoded transaction that is not
// non-empty hex.
var ErrInvalidTransaction = errors.New("invalid encoded transaction")

// WatcherConfig is the watcher configuration for submitAndAwaitStatus
// payloads.
func WatcherConfig() watcher.Config {
	return watcher.Config{
		StatusPath:    []string{"submitAndAwaitStatus", "type"},
		ReasonPath:    []string{"submitAndAwaitStatus", "reason"},
		SuccessKind:   SuccessStatus,
		FailureKind:   FailureStatus,
		DefaultReason: DefaultFailureReason,
	}
}

// NormalizeTransaction validates a hex encoded transaction and returns it in
// lower case with a 0x prefix.
func NormalizeTransaction(encoded string) (string, error) {
	trimmed := strings.TrimSpace(encoded)
	digits := strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	if digits == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidTransaction)
	}
	if _, err := hex.DecodeString(digits); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidTransaction, err)
	}
	return "0x" + strings.ToLower(digits), nil
}

// Client awaits transaction statuses against one GraphQL subscription
// endpoint.
type Client struct {
	url       string
	transport subscription.Transport
	header    http.Header
	raw       io.Writer
	logger    *slog.Logger
	metrics   *metrics.Collector
	readSize  int
	onStatus  func(kind string)
}

// Option configures a Client.
type Option func(*Client)

// WithTransport overrides the subscription transport.
func WithTransport(t subscription.Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithHeader adds request headers to every subscription.
func WithHeader(h http.Header) Option {
	return func(c *Client) {
		c.header = h
	}
}

// WithRawWriter tees the raw stream of every subscription to w.
func WithRawWriter(w io.Writer) Option {
	return func(c *Client) {
		c.raw = w
	}
}

// WithReadBufferSize sets the size of each stream read.
func WithReadBufferSize(n int) Option {
	return func(c *Client) {
		c.readSize = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithStatusHook calls fn with each intermediate status of a watch as it
// arrives.
func WithStatusHook(fn func(kind string)) Option {
	return func(c *Client) {
		c.onStatus = fn
	}
}

// NewClient creates a Client for the subscription endpoint at url.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{url: url}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.OrNop(c.logger)
	return c
}

// URL returns the subscription endpoint.
func (c *Client) URL() string {
	return c.url
}

// AwaitTransactionStatus submits encodedTx and blocks until the node reports
// a terminal status for it, the stream fails or ctx is done.
//
// A SuccessStatus returns the Outcome. A FailureStatus returns a
// *watcher.FailureError carrying the node's reason.
func (c *Client) AwaitTransactionStatus(ctx context.Context, encodedTx string) (*watcher.Outcome, error) {
	tx, err := NormalizeTransaction(encodedTx)
	if err != nil {
		return nil, err
	}

	src, err := subscription.New(ctx, &subscription.Config{
		URL:       c.url,
		Query:     SubmitAndAwaitStatus,
		Variables: map[string]any{"encodedTransaction": tx},
		Header:    c.header,
		Transport: c.transport,
		Logger:    c.logger,
		Metrics:   c.metrics,
		RawWriter: c.raw,

		ReadBufferSize: c.readSize,
	})
	if err != nil {
		return nil, fmt.Errorf("submitting transaction: %w", err)
	}

	cfg := WatcherConfig()
	cfg.Logger = c.logger
	cfg.Metrics = c.metrics
	cfg.OnStatus = c.onStatus

	return watcher.New(cfg).Watch(ctx, src)
}
