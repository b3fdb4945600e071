// Package watcher resolves one pending operation from a stream of
// subscription events once a terminal status is observed.
package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/papercomputeco/substream/pkg/logger"
	"github.com/papercomputeco/substream/pkg/metrics"
	"github.com/papercomputeco/substream/pkg/subscription"
)

// Stream is the event sequence a Watcher consumes. *subscription.Source
// satisfies it.
type Stream interface {
	Next() (subscription.Event, error)
	Close() error
}

// State is the lifecycle state of a Watcher.
type State int32

const (
	StateWaiting State = iota
	StateWatching
	StateResolved
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateWatching:
		return "watching"
	case StateResolved:
		return "resolved"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config selects where the status lives in each event and which values end
// the watch.
type Config struct {
	// StatusPath is the object path of the status discriminator within the
	// event data, e.g. ["submitAndAwaitStatus", "type"].
	StatusPath []string

	// ReasonPath is the object path of the failure reason.
	ReasonPath []string

	// SuccessKind and FailureKind are the terminal status values. Every
	// other value is intermediate.
	SuccessKind string
	FailureKind string

	// DefaultReason is reported when a failure carries no reason.
	DefaultReason string

	// OnStatus, when set, is called with each intermediate status as it
	// arrives, on the goroutine running Watch.
	OnStatus func(kind string)

	Logger  *slog.Logger
	Metrics *metrics.Collector
}

// Outcome is a successful resolution.
type Outcome struct {
	// Kind is the terminal status value.
	Kind string `json:"kind"`

	// Payload is the data of the terminal event.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Observed lists the intermediate statuses seen before resolution, in
	// stream order.
	Observed []string `json:"observed,omitempty"`

	// Elapsed is the time from the start of Watch to resolution.
	Elapsed time.Duration `json:"elapsed"`
}

// Watcher drives a Stream until it resolves. A Watcher resolves exactly
// once; it cannot be reused.
type Watcher struct {
	cfg    Config
	state  atomic.Int32
	logger *slog.Logger
}

// New creates a Watcher in StateWaiting.
func New(cfg Config) *Watcher {
	return &Watcher{
		cfg:    cfg,
		logger: logger.OrNop(cfg.Logger),
	}
}

// State reports the current lifecycle state.
func (w *Watcher) State() State {
	return State(w.state.Load())
}

// Watch pulls events from stream until a terminal status arrives.
//
// A success status yields an Outcome. A failure status yields a
// *FailureError. Intermediate statuses are recorded and skipped. A stream
// that ends first yields ErrStreamEnded, and stream errors are returned
// wrapped. When ctx is done the stream is closed and ctx.Err() is returned.
// The stream is always closed before Watch returns.
func (w *Watcher) Watch(ctx context.Context, stream Stream) (*Outcome, error) {
	if !w.state.CompareAndSwap(int32(StateWaiting), int32(StateWatching)) {
		return nil, ErrAlreadyWatched
	}

	start := time.Now()
	defer func() {
		if err := stream.Close(); err != nil {
			w.logger.Debug("closing stream", "error", err)
		}
	}()
	stop := context.AfterFunc(ctx, func() {
		_ = stream.Close()
	})
	defer stop()

	var observed []string
	for {
		if err := ctx.Err(); err != nil {
			return nil, w.fail(err)
		}

		ev, err := stream.Next()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, w.fail(ctxErr)
			}
			if errors.Is(err, io.EOF) {
				return nil, w.fail(ErrStreamEnded)
			}
			return nil, w.fail(fmt.Errorf("watching status: %w", err))
		}

		kind, ok := lookupString(ev.Data, w.cfg.StatusPath)
		if !ok {
			w.logger.Debug("event without status", "data", string(ev.Data))
			continue
		}

		switch kind {
		case w.cfg.SuccessKind:
			w.state.Store(int32(StateResolved))
			w.cfg.Metrics.ObserveOutcome(metrics.ResultSuccess)
			outcome := &Outcome{
				Kind:     kind,
				Payload:  ev.Data,
				Observed: observed,
				Elapsed:  time.Since(start),
			}
			w.logger.Debug("status resolved", "kind", kind, "elapsed", outcome.Elapsed)
			return outcome, nil

		case w.cfg.FailureKind:
			reason, ok := lookupString(ev.Data, w.cfg.ReasonPath)
			if !ok || reason == "" {
				reason = w.cfg.DefaultReason
			}
			w.state.Store(int32(StateFailed))
			w.cfg.Metrics.ObserveOutcome(metrics.ResultFailure)
			w.logger.Debug("status failed", "kind", kind, "reason", reason)
			return nil, &FailureError{Kind: kind, Reason: reason, Payload: ev.Data}

		default:
			w.logger.Debug("status observed", "kind", kind)
			observed = append(observed, kind)
			if w.cfg.OnStatus != nil {
				w.cfg.OnStatus(kind)
			}
		}
	}
}

func (w *Watcher) fail(err error) error {
	w.state.Store(int32(StateFailed))
	w.cfg.Metrics.ObserveOutcome(metrics.ResultError)
	w.logger.Debug("watch ended without resolution", "error", err)
	return err
}

// lookupString walks path through nested JSON objects and returns the string
// found at its end.
func lookupString(data json.RawMessage, path []string) (string, bool) {
	if len(path) == 0 || len(data) == 0 {
		return "", false
	}

	current := data
	for _, key := range path {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(current, &fields); err != nil {
			return "", false
		}
		next, ok := fields[key]
		if !ok {
			return "", false
		}
		current = next
	}

	var value string
	if err := json.Unmarshal(current, &value); err != nil {
		return "", false
	}
	return value, true
}
