package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/papercomputeco/substream/pkg/logger"
	"github.com/papercomputeco/substream/pkg/metrics"
	"github.com/papercomputeco/substream/pkg/sse"
)

// DefaultReadBufferSize is the size of a single transport read.
const DefaultReadBufferSize = 32 * 1024

// maxEmptyReads is how many consecutive reads may return no bytes and no
// error before the stream is treated as stuck.
const maxEmptyReads = 100

// Config describes one subscription.
type Config struct {
	// URL is the GraphQL endpoint.
	URL string

	// Query is the subscription document.
	Query string

	// Variables are the operation variables, sent as-is.
	Variables map[string]any

	// Header holds extra request headers. Content-Type and Accept are
	// always overridden.
	Header http.Header

	// Transport opens the stream. Defaults to an HTTPTransport over
	// http.DefaultClient.
	Transport Transport

	// Logger defaults to a no-op logger.
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *metrics.Collector

	// RawWriter, when set, receives every raw chunk verbatim before it is
	// parsed. Write errors are logged and otherwise ignored.
	RawWriter io.Writer

	// ReadBufferSize defaults to DefaultReadBufferSize.
	ReadBufferSize int
}

type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// Source is an open subscription stream. Next must be called from a single
// goroutine; Close may be called from any goroutine at any time.
type Source struct {
	url  string
	body io.ReadCloser

	parser *sse.FrameParser
	buf    []byte
	queue  []Event

	// pending is a terminal error found while decoding a read. It is
	// returned once the events decoded before it have been delivered.
	pending error
	eof     bool
	empty   int

	state     atomic.Int32
	closeOnce sync.Once

	logger  *slog.Logger
	metrics *metrics.Collector
	raw     io.Writer
}

// New issues the subscription request and returns an open Source. It fails
// with a *ConnectionError when the transport fails or yields no body. The
// request is made exactly once; New never reconnects.
func New(ctx context.Context, cfg *Config) (*Source, error) {
	if cfg.URL == "" {
		return nil, ErrMissingURL
	}
	if cfg.Query == "" {
		return nil, ErrMissingQuery
	}

	variables := cfg.Variables
	if variables == nil {
		variables = map[string]any{}
	}
	body, err := json.Marshal(request{Query: cfg.Query, Variables: variables})
	if err != nil {
		return nil, err
	}

	header := cfg.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set("Content-Type", "application/json")
	header.Set("Accept", "text/event-stream")

	transport := cfg.Transport
	if transport == nil {
		transport = &HTTPTransport{}
	}

	log := logger.OrNop(cfg.Logger).With("url", cfg.URL)

	rc, err := transport.Open(ctx, &Request{
		URL:    cfg.URL,
		Method: http.MethodPost,
		Body:   body,
		Header: header,
	})
	if err != nil {
		var connErr *ConnectionError
		if errors.As(err, &connErr) {
			return nil, err
		}
		return nil, &ConnectionError{URL: cfg.URL, Err: err}
	}
	if rc == nil {
		return nil, &ConnectionError{URL: cfg.URL, Err: ErrNoBody}
	}

	size := cfg.ReadBufferSize
	if size <= 0 {
		size = DefaultReadBufferSize
	}

	log.Debug("subscription opened")

	return &Source{
		url:     cfg.URL,
		body:    rc,
		parser:  sse.NewFrameParser(),
		buf:     make([]byte, size),
		logger:  log,
		metrics: cfg.Metrics,
		raw:     cfg.RawWriter,
	}, nil
}

// Next returns the next event in stream order.
//
// Queued events are returned without I/O. Otherwise Next performs one
// transport read at a time until at least one event is available. It
// returns io.EOF once the stream has ended or the Source was closed, a
// *SubscriptionError for an event carrying GraphQL errors, a *ParseError
// for an undecodable frame and a *ConnectionError for a failed read. After
// any of these errors the Source is no longer open and events still queued
// are discarded. A body that keeps returning no bytes and no error fails
// with a *ConnectionError wrapping io.ErrNoProgress.
func (s *Source) Next() (Event, error) {
	for {
		if s.State() != StateOpen {
			return Event{}, io.EOF
		}

		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue[0] = Event{}
			s.queue = s.queue[1:]

			if len(ev.Errors) > 0 {
				s.metrics.IncSubscriptionErrors()
				return Event{}, s.fail(&SubscriptionError{Errors: ev.Errors})
			}

			s.metrics.IncEvents()
			return ev, nil
		}

		if s.pending != nil {
			return Event{}, s.fail(s.pending)
		}

		if s.eof {
			s.finish()
			return Event{}, io.EOF
		}

		s.read()
	}
}

// read performs exactly one transport read and queues what it decodes.
func (s *Source) read() {
	n, err := s.body.Read(s.buf)
	if n > 0 {
		chunk := s.buf[:n]
		if s.raw != nil {
			if _, werr := s.raw.Write(chunk); werr != nil {
				s.logger.Warn("raw stream tee failed", "error", werr)
			}
		}
		s.ingest(chunk)
		s.empty = 0
	}

	switch {
	case err == nil && n == 0:
		s.empty++
		if s.empty >= maxEmptyReads && s.pending == nil {
			s.pending = &ConnectionError{URL: s.url, Err: io.ErrNoProgress}
		}
	case err == nil:
	case errors.Is(err, io.EOF):
		s.eof = true
	case s.State() != StateOpen:
		// Close raced with the read; Next reports io.EOF.
	case s.pending == nil:
		s.pending = &ConnectionError{URL: s.url, Err: err}
	}
}

// ingest feeds chunk to the parser and queues the decoded events. The first
// undecodable frame becomes the pending error and every frame after it is
// dropped.
func (s *Source) ingest(chunk []byte) {
	if s.pending != nil {
		return
	}

	keepAlives := s.parser.KeepAlives()
	frames := s.parser.Feed(chunk)
	s.metrics.AddKeepAlives(s.parser.KeepAlives() - keepAlives)
	s.metrics.AddFrames(len(frames))

	for i, frame := range frames {
		ev, err := decodeEvent(frame.Data)
		if err != nil {
			s.metrics.IncParseErrors()
			s.pending = &ParseError{Frame: frame.Data, Err: err}
			if dropped := len(frames) - i - 1; dropped > 0 {
				s.logger.Debug("discarding frames after malformed frame", "count", dropped)
			}
			return
		}
		s.queue = append(s.queue, ev)
	}
}

// fail moves an open Source to StateErrored, drops what is queued and
// releases the body. If Close won the race, io.EOF is returned instead.
func (s *Source) fail(err error) error {
	s.queue = nil
	s.pending = nil
	if !s.state.CompareAndSwap(int32(StateOpen), int32(StateErrored)) {
		s.release()
		return io.EOF
	}

	s.logger.Debug("subscription failed", "error", err)
	s.release()
	return err
}

// finish closes a Source whose stream ended normally.
func (s *Source) finish() {
	if n := s.parser.Buffered(); n > 0 {
		s.logger.Debug("discarding incomplete trailing frame", "bytes", n)
	}
	if s.state.CompareAndSwap(int32(StateOpen), int32(StateClosed)) {
		s.logger.Debug("subscription ended")
	}
	s.release()
}

// Close ends the subscription. It is idempotent, always returns nil and may
// be called concurrently with Next: an in-flight read is unblocked by closing
// the body and every later Next returns io.EOF. On an errored Source it only
// releases the body.
func (s *Source) Close() error {
	if s.state.CompareAndSwap(int32(StateOpen), int32(StateClosed)) {
		s.logger.Debug("subscription closed")
	}
	s.release()
	return nil
}

// State reports the current lifecycle state.
func (s *Source) State() State {
	return State(s.state.Load())
}

func (s *Source) release() {
	s.closeOnce.Do(func() {
		if err := s.body.Close(); err != nil {
			s.logger.Debug("closing subscription body", "error", err)
		}
	})
}
