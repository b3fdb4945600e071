// Package metrics exposes Prometheus counters for subscription streams and
// the watches resolved from them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "substream"

// Outcome labels for ObserveOutcome.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultError   = "error"
)

// Collector groups the substream counters. A nil *Collector is valid and
// records nothing, so components can take one as an optional dependency.
type Collector struct {
	frames             prometheus.Counter
	keepAlives         prometheus.Counter
	events             prometheus.Counter
	parseErrors        prometheus.Counter
	subscriptionErrors prometheus.Counter
	outcomes           *prometheus.CounterVec
}

// New creates a Collector and registers its counters with reg. When reg is
// nil the counters are created but not registered.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sse",
			Name:      "frames_total",
			Help:      "Complete SSE frames reassembled from subscription streams.",
		}),
		keepAlives: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sse",
			Name:      "keepalives_total",
			Help:      "Keep-alive sentinels stripped from subscription streams.",
		}),
		events: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "events_total",
			Help:      "Decoded subscription events delivered to consumers.",
		}),
		parseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "parse_errors_total",
			Help:      "Frames whose payload was not valid JSON.",
		}),
		subscriptionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "errors_total",
			Help:      "Events carrying GraphQL errors.",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "outcomes_total",
			Help:      "Resolved watches by result.",
		}, []string{"result"}),
	}

	if reg == nil {
		return c, nil
	}

	for _, col := range c.collectors() {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.frames,
		c.keepAlives,
		c.events,
		c.parseErrors,
		c.subscriptionErrors,
		c.outcomes,
	}
}

// AddFrames counts n reassembled frames.
func (c *Collector) AddFrames(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.frames.Add(float64(n))
}

// AddKeepAlives counts n stripped keep-alives.
func (c *Collector) AddKeepAlives(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.keepAlives.Add(float64(n))
}

// IncEvents counts one delivered event.
func (c *Collector) IncEvents() {
	if c == nil {
		return
	}
	c.events.Inc()
}

// IncParseErrors counts one undecodable frame.
func (c *Collector) IncParseErrors() {
	if c == nil {
		return
	}
	c.parseErrors.Inc()
}

// IncSubscriptionErrors counts one event carrying GraphQL errors.
func (c *Collector) IncSubscriptionErrors() {
	if c == nil {
		return
	}
	c.subscriptionErrors.Inc()
}

// ObserveOutcome counts one resolved watch under result.
func (c *Collector) ObserveOutcome(result string) {
	if c == nil {
		return
	}
	c.outcomes.WithLabelValues(result).Inc()
}
