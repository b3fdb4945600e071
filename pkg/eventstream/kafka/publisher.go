// Package kafka publishes status events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/substream/pkg/eventstream"
	"github.com/papercomputeco/substream/pkg/logger"
)

// ErrNoBrokers is returned by NewPublisher without any broker address.
var ErrNoBrokers = errors.New("kafka publisher requires at least one broker")

// ErrNoTopic is returned by NewPublisher without a topic.
var ErrNoTopic = errors.New("kafka publisher requires a topic")

// Header keys set on every message.
const (
	HeaderEventType     = "event_type"
	HeaderSchemaVersion = "schema_version"
)

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config configures a Publisher.
type Config struct {
	Brokers []string
	Topic   string

	// WriteTimeout bounds a single publish. Defaults to 10s.
	WriteTimeout time.Duration

	Logger *slog.Logger
}

// Publisher writes each event as one JSON message keyed by transaction, so
// every status of a transaction lands on the same partition.
type Publisher struct {
	writer  MessageWriter
	timeout time.Duration
	logger  *slog.Logger
}

// NewPublisher creates a Publisher backed by a kafka-go Writer.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if cfg.Topic == "" {
		return nil, ErrNoTopic
	}

	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		AllowAutoTopicCreation: true,
	}

	return NewPublisherWithWriter(w, cfg), nil
}

// NewPublisherWithWriter creates a Publisher on an existing writer.
func NewPublisherWithWriter(w MessageWriter, cfg Config) *Publisher {
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Publisher{
		writer:  w,
		timeout: timeout,
		logger:  logger.OrNop(cfg.Logger),
	}
}

// PublishStatus encodes event and writes it synchronously.
func (p *Publisher) PublishStatus(ctx context.Context, event *eventstream.StatusResolvedEvent) error {
	if event == nil {
		return eventstream.ErrNilStatusEvent
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding status event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafkago.Message{
		Key:   []byte(event.Watch.Transaction),
		Value: value,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: HeaderEventType, Value: []byte(event.EventType)},
			{Key: HeaderSchemaVersion, Value: fmt.Appendf(nil, "%d", event.SchemaVersion)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing status event %s: %w", event.EventID, err)
	}

	p.logger.Debug("published status event",
		"event_id", event.EventID,
		"transaction", event.Watch.Transaction,
		"result", event.Status.Result,
	)

	return nil
}

// Close flushes pending writes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
