// Package eventstream defines the events substream emits when a watch
// resolves, and the publishers that deliver them.
package eventstream

import (
	"encoding/json"
	"time"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeStatusResolved is emitted after a watch is resolved and recorded.
	EventTypeStatusResolved = "substream.status.resolved"
)

// StatusResolvedEvent is a transport-neutral event payload for a resolved
// transaction watch.
type StatusResolvedEvent struct {
	SchemaVersion int           `json:"schema_version"`
	EventType     string        `json:"event_type"`
	EventID       string        `json:"event_id"`
	EmittedAt     time.Time     `json:"emitted_at"`
	Source        EventSource   `json:"source"`
	Watch         WatchMeta     `json:"watch"`
	Status        StatusPayload `json:"status"`
}

// EventSource identifies the endpoint the transaction was submitted to.
type EventSource struct {
	URL string `json:"url"`
}

// WatchMeta captures watch lifecycle metadata for the event.
type WatchMeta struct {
	RecordID    string    `json:"record_id"`
	Transaction string    `json:"transaction"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
}

// StatusPayload captures how the watch resolved.
type StatusPayload struct {
	Result   string          `json:"result"`
	Kind     string          `json:"kind,omitempty"`
	Reason   string          `json:"reason,omitempty"`
	Observed []string        `json:"observed,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}
