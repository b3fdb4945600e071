package worker

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/substream/pkg/eventstream"
	"github.com/papercomputeco/substream/pkg/storage"
	"github.com/papercomputeco/substream/pkg/watcher"
)

// Result is the raw result of one AwaitTransactionStatus call.
type Result struct {
	URL         string
	Transaction string
	StartedAt   time.Time
	CompletedAt time.Time

	// Outcome is set on success.
	Outcome *watcher.Outcome

	// Err is set when the watch did not succeed. A *watcher.FailureError
	// is recorded as a failure, anything else as an error.
	Err error
}

// NewRecord builds the storage record for r with a fresh ID.
func NewRecord(r Result) *storage.Record {
	rec := &storage.Record{
		ID:          uuid.New(),
		URL:         r.URL,
		Transaction: r.Transaction,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}

	var failure *watcher.FailureError
	switch {
	case r.Err == nil && r.Outcome != nil:
		rec.Result = storage.ResultSuccess
		rec.Status = r.Outcome.Kind
		rec.Observed = r.Outcome.Observed
		rec.Payload = r.Outcome.Payload
	case errors.As(r.Err, &failure):
		rec.Result = storage.ResultFailure
		rec.Status = failure.Kind
		rec.Reason = failure.Reason
		rec.Payload = failure.Payload
	case r.Err != nil:
		rec.Result = storage.ResultError
		rec.Reason = r.Err.Error()
	default:
		rec.Result = storage.ResultError
		rec.Reason = "watch finished without an outcome"
	}

	return rec
}

// NewStatusEvent builds the event announcing rec.
func NewStatusEvent(rec *storage.Record) *eventstream.StatusResolvedEvent {
	return &eventstream.StatusResolvedEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeStatusResolved,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source: eventstream.EventSource{
			URL: rec.URL,
		},
		Watch: eventstream.WatchMeta{
			RecordID:    rec.ID.String(),
			Transaction: rec.Transaction,
			StartedAt:   rec.StartedAt,
			CompletedAt: rec.CompletedAt,
			DurationMs:  rec.Duration().Milliseconds(),
		},
		Status: eventstream.StatusPayload{
			Result:   rec.Result,
			Kind:     rec.Status,
			Reason:   rec.Reason,
			Observed: rec.Observed,
			Data:     rec.Payload,
		},
	}
}
