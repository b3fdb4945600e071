// Package storage persists the results of transaction watches.
package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Watch results recorded in Record.Result.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultError   = "error"
)

// Record is one finished transaction watch.
type Record struct {
	ID uuid.UUID `json:"id"`

	// URL is the subscription endpoint the transaction was submitted to.
	URL string `json:"url"`

	// Transaction is the normalised hex encoded transaction.
	Transaction string `json:"transaction"`

	// Result is one of ResultSuccess, ResultFailure or ResultError.
	Result string `json:"result"`

	// Status is the terminal status kind, empty for ResultError.
	Status string `json:"status,omitempty"`

	// Reason is the failure reason or the error message.
	Reason string `json:"reason,omitempty"`

	// Observed lists the intermediate statuses in stream order.
	Observed []string `json:"observed,omitempty"`

	// Payload is the data of the terminal event.
	Payload json.RawMessage `json:"payload,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Duration is the wall time the watch took.
func (r *Record) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// Driver defines the interface for persisting and retrieving watch records.
type Driver interface {
	// Put stores a record. Returns true if the record was newly inserted,
	// false if a record with the same ID already exists, in which case Put
	// is a no-op.
	Put(ctx context.Context, record *Record) (bool, error)

	// Get retrieves a record by its ID. Returns NotFoundError when absent.
	Get(ctx context.Context, id uuid.UUID) (*Record, error)

	// List returns all records, most recently completed first.
	List(ctx context.Context) ([]*Record, error)

	// Close closes the store and releases any resources.
	Close() error
}
