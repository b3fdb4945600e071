package watcher

import (
	"encoding/json"
	"errors"
)

var (
	// ErrStreamEnded is returned when the stream ends before any terminal
	// status arrives.
	ErrStreamEnded = errors.New("stream ended before a terminal status")

	// ErrAlreadyWatched is returned by a second call to Watch.
	ErrAlreadyWatched = errors.New("watcher already used")
)

// FailureError is the domain failure reported by a failure status.
type FailureError struct {
	Kind    string
	Reason  string
	Payload json.RawMessage
}

func (e *FailureError) Error() string {
	return e.Reason
}
