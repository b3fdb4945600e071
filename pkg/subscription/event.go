// Package subscription consumes a GraphQL subscription served over SSE and
// exposes it as an ordered, pull-based sequence of decoded events.
package subscription

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// State is the lifecycle state of a Source. Transitions are one-way:
// StateOpen moves to StateClosed or StateErrored, both of which are terminal.
type State int32

const (
	StateOpen State = iota
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Event is one decoded subscription payload.
type Event struct {
	// Data is the result payload. For an execution-result envelope it is the
	// value of "data"; otherwise it is the whole frame payload.
	Data json.RawMessage `json:"data,omitempty"`

	// Errors are the GraphQL errors reported alongside the payload.
	Errors []GraphQLError `json:"errors,omitempty"`
}

// Decode unmarshals the event data into v.
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return json.Unmarshal([]byte("null"), v)
	}
	return json.Unmarshal(e.Data, v)
}

// GraphQLError is a single entry of a GraphQL "errors" array.
type GraphQLError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// decodeEvent turns one frame body into an Event. A JSON object with a
// top-level "data" or "errors" key is an execution-result envelope; any
// other valid JSON value is taken as the data itself.
func decodeEvent(frame string) (Event, error) {
	payload := []byte(frame)

	if !json.Valid(payload) {
		var raw json.RawMessage
		return Event{}, json.Unmarshal(payload, &raw)
	}

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Event{Data: trimmed}, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return Event{}, err
	}

	data, hasData := fields["data"]
	rawErrors, hasErrors := fields["errors"]
	if !hasData && !hasErrors {
		return Event{Data: trimmed}, nil
	}

	var ev Event
	if hasData && !isNull(data) {
		ev.Data = data
	}
	if hasErrors && !isNull(rawErrors) {
		if err := json.Unmarshal(rawErrors, &ev.Errors); err != nil {
			return Event{}, fmt.Errorf("decoding errors: %w", err)
		}
	}

	return ev, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
