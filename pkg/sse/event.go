// Package sse provides a minimal, purpose-built incremental SSE (Server-Sent
// Events) frame parser for subscription streams. It is fed raw chunks exactly
// as the transport delivers them, with no assumed alignment between chunk and
// frame boundaries, and yields complete frames in the order they finish in
// the byte stream.
//
// This package intentionally does NOT provide SSE writer or server
// capabilities.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// KeepAlive is the out-of-band filler a subscription server interleaves with
// frames to hold the connection open. It carries no payload and is removed
// wherever it appears, including across chunk boundaries.
const KeepAlive = ":keep-alive\n\n"

// Event represents a single parsed SSE frame, delimited by a blank line
// in the upstream byte stream.
type Event struct {
	// Type is the SSE event type from the "event:" field.
	// An empty string means the default "message" type per the SSE spec.
	Type string

	// Data is the concatenated contents of all "data:" lines for this event,
	// joined with "\n" (per the SSE spec, multiple data fields are joined
	// with a single newline).
	Data string

	// ID is the last event ID from the "id:" field, if present.
	ID string
}
