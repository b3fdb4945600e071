package subscription

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoBody is wrapped by a ConnectionError when the transport succeeds
// without yielding a response body.
var ErrNoBody = errors.New("response has no body")

// ErrMissingURL is returned by New when the config has no endpoint.
var ErrMissingURL = errors.New("subscription url is required")

// ErrMissingQuery is returned by New when the config has no document.
var ErrMissingQuery = errors.New("subscription query is required")

// ConnectionError reports a failure to establish the stream or a read
// failure in the middle of it.
type ConnectionError struct {
	URL string

	// StatusCode is the HTTP status when the server answered with a
	// non-2xx response, zero otherwise.
	StatusCode int

	Err error
}

func (e *ConnectionError) Error() string {
	var b strings.Builder
	b.WriteString("subscription connection")
	if e.URL != "" {
		b.WriteString(" to ")
		b.WriteString(e.URL)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " returned status %d", e.StatusCode)
	} else {
		b.WriteString(" failed")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ParseError reports a complete frame whose payload is not valid JSON.
type ParseError struct {
	// Frame is the offending frame body.
	Frame string

	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed subscription frame %q: %v", e.Frame, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// SubscriptionError carries the GraphQL errors of an event. Its message is
// the error messages joined by a blank line.
type SubscriptionError struct {
	Errors []GraphQLError
}

func (e *SubscriptionError) Error() string {
	messages := make([]string, len(e.Errors))
	for i, gqlErr := range e.Errors {
		messages[i] = gqlErr.Message
	}
	return strings.Join(messages, "\n\n")
}
