package subscription

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Request is the single outbound request that opens a subscription stream.
type Request struct {
	URL    string
	Method string
	Body   []byte
	Header http.Header
}

// Transport opens the response body of a subscription request. The returned
// body is read by exactly one Source and closed by it.
type Transport interface {
	Open(ctx context.Context, req *Request) (io.ReadCloser, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req *Request) (io.ReadCloser, error)

// Open calls f(ctx, req).
func (f TransportFunc) Open(ctx context.Context, req *Request) (io.ReadCloser, error) {
	return f(ctx, req)
}

// HTTPTransport opens subscription streams over net/http.
type HTTPTransport struct {
	// Client is the HTTP client used for requests. Defaults to
	// http.DefaultClient. Its Timeout should be zero, since a subscription
	// response stays open until the server ends it.
	Client *http.Client
}

// Open issues req and returns the response body. Non-2xx responses are
// drained, closed and reported as a *ConnectionError carrying the status.
func (t *HTTPTransport) Open(ctx context.Context, req *Request) (io.ReadCloser, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, &ConnectionError{URL: req.URL, Err: fmt.Errorf("building request: %w", err)}
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &ConnectionError{URL: req.URL, Err: err}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var snippet []byte
		if resp.Body != nil {
			snippet, _ = io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
		}

		msg := string(bytes.TrimSpace(snippet))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &ConnectionError{URL: req.URL, StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, &ConnectionError{URL: req.URL, Err: ErrNoBody}
	}

	return resp.Body, nil
}
