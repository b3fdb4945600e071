// Package api provides an HTTP API server for submitting transactions and
// inspecting recorded watches.
package api

import "time"

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// WatchTimeout bounds each POST /v1/watches. Zero means no limit
	// beyond the client's connection.
	WatchTimeout time.Duration
}
