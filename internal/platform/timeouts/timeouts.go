// Package timeouts defines shared timeout constants used across the engine.
// Centralizing these values prevents drift between boundaries and makes the
// durations discoverable.
package timeouts

import "time"

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// Publish caps the wait time when publishing a post-commit notification.
const Publish = 2 * time.Second

// Generation caps a single narrative generation pass in the pipeline worker.
// The generator may enforce a tighter budget internally.
const Generation = 60 * time.Second
