// Package timeouts defines shared timeout constants used across the daemon.
// Centralizing these values prevents drift between service boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// StorageOpen caps the wait for a storage file lock on startup.
const StorageOpen = 5 * time.Second

// TelemetryShutdown limits how long telemetry flushing may block process
// exit.
const TelemetryShutdown = 5 * time.Second
