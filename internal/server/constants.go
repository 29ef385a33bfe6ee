// Package server exposes a read-only HTTP view of the listener: health,
// engine status, recent sessions, metrics and a websocket event feed.
package server

import "time"

// Server configuration constants
const (
	// Per-client write deadline for websocket pushes.
	WriteTimeout = 5 * time.Second

	// Events queued per websocket client before new ones are dropped.
	ClientQueueSize = 64

	// Default lookback for /api/utterances when no since is given.
	DefaultHistoryWindow = time.Hour

	ReadHeaderTimeout = 5 * time.Second
	ShutdownTimeout   = 5 * time.Second
)
