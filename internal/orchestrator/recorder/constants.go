package recorder

import "time"

// Recording policy defaults
const (
	DefaultSilenceTimeout = 2 * time.Second
	DefaultMaxDuration    = 120 * time.Second
	DefaultNoSpeechAbort  = 5 * time.Second
	DefaultMinDuration    = 500 * time.Millisecond
)
