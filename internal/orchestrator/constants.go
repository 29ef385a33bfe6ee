// Package orchestrator runs the capture state machine: idle wake phrase
// scanning, recording sessions and the conversation window.
package orchestrator

import "time"

// Engine configuration defaults
const (
	// 80 ms at 16 kHz, the wake model's native frame.
	DefaultFrameSamples = 1280

	DefaultPreRoll            = 500 * time.Millisecond
	DefaultConversationWindow = 10 * time.Second

	// Pause after the listening cue so the recording does not start with it.
	DefaultFeedbackDelay = 50 * time.Millisecond

	// History configuration
	HistoryMaxEntries  = 50
	HistoryEventBuffer = 100

	// Trigger label for sessions started inside the conversation window.
	TriggerConversation = "conversation"
)
