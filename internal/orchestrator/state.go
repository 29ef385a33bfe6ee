package orchestrator

import "time"

// State is the engine mode.
type State int

const (
	Idle State = iota
	Recording
	ConversationWindow
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case ConversationWindow:
		return "conversation_window"
	default:
		return "unknown"
	}
}

// Status is a point-in-time snapshot for observers.
type Status struct {
	State             string    `json:"state"`
	ConversationUntil time.Time `json:"conversation_until,omitzero"`
	LastWakePhrase    string    `json:"last_wake_phrase,omitempty"`
	LastWakeScore     float64   `json:"last_wake_score,omitempty"`
	LastFile          string    `json:"last_file,omitempty"`
	Sessions          int       `json:"sessions"`
	Utterances        int       `json:"utterances"`
	Overflows         int       `json:"overflows"`
	StartedAt         time.Time `json:"started_at,omitzero"`
}
