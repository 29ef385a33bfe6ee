// Package history keeps a bounded log of recent capture sessions and fans
// engine events out to observers without ever blocking the capture loop.
package history

import (
	"sync"
	"time"
)

// Event kinds.
const (
	EventWake    = "wake"
	EventSession = "session"
	EventState   = "state"
)

// Event is a notification published by the capture engine.
type Event struct {
	Kind     string        `json:"kind"`
	Time     time.Time     `json:"time"`
	Phrase   string        `json:"phrase,omitempty"`
	Score    float64       `json:"score,omitempty"`
	State    string        `json:"state,omitempty"`
	Outcome  string        `json:"outcome,omitempty"`
	File     string        `json:"file,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Error    string        `json:"error,omitempty"`
	TraceID  string        `json:"trace_id,omitempty"`
}

// Entry is one finished session.
type Entry struct {
	Timestamp time.Time     `json:"timestamp"`
	Trigger   string        `json:"trigger"` // wake phrase, or "conversation"
	Outcome   string        `json:"outcome"`
	Duration  time.Duration `json:"duration"`
	File      string        `json:"file,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// MemoryStore implements in-memory session history.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  []Entry
	counts   map[string]int
	maxSize  int
	eventsCh chan Event
	dropped  int
	now      func() time.Time
}

// NewStore creates a store holding up to maxEntries sessions.
func NewStore(maxEntries, eventBuffer int) *MemoryStore {
	return &MemoryStore{
		entries:  make([]Entry, 0, maxEntries),
		counts:   make(map[string]int),
		maxSize:  maxEntries,
		eventsCh: make(chan Event, eventBuffer),
		now:      time.Now,
	}
}

// Add records a finished session, stamping it if Timestamp is zero.
func (s *MemoryStore) Add(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	s.entries = append(s.entries, e)
	s.counts[e.Outcome]++

	if len(s.entries) > s.maxSize {
		s.entries = s.entries[len(s.entries)-s.maxSize:]
	}
}

// Recent returns sessions newer than since, oldest first. A non-positive
// since returns everything kept.
func (s *MemoryStore) Recent(since time.Duration) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if since <= 0 {
		out := make([]Entry, len(s.entries))
		copy(out, s.entries)
		return out
	}
	cutoff := s.now().Add(-since)
	var out []Entry
	for _, e := range s.entries {
		if !e.Timestamp.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// Counts returns the number of sessions per outcome since startup.
func (s *MemoryStore) Counts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}

// Events returns the channel for engine events.
func (s *MemoryStore) Events() <-chan Event {
	return s.eventsCh
}

// Emit sends an event (non-blocking). Events are dropped when nobody drains
// the channel.
func (s *MemoryStore) Emit(event Event) {
	select {
	case s.eventsCh <- event:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	}
}

// Dropped returns how many events were discarded on a full channel.
func (s *MemoryStore) Dropped() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dropped
}
