package history

import (
	"testing"
	"time"
)

func TestStoreAdd(t *testing.T) {
	store := NewStore(30, 10)

	store.Add(Entry{Trigger: "hey_jarvis", Outcome: "completed", File: "a.wav"})
	entries := store.Recent(0)

	if len(entries) != 1 {
		t.Fatalf("entries length = %d, want 1", len(entries))
	}
	if entries[0].File != "a.wav" {
		t.Errorf("file = %q, want %q", entries[0].File, "a.wav")
	}
	if entries[0].Timestamp.IsZero() {
		t.Error("entry should be timestamped")
	}
}

func TestStoreMaxSize(t *testing.T) {
	store := NewStore(30, 10)

	for i := 0; i < 35; i++ {
		store.Add(Entry{Outcome: "no_speech"})
	}

	if n := len(store.Recent(0)); n != 30 {
		t.Errorf("entries length = %d, want 30", n)
	}
	if c := store.Counts()["no_speech"]; c != 35 {
		t.Errorf("no_speech count = %d, want 35", c)
	}
}

func TestStoreRecent(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore(30, 10)
	store.now = func() time.Time { return now }

	store.Add(Entry{Timestamp: now.Add(-10 * time.Minute), Outcome: "completed"})
	store.Add(Entry{Timestamp: now.Add(-30 * time.Second), Outcome: "too_short"})

	recent := store.Recent(time.Minute)
	if len(recent) != 1 || recent[0].Outcome != "too_short" {
		t.Errorf("Recent(1m) = %+v", recent)
	}
}

func TestStoreEmit(t *testing.T) {
	store := NewStore(30, 10)

	go func() {
		store.Emit(Event{Kind: EventWake, Phrase: "hey_jarvis"})
	}()

	select {
	case event := <-store.Events():
		if event.Phrase != "hey_jarvis" {
			t.Errorf("event.Phrase = %q, want %q", event.Phrase, "hey_jarvis")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for event")
	}
}

func TestStoreEmitNeverBlocks(t *testing.T) {
	store := NewStore(30, 1)
	store.Emit(Event{Kind: EventState})
	store.Emit(Event{Kind: EventState})
	store.Emit(Event{Kind: EventState})

	if store.Dropped() != 2 {
		t.Errorf("dropped = %d, want 2", store.Dropped())
	}
}
