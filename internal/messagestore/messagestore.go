// Package messagestore implements the per-execution append-only event log
// (spec §4.D): bounded by an approximate byte ceiling with FIFO-by-insertion
// eviction, fanned out to subscribers that each see the full history
// atomically followed by live events until Finished.
package messagestore

import (
	"encoding/json"
	"sync"
)

// EventKind discriminates a Store event's payload.
type EventKind string

const (
	EventStdout          EventKind = "stdout"
	EventStderr          EventKind = "stderr"
	EventJSONPatch       EventKind = "json_patch"
	EventSessionID       EventKind = "session_id"
	EventFinished        EventKind = "finished"
	EventRefreshRequired EventKind = "refresh_required"
)

// fixedOverheadBytes is added per event to the size accounting, matching
// spec §4.D's "event name + payload + 8 bytes fixed overhead".
const fixedOverheadBytes = 8

// Event is one entry in a Store's history.
type Event struct {
	Kind    EventKind       `json:"kind"`
	Payload string          `json:"payload,omitempty"`
	Patch   json.RawMessage `json:"patch,omitempty"`
	Reason  string          `json:"reason,omitempty"`
}

func (e Event) approxSize() int {
	return len(e.Kind) + len(e.Payload) + len(e.Patch) + len(e.Reason) + fixedOverheadBytes
}

// subscriber receives live events after an atomic history snapshot.
type subscriber struct {
	ch chan Event
}

// Store is a single execution's bounded event log.
type Store struct {
	mu         sync.Mutex
	maxBytes   int
	size       int
	events     []Event
	subs       map[*subscriber]struct{}
	finished   bool
}

// New creates a Store with the given byte ceiling.
func New(maxBytes int) *Store {
	return &Store{maxBytes: maxBytes, subs: map[*subscriber]struct{}{}}
}

// Append adds an event, evicting the earliest events until the store is
// back under maxBytes (spec §4.D). Finished is still appended and
// broadcast even if the store is already at capacity — control events are
// never evicted ahead of a Finished marker, since eviction only removes
// from the front and Finished is always the last event appended.
func (s *Store) Append(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return
	}
	s.events = append(s.events, e)
	s.size += e.approxSize()
	for s.maxBytes > 0 && s.size > s.maxBytes && len(s.events) > 1 {
		evicted := s.events[0]
		s.events = s.events[1:]
		s.size -= evicted.approxSize()
	}
	if e.Kind == EventFinished {
		s.finished = true
	}
	for sub := range s.subs {
		select {
		case sub.ch <- e:
		default:
			// Slow subscriber: drop rather than block the producer. The
			// subscriber's next Subscribe call re-reads full history.
		}
	}
	if s.finished {
		for sub := range s.subs {
			delete(s.subs, sub)
			close(sub.ch)
		}
	}
}

// Subscribe returns the current history atomically plus a channel of live
// events. The channel is closed once Finished has been observed and
// delivered, or when ctx-equivalent caller calls Unsubscribe.
func (s *Store) Subscribe() ([]Event, <-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := make([]Event, len(s.events))
	copy(history, s.events)

	sub := &subscriber{ch: make(chan Event, 256)}
	if !s.finished {
		s.subs[sub] = struct{}{}
	}
	unsubscribe := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[sub]; ok {
			delete(s.subs, sub)
			close(sub.ch)
		}
	}
	if s.finished {
		close(sub.ch)
	}
	return history, sub.ch, unsubscribe
}

// Len returns the number of currently retained events, for tests asserting
// stability after cancellation (spec §8 invariant 4).
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// CountByKind returns how many retained events match kind.
func (s *Store) CountByKind(kind EventKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
