// Package taskevents broadcasts task state deltas to the task-list stream
// (spec §6: "GET /tasks/stream/ws?project_id=X — long-lived WS of task
// state deltas"), mirroring the subscribe-then-live-feed shape
// internal/messagestore already uses for per-execution output streams.
package taskevents

import "sync"

// ChangeKind discriminates what happened to a task.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeUpdated  ChangeKind = "updated"
	ChangeArchived ChangeKind = "archived"
	ChangeDeleted  ChangeKind = "deleted"
)

// Event is one task delta, scoped to a single project.
type Event struct {
	Kind      ChangeKind `json:"kind"`
	ProjectID string     `json:"project_id"`
	TaskID    string     `json:"task_id"`
	Task      any        `json:"task,omitempty"`
}

type subscriber struct {
	projectID string
	ch        chan Event
}

// Bus fans out task deltas to subscribers filtered by project id.
type Bus struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

// NewBus builds an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: map[*subscriber]struct{}{}}
}

// Publish broadcasts e to every subscriber watching e.ProjectID. A slow
// subscriber is dropped from delivery for this event rather than blocking
// the publisher — it still observes later events and can resync via a
// fresh GET /tasks call if it notices a gap.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		if sub.projectID != e.ProjectID {
			continue
		}
		select {
		case sub.ch <- e:
		default:
		}
	}
}

// Subscribe registers interest in projectID's deltas. The returned
// unsubscribe func must be called once the caller stops reading.
func (b *Bus) Subscribe(projectID string) (<-chan Event, func()) {
	sub := &subscriber{projectID: projectID, ch: make(chan Event, 64)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[sub]; ok {
			delete(b.subs, sub)
			close(sub.ch)
		}
	}
	return sub.ch, unsubscribe
}
