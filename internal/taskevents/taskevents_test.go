package taskevents

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubscribeOnlyReceivesMatchingProject(t *testing.T) {
	bus := NewBus()
	ch, unsubscribe := bus.Subscribe("proj-1")
	defer unsubscribe()

	bus.Publish(Event{Kind: ChangeCreated, ProjectID: "proj-2", TaskID: "t1"})
	bus.Publish(Event{Kind: ChangeCreated, ProjectID: "proj-1", TaskID: "t2"})

	select {
	case e := <-ch:
		require.Equal(t, "t2", e.TaskID)
	case <-time.After(time.Second):
		t.Fatal("expected event for matching project")
	}

	select {
	case e := <-ch:
		t.Fatalf("unexpected second event: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, unsubscribe := bus.Subscribe("proj-1")
	unsubscribe()

	_, ok := <-ch
	require.False(t, ok)
}

func TestPublishWithNoSubscribersDoesNotBlock(t *testing.T) {
	bus := NewBus()
	done := make(chan struct{})
	go func() {
		bus.Publish(Event{Kind: ChangeDeleted, ProjectID: "proj-1", TaskID: "t1"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked with no subscribers")
	}
}
