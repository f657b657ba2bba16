package normalizer

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vkerrors "github.com/davidrudduck/vk-swarm-sub003/internal/errors"
	"github.com/davidrudduck/vk-swarm-sub003/internal/messagestore"
)

func TestClassifyPicksFirstMatchingKind(t *testing.T) {
	assert.Equal(t, vkerrors.ExecutorRateLimited, Classify([]string{"HTTP 429 Too Many Requests"}))
	assert.Equal(t, vkerrors.ExecutorPermissionDenied, Classify([]string{"Error: permission denied"}))
	assert.Equal(t, vkerrors.ExecutorOther, Classify([]string{"some unrelated failure"}))
}

func TestErrorGrouperFlushesOnGap(t *testing.T) {
	g := NewErrorGrouper(10 * time.Millisecond)
	base := time.Now()
	burst, flushed := g.Add("line1", base)
	assert.False(t, flushed)
	assert.Nil(t, burst)

	burst, flushed = g.Add("line2", base.Add(20*time.Millisecond))
	assert.True(t, flushed)
	assert.Equal(t, []string{"line1"}, burst)

	remaining := g.Flush()
	assert.Equal(t, []string{"line2"}, remaining)
}

func TestRunEmitsPatchesAndJoinsOnFinished(t *testing.T) {
	store := messagestore.New(0)
	var mu sync.Mutex
	var patches []json.RawMessage
	var errKind vkerrors.ExecutorKind

	h := Run(store, 5*time.Millisecond, func(p json.RawMessage) {
		mu.Lock()
		defer mu.Unlock()
		patches = append(patches, p)
	}, func(kind vkerrors.ExecutorKind, burst []string) {
		mu.Lock()
		defer mu.Unlock()
		errKind = kind
	})

	store.Append(messagestore.Event{Kind: messagestore.EventStdout, Payload: "hello"})
	store.Append(messagestore.Event{Kind: messagestore.EventStderr, Payload: "permission denied"})
	store.Append(messagestore.Event{Kind: messagestore.EventFinished})

	done := make(chan struct{})
	go func() { h.Join(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("normalizer handle never joined")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, patches, 1)
	assert.Equal(t, vkerrors.ExecutorPermissionDenied, errKind)
}
