package syncpub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPushRetriesTransientFailures(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewClient(server.URL, server.Client())
	err := c.Push(context.Background(), "/sync/attempts", map[string]string{"id": "a1"})
	require.NoError(t, err)
	require.GreaterOrEqual(t, attempts.Load(), int32(3))
}

func TestPushDoesNotRetryClientErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	c := NewClient(server.URL, server.Client())
	err := c.Push(context.Background(), "/sync/attempts", map[string]string{"id": "a1"})
	require.Error(t, err)
	require.Equal(t, int32(1), attempts.Load())
}
