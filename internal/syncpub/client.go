// Package syncpub mirrors local entity mutations (task attempts,
// execution processes, log entries) to the authoritative hive (spec
// §4.L), draining each entity kind independently and retrying transient
// failures behind a circuit breaker so a down hive degrades to "stop
// trying for a while" rather than hammering it.
package syncpub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"
)

// Client pushes batches of synced entities to the hive's ingest
// endpoints over HTTP, wrapped in a circuit breaker so a persistently
// unreachable hive fails fast instead of retrying into a hammering
// loop.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// NewClient builds a Client against baseURL (the hive's HTTP address).
// A nil httpClient is replaced by an http.Client with a 10-second
// timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "hive-sync",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Client{baseURL: baseURL, httpClient: httpClient, breaker: cb}
}

// Push POSTs payload as JSON to path, retrying transient (5xx/network)
// failures with exponential backoff, the whole attempt gated by the
// circuit breaker.
func (c *Client) Push(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sync payload: %w", err)
	}

	_, err = c.breaker.Execute(func() (any, error) {
		return backoff.Retry(ctx, func() (any, error) {
			return nil, c.postOnce(ctx, path, body)
		},
			backoff.WithBackOff(backoff.NewExponentialBackOff()),
			backoff.WithMaxTries(4),
		)
	})
	return err
}

func (c *Client) postOnce(ctx context.Context, path string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build sync request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err // network errors are retryable
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("hive returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return backoff.Permanent(fmt.Errorf("hive rejected sync payload: %d", resp.StatusCode))
	}
	return nil
}
