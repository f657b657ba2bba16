// Package normalizer implements the log normalizer (spec §4.F): it reads an
// execution's raw stdout/stderr stream from the message store and emits
// structured normalized entries as JSON-Patch deltas, plus a latency-gapped
// grouper that classifies stderr bursts into executor error kinds.
package normalizer

import (
	"encoding/json"
	"strings"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"

	vkerrors "github.com/davidrudduck/vk-swarm-sub003/internal/errors"
	"github.com/davidrudduck/vk-swarm-sub003/internal/messagestore"
)

// DefaultGap is the latency-gapped grouper's default burst-separation
// window (spec §4.F).
const DefaultGap = 2 * time.Second

// ConversationEntry is one append-at-index element of the normalized
// conversation view the JSON-Patch stream mutates.
type ConversationEntry struct {
	Index   int             `json:"index"`
	Kind    string          `json:"kind"`
	Content json.RawMessage `json:"content"`
}

// conversationPatch builds the JSON-Patch "add at end" operation for
// appending entry at position index, matching the append-at-index
// semantics spec §4.F names.
func conversationPatch(index int, entry ConversationEntry) (json.RawMessage, error) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	op := []map[string]interface{}{
		{"op": "add", "path": "/entries/-", "value": json.RawMessage(raw)},
	}
	patchRaw, err := json.Marshal(op)
	if err != nil {
		return nil, err
	}
	// Round-trip through jsonpatch.DecodePatch to validate the patch is
	// well-formed before it's handed to subscribers.
	if _, err := jsonpatch.DecodePatch(patchRaw); err != nil {
		return nil, err
	}
	return patchRaw, nil
}

// ErrorGrouper batches stderr lines arriving within Gap of each other into
// a single classified ErrorMessage burst (spec §4.F).
type ErrorGrouper struct {
	Gap time.Duration

	buf     []string
	lastAt  time.Time
	started bool
}

// NewErrorGrouper builds a grouper using gap, or DefaultGap if zero.
func NewErrorGrouper(gap time.Duration) *ErrorGrouper {
	if gap <= 0 {
		gap = DefaultGap
	}
	return &ErrorGrouper{Gap: gap}
}

// Add appends a stderr line at time t, returning a completed burst if t is
// more than Gap after the previous line (the burst prior to this one).
func (g *ErrorGrouper) Add(line string, t time.Time) (burst []string, flushed bool) {
	if g.started && t.Sub(g.lastAt) > g.Gap {
		burst = g.buf
		g.buf = nil
		flushed = true
	}
	g.buf = append(g.buf, line)
	g.lastAt = t
	g.started = true
	return burst, flushed
}

// Flush returns and clears any buffered burst, for use at stream end.
func (g *ErrorGrouper) Flush() []string {
	burst := g.buf
	g.buf = nil
	return burst
}

// Classify assigns one of the executor error kinds named in spec §4.F /
// §7 to a stderr burst, based on substring matches against common agent
// CLI failure text. Order matters: the first match wins.
func Classify(burst []string) vkerrors.ExecutorKind {
	text := joinLower(burst)
	switch {
	case containsAny(text, "setup required", "not configured", "run setup"):
		return vkerrors.ExecutorSetupRequired
	case containsAny(text, "rate limit", "429", "too many requests"):
		return vkerrors.ExecutorRateLimited
	case containsAny(text, "connection refused", "network is unreachable", "timeout", "dial tcp"):
		return vkerrors.ExecutorNetworkError
	case containsAny(text, "permission denied", "forbidden", "403"):
		return vkerrors.ExecutorPermissionDenied
	case containsAny(text, "tool execution failed", "tool error"):
		return vkerrors.ExecutorToolExecution
	case containsAny(text, "api error", "500 internal", "502 bad gateway"):
		return vkerrors.ExecutorAPIError
	default:
		return vkerrors.ExecutorOther
	}
}

func joinLower(lines []string) string {
	return strings.ToLower(strings.Join(lines, "\n"))
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// Handle is the JoinHandle spec §4.F requires the engine await before
// declaring an execution finalized: "the returned handle MUST be awaited
// before the engine declares the execution finalized".
type Handle struct {
	done chan struct{}
}

// Join blocks until the normalization goroutine backing h has exited.
func (h *Handle) Join() {
	<-h.done
}

// Run starts a goroutine reading from store's live subscription, emitting
// JSON-Patch conversation entries and grouped/classified error bursts,
// until the store reports Finished. Returns a Handle the caller (the
// engine) must Join before treating the execution as finalized.
func Run(store *messagestore.Store, gap time.Duration, onPatch func(json.RawMessage), onError func(kind vkerrors.ExecutorKind, burst []string)) *Handle {
	h := &Handle{done: make(chan struct{})}
	_, events, unsubscribe := store.Subscribe()

	go func() {
		defer close(h.done)
		defer unsubscribe()

		grouper := NewErrorGrouper(gap)
		index := 0
		for e := range events {
			switch e.Kind {
			case messagestore.EventStdout:
				entry := ConversationEntry{Index: index, Kind: "assistant", Content: json.RawMessage(quoteJSON(e.Payload))}
				if patch, err := conversationPatch(index, entry); err == nil && onPatch != nil {
					onPatch(patch)
				}
				index++
			case messagestore.EventStderr:
				if burst, flushed := grouper.Add(e.Payload, time.Now()); flushed && onError != nil {
					onError(Classify(burst), burst)
				}
			case messagestore.EventFinished:
				if burst := grouper.Flush(); len(burst) > 0 && onError != nil {
					onError(Classify(burst), burst)
				}
				return
			}
		}
	}()

	return h
}

func quoteJSON(s string) []byte {
	raw, err := json.Marshal(s)
	if err != nil {
		return []byte(`""`)
	}
	return raw
}
