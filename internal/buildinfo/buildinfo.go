// Package buildinfo holds the process-wide build-info constants surfaced by
// GET /health. The value is initialize-once and never mutated after Init
// runs.
package buildinfo

import "sync"

// Info is the immutable snapshot surfaced on GET /health.
type Info struct {
	Version        string `json:"version"`
	GitCommit      string `json:"git_commit"`
	GitBranch      string `json:"git_branch"`
	BuildTimestamp string `json:"build_timestamp"`
}

var (
	once    sync.Once
	current Info
)

// Init sets the process-wide build info. Safe to call multiple times; only
// the first call takes effect, matching the "initialize-once" contract.
func Init(info Info) {
	once.Do(func() {
		current = info
	})
}

// Current returns the build info set by Init, or the zero value if Init was
// never called (e.g. in unit tests).
func Current() Info {
	return current
}
