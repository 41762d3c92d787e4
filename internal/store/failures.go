package store

import (
	"errors"
	"sync"

	"github.com/JakeFAU/review-harvester/internal/harvest"
)

// FailureEntry is one failed target and the reason it failed.
type FailureEntry struct {
	Target harvest.Target
	Reason string
}

// FailureCollector accumulates the seeds that produced no records. It is
// safe for concurrent use; each seed is kept once, in first-seen order.
type FailureCollector struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	seeds    []string
	failures []FailureEntry
}

// NewFailureCollector returns an empty collector.
func NewFailureCollector() *FailureCollector {
	return &FailureCollector{seen: make(map[string]struct{})}
}

// AddEmpty records a target whose walk finished without records.
func (c *FailureCollector) AddEmpty(target harvest.Target) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addSeedLocked(target.SeedURL)
}

// AddFailed records a target whose walk failed.
func (c *FailureCollector) AddFailed(target harvest.Target, err error) {
	reason := "unknown error"
	if err != nil {
		reason = err.Error()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.addSeedLocked(target.SeedURL) {
		c.failures = append(c.failures, FailureEntry{Target: target, Reason: reason})
	}
}

func (c *FailureCollector) addSeedLocked(seed string) bool {
	if _, ok := c.seen[seed]; ok {
		return false
	}
	c.seen[seed] = struct{}{}
	c.seeds = append(c.seeds, seed)
	return true
}

// Seeds returns a copy of every seed recorded so far.
func (c *FailureCollector) Seeds() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.seeds...)
}

// Failures returns a copy of the failed entries.
func (c *FailureCollector) Failures() []FailureEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]FailureEntry(nil), c.failures...)
}

// Len returns the number of distinct seeds recorded.
func (c *FailureCollector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seeds)
}

// failureKind names the class of a failure for reporting.
func failureKind(err error) string {
	var fetchErr *harvest.FetchError
	var malformed *harvest.MalformedRecordError
	switch {
	case errors.As(err, &fetchErr):
		return "fetch"
	case errors.As(err, &malformed):
		return "malformed"
	default:
		return "other"
	}
}
