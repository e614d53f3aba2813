// Package progress provides the thread-safe counters shared by all
// ingestion workers: a category-keyed error counter and a live run
// tracker that mirrors its state to stderr.
package progress

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// ErrorCounter tallies failures by category ("404", "HTTP_500",
// "network_error", ...). Safe for concurrent use.
type ErrorCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewErrorCounter() *ErrorCounter {
	return &ErrorCounter{counts: make(map[string]int)}
}

// Inc increments the counter for one category.
func (c *ErrorCounter) Inc(category string) {
	c.mu.Lock()
	c.counts[category]++
	c.mu.Unlock()
}

// Total returns the sum over all categories.
func (c *ErrorCounter) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.counts {
		n += v
	}
	return n
}

// Snapshot returns a copy of the per-category counts.
func (c *ErrorCounter) Snapshot() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// Format renders the counts as "k=v ; k=v" with categories sorted,
// matching the run-log layout. Empty when nothing was counted.
func (c *ErrorCounter) Format() string {
	snap := c.Snapshot()
	if len(snap) == 0 {
		return ""
	}
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, snap[k]))
	}
	return strings.Join(parts, " ; ")
}

// State is a point-in-time copy of a Tracker.
type State struct {
	Processed int `json:"processed"`
	OK        int `json:"ok"`
	Total     int `json:"total"`
	Added     int `json:"added"`
	Updated   int `json:"updated"`
	Errors    int `json:"errors"`
}

// Tracker holds the live counters for one run.
type Tracker struct {
	mu sync.Mutex
	s  State
}

func NewTracker() *Tracker { return &Tracker{} }

func (t *Tracker) SetTotal(n int)   { t.mu.Lock(); t.s.Total = n; t.mu.Unlock() }
func (t *Tracker) SetAdded(n int)   { t.mu.Lock(); t.s.Added = n; t.mu.Unlock() }
func (t *Tracker) SetUpdated(n int) { t.mu.Lock(); t.s.Updated = n; t.mu.Unlock() }
func (t *Tracker) SetErrors(n int)  { t.mu.Lock(); t.s.Errors = n; t.mu.Unlock() }
func (t *Tracker) IncProcessed()    { t.mu.Lock(); t.s.Processed++; t.mu.Unlock() }
func (t *Tracker) IncOK()           { t.mu.Lock(); t.s.OK++; t.mu.Unlock() }
func (t *Tracker) IncAdded()        { t.mu.Lock(); t.s.Added++; t.mu.Unlock() }
func (t *Tracker) IncUpdated()      { t.mu.Lock(); t.s.Updated++; t.mu.Unlock() }

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.s
}

// Print rewrites the single in-place progress line.
func (t *Tracker) Print(w io.Writer) {
	s := t.Snapshot()
	fmt.Fprintf(w, "\r[progress] %d/%d | ok=%d | added=%d | updated=%d | errors=%d",
		s.Processed, s.Total, s.OK, s.Added, s.Updated, s.Errors)
}
