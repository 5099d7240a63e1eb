// Package metrics provides the injected occurrence counters the relay
// components report into. One Collector is created at service start and
// passed down explicitly; nothing in the relay keeps process-wide counters.
package metrics

import (
	"maps"
	"sync"
)

// Counter names used by the relay components.
const (
	CounterDisplayFallback   = "display_fallback"
	CounterUnlabeledBlocked  = "unlabeled_spawned_blocked"
	CounterPolicyDenied      = "policy_denied"
	CounterInboxAppended     = "inbox_appended"
	CounterInboxDeduped      = "inbox_deduped"
	CounterInboxStale        = "inbox_stale_skipped"
	CounterInboxUnsupported  = "inbox_unsupported_skipped"
	CounterAnnounceDelivered = "announce_delivered"
	CounterAnnounceFailed    = "announce_failed"
)

// Collector aggregates occurrence counts keyed by counter name and id
// (session key, run id, channel name, whatever the call site keys on).
type Collector struct {
	mu     sync.RWMutex
	counts map[string]map[string]int64
}

func NewCollector() *Collector {
	return &Collector{counts: make(map[string]map[string]int64)}
}

// Incr adds one occurrence of counter for id.
func (c *Collector) Incr(counter, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byID, ok := c.counts[counter]
	if !ok {
		byID = make(map[string]int64)
		c.counts[counter] = byID
	}
	byID[id]++
}

// Get returns the count of one counter/id pair.
func (c *Collector) Get(counter, id string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counts[counter][id]
}

// Total returns the sum of a counter across all ids.
func (c *Collector) Total(counter string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var total int64
	for _, n := range c.counts[counter] {
		total += n
	}
	return total
}

// Snapshot returns a copy of one counter's per-id map.
func (c *Collector) Snapshot(counter string) map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]int64, len(c.counts[counter]))
	maps.Copy(out, c.counts[counter])
	return out
}

// Reset clears all counts. Test harness use only.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts = make(map[string]map[string]int64)
}
