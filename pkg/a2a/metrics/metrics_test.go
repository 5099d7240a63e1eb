package metrics

import (
	"sync"
	"testing"
)

func TestCollector_IncrAndTotals(t *testing.T) {
	c := NewCollector()
	c.Incr(CounterInboxAppended, "agent:main:cli")
	c.Incr(CounterInboxAppended, "agent:main:cli")
	c.Incr(CounterInboxAppended, "agent:research:cli")

	if got := c.Get(CounterInboxAppended, "agent:main:cli"); got != 2 {
		t.Errorf("per-id count: expected 2, got %d", got)
	}
	if got := c.Total(CounterInboxAppended); got != 3 {
		t.Errorf("total: expected 3, got %d", got)
	}
	if got := c.Total(CounterPolicyDenied); got != 0 {
		t.Errorf("untouched counter: expected 0, got %d", got)
	}
}

func TestCollector_SnapshotIsACopy(t *testing.T) {
	c := NewCollector()
	c.Incr(CounterAnnounceFailed, "slack")

	snap := c.Snapshot(CounterAnnounceFailed)
	snap["slack"] = 99

	if got := c.Get(CounterAnnounceFailed, "slack"); got != 1 {
		t.Errorf("mutating a snapshot must not touch the collector, got %d", got)
	}
}

func TestCollector_ConcurrentIncr(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Incr(CounterInboxDeduped, "k")
		}()
	}
	wg.Wait()

	if got := c.Get(CounterInboxDeduped, "k"); got != 50 {
		t.Errorf("expected 50, got %d", got)
	}
}
