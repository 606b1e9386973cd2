package replay

import (
	"sync"
	"time"
)

// collector is the single accumulation point for latency records. Each slot
// is written at most once, either by the request that owns it or by seal.
type collector struct {
	mu        sync.Mutex
	records   []LatencyRecord
	resolved  []bool
	pending   int
	launching bool
	sealed    bool
	late      int
	done      chan struct{}
	observer  Observer
}

func newCollector(n int, observer Observer) *collector {
	return &collector{
		records:   make([]LatencyRecord, n),
		resolved:  make([]bool, n),
		launching: true,
		done:      make(chan struct{}),
		observer:  observer,
	}
}

// launch registers a task before its goroutine starts.
func (c *collector) launch() {
	c.mu.Lock()
	c.pending++
	c.mu.Unlock()
}

// complete stores rec in its slot. Records arriving after seal are counted
// as late and dropped.
func (c *collector) complete(rec LatencyRecord) {
	c.mu.Lock()
	if c.sealed || c.resolved[rec.Index] {
		c.late++
		c.mu.Unlock()
		return
	}
	c.records[rec.Index] = rec
	c.resolved[rec.Index] = true
	c.pending--
	c.signalLocked()
	c.mu.Unlock()

	c.observer.Completed(rec)
}

// closeLaunching marks that no further tasks will be launched.
func (c *collector) closeLaunching() {
	c.mu.Lock()
	c.launching = false
	c.signalLocked()
	c.mu.Unlock()
}

func (c *collector) signalLocked() {
	if !c.launching && c.pending == 0 {
		select {
		case <-c.done:
		default:
			close(c.done)
		}
	}
}

// wait blocks until every launched task resolved, the timeout expired or
// interrupt fired. It reports whether all tasks resolved.
func (c *collector) wait(timeout time.Duration, interrupt <-chan struct{}) (resolved, interrupted bool) {
	select {
	case <-c.done:
		return true, false
	default:
	}
	if timeout <= 0 {
		return false, false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-c.done:
		return true, false
	case <-timer.C:
		return false, false
	case <-interrupt:
		return false, true
	}
}

// seal stops accepting records and fills every unresolved slot among the
// dispatched ones with a failed record carrying cause.
func (c *collector) seal(dispatches []DispatchRecord, cause error) (records []LatencyRecord, filled int) {
	c.mu.Lock()
	c.sealed = true
	var synthetic []LatencyRecord
	for _, d := range dispatches {
		if c.resolved[d.Index] {
			continue
		}
		rec := newLatencyRecord(d, Response{Err: cause})
		c.records[d.Index] = rec
		c.resolved[d.Index] = true
		synthetic = append(synthetic, rec)
	}
	records = make([]LatencyRecord, len(dispatches))
	copy(records, c.records[:len(dispatches)])
	c.mu.Unlock()

	for _, rec := range synthetic {
		c.observer.Completed(rec)
	}
	return records, len(synthetic)
}

func (c *collector) lateCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.late
}
