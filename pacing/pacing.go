// Package pacing decides how aggressively the historical scan may fetch,
// based on recent fetch latency and the volume of live message traffic.
package pacing

import (
	"sync"
	"time"

	"github.com/cufee/botto-moderator/config"
)

// tier is one pacing bucket. Tiers are ordered from most to least aggressive.
type tier struct {
	batchSize int
	delay     time.Duration
}

var (
	tierFast    = tier{batchSize: config.MaxPageSize, delay: 300 * time.Millisecond}
	tierSteady  = tier{batchSize: 50, delay: 600 * time.Millisecond}
	tierSlow    = tier{batchSize: 25, delay: 900 * time.Millisecond}
	tierCrawl   = tier{batchSize: 10, delay: 1200 * time.Millisecond}
	tierBackoff = tier{batchSize: 10, delay: 1200 * time.Millisecond}
)

// tierFor applies the tier policy. Burst takes precedence over latency.
func tierFor(avg time.Duration, burst int) tier {
	switch {
	case burst > config.BurstThreshold:
		return tierBackoff
	case avg > 1500*time.Millisecond:
		return tierCrawl
	case avg > 800*time.Millisecond:
		return tierSlow
	case avg > 400*time.Millisecond:
		return tierSteady
	default:
		return tierFast
	}
}

// Controller tracks pacing signals. It is safe for concurrent use; live
// message events and the scan loop run on different goroutines.
type Controller struct {
	mu        sync.Mutex
	latencies []time.Duration
	bursts    []time.Time
	now       func() time.Time
}

// New creates a controller with empty history.
func New() *Controller {
	return NewWithClock(time.Now)
}

// NewWithClock creates a controller that reads time from now.
func NewWithClock(now func() time.Time) *Controller {
	return &Controller{
		latencies: make([]time.Duration, 0, config.LatencyWindow),
		now:       now,
	}
}

// RecordLatency adds a fetch duration sample, dropping the oldest sample
// once the window is full.
func (c *Controller) RecordLatency(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.latencies) == config.LatencyWindow {
		copy(c.latencies, c.latencies[1:])
		c.latencies = c.latencies[:len(c.latencies)-1]
	}
	c.latencies = append(c.latencies, d)
}

// AverageLatency returns the mean of the recorded samples, or the default
// latency when nothing was recorded yet.
func (c *Controller) AverageLatency() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.averageLocked()
}

func (c *Controller) averageLocked() time.Duration {
	if len(c.latencies) == 0 {
		return config.DefaultLatency
	}

	var total time.Duration
	for _, l := range c.latencies {
		total += l
	}
	return total / time.Duration(len(c.latencies))
}

// Samples returns a copy of the latency window, oldest first.
func (c *Controller) Samples() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.latencies...)
}

// NoteLiveMessage counts one live message towards the burst counter. The
// message stops counting once the burst window has passed.
func (c *Controller) NoteLiveMessage() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.pruneLocked(now)
	c.bursts = append(c.bursts, now)
}

// BurstCount returns the number of live messages seen within the burst window.
func (c *Controller) BurstCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneLocked(c.now())
	return len(c.bursts)
}

// pruneLocked drops burst entries older than the window. Entries are
// appended in time order, so the expired ones form a prefix.
func (c *Controller) pruneLocked(now time.Time) {
	cutoff := now.Add(-config.BurstWindow)
	i := 0
	for i < len(c.bursts) && !c.bursts[i].After(cutoff) {
		i++
	}
	if i > 0 {
		c.bursts = append(c.bursts[:0], c.bursts[i:]...)
	}
}

func (c *Controller) current() tier {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneLocked(c.now())
	return tierFor(c.averageLocked(), len(c.bursts))
}

// BatchSize returns how many messages the next history fetch should request.
// It never exceeds the platform page limit.
func (c *Controller) BatchSize() int {
	return c.current().batchSize
}

// Delay returns how long the scheduler should wait before its next tick.
func (c *Controller) Delay() time.Duration {
	return c.current().delay
}
