// internal/updater/coordinator.go
package updater

import (
	"sync"
	"time"

	"code-gems/internal/model"
)

// defaultQuotaAssumption is GitHub's unauthenticated per-IP hourly quota.
// It is what the coordinator assumes whenever it has no live reading, or
// the last reading's reset window has already passed. State is process-local
// and lost on restart, so a fresh process always starts from this assumption
// regardless of GitHub's server-side counter.
const defaultQuotaAssumption = 60

// Coordinator holds the process-wide single-flight guard and the GitHub
// quota bookkeeping shared by every batch. It guarantees at most one
// in-flight batch per process; nothing across processes.
type Coordinator struct {
	mu         sync.Mutex
	processing bool
	lastRun    time.Time
	batchSize  int
	rate       model.RateLimit
}

// NewCoordinator creates a Coordinator with the configured default batch size.
func NewCoordinator(batchSize int) *Coordinator {
	return &Coordinator{batchSize: batchSize}
}

// TryAcquire marks a batch as in flight. It returns false when another batch
// already holds the guard; the caller must not proceed in that case.
func (c *Coordinator) TryAcquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.processing {
		return false
	}
	c.processing = true
	return true
}

// Release clears the in-flight flag.
func (c *Coordinator) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processing = false
}

// UpdateRateLimit folds a live header reading into the shared quota state.
// Zero-value readings (responses that carried no rate headers) are ignored.
func (c *Coordinator) UpdateRateLimit(rl model.RateLimit) {
	if rl.LastChecked.IsZero() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rate = rl
}

// RateLimit returns the current quota snapshot. Once the recorded reset time
// has passed the snapshot reverts to the default assumption; the true value
// is only known again after the next live response.
func (c *Coordinator) RateLimit() model.RateLimit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rateLocked()
}

func (c *Coordinator) rateLocked() model.RateLimit {
	rl := c.rate
	if rl.LastChecked.IsZero() || time.Now().Unix() > rl.ResetEpoch {
		rl.Remaining = defaultQuotaAssumption
	}
	return rl
}

// RecordRun stamps the end time of a batch.
func (c *Coordinator) RecordRun(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastRun = at
}

// BatchSize returns the configured default batch size.
func (c *Coordinator) BatchSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batchSize
}

// Status returns a point-in-time snapshot for the status reporter.
func (c *Coordinator) Status() model.CoordinatorStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := model.CoordinatorStatus{
		IsProcessing:     c.processing,
		CurrentBatchSize: c.batchSize,
		RateLimit:        c.rateLocked(),
	}
	if !c.lastRun.IsZero() {
		lastRun := c.lastRun
		status.LastRun = &lastRun
	}
	return status
}
