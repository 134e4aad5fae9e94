// Package health runs the runtime's self-checks: is the model store
// reachable, is there enough disk headroom for the next download, do the
// models already on disk still match what the metadata DB recorded.
package health

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/edgeveda/core/internal/modelmanager"
)

const (
	checkInterval = 60 * time.Second
	minFreeBytes  = 500 * 1024 * 1024
)

// Check is one self-check: CheckFn reports health, RecoverFn is a
// best-effort attempt to fix the condition CheckFn just flagged.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status is one Check's most recent outcome.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs every registered Check on a fixed interval and keeps the
// latest Status per check for readers to poll.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	observer func([]Status)
}

// NewChecker wires the three self-checks against a model store and its
// backing directory: store reachability, free disk space ahead of the next
// download, and on-disk file sizes against what the store recorded.
func NewChecker(db *modelmanager.DB, modelsDir string) *Checker {
	return &Checker{
		checks: []Check{
			{
				Name:    "model_store",
				CheckFn: func(ctx context.Context) error { return db.Ping() },
				RecoverFn: func(ctx context.Context) error {
					return nil // sqlite reopens its WAL on the next query automatically
				},
			},
			{
				Name: "disk_space",
				CheckFn: func(ctx context.Context) error {
					return checkDiskSpace(modelsDir, minFreeBytes)
				},
			},
			{
				Name: "model_integrity",
				CheckFn: func(ctx context.Context) error {
					return checkModelIntegrity(db)
				},
			},
		},
	}
}

// Observe registers a callback invoked after every check run with the full
// Status slice, for a caller that wants to mirror results elsewhere (e.g.
// a metrics gauge) without polling Statuses() on its own schedule.
func (c *Checker) Observe(fn func([]Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = fn
}

// Run checks everything once immediately, then again every interval until
// ctx is cancelled. Call in its own goroutine.
func (c *Checker) Run(ctx context.Context) {
	c.runAll(ctx)

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runAll(ctx)
		}
	}
}

func (c *Checker) runAll(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{Name: check.Name, CheckedAt: time.Now()}
		if err := check.CheckFn(ctx); err != nil {
			s.Healthy = false
			s.Error = err.Error()
			if check.RecoverFn != nil {
				_ = check.RecoverFn(ctx)
			}
		} else {
			s.Healthy = true
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	observer := c.observer
	c.mu.Unlock()

	if observer != nil {
		observer(statuses)
	}
}

// Statuses returns the latest result of every check.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy reports whether every check last passed.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

func checkDiskSpace(dir string, minBytes uint64) error {
	free, err := availableBytes(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // nothing downloaded yet, the dir is created on first Download
		}
		return fmt.Errorf("check disk space: %w", err)
	}
	if free < minBytes {
		return fmt.Errorf("only %d bytes free, want at least %d", free, minBytes)
	}
	return nil
}

// checkModelIntegrity compares every model the store believes is local
// against its actual file size on disk, catching a download that was
// truncated or a file removed out-of-band without going through Delete.
func checkModelIntegrity(db *modelmanager.DB) error {
	models, err := db.List()
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	for _, m := range models {
		info, err := os.Stat(m.LocalPath)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("model %s: recorded but missing at %s", m.ID, m.LocalPath)
			}
			return fmt.Errorf("model %s: %w", m.ID, err)
		}
		if info.Size() != m.SizeBytes {
			return fmt.Errorf("model %s: on-disk size %d does not match recorded size %d", m.ID, info.Size(), m.SizeBytes)
		}
	}
	return nil
}
