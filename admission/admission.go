// Package admission bounds the number of concurrently running transform
// workers. Acquire blocks while the ceiling is reached; this stalls the
// dispatch loop and is the engine's flow-control mechanism, so no queue is
// ever placed in front of it.
package admission

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/wmo-im/wis2node/errors"
)

// Controller enforces a ceiling on concurrently held worker slots
type Controller struct {
	ceiling int
	sem     *semaphore.Weighted
	active  atomic.Int64

	// onChange, when set, observes the active slot count after each
	// acquire and release
	onChange func(active int64)
}

// New creates a controller. A ceiling <= 0 defaults to the number of
// logical CPUs.
func New(ceiling int) *Controller {
	if ceiling <= 0 {
		ceiling = runtime.NumCPU()
	}
	return &Controller{
		ceiling: ceiling,
		sem:     semaphore.NewWeighted(int64(ceiling)),
	}
}

// OnChange registers an observer of the active slot count
func (c *Controller) OnChange(fn func(active int64)) {
	c.onChange = fn
}

// Ceiling returns the configured slot ceiling
func (c *Controller) Ceiling() int {
	return c.ceiling
}

// Active returns the number of slots currently held
func (c *Controller) Active() int64 {
	return c.active.Load()
}

// Acquire reserves one worker slot, blocking while the ceiling is reached.
// There is no upper bound on how long this may block; that is the intended
// backpressure discipline.
func (c *Controller) Acquire(ctx context.Context) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return errors.WrapTransient(err, "Controller", "Acquire", "acquire worker slot")
	}
	n := c.active.Add(1)
	if c.onChange != nil {
		c.onChange(n)
	}
	return nil
}

// Release frees one slot. Must be called exactly once per successful
// Acquire, on every worker exit path including panic.
func (c *Controller) Release() {
	n := c.active.Add(-1)
	c.sem.Release(1)
	if c.onChange != nil {
		c.onChange(n)
	}
}
