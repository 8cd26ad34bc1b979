package automl

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// budget is the shared worker budget of a run. Every fold-fit and refit
// holds one slot while it runs, whichever family it belongs to, so the
// number of concurrent fits never exceeds size.
type budget struct {
	sem  *semaphore.Weighted
	size int
}

func newBudget(size int) *budget {
	return &budget{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// do runs fn while holding one slot. It only fails when ctx is done before
// a slot frees up, in which case fn is not called.
func (b *budget) do(ctx context.Context, fn func()) error {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer b.sem.Release(1)

	fn()

	return nil
}

// familyClock enforces FamilyTimeout. The clock starts the first time the
// family holds a budget slot, so time spent queued behind other families
// is not charged to it. Expiry cancels the family context with
// ErrFamilyTimeout as the cause.
type familyClock struct {
	timeout time.Duration
	cancel  context.CancelCauseFunc
	once    sync.Once
	timer   *time.Timer
}

// newFamilyClock derives the family context from ctx. A non-positive
// timeout never fires.
func newFamilyClock(ctx context.Context, timeout time.Duration) (context.Context, *familyClock) {
	ctx, cancel := context.WithCancelCause(ctx)

	return ctx, &familyClock{timeout: timeout, cancel: cancel}
}

// start arms the clock. Only the first call has an effect.
func (c *familyClock) start() {
	if c.timeout <= 0 {
		return
	}

	c.once.Do(func() {
		c.timer = time.AfterFunc(c.timeout, func() { c.cancel(ErrFamilyTimeout) })
	})
}

// stop disarms the clock and releases the family context.
func (c *familyClock) stop() {
	c.once.Do(func() {})

	if c.timer != nil {
		c.timer.Stop()
	}

	c.cancel(context.Canceled)
}

// timedOut reports whether ctx, a context returned by newFamilyClock, was
// cancelled by the clock.
func timedOut(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrFamilyTimeout)
}
