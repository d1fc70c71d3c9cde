// Package timer provides a cancellable, restartable repeating task whose interval can be
// adjusted while it runs, and a one-shot variant used for retries and deadlines.
//
// Start and Stop are idempotent: starting a running Timer or stopping a stopped one is a
// no-op, and Stop followed by Start never leaves two loops ticking.
//
// Usage Example:
//
//	sched := timer.NewScheduler(ctx, logger.GetLogger(), 1024)
//	t := timer.New(sched, "poll", time.Second, func() {
//	    _ = transport.Send([]byte("PING"))
//	})
//	if err := t.Start(); err != nil {
//	    // ErrSchedulerExhausted: back off and retry
//	}
//	defer t.Stop()
package timer

import (
	"context"
	"sync"
	"time"

	"github.com/arloliu/go-linkwatch/internal/pool"
)

// Func is the callback invoked when a Timer fires.
type Func func()

// Timer is a repeating or one-shot task driven by a Scheduler.
type Timer struct {
	name    string
	sched   *Scheduler
	fn      Func
	oneShot bool

	mu       sync.Mutex
	interval time.Duration
	running  bool
	gen      uint64
	stopCh   chan struct{}
	resetCh  chan struct{}
}

// New creates a repeating Timer that calls fn every interval once started.
// A nil scheduler selects DefaultScheduler.
func New(sched *Scheduler, name string, interval time.Duration, fn Func) *Timer {
	return newTimer(sched, name, interval, fn, false)
}

// NewOneShot creates a Timer that calls fn once, delay after Start, and then stops itself.
// It can be started again afterwards.
func NewOneShot(sched *Scheduler, name string, delay time.Duration, fn Func) *Timer {
	return newTimer(sched, name, delay, fn, true)
}

func newTimer(sched *Scheduler, name string, interval time.Duration, fn Func, oneShot bool) *Timer {
	if sched == nil {
		sched = DefaultScheduler()
	}

	return &Timer{
		name:     name,
		sched:    sched,
		fn:       fn,
		oneShot:  oneShot,
		interval: interval,
	}
}

// Name returns the timer name used in logs.
func (t *Timer) Name() string { return t.name }

// Interval returns the current interval (or delay for one-shot timers).
func (t *Timer) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.interval
}

// Running reports whether the timer loop is active.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.running
}

// Start starts the timer loop. It is a no-op if the timer is already running.
//
// It returns ErrSchedulerExhausted or ErrSchedulerStopped when the scheduler can't run
// another goroutine, and ErrInvalidInterval for a repeating timer without a positive interval.
func (t *Timer) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.startLocked()
}

// Stop stops the timer loop. It is a no-op if the timer is not running.
//
// Stop doesn't wait for a callback that is already executing.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
}

// Restart stops the timer if it is running and starts it again, so the next tick is a
// full interval from now.
func (t *Timer) Restart() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()

	return t.startLocked()
}

// SetInterval changes the interval. A running timer restarts its countdown with the new
// interval from now.
func (t *Timer) SetInterval(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.interval = d
	if t.running {
		select {
		case t.resetCh <- struct{}{}:
		default: // a reset is already pending and will pick up the new interval
		}
	}
}

// Reschedule sets the interval and makes sure the timer is running, so it next fires d from now.
func (t *Timer) Reschedule(d time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.interval = d
	if t.running {
		select {
		case t.resetCh <- struct{}{}:
		default:
		}

		return nil
	}

	return t.startLocked()
}

func (t *Timer) startLocked() error {
	if t.running {
		return nil
	}
	if !t.oneShot && t.interval <= 0 {
		return ErrInvalidInterval
	}

	gen := t.gen + 1
	stopCh := make(chan struct{})
	resetCh := make(chan struct{}, 1)

	err := t.sched.spawn(t.name, func(ctx context.Context) {
		t.loop(ctx, gen, stopCh, resetCh)
	})
	if err != nil {
		return err
	}

	t.gen = gen
	t.running = true
	t.stopCh = stopCh
	t.resetCh = resetCh

	return nil
}

func (t *Timer) stopLocked() {
	if !t.running {
		return
	}
	t.running = false
	t.gen++
	close(t.stopCh)
}

func (t *Timer) loop(ctx context.Context, gen uint64, stopCh <-chan struct{}, resetCh <-chan struct{}) {
	tm := pool.AcquireTimer(t.currentInterval())
	defer pool.ReleaseTimer(tm)

	for {
		select {
		case <-ctx.Done():
			t.exit(gen)
			return

		case <-stopCh:
			return

		case <-resetCh:
			tm.Reset(t.currentInterval())

		case <-tm.C:
			if !t.fire(gen) {
				return
			}
			tm.Reset(t.currentInterval())
		}
	}
}

// fire runs the callback if gen is still the live generation and reports whether the loop continues.
func (t *Timer) fire(gen uint64) bool {
	t.mu.Lock()
	if !t.running || t.gen != gen {
		t.mu.Unlock()
		return false
	}
	if t.oneShot {
		t.running = false
		t.gen++
	}
	t.mu.Unlock()

	t.sched.callWithRecover(t.name, t.fn)

	return !t.oneShot
}

// exit marks the timer stopped after its scheduler was cancelled.
func (t *Timer) exit(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running && t.gen == gen {
		t.running = false
		t.gen++
		close(t.stopCh)
	}
}

func (t *Timer) currentInterval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.interval < 0 {
		return 0
	}

	return t.interval
}
