package timer

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-linkwatch/logger"
)

// Scheduler runs the goroutines behind Timers.
//
// It bounds the number of concurrently running timer goroutines when created with a
// positive limit; Start on a Timer fails with ErrSchedulerExhausted once every slot is taken.
// Stopping the scheduler cancels every running timer.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger logger.Logger
	slots  chan struct{} // nil means unbounded
	wg     sync.WaitGroup
	count  atomic.Int32
}

var defaultScheduler = NewScheduler(context.Background(), logger.GetLogger(), 0)

// DefaultScheduler returns the process-wide unbounded scheduler.
func DefaultScheduler() *Scheduler {
	return defaultScheduler
}

// NewScheduler creates a Scheduler whose timers stop when ctx is done.
// A maxTimers of zero or less means no limit.
func NewScheduler(ctx context.Context, l logger.Logger, maxTimers int) *Scheduler {
	if l == nil {
		l = logger.GetLogger()
	}
	s := &Scheduler{logger: l}
	s.ctx, s.cancel = context.WithCancel(ctx)
	if maxTimers > 0 {
		s.slots = make(chan struct{}, maxTimers)
	}

	return s
}

// TaskCount returns the number of currently running timer goroutines.
func (s *Scheduler) TaskCount() int {
	return int(s.count.Load())
}

// Stop cancels every timer goroutine started by the scheduler.
func (s *Scheduler) Stop() {
	s.cancel()
}

// Wait waits for all timer goroutines to terminate.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// spawn runs task in a new goroutine if a slot is available.
func (s *Scheduler) spawn(name string, task func(ctx context.Context)) error {
	select {
	case <-s.ctx.Done():
		return ErrSchedulerStopped
	default:
	}

	if s.slots != nil {
		select {
		case s.slots <- struct{}{}:
		default:
			s.logger.Debug("no free scheduler slot", "name", name, "task_count", s.TaskCount())
			return ErrSchedulerExhausted
		}
	}

	s.wg.Add(1)
	s.count.Add(1)
	go func() {
		defer func() {
			s.count.Add(-1)
			if s.slots != nil {
				<-s.slots
			}
			s.wg.Done()
		}()

		task(s.ctx)
	}()

	return nil
}

// callWithRecover calls a timer callback with panic protection.
func (s *Scheduler) callWithRecover(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in timer callback", "name", name, "panic", r)
		}
	}()

	fn()
}
