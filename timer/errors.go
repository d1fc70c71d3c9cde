package timer

import "errors"

var (
	// ErrSchedulerExhausted indicates that the scheduler has no free slot for another timer goroutine.
	// The caller is expected to back off and retry.
	ErrSchedulerExhausted = errors.New("scheduler exhausted")

	// ErrSchedulerStopped indicates that the scheduler has been stopped and accepts no more timers.
	ErrSchedulerStopped = errors.New("scheduler stopped")

	// ErrInvalidInterval indicates a non-positive interval for a repeating timer.
	ErrInvalidInterval = errors.New("invalid interval, should be greater than 0")
)
