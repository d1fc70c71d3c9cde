// Package pool recycles the short-lived time.Timer values of the timer loops and start retries.
package pool

import (
	"sync"
	"time"
)

var timers sync.Pool

// AcquireTimer returns a timer that fires after d. Release it with ReleaseTimer when done.
func AcquireTimer(d time.Duration) *time.Timer {
	if v := timers.Get(); v != nil {
		t, _ := v.(*time.Timer)
		// since Go 1.23 Reset discards a pending value on t.C
		t.Reset(d)

		return t
	}

	return time.NewTimer(d)
}

// ReleaseTimer stops t and returns it to the pool. t must not be used afterwards.
func ReleaseTimer(t *time.Timer) {
	t.Stop()
	timers.Put(t)
}
