package timer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arloliu/go-linkwatch/logger"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T, maxTimers int) *Scheduler {
	t.Helper()

	sched := NewScheduler(context.Background(), logger.NewMockLogger().AllowAll(), maxTimers)
	t.Cleanup(func() {
		sched.Stop()
		sched.Wait()
	})

	return sched
}

func TestTimer_Repeating(t *testing.T) {
	require := require.New(t)
	sched := newTestScheduler(t, 0)

	var ticks atomic.Int32
	tm := New(sched, "repeat", 20*time.Millisecond, func() { ticks.Add(1) })

	require.NoError(tm.Start())
	require.True(tm.Running())
	require.Eventually(func() bool { return ticks.Load() >= 3 }, time.Second, 5*time.Millisecond)

	tm.Stop()
	require.False(tm.Running())

	stopped := ticks.Load()
	time.Sleep(80 * time.Millisecond)
	// at most one callback could have been in flight while stopping
	require.LessOrEqual(ticks.Load(), stopped+1)
}

func TestTimer_IdempotentStartStop(t *testing.T) {
	require := require.New(t)
	sched := newTestScheduler(t, 0)

	var ticks atomic.Int32
	tm := New(sched, "idempotent", 50*time.Millisecond, func() { ticks.Add(1) })

	// stopping a timer that never ran is a no-op
	tm.Stop()
	require.False(tm.Running())

	require.NoError(tm.Start())
	require.NoError(tm.Start())
	require.Equal(1, sched.TaskCount())

	time.Sleep(230 * time.Millisecond)
	// a single loop ticks about 4 times in 230ms, two loops would tick about 8 times
	require.InDelta(4, ticks.Load(), 1)

	tm.Stop()
	tm.Stop()
	require.Eventually(func() bool { return sched.TaskCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestTimer_StopStartNoDoubleSchedule(t *testing.T) {
	require := require.New(t)
	sched := newTestScheduler(t, 0)

	var ticks atomic.Int32
	tm := New(sched, "restart", 50*time.Millisecond, func() { ticks.Add(1) })

	for i := 0; i < 5; i++ {
		require.NoError(tm.Start())
		tm.Stop()
	}
	require.NoError(tm.Start())

	require.Eventually(func() bool { return sched.TaskCount() == 1 }, time.Second, 5*time.Millisecond)

	time.Sleep(230 * time.Millisecond)
	require.InDelta(4, ticks.Load(), 1)
	tm.Stop()
}

func TestTimer_SetInterval(t *testing.T) {
	require := require.New(t)
	sched := newTestScheduler(t, 0)

	fired := make(chan time.Time, 10)
	tm := New(sched, "interval", time.Hour, func() { fired <- time.Now() })
	require.NoError(tm.Start())

	begin := time.Now()
	tm.SetInterval(30 * time.Millisecond)
	require.Equal(30*time.Millisecond, tm.Interval())

	select {
	case at := <-fired:
		require.GreaterOrEqual(at.Sub(begin), 25*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("timer should fire with the adjusted interval")
	}
	tm.Stop()
}

func TestTimer_InvalidInterval(t *testing.T) {
	sched := newTestScheduler(t, 0)

	tm := New(sched, "invalid", 0, func() {})
	require.ErrorIs(t, tm.Start(), ErrInvalidInterval)
	require.False(t, tm.Running())
}

func TestTimer_OneShot(t *testing.T) {
	require := require.New(t)
	sched := newTestScheduler(t, 0)

	var fired atomic.Int32
	tm := NewOneShot(sched, "once", 20*time.Millisecond, func() { fired.Add(1) })

	require.NoError(tm.Start())
	require.Eventually(func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(func() bool { return !tm.Running() }, time.Second, 5*time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	require.Equal(int32(1), fired.Load())

	// a one-shot timer can be armed again
	require.NoError(tm.Reschedule(0))
	require.Eventually(func() bool { return fired.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestTimer_OneShotRearmFromCallback(t *testing.T) {
	require := require.New(t)
	sched := newTestScheduler(t, 0)

	var fired atomic.Int32
	var tm *Timer
	tm = NewOneShot(sched, "rearm", 10*time.Millisecond, func() {
		if fired.Add(1) < 3 {
			_ = tm.Start()
		}
	})

	require.NoError(tm.Start())
	require.Eventually(func() bool { return fired.Load() == 3 }, time.Second, 5*time.Millisecond)
	require.Eventually(func() bool { return !tm.Running() }, time.Second, 5*time.Millisecond)
}

func TestTimer_Reschedule(t *testing.T) {
	require := require.New(t)
	sched := newTestScheduler(t, 0)

	fired := make(chan time.Time, 1)
	tm := NewOneShot(sched, "deadline", time.Hour, func() { fired <- time.Now() })
	require.NoError(tm.Start())

	begin := time.Now()
	require.NoError(tm.Reschedule(40 * time.Millisecond))

	select {
	case at := <-fired:
		require.GreaterOrEqual(at.Sub(begin), 35*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("rescheduled timer should fire")
	}
}

func TestTimer_PanicRecovered(t *testing.T) {
	sched := newTestScheduler(t, 0)

	var ticks atomic.Int32
	tm := New(sched, "panic", 10*time.Millisecond, func() {
		ticks.Add(1)
		panic("boom")
	})
	require.NoError(t, tm.Start())
	require.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, 5*time.Millisecond)
	tm.Stop()
}

func TestScheduler_Exhausted(t *testing.T) {
	require := require.New(t)
	sched := newTestScheduler(t, 1)

	first := New(sched, "first", time.Hour, func() {})
	second := New(sched, "second", time.Hour, func() {})

	require.NoError(first.Start())
	require.ErrorIs(second.Start(), ErrSchedulerExhausted)
	require.False(second.Running())

	first.Stop()
	require.Eventually(func() bool { return second.Start() == nil }, time.Second, 5*time.Millisecond)
	second.Stop()
}

func TestScheduler_Stop(t *testing.T) {
	require := require.New(t)
	sched := NewScheduler(context.Background(), logger.NewMockLogger().AllowAll(), 0)

	tm := New(sched, "cancelled", time.Hour, func() {})
	require.NoError(tm.Start())

	sched.Stop()
	sched.Wait()

	require.Equal(0, sched.TaskCount())
	require.False(tm.Running())
	require.ErrorIs(tm.Start(), ErrSchedulerStopped)
}
