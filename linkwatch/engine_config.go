package linkwatch

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/arloliu/go-linkwatch/logger"
	"github.com/arloliu/go-linkwatch/timer"
)

type engineConfig struct {
	logger    logger.Logger
	sched     *timer.Scheduler
	maxTimers int
	connLog   ConnLog
	handler   StatusHandler

	reconnectLimit rate.Limit
	reconnectBurst int

	timerRetryMin time.Duration
	timerRetryMax time.Duration
}

func newEngineConfig(opts []EngineOption) *engineConfig {
	cfg := &engineConfig{
		logger:         logger.GetLogger(),
		reconnectLimit: rate.Inf,
		timerRetryMin:  20 * time.Millisecond,
		timerRetryMax:  2 * time.Second,
	}

	for _, opt := range opts {
		if opt != nil {
			opt.apply(cfg)
		}
	}

	return cfg
}

// EngineOption represents a functional option for configuring an Engine.
type EngineOption interface {
	apply(*engineConfig)
}

type engineOptFunc struct {
	applyFunc func(*engineConfig)
}

func (o *engineOptFunc) apply(cfg *engineConfig) { o.applyFunc(cfg) }

func newEngineOptFunc(f func(*engineConfig)) *engineOptFunc {
	return &engineOptFunc{applyFunc: f}
}

// WithLogger sets the logger of the engine. A nil logger keeps the package default.
func WithLogger(l logger.Logger) EngineOption {
	return newEngineOptFunc(func(cfg *engineConfig) {
		if l != nil {
			cfg.logger = l
		}
	})
}

// WithScheduler runs the engine timers on sched. The engine doesn't stop a given scheduler on Close.
func WithScheduler(sched *timer.Scheduler) EngineOption {
	return newEngineOptFunc(func(cfg *engineConfig) {
		cfg.sched = sched
	})
}

// WithMaxTimers bounds the number of concurrently running timer goroutines of an engine owned
// scheduler. It is ignored when WithScheduler is given.
func WithMaxTimers(n int) EngineOption {
	return newEngineOptFunc(func(cfg *engineConfig) {
		cfg.maxTimers = n
	})
}

// WithConnLog sets where a record is written for every published status change.
func WithConnLog(l ConnLog) EngineOption {
	return newEngineOptFunc(func(cfg *engineConfig) {
		cfg.connLog = l
	})
}

// WithStatusHandler sets the initial status handler, see Engine.SetStatusHandler.
func WithStatusHandler(h StatusHandler) EngineOption {
	return newEngineOptFunc(func(cfg *engineConfig) {
		cfg.handler = h
	})
}

// WithReconnectRate bounds the connect attempts of all endpoints of the engine to limit per
// second with the given burst. A denied attempt is deferred by one retry interval.
//
// The default is no limit.
func WithReconnectRate(limit rate.Limit, burst int) EngineOption {
	return newEngineOptFunc(func(cfg *engineConfig) {
		cfg.reconnectLimit = limit
		cfg.reconnectBurst = burst
	})
}

// WithTimerRetryBackoff sets the backoff used when a timer can't start because the
// scheduler is exhausted. The delay doubles from minDelay up to maxDelay.
func WithTimerRetryBackoff(minDelay, maxDelay time.Duration) EngineOption {
	return newEngineOptFunc(func(cfg *engineConfig) {
		if minDelay > 0 {
			cfg.timerRetryMin = minDelay
		}
		if maxDelay >= cfg.timerRetryMin {
			cfg.timerRetryMax = maxDelay
		}
	})
}
