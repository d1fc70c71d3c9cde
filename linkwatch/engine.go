package linkwatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"

	"github.com/arloliu/go-linkwatch/logger"
	"github.com/arloliu/go-linkwatch/timer"
)

// Engine keeps a dynamic set of endpoints alive and publishes their connection status.
//
// An Engine is safe for concurrent use. Several engines may coexist in one process; handles
// are only meaningful to the engine that issued them.
type Engine struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *engineConfig
	logger logger.Logger

	sched    *timer.Scheduler
	ownSched bool
	limiter  *rate.Limiter

	endpoints  *xsync.MapOf[Handle, *endpoint]
	nextHandle atomic.Uint64
	closed     atomic.Bool

	handlerMu sync.RWMutex
	handler   StatusHandler

	metrics EngineMetrics
}

// NewEngine creates an engine. Every timer of the engine stops when ctx is done.
func NewEngine(ctx context.Context, opts ...EngineOption) *Engine {
	cfg := newEngineConfig(opts)

	e := &Engine{
		cfg:       cfg,
		logger:    cfg.logger,
		endpoints: xsync.NewMapOf[Handle, *endpoint](),
		handler:   cfg.handler,
	}
	e.ctx, e.cancel = context.WithCancel(ctx)

	if cfg.sched != nil {
		e.sched = cfg.sched
	} else {
		e.sched = timer.NewScheduler(e.ctx, e.logger, cfg.maxTimers)
		e.ownSched = true
	}

	if cfg.reconnectLimit != rate.Inf {
		e.limiter = rate.NewLimiter(cfg.reconnectLimit, cfg.reconnectBurst)
	}

	return e
}

// SetStatusHandler replaces the handler that receives every published status change.
// A nil handler discards changes.
func (e *Engine) SetStatusHandler(h StatusHandler) {
	e.handlerMu.Lock()
	defer e.handlerMu.Unlock()

	e.handler = h
}

// Maintain registers an endpoint and starts keeping it alive.
//
// kind selects the policy; client kinds require a ClientTransport and StreamListener requires
// a ListenerTransport. Maintain doesn't block: the first connect (or listen) attempt runs on
// the engine timers right away, and its outcome is reported through the status handler.
//
// It returns an error wrapping ErrInvalidConfig when the registration violates the policy,
// and ErrEngineClosed after Close.
func (e *Engine) Maintain(t Transport, kind Kind, opts ...EndpointOption) (Handle, error) {
	if e.closed.Load() {
		return 0, ErrEngineClosed
	}
	if t == nil {
		return 0, fmt.Errorf("%w: nil transport", ErrInvalidConfig)
	}
	if !kind.valid() {
		return 0, fmt.Errorf("%w: unknown endpoint kind %d", ErrInvalidConfig, kind)
	}

	var (
		client   ClientTransport
		listener ListenerTransport
		ok       bool
	)
	if kind.IsListener() {
		if listener, ok = t.(ListenerTransport); !ok {
			return 0, fmt.Errorf("%w: %s requires a ListenerTransport", ErrInvalidConfig, kind)
		}
	} else if client, ok = t.(ClientTransport); !ok {
		return 0, fmt.Errorf("%w: %s requires a ClientTransport", ErrInvalidConfig, kind)
	}

	cfg, err := newEndpointConfig(kind, opts)
	if err != nil {
		return 0, err
	}

	h := Handle(e.nextHandle.Add(1))
	ep := newEndpoint(e, h, kind, cfg, t, client, listener)
	e.endpoints.Store(h, ep)
	e.metrics.addEndpointGauge(1)

	ep.logger.Info("maintain endpoint", "method", "Maintain",
		"poll_interval", cfg.pollInterval, "disconnect_limit", cfg.disconnectLimit,
		"detector", ep.detector)

	ep.attach()

	return h, nil
}

// Block deregisters an endpoint.
//
// It stops the endpoint timers, detaches the engine hooks from the transport, closes every
// session of a listener and waits for an in-flight status callback and for writes in flight
// on the endpoint. No status callback for h fires, and no engine write reaches the transport,
// after Block returns. The transport itself is not closed.
//
// Block must not be called from the status handler for the same endpoint.
func (e *Engine) Block(h Handle) error {
	ep, ok := e.endpoints.LoadAndDelete(h)
	if !ok {
		return ErrUnknownHandle
	}

	ep.shutdown()
	e.metrics.addEndpointGauge(-1)
	ep.logger.Info("block endpoint", "method", "Block")

	return nil
}

// Send writes p through the endpoint send path, counting it for the silent-failure detector.
//
// A failed send on a stream client reports its transport as Disconnected once a connect
// attempt has completed; before that the outcome is left to the pending attempt.
// The returned error wraps ErrUnknownHandle when h is not registered.
func (e *Engine) Send(h Handle, p []byte) error {
	ep, ok := e.endpoints.Load(h)
	if !ok {
		return ErrUnknownHandle
	}

	return ep.send(p)
}

// SendTo writes p to one session of a listener endpoint.
func (e *Engine) SendTo(h Handle, id SessionID, p []byte) error {
	ep, ok := e.endpoints.Load(h)
	if !ok {
		return ErrUnknownHandle
	}
	if ep.listener == nil {
		return ErrNotListener
	}

	return ep.listener.SendTo(id, p)
}

// ReportTransport feeds the transport layer of the endpoint's resolver.
// Reports for unknown handles are ignored.
func (e *Engine) ReportTransport(h Handle, state State) {
	ep, ok := e.endpoints.Load(h)
	if !ok {
		e.logger.Debug("ignore transport report for unknown handle", "handle", h, "state", state)
		return
	}

	ep.report(LayerTransport, state)
}

// ReportLogical feeds the logical layer of the endpoint's resolver.
// Reports for unknown handles and for listeners, which have no logical layer, are ignored.
func (e *Engine) ReportLogical(h Handle, state State) {
	ep, ok := e.endpoints.Load(h)
	if !ok {
		e.logger.Debug("ignore logical report for unknown handle", "handle", h, "state", state)
		return
	}
	if ep.kind.IsListener() {
		ep.logger.Debug("ignore logical report for listener", "state", state)
		return
	}

	ep.report(LayerLogical, state)
}

// EndpointInfo is a snapshot of an endpoint's state.
type EndpointInfo struct {
	Handle    Handle
	Kind      Kind
	Address   string
	Alias     string
	Transport State
	Logical   State
	Status    State
	// SendCounter is the number of sends since the last inbound data.
	SendCounter int
	// Sessions is the number of live sessions of a listener.
	Sessions int
}

// Info returns a snapshot of the endpoint, false if h is not registered.
func (e *Engine) Info(h Handle) (EndpointInfo, bool) {
	ep, ok := e.endpoints.Load(h)
	if !ok {
		return EndpointInfo{}, false
	}

	return ep.info(), true
}

// Handles returns the handles of all registered endpoints, in no particular order.
func (e *Engine) Handles() []Handle {
	handles := make([]Handle, 0, e.endpoints.Size())
	e.endpoints.Range(func(h Handle, _ *endpoint) bool {
		handles = append(handles, h)
		return true
	})

	return handles
}

// Len returns the number of registered endpoints.
func (e *Engine) Len() int {
	return e.endpoints.Size()
}

// Metrics returns the engine metrics.
func (e *Engine) Metrics() *EngineMetrics {
	return &e.metrics
}

// Close blocks every endpoint and stops the engine. Maintain fails with ErrEngineClosed afterwards.
func (e *Engine) Close() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}

	for _, h := range e.Handles() {
		_ = e.Block(h)
	}

	e.cancel()
	if e.ownSched {
		e.sched.Stop()
		e.sched.Wait()
	}
}

func (e *Engine) statusHandler() StatusHandler {
	e.handlerMu.RLock()
	defer e.handlerMu.RUnlock()

	return e.handler
}
