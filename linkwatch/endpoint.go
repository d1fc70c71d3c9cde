package linkwatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arloliu/go-linkwatch/internal/pool"
	"github.com/arloliu/go-linkwatch/internal/queue"
	"github.com/arloliu/go-linkwatch/logger"
	"github.com/arloliu/go-linkwatch/timer"
)

// endpoint is the state record of one registered endpoint.
//
// mu guards the resolver state, the counters and the session set. Side effects and
// callbacks of status changes run outside mu, in order, by one drainer at a time, while
// holding cbMu.
type endpoint struct {
	eng    *Engine
	handle Handle
	kind   Kind
	cfg    *EndpointConfig
	logger logger.Logger
	ctx    context.Context
	cancel context.CancelFunc

	transport Transport
	client    ClientTransport
	listener  ListenerTransport

	prevRecv    ReceiveHandler
	prevSession SessionHandler
	subscriber  StatusSubscriber
	detector    bool

	pollTimer  *timer.Timer // nil without a poll command
	retryTimer *timer.Timer // reconnect for clients, listen retry for listeners
	evictTimer *timer.Timer // listeners only

	mu             sync.Mutex
	closed         bool
	draining       bool
	transportState State
	logicalState   State
	published      State
	everConnected  bool
	sendCounter    int
	pending        *queue.Queue[event]
	sessions       map[SessionID]time.Time
	oldest         SessionID
	sending        sync.WaitGroup // writes in flight, see beginSend

	cbMu           sync.Mutex
	gaugeConnected bool // guarded by cbMu
}

func newEndpoint(e *Engine, h Handle, kind Kind, cfg *EndpointConfig, t Transport,
	client ClientTransport, listener ListenerTransport,
) *endpoint {
	ep := &endpoint{
		eng:       e,
		handle:    h,
		kind:      kind,
		cfg:       cfg,
		transport: t,
		client:    client,
		listener:  listener,
		pending:   queue.New[event](4),
	}
	ep.ctx, ep.cancel = context.WithCancel(e.ctx)

	ep.logger = e.logger.With("handle", uint64(h), "kind", kind.String(), "address", cfg.address)
	if cfg.alias != "" {
		ep.logger = ep.logger.With("alias", cfg.alias)
	}

	if sub, ok := cfg.driver.(StatusSubscriber); ok {
		ep.subscriber = sub
	}
	ep.detector = kind.IsClient() && ep.subscriber == nil && cfg.disconnectLimit > 0

	if kind.IsListener() {
		ep.sessions = make(map[SessionID]time.Time)
		ep.retryTimer = timer.NewOneShot(e.sched, fmt.Sprintf("listen-%d", h), cfg.listenRetryInterval, ep.listen)
		ep.evictTimer = timer.NewOneShot(e.sched, fmt.Sprintf("evict-%d", h), cfg.idleTimeout, ep.evict)

		return ep
	}

	ep.retryTimer = timer.NewOneShot(e.sched, fmt.Sprintf("reconnect-%d", h), cfg.retryInterval, ep.reconnect)
	if cfg.pollCommand != nil {
		ep.pollTimer = timer.New(e.sched, fmt.Sprintf("poll-%d", h), cfg.pollInterval, ep.poll)
	}

	return ep
}

// attach installs the engine hooks on the transport and schedules the first connect or listen attempt.
func (ep *endpoint) attach() {
	if ep.listener != nil {
		ep.prevSession = ep.listener.SessionHandler()
		ep.listener.SetSessionHandler(SessionHandler{
			Opened: ep.sessionOpened,
			Data:   ep.sessionData,
			Closed: ep.sessionClosed,
		})
	} else {
		ep.prevRecv = ep.client.ReceiveHandler()
		ep.client.SetReceiveHandler(ep.onReceive)
	}
	ep.transport.SetStateHandler(ep.onTransportState)

	if ep.subscriber != nil {
		ep.subscriber.SubscribeStatus(ConnectionStatusName, ep.onDriverStatus)
	}

	ep.armRetry(0)
}

// detach restores the hooks that were installed before attach.
func (ep *endpoint) detach() {
	ep.transport.SetStateHandler(nil)
	if ep.listener != nil {
		ep.listener.SetSessionHandler(ep.prevSession)
	} else {
		ep.client.SetReceiveHandler(ep.prevRecv)
	}
}

func (ep *endpoint) shutdown() {
	ep.mu.Lock()
	ep.closed = true
	ep.pending.Reset()
	sessions := make([]SessionID, 0, len(ep.sessions))
	for id := range ep.sessions {
		sessions = append(sessions, id)
	}
	clear(ep.sessions)
	ep.oldest = ""
	ep.mu.Unlock()

	ep.cancel()
	ep.sending.Wait()

	// waits for an in-flight dispatch
	ep.cbMu.Lock()
	ep.stopTimers()
	if ep.gaugeConnected {
		ep.gaugeConnected = false
		ep.eng.metrics.addConnectedGauge(-1)
	}
	ep.cbMu.Unlock()

	ep.detach()

	if ep.listener != nil {
		ep.eng.metrics.addSessionGauge(-int64(len(sessions)))
		for _, id := range sessions {
			if err := ep.listener.CloseSession(id); err != nil {
				ep.logger.Debug("failed to close session", "session", string(id), "error", err)
			}
		}
	}
}

func (ep *endpoint) stopTimers() {
	ep.retryTimer.Stop()
	if ep.pollTimer != nil {
		ep.pollTimer.Stop()
	}
	if ep.evictTimer != nil {
		ep.evictTimer.Stop()
	}
}

func (ep *endpoint) isClosed() bool {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	return ep.closed
}

func (ep *endpoint) info() EndpointInfo {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	return EndpointInfo{
		Handle:      ep.handle,
		Kind:        ep.kind,
		Address:     ep.cfg.address,
		Alias:       ep.cfg.alias,
		Transport:   ep.transportState,
		Logical:     ep.logicalState,
		Status:      ep.published,
		SendCounter: ep.sendCounter,
		Sessions:    len(ep.sessions),
	}
}

// startTimer starts t, retrying in the background while the scheduler is exhausted and want holds.
func (ep *endpoint) startTimer(t *timer.Timer, want func() bool) {
	ep.handleStartErr(t, t.Start(), want)
}

func (ep *endpoint) handleStartErr(t *timer.Timer, err error, want func() bool) {
	if err == nil {
		return
	}
	if !errors.Is(err, timer.ErrSchedulerExhausted) {
		ep.logger.Debug("timer not started", "timer", t.Name(), "error", err)
		return
	}

	ep.eng.metrics.incTimerStartRetryCount()
	go ep.retryStart(t, want)
}

func (ep *endpoint) retryStart(t *timer.Timer, want func() bool) {
	delay := ep.eng.cfg.timerRetryMin
	tm := pool.AcquireTimer(delay)
	defer pool.ReleaseTimer(tm)

	for {
		select {
		case <-ep.ctx.Done():
			return
		case <-tm.C:
		}

		if !want() {
			return
		}

		err := t.Start()
		if err == nil {
			// Block may have stopped the timers between want and Start
			if ep.isClosed() {
				t.Stop()
			}

			return
		}
		if !errors.Is(err, timer.ErrSchedulerExhausted) {
			ep.logger.Debug("timer not started", "timer", t.Name(), "error", err)
			return
		}

		ep.eng.metrics.incTimerStartRetryCount()
		delay = min(delay*2, ep.eng.cfg.timerRetryMax)
		tm.Reset(delay)
	}
}
