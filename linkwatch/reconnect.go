package linkwatch

import "time"

// armRetry schedules the next connect (clients) or listen (listeners) attempt after delay.
// It is a no-op while an attempt is already scheduled.
func (ep *endpoint) armRetry(delay time.Duration) {
	if ep.retryTimer.Running() {
		return
	}

	ep.retryTimer.SetInterval(delay)
	ep.startTimer(ep.retryTimer, ep.wantsRetry)
}

func (ep *endpoint) retryDelay() time.Duration {
	if ep.kind.IsListener() {
		return ep.cfg.listenRetryInterval
	}

	return ep.cfg.retryInterval
}

func (ep *endpoint) wantsRetry() bool {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	return !ep.closed && ep.published != StateConnected
}

func (ep *endpoint) wantsPoll() bool {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	if ep.closed {
		return false
	}

	return ep.published == StateConnected || ep.kind != StreamClient
}

// reconnect is the retry timer callback of clients.
func (ep *endpoint) reconnect() {
	if !ep.wantsRetry() {
		return
	}

	if l := ep.eng.limiter; l != nil && !l.Allow() {
		ep.eng.metrics.incReconnectDeferredCount()
		ep.logger.Debug("connect attempt deferred", "method", "reconnect")
		ep.armRetry(ep.cfg.retryInterval)

		return
	}

	ep.eng.metrics.incReconnectAttemptCount()
	err := ep.client.Connect(ep.ctx, ep.cfg.connectTimeout)
	if ep.ctx.Err() != nil {
		return
	}
	if err != nil {
		ep.logger.Warn("failed to connect", "method", "reconnect", "error", err)
		ep.report(LayerTransport, StateDisconnected)

		return
	}

	ep.logger.Info("connected", "method", "reconnect")

	ep.mu.Lock()
	if ep.closed {
		ep.mu.Unlock()
		return
	}
	ep.updateLocked(LayerTransport, StateConnected, true)
	ep.mu.Unlock()

	ep.drain()
}

// listen is the retry timer callback of listeners.
func (ep *endpoint) listen() {
	if !ep.wantsRetry() {
		return
	}

	ep.eng.metrics.incListenAttemptCount()
	if err := ep.listener.StartListen(); err != nil {
		ep.logger.Warn("failed to listen", "method", "listen", "error", err)
		ep.report(LayerTransport, StateDisconnected)

		return
	}

	ep.logger.Info("listening", "method", "listen")
	ep.report(LayerTransport, StateConnected)
}

// poll is the poll timer callback.
func (ep *endpoint) poll() {
	if ep.isClosed() {
		return
	}

	ep.eng.metrics.incPollSendCount()
	if err := ep.send(ep.cfg.pollCommand); err != nil {
		ep.logger.Debug("poll command not sent", "error", err)
	}
}
