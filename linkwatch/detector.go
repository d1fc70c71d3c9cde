package linkwatch

import "fmt"

// send is the engine send path of an endpoint.
//
// For clients every send counts as unanswered until the next inbound data. With the
// silent-failure detector installed, the send that takes the counter past the disconnect
// limit reports the logical layer Disconnected before the write.
func (ep *endpoint) send(p []byte) error {
	ep.mu.Lock()
	if ep.closed {
		ep.mu.Unlock()
		return ErrUnknownHandle
	}

	tripped := false
	if ep.kind.IsClient() {
		ep.sendCounter++
		if ep.detector && ep.sendCounter > ep.cfg.disconnectLimit && ep.logicalState != StateDisconnected {
			tripped = true
			ep.updateLocked(LayerLogical, StateDisconnected, false)
		}
	}
	counter := ep.sendCounter
	ep.mu.Unlock()

	if tripped {
		ep.eng.metrics.incSilentFailureCount()
		ep.logger.Warn("no reply from endpoint", "send_counter", counter,
			"disconnect_limit", ep.cfg.disconnectLimit)
		ep.drain()
	}

	if !ep.beginSend() {
		return ErrUnknownHandle
	}
	err := ep.transport.Send(p)
	ep.sending.Done()

	if err != nil {
		ep.eng.metrics.incSendErrCount()
		if ep.kind == StreamClient && ep.attempted() {
			ep.logger.Warn("send failed", "method", "send", "error", err)
			ep.report(LayerTransport, StateDisconnected)
		} else {
			// left to the detector or to the pending connect attempt
			ep.logger.Debug("send failed", "method", "send", "error", err)
		}

		return fmt.Errorf("send to endpoint %d: %w", ep.handle, err)
	}

	return nil
}

// beginSend registers a write in flight, false once the endpoint is blocked.
// shutdown waits for registered writes, so none reaches the transport after Block returns.
func (ep *endpoint) beginSend() bool {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	if ep.closed {
		return false
	}
	ep.sending.Add(1)

	return true
}

// attempted reports whether a connect attempt has resolved the transport layer.
func (ep *endpoint) attempted() bool {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	return ep.transportState != StateUnknown
}

// onReceive is the receive hook installed on client transports. It resets the send counter
// and then hands p to the hook that was installed before the engine.
func (ep *endpoint) onReceive(p []byte) {
	ep.mu.Lock()
	evidence := false
	if !ep.closed {
		ep.sendCounter = 0
		if ep.detector && ep.logicalState != StateConnected {
			evidence = true
			ep.updateLocked(LayerLogical, StateConnected, false)
		}
	}
	ep.mu.Unlock()

	if evidence {
		ep.drain()
	}

	if ep.prevRecv != nil {
		ep.prevRecv(p)
	}
}
