package linkwatch

import (
	"fmt"
	"time"
)

type eventKind uint8

const (
	// eventTransition is a change of the published status.
	eventTransition eventKind = iota
	// eventRearm asks for another connect or listen attempt without a status change.
	eventRearm
)

type event struct {
	kind   eventKind
	prev   State
	status State
	layer  Layer
	at     time.Time
}

func (ep *endpoint) onTransportState(state State) {
	ep.report(LayerTransport, state)
}

func (ep *endpoint) onDriverStatus(state State) {
	ep.report(LayerLogical, state)
}

// report updates one layer and publishes the resolved status if it changed.
func (ep *endpoint) report(layer Layer, state State) {
	ep.mu.Lock()
	if ep.closed {
		ep.mu.Unlock()
		return
	}
	ep.updateLocked(layer, state, false)
	ep.mu.Unlock()

	ep.drain()
}

// updateLocked applies a layer report and queues the resulting event, if any.
// fresh marks a connection just established by the engine.
func (ep *endpoint) updateLocked(layer Layer, state State, fresh bool) {
	switch layer {
	case LayerTransport:
		prev := ep.transportState
		ep.transportState = state
		if state == StateConnected {
			ep.everConnected = true
			// a new connection is judged on new evidence
			if (fresh || prev != StateConnected) && ep.logicalState == StateDisconnected {
				ep.logicalState = StateUnknown
			}
		}
	case LayerLogical:
		ep.logicalState = state
	}

	next := resolve(ep.transportState, ep.logicalState, ep.published)
	if next == ep.published {
		if layer == LayerTransport && state == StateDisconnected &&
			ep.published == StateDisconnected && ep.wantsRetryLocked() {
			ep.pending.Enqueue(event{kind: eventRearm})
		}

		return
	}

	prev := ep.published
	ep.published = next
	if next == StateConnected {
		ep.sendCounter = 0
		if ep.sessions != nil {
			ep.touchSessionsLocked()
		}
	}

	ep.pending.Enqueue(event{
		kind:   eventTransition,
		prev:   prev,
		status: next,
		layer:  layer,
		at:     time.Now(),
	})
}

// wantsRetryLocked reports whether a Disconnected endpoint is reconnected by the retry timer.
func (ep *endpoint) wantsRetryLocked() bool {
	switch ep.kind {
	case StreamClient, StreamListener:
		return true
	default:
		// datagram and serial opens are local, the poll timer checks the peer once opened
		return !ep.everConnected
	}
}

// drain runs queued events in order. Only one goroutine drains an endpoint at a time; a
// report made while draining, for example from the status handler, is picked up by the
// running drainer.
func (ep *endpoint) drain() {
	ep.mu.Lock()
	if ep.draining {
		ep.mu.Unlock()
		return
	}
	ep.draining = true

	for !ep.closed {
		ev, ok := ep.pending.Dequeue()
		if !ok {
			break
		}
		ep.mu.Unlock()
		ep.dispatch(ev)
		ep.mu.Lock()
	}

	ep.draining = false
	ep.mu.Unlock()
}

func (ep *endpoint) dispatch(ev event) {
	ep.cbMu.Lock()
	defer ep.cbMu.Unlock()

	if ep.isClosed() {
		return
	}

	switch ev.kind {
	case eventRearm:
		ep.armRetry(ep.retryDelay())
	case eventTransition:
		ep.applyTransition(ev)
		ep.notify(ev)
	}
}

func (ep *endpoint) applyTransition(ev event) {
	m := &ep.eng.metrics
	m.incStatusChangeCount()

	switch ev.status {
	case StateConnected:
		if !ep.gaugeConnected {
			ep.gaugeConnected = true
			m.addConnectedGauge(1)
		}
		ep.retryTimer.Stop()
		if ep.pollTimer != nil {
			ep.startTimer(ep.pollTimer, ep.wantsPoll)
		}

	case StateDisconnected:
		if ep.gaugeConnected {
			ep.gaugeConnected = false
			m.addConnectedGauge(-1)
		}

		switch ep.kind {
		case StreamClient:
			if ep.pollTimer != nil {
				ep.pollTimer.Stop()
			}
			ep.armRetry(ep.cfg.retryInterval)
		case DatagramClient, SerialPort:
			ep.mu.Lock()
			retry := ep.wantsRetryLocked()
			ep.mu.Unlock()
			if retry {
				ep.armRetry(ep.cfg.retryInterval)
			}
		case StreamListener:
			ep.armRetry(ep.cfg.listenRetryInterval)
		}
	}
}

func (ep *endpoint) notify(ev event) {
	ep.logger.Info("status changed", "state", ev.status.String(), "prev", ev.prev.String(),
		"layer", ev.layer.String())

	if h := ep.eng.statusHandler(); h != nil {
		ep.callHandler(h, ev.status)
	}

	if cl := ep.eng.cfg.connLog; cl != nil {
		err := cl.Record(Record{
			Time:    ev.at,
			Kind:    ep.kind,
			Address: ep.cfg.address,
			Alias:   ep.cfg.alias,
			Status:  ev.status,
			Layer:   ev.layer,
		})
		if err != nil {
			ep.eng.metrics.incConnLogErrCount()
			ep.logger.Error("failed to write connection log", "error", err)
		}
	}
}

func (ep *endpoint) callHandler(h StatusHandler, status State) {
	defer func() {
		if r := recover(); r != nil {
			ep.logger.Error("status handler panic", "error", fmt.Sprint(r))
		}
	}()

	h(ep.handle, status)
}
