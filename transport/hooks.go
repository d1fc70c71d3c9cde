// Package transport provides reference implementations of the linkwatch transport interfaces:
// TCP and UDP clients, serial ports and a TCP listener.
//
// Every transport delivers inbound data to its receive hook from its own read goroutine, and
// reports connection changes to its state hook. Payloads handed to hooks are copies and may be
// retained.
package transport

import (
	"sync"

	"github.com/arloliu/go-linkwatch/linkwatch"
)

// hooks holds the handlers installed on a transport.
type hooks struct {
	mu      sync.RWMutex
	recv    linkwatch.ReceiveHandler
	state   linkwatch.StateHandler
	session linkwatch.SessionHandler
}

// ReceiveHandler returns the installed receive hook.
func (h *hooks) ReceiveHandler() linkwatch.ReceiveHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.recv
}

// SetReceiveHandler replaces the receive hook.
func (h *hooks) SetReceiveHandler(fn linkwatch.ReceiveHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.recv = fn
}

// SetStateHandler replaces the connection state hook.
func (h *hooks) SetStateHandler(fn linkwatch.StateHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.state = fn
}

func (h *hooks) sessionHandler() linkwatch.SessionHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.session
}

func (h *hooks) setSessionHandler(fn linkwatch.SessionHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.session = fn
}

func (h *hooks) notifyState(s linkwatch.State) {
	h.mu.RLock()
	fn := h.state
	h.mu.RUnlock()

	if fn != nil {
		fn(s)
	}
}

func (h *hooks) deliver(p []byte) {
	h.mu.RLock()
	fn := h.recv
	h.mu.RUnlock()

	if fn != nil {
		fn(p)
	}
}
