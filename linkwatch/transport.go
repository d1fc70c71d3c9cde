package linkwatch

import (
	"context"
	"time"
)

// ReceiveHandler is invoked with every inbound payload of a transport.
type ReceiveHandler func(p []byte)

// StateHandler is invoked when a transport observes that its connection went up or down.
type StateHandler func(state State)

// Transport is the set of I/O primitives the engine consumes from every endpoint.
//
// A transport owns its goroutines. It must invoke the installed handlers from them, and must
// tolerate the handlers being replaced at any time.
type Transport interface {
	// Send writes p to the remote side. Listeners broadcast p to every live session.
	Send(p []byte) error
	// ReceiveHandler returns the currently installed receive hook, nil if none.
	ReceiveHandler() ReceiveHandler
	// SetReceiveHandler replaces the receive hook.
	SetReceiveHandler(h ReceiveHandler)
	// SetStateHandler replaces the connect/disconnect notification hook. nil detaches it.
	SetStateHandler(h StateHandler)
	// Close releases the transport.
	Close() error
}

// ClientTransport is a transport the engine can (re)connect. It is required by the client kinds.
type ClientTransport interface {
	Transport
	// Connect opens the connection, giving up after timeout.
	// For datagram and serial transports the open is local-only.
	Connect(ctx context.Context, timeout time.Duration) error
}

// SessionID identifies one accepted connection of a listener.
type SessionID string

// SessionHandler groups the per-session notifications of a listener. nil members are skipped.
type SessionHandler struct {
	// Opened is invoked when a session is accepted.
	Opened func(id SessionID)
	// Data is invoked with every inbound payload of a session.
	Data func(id SessionID, p []byte)
	// Closed is invoked once when a session ends, regardless of which side closed it.
	Closed func(id SessionID)
}

// ListenerTransport is a transport that accepts many sessions. It is required by StreamListener.
type ListenerTransport interface {
	Transport
	// StartListen binds and starts accepting sessions. It is safe to call again after a failure.
	StartListen() error
	// SessionHandler returns the currently installed session hooks.
	SessionHandler() SessionHandler
	// SetSessionHandler replaces the session hooks.
	SetSessionHandler(h SessionHandler)
	// SendTo writes p to one session.
	SendTo(id SessionID, p []byte) error
	// CloseSession closes one session. Its Closed hook still fires.
	CloseSession(id SessionID) error
}

// ConnectionStatusName is the status name a protocol driver publishes its link status under.
const ConnectionStatusName = "ConnectionStatus"

// StatusSubscriber is implemented by protocol drivers that can self-report their link status.
//
// When the driver given by WithDriver implements it, the engine subscribes to
// ConnectionStatusName and feeds the reported state into the logical layer, and the
// silent-failure detector is not installed.
type StatusSubscriber interface {
	SubscribeStatus(name string, fn func(state State))
}

// Record is one connection log entry, written on every published status change.
type Record struct {
	Time    time.Time
	Kind    Kind
	Address string
	Alias   string
	Status  State
	Layer   Layer
}

// ConnLog persists connection log records.
type ConnLog interface {
	Record(rec Record) error
}
