package transport

import "errors"

var (
	// ErrClosed indicates the transport has been closed.
	ErrClosed = errors.New("transport closed")

	// ErrNotConnected indicates a send without an open connection.
	ErrNotConnected = errors.New("transport not connected")

	// ErrUnknownSession indicates that the session doesn't exist or has already been closed.
	ErrUnknownSession = errors.New("unknown session")
)
