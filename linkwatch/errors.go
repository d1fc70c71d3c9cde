package linkwatch

import "errors"

var (
	// ErrInvalidConfig indicates an endpoint registration rejected by policy validation.
	// The returned error wraps it with a description of the offending setting.
	ErrInvalidConfig = errors.New("invalid endpoint config")

	// ErrUnknownHandle indicates that the handle is not registered, or has been blocked.
	ErrUnknownHandle = errors.New("unknown endpoint handle")

	// ErrEngineClosed indicates that the engine has been closed.
	ErrEngineClosed = errors.New("engine closed")

	// ErrNotListener indicates a listener-only operation on a client endpoint.
	ErrNotListener = errors.New("endpoint is not a listener")
)
