package server

import "errors"

// Server-specific errors
var (
	ErrServerClosed         = errors.New("server is closed")
	ErrServerAlreadyRunning = errors.New("server is already running")
	ErrInvalidConfig        = errors.New("invalid server configuration")
	ErrListenerFailed       = errors.New("failed to create listener")
	ErrSessionClosed        = errors.New("session is closed")
	ErrSessionBackpressure  = errors.New("session send buffer full")
	ErrInvalidOrigin        = errors.New("invalid origin")
)
