package client

import "errors"

// Client-specific errors
var (
	ErrClientClosed      = errors.New("client is closed")
	ErrConnectionBroken  = errors.New("connection is broken")
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrInvalidMessage    = errors.New("invalid message")
	ErrSequenceMismatch  = errors.New("response sequence mismatch")
)
