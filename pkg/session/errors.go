package session

import "errors"

var (
	// ErrSessionNotFound is returned when no session file exists for an id
	// or no session matches a workdir lookup.
	ErrSessionNotFound = errors.New("session not found")

	// ErrLockTimeout is returned when the cross-process file lock cannot be
	// acquired within the lock timeout.
	ErrLockTimeout = errors.New("session file lock timeout")

	// ErrWriterClosed is returned for writes after Close.
	ErrWriterClosed = errors.New("session writer closed")
)
