package session

import "errors"

// Sentinel errors for session lifecycle.
var (
	// ErrNotFound is returned for an unknown session ID.
	ErrNotFound = errors.New("session: not found")

	// ErrAlreadyStopped is returned when stopping a stopped session.
	ErrAlreadyStopped = errors.New("session: already stopped")

	// ErrExists is returned when starting a session with a used ID.
	ErrExists = errors.New("session: already exists")

	// ErrUnknownSource is returned for an unsupported frame source.
	ErrUnknownSource = errors.New("session: unknown frame source")
)
