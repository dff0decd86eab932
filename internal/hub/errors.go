package hub

import "errors"

var (
	// ErrSessionNotFound indicates a subscription targeted an unknown session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNilConnection indicates Subscribe was called with a nil connection.
	ErrNilConnection = errors.New("connection is nil")
)
