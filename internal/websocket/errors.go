package websocket

import "errors"

var (
	// ErrConnectionClosed indicates a write was attempted after Close.
	ErrConnectionClosed = errors.New("connection is closed")

	// ErrInvalidJSON indicates the payload could not be marshaled.
	ErrInvalidJSON = errors.New("failed to marshal JSON")

	// ErrWriteTimeout indicates the write buffer stayed full too long.
	ErrWriteTimeout = errors.New("write timeout")

	// ErrNilConnection indicates a nil connection was passed to the registry.
	ErrNilConnection = errors.New("connection is nil")

	// ErrConnectionNotIdentified indicates registration was attempted before
	// the connection's identity was set.
	ErrConnectionNotIdentified = errors.New("connection is not identified")
)
