package types

import "errors"

// Command error taxonomy shared by the engines and the API layer. Every
// command returns either a success payload or exactly one of these kinds;
// validation errors are detected before any mutation.
var (
	ErrUnauthorized      = errors.New("actor is not the session owner")
	ErrSessionNotActive  = errors.New("session is not active")
	ErrAlreadyActive     = errors.New("session is already active")
	ErrNotActive         = errors.New("session is already stopped")
	ErrNotEnrolled       = errors.New("student is not enrolled in this session")
	ErrPollNotOpen       = errors.New("poll is not open")
	ErrInvalidOption     = errors.New("option index out of range")
	ErrDuplicateResponse = errors.New("student already responded to this poll")
	ErrNotFound          = errors.New("unknown session, poll, or student identifier")
	ErrStorageFailure    = errors.New("storage failure")
)
