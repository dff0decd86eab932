package session

import "errors"

// Validation errors for session commands. Lifecycle error kinds shared with
// the API layer live in pkg/types.
var (
	ErrInvalidSessionName = errors.New("session name must be 1-200 characters")
	ErrInvalidJoinCode    = errors.New("join code must be 1-20 alphanumeric characters")
	ErrInvalidActorID     = errors.New("actor ID must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidInteraction = errors.New("interaction kind must be hand_raise, reaction_up, or reaction_down")
)
