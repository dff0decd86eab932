package poll

import "errors"

// Validation errors for poll commands. Lifecycle error kinds shared with the
// API layer live in pkg/types.
var (
	ErrEmptyQuestion  = errors.New("poll question cannot be empty")
	ErrTooFewOptions  = errors.New("poll needs at least two options")
	ErrInvalidActorID = errors.New("actor ID must be 1-50 characters, alphanumeric + underscore/hyphen only")
)
