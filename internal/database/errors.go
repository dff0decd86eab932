package database

import "errors"

// Store-specific errors. Command-level error kinds live in pkg/types; these
// cover conditions only the persistence layer can detect.
var (
	ErrCodeInUse = errors.New("join code already in use by an active session")
)
