package interfaces

import (
	"context"

	"classpulse/pkg/types"
)

// Authorizer answers ownership checks. Supplied by the external account
// collaborator; the default implementation consults the session row's
// created_by reference.
type Authorizer interface {
	IsOwner(ctx context.Context, professorID, sessionID string) (bool, error)
}

// Publisher fans an event out to every subscriber of a session's room.
// Delivery is best-effort, at-most-once per connection; failures are logged
// by the implementation and never returned to the emitting command.
type Publisher interface {
	Publish(sessionID string, event *types.Event)
}
