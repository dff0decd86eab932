package session

import (
	"context"

	"classpulse/pkg/interfaces"
)

// OwnerAuthorizer answers ownership checks from the session row's created_by
// reference. It stands in for the external account collaborator; the engine
// never sees credentials, only opaque professor identifiers.
type OwnerAuthorizer struct {
	store interfaces.SessionStore
}

// NewOwnerAuthorizer creates a store-backed authorizer.
func NewOwnerAuthorizer(store interfaces.SessionStore) *OwnerAuthorizer {
	return &OwnerAuthorizer{store: store}
}

// IsOwner reports whether professorID owns the session.
func (a *OwnerAuthorizer) IsOwner(ctx context.Context, professorID, sessionID string) (bool, error) {
	session, err := a.store.GetSession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return session.CreatedBy == professorID, nil
}
