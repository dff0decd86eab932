package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"classpulse/pkg/interfaces"
	"classpulse/pkg/types"
)

// Store is the persistence surface the engine needs.
type Store interface {
	interfaces.SessionStore
	interfaces.RosterStore
	interfaces.LedgerStore
	interfaces.SettingsStore
}

// PollCloser is the slice of the poll store used when stopping a session
// closes its open poll.
type PollCloser interface {
	GetOpenPoll(ctx context.Context, sessionID string) (*types.Poll, error)
	ClosePoll(ctx context.Context, pollID string) error
}

// Finalizer computes and persists the end-of-session grade summary.
// Implemented by the grades aggregator.
type Finalizer interface {
	FinalizeSession(ctx context.Context, sessionID string) error
}

// Engine owns the session state machine and the participation ledger. Every
// mutating command runs inside the session's critical section; validation
// completes before any write, and events are published while the section is
// still held so subscribers observe them in command acceptance order.
type Engine struct {
	store     Store
	polls     PollCloser
	auth      interfaces.Authorizer
	publisher interfaces.Publisher
	finalizer Finalizer
	locks     *Locks
	now       func() time.Time
}

// NewEngine creates a session engine.
func NewEngine(store Store, polls PollCloser, auth interfaces.Authorizer, publisher interfaces.Publisher, finalizer Finalizer, locks *Locks) *Engine {
	return &Engine{
		store:     store,
		polls:     polls,
		auth:      auth,
		publisher: publisher,
		finalizer: finalizer,
		locks:     locks,
		now:       time.Now,
	}
}

// CreateSession registers a new inactive session owned by professorID. The
// join code must not collide with an active session's code.
func (e *Engine) CreateSession(ctx context.Context, name, code, professorID string) (*types.Session, error) {
	if !types.IsValidSessionName(name) {
		return nil, ErrInvalidSessionName
	}
	if !types.IsValidJoinCode(code) {
		return nil, ErrInvalidJoinCode
	}
	if !types.IsValidActorID(professorID) {
		return nil, ErrInvalidActorID
	}

	session := &types.Session{
		ID:        uuid.New().String(),
		Name:      name,
		Code:      code,
		CreatedBy: professorID,
		Active:    false,
		CreatedAt: e.now(),
	}

	if err := e.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	log.Printf("Created session: id=%s name=%s code=%s owner=%s", session.ID, session.Name, session.Code, session.CreatedBy)
	return session, nil
}

// GetSession retrieves a session by ID.
func (e *Engine) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	return e.store.GetSession(ctx, sessionID)
}

// ListActiveSessions returns all currently-active sessions.
func (e *Engine) ListActiveSessions(ctx context.Context) ([]*types.Session, error) {
	return e.store.ListActiveSessions(ctx)
}

// DeleteSession destroys a session and all dependent records. Owner only.
func (e *Engine) DeleteSession(ctx context.Context, sessionID, actorID string) error {
	e.locks.Lock(sessionID)
	defer e.locks.Unlock(sessionID)

	if _, err := e.authorize(ctx, sessionID, actorID); err != nil {
		return err
	}

	if err := e.store.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	log.Printf("Deleted session: id=%s", sessionID)
	return nil
}

// StartSession activates a session and announces it to the room. Starting an
// already-active session fails with types.ErrAlreadyActive; the start is
// never treated as a silent no-op.
func (e *Engine) StartSession(ctx context.Context, sessionID, actorID string) (*types.Session, error) {
	e.locks.Lock(sessionID)
	defer e.locks.Unlock(sessionID)

	session, err := e.authorize(ctx, sessionID, actorID)
	if err != nil {
		return nil, err
	}
	if session.Active {
		return nil, types.ErrAlreadyActive
	}

	if err := e.store.SetSessionActive(ctx, sessionID, true); err != nil {
		return nil, fmt.Errorf("failed to activate session: %w", err)
	}
	session.Active = true

	e.publisher.Publish(sessionID, types.NewEvent(types.EventSessionStarted, sessionID,
		types.SessionStartedPayload{Code: session.Code}))

	log.Printf("Started session: id=%s code=%s", session.ID, session.Code)
	return session, nil
}

// StopSession deactivates a session. Before the flag flips, the final grade
// summary is computed and persisted and any open poll is closed; a storage
// failure in either step leaves the session active so the stop can be
// retried cleanly.
func (e *Engine) StopSession(ctx context.Context, sessionID, actorID string) error {
	e.locks.Lock(sessionID)
	defer e.locks.Unlock(sessionID)

	session, err := e.authorize(ctx, sessionID, actorID)
	if err != nil {
		return err
	}
	if !session.Active {
		return types.ErrNotActive
	}

	if err := e.finalizer.FinalizeSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to finalize session grades: %w", err)
	}

	openPoll, err := e.polls.GetOpenPoll(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to look up open poll: %w", err)
	}
	if openPoll != nil {
		if err := e.polls.ClosePoll(ctx, openPoll.ID); err != nil {
			return fmt.Errorf("failed to close open poll: %w", err)
		}
	}

	if err := e.store.SetSessionActive(ctx, sessionID, false); err != nil {
		return fmt.Errorf("failed to deactivate session: %w", err)
	}

	if openPoll != nil {
		e.publisher.Publish(sessionID, types.NewEvent(types.EventPollClosed, sessionID,
			types.PollClosedPayload{PollID: openPoll.ID}))
	}
	e.publisher.Publish(sessionID, types.NewEvent(types.EventSessionStopped, sessionID,
		types.SessionStoppedPayload{}))

	log.Printf("Stopped session: id=%s", sessionID)
	return nil
}

// JoinSession enrolls a student and marks today's attendance. Both inserts
// are idempotent: repeated joins leave exactly one enrollment and one mark
// for the day.
func (e *Engine) JoinSession(ctx context.Context, sessionID, studentID string) error {
	if !types.IsValidActorID(studentID) {
		return ErrInvalidActorID
	}

	e.locks.Lock(sessionID)
	defer e.locks.Unlock(sessionID)

	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.Active {
		return types.ErrSessionNotActive
	}

	now := e.now()
	if _, err := e.store.EnsureEnrollment(ctx, sessionID, studentID, now); err != nil {
		return fmt.Errorf("failed to ensure enrollment: %w", err)
	}
	if _, err := e.store.EnsureAttendance(ctx, sessionID, studentID, types.DayOf(now), now); err != nil {
		return fmt.Errorf("failed to ensure attendance: %w", err)
	}

	e.publisher.Publish(sessionID, types.NewEvent(types.EventStudentJoined, sessionID,
		types.StudentJoinedPayload{StudentID: studentID}))

	return nil
}

// RecordInteraction increments one of the student's participation counters
// for today. The student must already be enrolled; there is no implicit
// join-on-demand.
func (e *Engine) RecordInteraction(ctx context.Context, sessionID, studentID string, kind types.InteractionKind) error {
	if !types.IsValidActorID(studentID) {
		return ErrInvalidActorID
	}
	if !types.IsValidInteractionKind(kind) {
		return ErrInvalidInteraction
	}

	e.locks.Lock(sessionID)
	defer e.locks.Unlock(sessionID)

	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.Active {
		return types.ErrSessionNotActive
	}

	enrolled, err := e.store.IsEnrolled(ctx, sessionID, studentID)
	if err != nil {
		return fmt.Errorf("failed to check enrollment: %w", err)
	}
	if !enrolled {
		return types.ErrNotEnrolled
	}

	day := types.DayOf(e.now())
	if err := e.store.IncrementParticipation(ctx, sessionID, studentID, day, kind); err != nil {
		return fmt.Errorf("failed to increment participation: %w", err)
	}

	e.publisher.Publish(sessionID, types.NewEvent(types.EventInteractionRecorded, sessionID,
		types.InteractionRecordedPayload{StudentID: studentID, Kind: kind}))

	return nil
}

// GetSettings returns the session's display settings, defaulted when never
// set.
func (e *Engine) GetSettings(ctx context.Context, sessionID string) (*types.Settings, error) {
	if _, err := e.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return e.store.GetSettings(ctx, sessionID)
}

// UpdateSettings stores new display settings and announces them to the room.
// Owner only.
func (e *Engine) UpdateSettings(ctx context.Context, sessionID, actorID string, showFirstNameOnly, quietMode bool) (*types.Settings, error) {
	e.locks.Lock(sessionID)
	defer e.locks.Unlock(sessionID)

	if _, err := e.authorize(ctx, sessionID, actorID); err != nil {
		return nil, err
	}

	settings := &types.Settings{
		SessionID:         sessionID,
		ShowFirstNameOnly: showFirstNameOnly,
		QuietMode:         quietMode,
	}
	if err := e.store.UpdateSettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}

	e.publisher.Publish(sessionID, types.NewEvent(types.EventSettingsUpdated, sessionID,
		types.SettingsUpdatedPayload{ShowFirstNameOnly: showFirstNameOnly, QuietMode: quietMode}))

	return settings, nil
}

// AuthorizeOwner reports whether actorID owns the session, for callers
// gating owner-only reads such as the gradebook.
func (e *Engine) AuthorizeOwner(ctx context.Context, sessionID, actorID string) error {
	_, err := e.authorize(ctx, sessionID, actorID)
	return err
}

// authorize loads the session and checks that actorID owns it. The lookup
// runs first so an unknown session reports types.ErrNotFound rather than
// types.ErrUnauthorized.
func (e *Engine) authorize(ctx context.Context, sessionID, actorID string) (*types.Session, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	owner, err := e.auth.IsOwner(ctx, actorID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to check ownership: %w", err)
	}
	if !owner {
		return nil, types.ErrUnauthorized
	}

	return session, nil
}
