package interfaces

import (
	"context"
	"time"

	"classpulse/pkg/types"
)

// SessionStore handles session rows. DeleteSession cascades to every
// dependent record transactionally.
type SessionStore interface {
	CreateSession(ctx context.Context, session *types.Session) error
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)
	SetSessionActive(ctx context.Context, sessionID string, active bool) error
	ListActiveSessions(ctx context.Context) ([]*types.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// RosterStore handles enrollments and attendance marks. The Ensure methods
// are idempotent inserts backed by unique constraints; they report whether a
// row was created.
type RosterStore interface {
	EnsureEnrollment(ctx context.Context, sessionID, studentID string, at time.Time) (bool, error)
	IsEnrolled(ctx context.Context, sessionID, studentID string) (bool, error)
	ListEnrollments(ctx context.Context, sessionID string) ([]*types.Enrollment, error)
	EnsureAttendance(ctx context.Context, sessionID, studentID, day string, at time.Time) (bool, error)
	// CountPresentDays counts a student's present days; day "" means all days.
	CountPresentDays(ctx context.Context, sessionID, studentID, day string) (int, error)
	// CountSessionDays counts distinct days the session met (any attendance
	// recorded); day "" means all days.
	CountSessionDays(ctx context.Context, sessionID, day string) (int, error)
	CountPresent(ctx context.Context, sessionID, day string) (int, error)
}

// LedgerStore handles the participation counters. IncrementParticipation
// lazily creates the (session, student, day) row and atomically adds one to
// the counter for kind.
type LedgerStore interface {
	IncrementParticipation(ctx context.Context, sessionID, studentID, day string, kind types.InteractionKind) error
	// ListParticipation returns a student's rows; day "" means all days.
	ListParticipation(ctx context.Context, sessionID, studentID, day string) ([]*types.Participation, error)
	ListParticipationForDay(ctx context.Context, sessionID, day string) ([]*types.Participation, error)
}

// PollStore handles polls and responses. OpenPoll closes any currently-open
// poll for the session and inserts the new one in a single transaction;
// a storage failure rolls the whole step back. InsertPollResponse returns
// types.ErrDuplicateResponse when the student already answered.
type PollStore interface {
	OpenPoll(ctx context.Context, poll *types.Poll) error
	GetPoll(ctx context.Context, pollID string) (*types.Poll, error)
	// GetOpenPoll returns (nil, nil) when the session has no open poll.
	GetOpenPoll(ctx context.Context, sessionID string) (*types.Poll, error)
	ClosePoll(ctx context.Context, pollID string) error
	InsertPollResponse(ctx context.Context, response *types.PollResponse) error
	ListPollResponses(ctx context.Context, pollID string) ([]*types.PollResponse, error)
	// ListStudentResponses scopes to polls opened on day; day "" means all.
	ListStudentResponses(ctx context.Context, sessionID, studentID, day string) ([]*types.PollResponse, error)
}

// SettingsStore handles the per-session display flags. GetSettings returns
// defaults when no row exists yet.
type SettingsStore interface {
	GetSettings(ctx context.Context, sessionID string) (*types.Settings, error)
	UpdateSettings(ctx context.Context, settings *types.Settings) error
}

// SummaryStore persists end-of-session gradebook rows.
type SummaryStore interface {
	UpsertSummary(ctx context.Context, sessionID, day string, summary *types.StudentSummary, at time.Time) error
}

// Store is the full persistence surface implemented by the SQLite manager.
// Components accept the narrow interfaces above instead.
type Store interface {
	SessionStore
	RosterStore
	LedgerStore
	PollStore
	SettingsStore
	SummaryStore

	HealthCheck(ctx context.Context) error
	Close() error
}
