package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	dbconfig "classpulse/pkg/database"
	"classpulse/pkg/types"
)

// Manager implements the interfaces.Store surface over SQLite.
//
// All writes funnel through a single goroutine. Combined with WAL mode this
// gives concurrent reads without write contention, and it means the
// insert-or-reject constraints behind the engine's idempotency invariants
// are evaluated serially.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

// writeOperation represents a database write operation.
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database and starts the single-writer goroutine.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := applySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			op.result <- op.operation(m.db)

		case <-m.shutdown:
			log.Println("Database write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion.
func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("database manager is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return tagStorageFailure(<-result)
	case <-time.After(30 * time.Second):
		return fmt.Errorf("%w: write operation timeout", types.ErrStorageFailure)
	case <-m.shutdown:
		return fmt.Errorf("%w: database manager is shutting down", types.ErrStorageFailure)
	}
}

// tagStorageFailure marks driver-level write failures with the shared
// taxonomy kind. Domain outcomes the engines branch on pass through
// untouched.
func tagStorageFailure(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, types.ErrNotFound) ||
		errors.Is(err, types.ErrDuplicateResponse) ||
		errors.Is(err, ErrCodeInUse) {
		return err
	}
	return fmt.Errorf("%w: %w", types.ErrStorageFailure, err)
}

// CreateSession inserts a session row. The new session starts inactive; the
// join code must not collide with any currently-active session's code.
func (m *Manager) CreateSession(ctx context.Context, session *types.Session) error {
	return m.executeWrite(func(db *sql.DB) error {
		var inUse int
		err := db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sessions WHERE code = ? AND active = 1`,
			session.Code,
		).Scan(&inUse)
		if err != nil {
			return fmt.Errorf("failed to check code uniqueness: %w", err)
		}
		if inUse > 0 {
			return ErrCodeInUse
		}

		_, err = db.ExecContext(ctx, `
			INSERT INTO sessions (id, name, code, created_by, active, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			session.ID,
			session.Name,
			session.Code,
			session.CreatedBy,
			session.Active,
			session.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}

		return nil
	})
}

// GetSession retrieves a session by ID.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, name, code, created_by, active, created_at
		FROM sessions
		WHERE id = ?
	`, sessionID)

	var session types.Session
	err := row.Scan(
		&session.ID,
		&session.Name,
		&session.Code,
		&session.CreatedBy,
		&session.Active,
		&session.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	return &session, nil
}

// SetSessionActive toggles the active flag.
func (m *Manager) SetSessionActive(ctx context.Context, sessionID string, active bool) error {
	return m.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			`UPDATE sessions SET active = ? WHERE id = ?`, active, sessionID)
		if err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check update result: %w", err)
		}
		if affected == 0 {
			return types.ErrNotFound
		}
		return nil
	})
}

// ListActiveSessions returns all active sessions, newest first.
func (m *Manager) ListActiveSessions(ctx context.Context) ([]*types.Session, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, name, code, created_by, active, created_at
		FROM sessions
		WHERE active = 1
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*types.Session
	for rows.Next() {
		var session types.Session
		err := rows.Scan(
			&session.ID,
			&session.Name,
			&session.Code,
			&session.CreatedBy,
			&session.Active,
			&session.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, &session)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}

	return sessions, nil
}

// DeleteSession removes a session and every dependent record in one
// transaction. Dependent tables declare ON DELETE CASCADE; the explicit
// transaction keeps the whole teardown atomic.
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) error {
	return m.executeWrite(func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
		if err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check delete result: %w", err)
		}
		if affected == 0 {
			return types.ErrNotFound
		}

		return tx.Commit()
	})
}

// EnsureEnrollment inserts the (session, student) pair if absent. Returns
// true when a new enrollment was created.
func (m *Manager) EnsureEnrollment(ctx context.Context, sessionID, studentID string, at time.Time) (bool, error) {
	var created bool
	err := m.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			INSERT OR IGNORE INTO enrollments (session_id, student_id, enrolled_at)
			VALUES (?, ?, ?)
		`, sessionID, studentID, at)
		if err != nil {
			return fmt.Errorf("failed to insert enrollment: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check insert result: %w", err)
		}
		created = affected > 0
		return nil
	})
	return created, err
}

// IsEnrolled reports whether the student has an enrollment row.
func (m *Manager) IsEnrolled(ctx context.Context, sessionID, studentID string) (bool, error) {
	var count int
	err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM enrollments WHERE session_id = ? AND student_id = ?`,
		sessionID, studentID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query enrollment: %w", err)
	}
	return count > 0, nil
}

// ListEnrollments returns a session's roster in enrollment order, ties
// broken by student ID so gradebook ordering is deterministic.
func (m *Manager) ListEnrollments(ctx context.Context, sessionID string) ([]*types.Enrollment, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT session_id, student_id, enrolled_at
		FROM enrollments
		WHERE session_id = ?
		ORDER BY enrolled_at ASC, student_id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrollments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var enrollments []*types.Enrollment
	for rows.Next() {
		var e types.Enrollment
		if err := rows.Scan(&e.SessionID, &e.StudentID, &e.EnrolledAt); err != nil {
			return nil, fmt.Errorf("failed to scan enrollment row: %w", err)
		}
		enrollments = append(enrollments, &e)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating enrollment rows: %w", err)
	}

	return enrollments, nil
}

// EnsureAttendance inserts today's present mark if absent. Returns true when
// a new mark was created.
func (m *Manager) EnsureAttendance(ctx context.Context, sessionID, studentID, day string, at time.Time) (bool, error) {
	var created bool
	err := m.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			INSERT OR IGNORE INTO attendance (session_id, student_id, day, present, marked_at)
			VALUES (?, ?, ?, 1, ?)
		`, sessionID, studentID, day, at)
		if err != nil {
			return fmt.Errorf("failed to insert attendance: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check insert result: %w", err)
		}
		created = affected > 0
		return nil
	})
	return created, err
}

// CountPresentDays counts a student's present days; day "" means all days.
func (m *Manager) CountPresentDays(ctx context.Context, sessionID, studentID, day string) (int, error) {
	query := `SELECT COUNT(*) FROM attendance WHERE session_id = ? AND student_id = ? AND present = 1`
	args := []interface{}{sessionID, studentID}
	if day != "" {
		query += ` AND day = ?`
		args = append(args, day)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count present days: %w", err)
	}
	return count, nil
}

// CountSessionDays counts distinct days with any attendance recorded; day ""
// means all days.
func (m *Manager) CountSessionDays(ctx context.Context, sessionID, day string) (int, error) {
	query := `SELECT COUNT(DISTINCT day) FROM attendance WHERE session_id = ?`
	args := []interface{}{sessionID}
	if day != "" {
		query += ` AND day = ?`
		args = append(args, day)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count session days: %w", err)
	}
	return count, nil
}

// CountPresent counts students marked present on a day.
func (m *Manager) CountPresent(ctx context.Context, sessionID, day string) (int, error) {
	var count int
	err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attendance WHERE session_id = ? AND day = ? AND present = 1`,
		sessionID, day,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count present students: %w", err)
	}
	return count, nil
}

// IncrementParticipation lazily creates the (session, student, day) counter
// row and adds one to the counter for kind. The upsert runs as a single
// statement on the writer goroutine, so concurrent increments on the same
// key never lose updates.
func (m *Manager) IncrementParticipation(ctx context.Context, sessionID, studentID, day string, kind types.InteractionKind) error {
	column, ok := counterColumn(kind)
	if !ok {
		return fmt.Errorf("unknown interaction kind %q", kind)
	}

	return m.executeWrite(func(db *sql.DB) error {
		query := fmt.Sprintf(`
			INSERT INTO participation (session_id, student_id, day, %[1]s)
			VALUES (?, ?, ?, 1)
			ON CONFLICT(session_id, student_id, day)
			DO UPDATE SET %[1]s = %[1]s + 1
		`, column)

		if _, err := db.ExecContext(ctx, query, sessionID, studentID, day); err != nil {
			return fmt.Errorf("failed to increment participation: %w", err)
		}
		return nil
	})
}

// counterColumn maps an interaction kind to its counter column. Kinds are
// validated before reaching the store; the bool guards against SQL built
// from unchecked input.
func counterColumn(kind types.InteractionKind) (string, bool) {
	switch kind {
	case types.InteractionHandRaise:
		return "hand_raises", true
	case types.InteractionReactionUp:
		return "reactions_up", true
	case types.InteractionReactionDown:
		return "reactions_down", true
	default:
		return "", false
	}
}

// ListParticipation returns a student's counter rows; day "" means all days.
func (m *Manager) ListParticipation(ctx context.Context, sessionID, studentID, day string) ([]*types.Participation, error) {
	query := `
		SELECT session_id, student_id, day, hand_raises, reactions_up, reactions_down, peer_grade, instructor_grade
		FROM participation
		WHERE session_id = ? AND student_id = ?
	`
	args := []interface{}{sessionID, studentID}
	if day != "" {
		query += ` AND day = ?`
		args = append(args, day)
	}
	query += ` ORDER BY day ASC`

	return m.queryParticipation(ctx, query, args...)
}

// ListParticipationForDay returns every student's counter row for a day.
func (m *Manager) ListParticipationForDay(ctx context.Context, sessionID, day string) ([]*types.Participation, error) {
	query := `
		SELECT session_id, student_id, day, hand_raises, reactions_up, reactions_down, peer_grade, instructor_grade
		FROM participation
		WHERE session_id = ? AND day = ?
		ORDER BY student_id ASC
	`
	return m.queryParticipation(ctx, query, sessionID, day)
}

func (m *Manager) queryParticipation(ctx context.Context, query string, args ...interface{}) ([]*types.Participation, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query participation: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*types.Participation
	for rows.Next() {
		var p types.Participation
		err := rows.Scan(
			&p.SessionID,
			&p.StudentID,
			&p.Day,
			&p.HandRaises,
			&p.ReactionsUp,
			&p.ReactionsDown,
			&p.PeerGrade,
			&p.InstructorGrade,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participation row: %w", err)
		}
		records = append(records, &p)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participation rows: %w", err)
	}

	return records, nil
}

// OpenPoll closes any currently-open poll for the session and inserts the
// new one inside a single transaction. On any failure the transaction rolls
// back fully, so the session never ends up with two open polls or none where
// it had one.
func (m *Manager) OpenPoll(ctx context.Context, poll *types.Poll) error {
	return m.executeWrite(func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			`UPDATE polls SET open = 0 WHERE session_id = ? AND open = 1`,
			poll.SessionID,
		); err != nil {
			return fmt.Errorf("failed to close previous poll: %w", err)
		}

		optionsJSON, err := json.Marshal(poll.Options)
		if err != nil {
			return fmt.Errorf("failed to marshal poll options: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO polls (id, session_id, question, options, correct_index, anonymous, open, day, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			poll.ID,
			poll.SessionID,
			poll.Question,
			string(optionsJSON),
			poll.CorrectIndex,
			poll.Anonymous,
			poll.Open,
			poll.Day,
			poll.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert poll: %w", err)
		}

		if err = tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit poll open: %w", err)
		}

		return nil
	})
}

// GetPoll retrieves a poll by ID.
func (m *Manager) GetPoll(ctx context.Context, pollID string) (*types.Poll, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, session_id, question, options, correct_index, anonymous, open, day, created_at
		FROM polls
		WHERE id = ?
	`, pollID)

	poll, err := scanPoll(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	return poll, nil
}

// GetOpenPoll returns the session's open poll, or (nil, nil) when none is
// open.
func (m *Manager) GetOpenPoll(ctx context.Context, sessionID string) (*types.Poll, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, session_id, question, options, correct_index, anonymous, open, day, created_at
		FROM polls
		WHERE session_id = ? AND open = 1
	`, sessionID)

	poll, err := scanPoll(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return poll, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPoll(row rowScanner) (*types.Poll, error) {
	var poll types.Poll
	var optionsJSON string
	var correctIndex sql.NullInt64

	err := row.Scan(
		&poll.ID,
		&poll.SessionID,
		&poll.Question,
		&optionsJSON,
		&correctIndex,
		&poll.Anonymous,
		&poll.Open,
		&poll.Day,
		&poll.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(optionsJSON), &poll.Options); err != nil {
		return nil, fmt.Errorf("failed to unmarshal poll options: %w", err)
	}

	if correctIndex.Valid {
		idx := int(correctIndex.Int64)
		poll.CorrectIndex = &idx
	}

	return &poll, nil
}

// ClosePoll marks a poll closed. Responses stay in place.
func (m *Manager) ClosePoll(ctx context.Context, pollID string) error {
	return m.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `UPDATE polls SET open = 0 WHERE id = ?`, pollID)
		if err != nil {
			return fmt.Errorf("failed to close poll: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check close result: %w", err)
		}
		if affected == 0 {
			return types.ErrNotFound
		}
		return nil
	})
}

// InsertPollResponse records a first response. A duplicate (poll, student)
// pair is rejected with types.ErrDuplicateResponse and the stored response
// is never overwritten.
func (m *Manager) InsertPollResponse(ctx context.Context, response *types.PollResponse) error {
	return m.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			INSERT OR IGNORE INTO poll_responses (poll_id, student_id, option_index, correct, submitted_at)
			VALUES (?, ?, ?, ?, ?)
		`,
			response.PollID,
			response.StudentID,
			response.OptionIndex,
			response.Correct,
			response.SubmittedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert poll response: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check insert result: %w", err)
		}
		if affected == 0 {
			return types.ErrDuplicateResponse
		}
		return nil
	})
}

// ListPollResponses returns a poll's responses in submission order.
func (m *Manager) ListPollResponses(ctx context.Context, pollID string) ([]*types.PollResponse, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT poll_id, student_id, option_index, correct, submitted_at
		FROM poll_responses
		WHERE poll_id = ?
		ORDER BY submitted_at ASC, student_id ASC
	`, pollID)
	if err != nil {
		return nil, fmt.Errorf("failed to query poll responses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectResponses(rows)
}

// ListStudentResponses returns one student's responses across a session's
// polls, scoped to polls opened on day ("" means all days).
func (m *Manager) ListStudentResponses(ctx context.Context, sessionID, studentID, day string) ([]*types.PollResponse, error) {
	query := `
		SELECT r.poll_id, r.student_id, r.option_index, r.correct, r.submitted_at
		FROM poll_responses r
		JOIN polls p ON p.id = r.poll_id
		WHERE p.session_id = ? AND r.student_id = ?
	`
	args := []interface{}{sessionID, studentID}
	if day != "" {
		query += ` AND p.day = ?`
		args = append(args, day)
	}
	query += ` ORDER BY r.submitted_at ASC`

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query student responses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectResponses(rows)
}

func collectResponses(rows *sql.Rows) ([]*types.PollResponse, error) {
	var responses []*types.PollResponse
	for rows.Next() {
		var r types.PollResponse
		err := rows.Scan(&r.PollID, &r.StudentID, &r.OptionIndex, &r.Correct, &r.SubmittedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan response row: %w", err)
		}
		responses = append(responses, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating response rows: %w", err)
	}

	return responses, nil
}

// GetSettings returns the session's settings, or defaults when no row
// exists. The row is created lazily on first update.
func (m *Manager) GetSettings(ctx context.Context, sessionID string) (*types.Settings, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT session_id, show_first_name_only, quiet_mode
		FROM session_settings
		WHERE session_id = ?
	`, sessionID)

	var settings types.Settings
	err := row.Scan(&settings.SessionID, &settings.ShowFirstNameOnly, &settings.QuietMode)
	if err != nil {
		if err == sql.ErrNoRows {
			return &types.Settings{SessionID: sessionID}, nil
		}
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}

	return &settings, nil
}

// UpdateSettings upserts the session's settings row.
func (m *Manager) UpdateSettings(ctx context.Context, settings *types.Settings) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO session_settings (session_id, show_first_name_only, quiet_mode)
			VALUES (?, ?, ?)
			ON CONFLICT(session_id)
			DO UPDATE SET show_first_name_only = excluded.show_first_name_only,
			              quiet_mode = excluded.quiet_mode
		`, settings.SessionID, settings.ShowFirstNameOnly, settings.QuietMode)
		if err != nil {
			return fmt.Errorf("failed to upsert settings: %w", err)
		}
		return nil
	})
}

// UpsertSummary persists one gradebook row for (session, student, day),
// replacing any earlier computation for the same key.
func (m *Manager) UpsertSummary(ctx context.Context, sessionID, day string, summary *types.StudentSummary, at time.Time) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO grade_summaries (session_id, student_id, day, attendance, peer, instructor, poll_accuracy, computed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_id, student_id, day)
			DO UPDATE SET attendance = excluded.attendance,
			              peer = excluded.peer,
			              instructor = excluded.instructor,
			              poll_accuracy = excluded.poll_accuracy,
			              computed_at = excluded.computed_at
		`,
			sessionID,
			summary.StudentID,
			day,
			summary.Attendance,
			summary.PeerParticipation,
			summary.InstructorParticipation,
			summary.PollAccuracy,
			at,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert grade summary: %w", err)
		}
		return nil
	})
}

// HealthCheck validates database connectivity.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}

	return nil
}

// GetDB returns the underlying database connection for migrations.
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close shuts down the database manager.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

// applySQLiteOptimizations applies performance pragmas.
func applySQLiteOptimizations(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	return nil
}
