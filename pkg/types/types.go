package types

import (
	"time"
)

// InteractionKind identifies a transient engagement signal recorded in the
// participation ledger.
type InteractionKind string

const (
	InteractionHandRaise    InteractionKind = "hand_raise"
	InteractionReactionUp   InteractionKind = "reaction_up"
	InteractionReactionDown InteractionKind = "reaction_down"
)

// Roles carried by subscriber connections. Only the owning professor receives
// unredacted poll response events for anonymous polls.
const (
	RoleProfessor = "professor"
	RoleStudent   = "student"
)

// Session is one professor-owned class meeting instance. Identity fields are
// immutable after creation; only the active flag toggles via start/stop.
type Session struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Code      string    `json:"code" db:"code"`
	CreatedBy string    `json:"created_by" db:"created_by"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Enrollment is the first-seen-wins (session, student) pair created on first
// join and never duplicated.
type Enrollment struct {
	SessionID  string    `json:"session_id" db:"session_id"`
	StudentID  string    `json:"student_id" db:"student_id"`
	EnrolledAt time.Time `json:"enrolled_at" db:"enrolled_at"`
}

// AttendanceMark records presence for one (session, student, calendar day).
type AttendanceMark struct {
	SessionID string    `json:"session_id" db:"session_id"`
	StudentID string    `json:"student_id" db:"student_id"`
	Day       string    `json:"day" db:"day"`
	Present   bool      `json:"present" db:"present"`
	MarkedAt  time.Time `json:"marked_at" db:"marked_at"`
}

// Participation holds the per-student per-day engagement counters plus the
// peer/instructor grades supplied out of band by the gradebook collaborator.
// The engine only increments counters; it never writes the grade columns.
type Participation struct {
	SessionID       string  `json:"session_id" db:"session_id"`
	StudentID       string  `json:"student_id" db:"student_id"`
	Day             string  `json:"day" db:"day"`
	HandRaises      int     `json:"hand_raises" db:"hand_raises"`
	ReactionsUp     int     `json:"reactions_up" db:"reactions_up"`
	ReactionsDown   int     `json:"reactions_down" db:"reactions_down"`
	PeerGrade       float64 `json:"peer_grade" db:"peer_grade"`
	InstructorGrade float64 `json:"instructor_grade" db:"instructor_grade"`
}

// Poll is a single-question poll. At most one poll per session has Open=true
// at any time; opening a new poll implicitly closes the previous one.
type Poll struct {
	ID           string    `json:"id" db:"id"`
	SessionID    string    `json:"session_id" db:"session_id"`
	Question     string    `json:"question" db:"question"`
	Options      []string  `json:"options" db:"options"`
	CorrectIndex *int      `json:"correct_index,omitempty" db:"correct_index"`
	Anonymous    bool      `json:"anonymous" db:"anonymous"`
	Open         bool      `json:"open" db:"open"`
	Day          string    `json:"day" db:"day"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// PollResponse is one student's answer to a poll. First response wins; later
// submissions are rejected, never overwritten.
type PollResponse struct {
	PollID      string    `json:"poll_id" db:"poll_id"`
	StudentID   string    `json:"student_id" db:"student_id"`
	OptionIndex int       `json:"option_index" db:"option_index"`
	Correct     bool      `json:"correct" db:"correct"`
	SubmittedAt time.Time `json:"submitted_at" db:"submitted_at"`
}

// Settings are the per-session display flags broadcast to the room when the
// owner changes them.
type Settings struct {
	SessionID         string `json:"session_id" db:"session_id"`
	ShowFirstNameOnly bool   `json:"show_first_name_only" db:"show_first_name_only"`
	QuietMode         bool   `json:"quiet_mode" db:"quiet_mode"`
}

// StudentSummary is one gradebook row. Every component is 0 when its
// denominator is zero, and rounded to two decimal places.
type StudentSummary struct {
	StudentID               string  `json:"student_id"`
	Attendance              float64 `json:"attendance"`
	PeerParticipation       float64 `json:"peer_participation"`
	InstructorParticipation float64 `json:"instructor_participation"`
	PollAccuracy            float64 `json:"poll_accuracy"`
}

// PollTally is the per-option response count for a poll. OptionCounts is
// indexed by option; options nobody picked count zero.
type PollTally struct {
	PollID         string   `json:"poll_id"`
	Question       string   `json:"question"`
	Options        []string `json:"options"`
	OptionCounts   []int    `json:"option_counts"`
	TotalResponses int      `json:"total_responses"`
	CorrectCount   int      `json:"correct_count"`
	Anonymous      bool     `json:"anonymous"`
}

// LiveStats is the computed, non-persisted snapshot served to a single
// requesting subscriber. It is recomputed on every request.
type LiveStats struct {
	SessionID     string     `json:"session_id"`
	TotalEnrolled int        `json:"total_enrolled"`
	PresentToday  int        `json:"present_today"`
	HandRaises    int        `json:"hand_raises"`
	ReactionsUp   int        `json:"reactions_up"`
	ReactionsDown int        `json:"reactions_down"`
	Poll          *PollTally `json:"poll,omitempty"`
	ComputedAt    time.Time  `json:"computed_at"`
}

// DayOf formats the calendar day key for a point in time. Days are UTC so a
// session spanning midnight local time still buckets consistently.
func DayOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
