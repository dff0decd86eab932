package types

import (
	"time"

	"github.com/google/uuid"
)

// EventSchemaVersion is carried on every broadcast event so clients can
// detect payload schema changes.
const EventSchemaVersion = 1

// Broadcast event names. Stable wire identifiers; renaming one is a breaking
// change for connected clients.
const (
	EventSessionStarted       = "session_started"
	EventSessionStopped       = "session_stopped"
	EventStudentJoined        = "student_joined"
	EventInteractionRecorded  = "interaction_recorded"
	EventPollOpened           = "poll_opened"
	EventPollClosed           = "poll_closed"
	EventPollResponseReceived = "poll_response_received"
	EventSettingsUpdated      = "settings_updated"
)

// Event is the envelope fanned out to every subscriber of a session's room.
// Payload is one of the fixed payload structs below, never a free-form map.
type Event struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Version   int         `json:"v"`
	SessionID string      `json:"session_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

type SessionStartedPayload struct {
	Code string `json:"code"`
}

type SessionStoppedPayload struct{}

type StudentJoinedPayload struct {
	StudentID string `json:"student_id"`
}

type InteractionRecordedPayload struct {
	StudentID string          `json:"student_id"`
	Kind      InteractionKind `json:"kind"`
}

type PollOpenedPayload struct {
	PollID    string   `json:"poll_id"`
	Question  string   `json:"question"`
	Options   []string `json:"options"`
	Anonymous bool     `json:"anonymous"`
}

type PollClosedPayload struct {
	PollID string `json:"poll_id"`
}

// PollResponseReceivedPayload carries full detail to the owning professor.
// For anonymous polls the hub strips StudentID before delivering to anyone
// else in the room.
type PollResponseReceivedPayload struct {
	PollID      string `json:"poll_id"`
	StudentID   string `json:"student_id,omitempty"`
	OptionIndex int    `json:"option_index"`
	Correct     bool   `json:"correct"`
	Anonymous   bool   `json:"anonymous"`
}

// Redacted returns a copy safe for non-owner subscribers.
func (p PollResponseReceivedPayload) Redacted() PollResponseReceivedPayload {
	p.StudentID = ""
	return p
}

type SettingsUpdatedPayload struct {
	ShowFirstNameOnly bool `json:"show_first_name_only"`
	QuietMode         bool `json:"quiet_mode"`
}

// NewEvent builds an event envelope with a server-assigned ID and timestamp.
func NewEvent(name, sessionID string, payload interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Name:      name,
		Version:   EventSchemaVersion,
		SessionID: sessionID,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}
