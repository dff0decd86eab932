package grades

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"classpulse/internal/poll"
	"classpulse/pkg/interfaces"
	"classpulse/pkg/types"
)

// Store is the read surface the aggregator computes from, plus the summary
// table StopSession finalization writes to.
type Store interface {
	interfaces.RosterStore
	interfaces.LedgerStore
	interfaces.PollStore
	interfaces.SummaryStore
}

// Aggregator derives grade summaries and live snapshots from the ledger,
// attendance, and poll history. It holds no state of its own; every result
// is recomputed from storage on request.
type Aggregator struct {
	store Store
	now   func() time.Time
}

// NewAggregator creates an aggregator.
func NewAggregator(store Store) *Aggregator {
	return &Aggregator{store: store, now: time.Now}
}

// ComputeStudentSummary derives the four grade components for one student.
// day scopes the computation to a calendar day; "" means all time. Each
// component reports 0 when its denominator is zero.
func (a *Aggregator) ComputeStudentSummary(ctx context.Context, sessionID, studentID, day string) (*types.StudentSummary, error) {
	presentDays, err := a.store.CountPresentDays(ctx, sessionID, studentID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to count present days: %w", err)
	}
	sessionDays, err := a.store.CountSessionDays(ctx, sessionID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to count session days: %w", err)
	}

	participation, err := a.store.ListParticipation(ctx, sessionID, studentID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to list participation: %w", err)
	}

	responses, err := a.store.ListStudentResponses(ctx, sessionID, studentID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to list poll responses: %w", err)
	}

	summary := &types.StudentSummary{
		StudentID:               studentID,
		Attendance:              round2(ratio(presentDays, sessionDays) * 100),
		PeerParticipation:       round2(meanPeerGrade(participation)),
		InstructorParticipation: round2(meanInstructorGrade(participation)),
		PollAccuracy:            round2(pollAccuracy(responses)),
	}

	return summary, nil
}

// ComputeGradebook returns a summary for every enrolled student, in
// enrollment order so output is deterministic.
func (a *Aggregator) ComputeGradebook(ctx context.Context, sessionID string) ([]*types.StudentSummary, error) {
	enrollments, err := a.store.ListEnrollments(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}

	summaries := make([]*types.StudentSummary, 0, len(enrollments))
	for _, enrollment := range enrollments {
		summary, err := a.ComputeStudentSummary(ctx, sessionID, enrollment.StudentID, "")
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}

	return summaries, nil
}

// FinalizeSession computes today's summary for every enrolled student and
// persists the rows. Upserts keyed by (session, student, day) make repeated
// finalization safe.
func (a *Aggregator) FinalizeSession(ctx context.Context, sessionID string) error {
	enrollments, err := a.store.ListEnrollments(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to list enrollments: %w", err)
	}

	now := a.now()
	day := types.DayOf(now)

	for _, enrollment := range enrollments {
		summary, err := a.ComputeStudentSummary(ctx, sessionID, enrollment.StudentID, day)
		if err != nil {
			return err
		}
		if err := a.store.UpsertSummary(ctx, sessionID, day, summary, now); err != nil {
			return fmt.Errorf("failed to persist summary for %s: %w", enrollment.StudentID, err)
		}
	}

	log.Printf("Finalized grades: session=%s day=%s students=%d", sessionID, day, len(enrollments))
	return nil
}

// LiveStats computes the point-in-time snapshot for a session's room:
// today's attendance against total enrollment, today's engagement totals,
// and the live tally of the open poll if there is one. Nothing is cached
// across mutations.
func (a *Aggregator) LiveStats(ctx context.Context, sessionID string) (*types.LiveStats, error) {
	now := a.now()
	day := types.DayOf(now)

	enrollments, err := a.store.ListEnrollments(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}

	present, err := a.store.CountPresent(ctx, sessionID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to count attendance: %w", err)
	}

	participation, err := a.store.ListParticipationForDay(ctx, sessionID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to list participation: %w", err)
	}

	stats := &types.LiveStats{
		SessionID:     sessionID,
		TotalEnrolled: len(enrollments),
		PresentToday:  present,
		ComputedAt:    now,
	}
	for _, p := range participation {
		stats.HandRaises += p.HandRaises
		stats.ReactionsUp += p.ReactionsUp
		stats.ReactionsDown += p.ReactionsDown
	}

	openPoll, err := a.store.GetOpenPoll(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up open poll: %w", err)
	}
	if openPoll != nil {
		responses, err := a.store.ListPollResponses(ctx, openPoll.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list poll responses: %w", err)
		}
		stats.Poll = poll.Tally(openPoll, responses)
	}

	return stats, nil
}

// ratio returns n/d, or 0 when d is zero.
func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func meanPeerGrade(rows []*types.Participation) float64 {
	if len(rows) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range rows {
		sum += p.PeerGrade
	}
	return sum / float64(len(rows))
}

func meanInstructorGrade(rows []*types.Participation) float64 {
	if len(rows) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range rows {
		sum += p.InstructorGrade
	}
	return sum / float64(len(rows))
}

func pollAccuracy(responses []*types.PollResponse) float64 {
	if len(responses) == 0 {
		return 0
	}
	correct := 0
	for _, r := range responses {
		if r.Correct {
			correct++
		}
	}
	return float64(correct) / float64(len(responses)) * 100
}

// round2 rounds to two decimal places for reporting.
func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
