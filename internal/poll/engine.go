package poll

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"classpulse/internal/session"
	"classpulse/pkg/interfaces"
	"classpulse/pkg/types"
)

// Store is the persistence surface the poll engine needs. Session rows are
// read for the active check; poll mutations go through the PollStore.
type Store interface {
	interfaces.SessionStore
	interfaces.PollStore
}

// Engine manages the poll lifecycle for active sessions. It shares the
// session lock table with the session engine so poll mutations serialize
// with lifecycle transitions on the same session.
type Engine struct {
	store     Store
	auth      interfaces.Authorizer
	publisher interfaces.Publisher
	locks     *session.Locks
	now       func() time.Time
}

// NewEngine creates a poll engine.
func NewEngine(store Store, auth interfaces.Authorizer, publisher interfaces.Publisher, locks *session.Locks) *Engine {
	return &Engine{
		store:     store,
		auth:      auth,
		publisher: publisher,
		locks:     locks,
		now:       time.Now,
	}
}

// OpenPoll creates a new open poll for the session, implicitly closing any
// currently-open one. The close-previous and insert run in one storage
// transaction; on failure nothing changes and the session never has two
// open polls.
func (e *Engine) OpenPoll(ctx context.Context, sessionID, actorID, question string, options []string, correctIndex *int, anonymous bool) (*types.Poll, error) {
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if len(options) < 2 {
		return nil, ErrTooFewOptions
	}
	if correctIndex != nil && (*correctIndex < 0 || *correctIndex >= len(options)) {
		return nil, types.ErrInvalidOption
	}
	if !types.IsValidActorID(actorID) {
		return nil, ErrInvalidActorID
	}

	e.locks.Lock(sessionID)
	defer e.locks.Unlock(sessionID)

	sess, err := e.authorize(ctx, sessionID, actorID)
	if err != nil {
		return nil, err
	}
	if !sess.Active {
		return nil, types.ErrSessionNotActive
	}

	now := e.now()
	poll := &types.Poll{
		ID:           uuid.New().String(),
		SessionID:    sessionID,
		Question:     question,
		Options:      options,
		CorrectIndex: correctIndex,
		Anonymous:    anonymous,
		Open:         true,
		Day:          types.DayOf(now),
		CreatedAt:    now,
	}

	if err := e.store.OpenPoll(ctx, poll); err != nil {
		return nil, fmt.Errorf("failed to open poll: %w", err)
	}

	e.publisher.Publish(sessionID, types.NewEvent(types.EventPollOpened, sessionID,
		types.PollOpenedPayload{
			PollID:    poll.ID,
			Question:  poll.Question,
			Options:   poll.Options,
			Anonymous: poll.Anonymous,
		}))

	log.Printf("Opened poll: id=%s session=%s options=%d anonymous=%t", poll.ID, sessionID, len(options), anonymous)
	return poll, nil
}

// ClosePoll marks a poll closed. Responses are kept. Owner only.
func (e *Engine) ClosePoll(ctx context.Context, pollID, actorID string) error {
	poll, err := e.store.GetPoll(ctx, pollID)
	if err != nil {
		return err
	}

	e.locks.Lock(poll.SessionID)
	defer e.locks.Unlock(poll.SessionID)

	if _, err := e.authorize(ctx, poll.SessionID, actorID); err != nil {
		return err
	}

	// Re-read under the lock: a concurrent OpenPoll may have closed it.
	poll, err = e.store.GetPoll(ctx, pollID)
	if err != nil {
		return err
	}
	if !poll.Open {
		return types.ErrPollNotOpen
	}

	if err := e.store.ClosePoll(ctx, pollID); err != nil {
		return fmt.Errorf("failed to close poll: %w", err)
	}

	e.publisher.Publish(poll.SessionID, types.NewEvent(types.EventPollClosed, poll.SessionID,
		types.PollClosedPayload{PollID: pollID}))

	log.Printf("Closed poll: id=%s session=%s", pollID, poll.SessionID)
	return nil
}

// GetOpenPoll returns the session's open poll, or nil when none is open.
func (e *Engine) GetOpenPoll(ctx context.Context, sessionID string) (*types.Poll, error) {
	return e.store.GetOpenPoll(ctx, sessionID)
}

// SubmitResponse records a student's answer. First response wins; a second
// submission from the same student fails with types.ErrDuplicateResponse and
// never overwrites the stored answer.
func (e *Engine) SubmitResponse(ctx context.Context, pollID, studentID string, optionIndex int) (*types.PollResponse, error) {
	if !types.IsValidActorID(studentID) {
		return nil, ErrInvalidActorID
	}

	poll, err := e.store.GetPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}

	e.locks.Lock(poll.SessionID)
	defer e.locks.Unlock(poll.SessionID)

	poll, err = e.store.GetPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if !poll.Open {
		return nil, types.ErrPollNotOpen
	}
	if optionIndex < 0 || optionIndex >= len(poll.Options) {
		return nil, types.ErrInvalidOption
	}

	response := &types.PollResponse{
		PollID:      pollID,
		StudentID:   studentID,
		OptionIndex: optionIndex,
		Correct:     poll.CorrectIndex != nil && optionIndex == *poll.CorrectIndex,
		SubmittedAt: e.now(),
	}

	if err := e.store.InsertPollResponse(ctx, response); err != nil {
		return nil, err
	}

	e.publisher.Publish(poll.SessionID, types.NewEvent(types.EventPollResponseReceived, poll.SessionID,
		types.PollResponseReceivedPayload{
			PollID:      pollID,
			StudentID:   studentID,
			OptionIndex: optionIndex,
			Correct:     response.Correct,
			Anonymous:   poll.Anonymous,
		}))

	return response, nil
}

// Tally groups a poll's responses by option. Pure function: options nobody
// picked count zero, and the correctness count only means something when the
// poll has a correct index.
func Tally(poll *types.Poll, responses []*types.PollResponse) *types.PollTally {
	counts := make([]int, len(poll.Options))
	correct := 0
	for _, r := range responses {
		if r.OptionIndex >= 0 && r.OptionIndex < len(counts) {
			counts[r.OptionIndex]++
		}
		if r.Correct {
			correct++
		}
	}

	return &types.PollTally{
		PollID:         poll.ID,
		Question:       poll.Question,
		Options:        poll.Options,
		OptionCounts:   counts,
		TotalResponses: len(responses),
		CorrectCount:   correct,
		Anonymous:      poll.Anonymous,
	}
}

// authorize loads the session and checks ownership.
func (e *Engine) authorize(ctx context.Context, sessionID, actorID string) (*types.Session, error) {
	sess, err := e.store.GetSession(ctx, sessionID)
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

	return sess, nil
}
