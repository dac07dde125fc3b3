// Package action models the lifecycle of a player-submitted action.
//
// Each action moves processing -> awaiting_roll? -> completed | failed and
// is immutable once terminal. Transitions are pure; the pipeline persists
// the resulting values.
package action

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/state"
	"github.com/louisbranch/torchbearer.quest/internal/platform/errors"
)

// Status is the action's lifecycle state.
type Status string

const (
	// StatusProcessing means generation is pending or in flight.
	StatusProcessing Status = "processing"
	// StatusAwaitingRoll means generation requested a roll from the actor.
	StatusAwaitingRoll Status = "awaiting_roll"
	// StatusCompleted is the successful terminal state.
	StatusCompleted Status = "completed"
	// StatusFailed is the failed terminal state; resubmit as a new action.
	StatusFailed Status = "failed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// RollResult is a player-submitted roll for an awaiting action.
type RollResult struct {
	Type  string `json:"type"`
	Value int    `json:"value"`
}

// Action is one player-submitted intent moving through the pipeline.
type Action struct {
	ID          string
	SessionID   string
	CampaignID  string
	UserID      string
	CharacterID string
	Type        string
	// Category is the combat budget slot this action consumed, empty
	// outside combat.
	Category   state.BudgetCategory
	Payload    json.RawMessage
	Status     Status
	DMResponse json.RawMessage
	RollResult *RollResult
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// NewInput describes a submission.
type NewInput struct {
	ID          string
	SessionID   string
	CampaignID  string
	UserID      string
	CharacterID string
	Type        string
	Category    state.BudgetCategory
	Payload     json.RawMessage
	Now         time.Time
}

// New creates an action in the processing state.
func New(in NewInput) (Action, error) {
	if strings.TrimSpace(in.Type) == "" {
		return Action{}, errors.New(errors.CodeActionTypeRequired, "action type is required")
	}
	return Action{
		ID:          in.ID,
		SessionID:   in.SessionID,
		CampaignID:  in.CampaignID,
		UserID:      in.UserID,
		CharacterID: in.CharacterID,
		Type:        strings.TrimSpace(in.Type),
		Category:    in.Category,
		Payload:     in.Payload,
		Status:      StatusProcessing,
		CreatedAt:   in.Now.UTC(),
	}, nil
}

// AwaitRoll records the generation response and pauses for a roll.
func (a Action) AwaitRoll(response json.RawMessage) (Action, error) {
	if a.Status != StatusProcessing {
		return Action{}, errors.WithMetadata(errors.CodeActionAlreadyResolved,
			"only a processing action can await a roll",
			map[string]string{"status": string(a.Status)})
	}
	next := a
	next.Status = StatusAwaitingRoll
	next.DMResponse = response
	return next, nil
}

// WithRollResult stores the player's roll and resumes processing.
//
// An action accepts at most one roll result across its lifetime.
func (a Action) WithRollResult(roll RollResult) (Action, error) {
	if a.Status != StatusAwaitingRoll {
		return Action{}, errors.WithMetadata(errors.CodeActionNotAwaitingRoll,
			"action is not awaiting a roll",
			map[string]string{"status": string(a.Status)})
	}
	if a.RollResult != nil {
		return Action{}, errors.New(errors.CodeActionNotAwaitingRoll,
			"action already has a roll result")
	}
	if roll.Value < 1 {
		return Action{}, errors.New(errors.CodeRollValueOutOfRange,
			"roll value must be positive")
	}
	next := a
	next.Status = StatusProcessing
	next.RollResult = &roll
	return next, nil
}

// Complete resolves the action with its final generation response.
func (a Action) Complete(response json.RawMessage, now time.Time) (Action, error) {
	if a.Status != StatusProcessing {
		return Action{}, errors.WithMetadata(errors.CodeActionAlreadyResolved,
			"only a processing action can complete",
			map[string]string{"status": string(a.Status)})
	}
	resolvedAt := now.UTC()
	next := a
	next.Status = StatusCompleted
	next.DMResponse = response
	next.ResolvedAt = &resolvedAt
	return next, nil
}

// Fail resolves the action after a pipeline error. Terminal; the user must
// resubmit a new action.
func (a Action) Fail(now time.Time) (Action, error) {
	if a.Status.Terminal() {
		return Action{}, errors.WithMetadata(errors.CodeActionAlreadyResolved,
			"action is already resolved",
			map[string]string{"status": string(a.Status)})
	}
	resolvedAt := now.UTC()
	next := a
	next.Status = StatusFailed
	next.ResolvedAt = &resolvedAt
	return next, nil
}
