package service

import (
	"context"
	"encoding/json"

	"github.com/louisbranch/torchbearer.quest/internal/engine/authz"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/action"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/state"
	"github.com/louisbranch/torchbearer.quest/internal/engine/storage"
	"github.com/louisbranch/torchbearer.quest/internal/platform/errors"
)

// SubmitActionInput is one player intent entering the pipeline.
type SubmitActionInput struct {
	SessionID   string
	CharacterID string
	ActionType  string
	// Category is the combat budget slot to consume; defaults to the main
	// action. Ignored outside combat.
	Category state.BudgetCategory
	Payload  json.RawMessage
}

// SubmitAction validates the submission, persists the processing action,
// and enqueues generation. The narrated outcome arrives asynchronously via
// broadcast; the returned action is the immediate acknowledgement.
//
// In combat the submission consumes the named budget slot atomically with
// the action insert, so an over-budget intent never leaves a row behind.
func (s *Service) SubmitAction(ctx context.Context, in SubmitActionInput) (act action.Action, err error) {
	ctx, done := s.begin(ctx, "SubmitAction")
	defer func() { done(err) }()

	actor, err := authz.ActorFromContext(ctx)
	if err != nil {
		return action.Action{}, err
	}

	session, err := s.activeSession(ctx, in.SessionID)
	if err != nil {
		return action.Action{}, err
	}
	doc := session.State

	// Fast rejection on the snapshot; the same checks re-run inside the
	// write transaction against current state.
	if err = checkSubmittable(actor, doc); err != nil {
		return action.Action{}, err
	}

	actionID, err := s.newID()
	if err != nil {
		return action.Action{}, errors.Wrap(errors.CodeUnknown, "generate action id", err)
	}

	var category state.BudgetCategory
	if doc.InCombat() {
		category = in.Category
		if category == "" {
			category = state.CategoryAction
		}
	}

	update := &storage.StateUpdate{
		SessionID: session.ID,
		Mutate: func(current state.GameState) (state.GameState, error) {
			if mutateErr := checkSubmittable(actor, current); mutateErr != nil {
				return state.GameState{}, mutateErr
			}
			if !current.InCombat() {
				return current, nil
			}
			slot := category
			if slot == "" {
				slot = state.CategoryAction
			}
			consumed, consumeErr := current.CombatTurnBudget.Consume(slot)
			if consumeErr != nil {
				return state.GameState{}, consumeErr
			}
			next := current.Clone()
			next.CombatTurnBudget = consumed
			return next, nil
		},
	}

	act, err = action.New(action.NewInput{
		ID:          actionID,
		SessionID:   session.ID,
		CampaignID:  session.CampaignID,
		UserID:      actor.UserID,
		CharacterID: in.CharacterID,
		Type:        in.ActionType,
		Category:    category,
		Payload:     in.Payload,
		Now:         s.now(),
	})
	if err != nil {
		return action.Action{}, err
	}

	if err = s.store.CreateAction(ctx, act, update); err != nil {
		if errors.CodeOf(err) != errors.CodeUnknown {
			return action.Action{}, err
		}
		return action.Action{}, errors.Wrap(errors.CodeUnknown, "persist action", err)
	}

	s.enqueueGeneration(act.ID)
	return act, nil
}

// checkSubmittable guards an action submission against the document: rest
// forbids all actions, and an active pointer restricts submission to the
// turn holder (DM bypasses) in every phase, not just combat.
func checkSubmittable(actor authz.Actor, doc state.GameState) error {
	if doc.Phase == state.PhaseRest {
		return errors.New(errors.CodeRestForbidsActions,
			"actions cannot be submitted while resting")
	}
	return requireTurnHolder(actor, doc.ActiveParticipant)
}

// SubmitRoll attaches the player's roll to an awaiting action and resumes
// generation.
func (s *Service) SubmitRoll(ctx context.Context, actionID string, roll action.RollResult) (act action.Action, err error) {
	ctx, done := s.begin(ctx, "SubmitRoll")
	defer func() { done(err) }()

	actor, err := authz.ActorFromContext(ctx)
	if err != nil {
		return action.Action{}, err
	}

	act, err = s.store.UpdateAction(ctx, actionID, func(current action.Action) (action.Action, error) {
		if !actor.CanModerate() && current.UserID != actor.UserID {
			return action.Action{}, errors.WithMetadata(errors.CodeActorForbidden,
				"rolls belong to the action's submitter",
				map[string]string{"actionId": current.ID})
		}
		return current.WithRollResult(roll)
	})
	if err != nil {
		if err == storage.ErrNotFound {
			return action.Action{}, errors.WithMetadata(errors.CodeActionNotFound,
				"action does not exist",
				map[string]string{"actionId": actionID})
		}
		return action.Action{}, err
	}

	s.enqueueGeneration(act.ID)
	return act, nil
}

// GetAction loads one action for polling clients.
func (s *Service) GetAction(ctx context.Context, actionID string) (act action.Action, err error) {
	ctx, done := s.begin(ctx, "GetAction")
	defer func() { done(err) }()

	if _, err = authz.ActorFromContext(ctx); err != nil {
		return action.Action{}, err
	}

	act, err = s.store.GetAction(ctx, actionID)
	if err != nil {
		if err == storage.ErrNotFound {
			return action.Action{}, errors.WithMetadata(errors.CodeActionNotFound,
				"action does not exist",
				map[string]string{"actionId": actionID})
		}
		return action.Action{}, errors.Wrap(errors.CodeUnknown, "load action", err)
	}
	return act, nil
}
