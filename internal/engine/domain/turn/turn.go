// Package turn owns rotation of the session's turn order.
package turn

import (
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/participant"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/state"
	"github.com/louisbranch/torchbearer.quest/internal/platform/errors"
)

// Result carries the document after an advancement.
type Result struct {
	State state.GameState
	// Wrapped reports that the rotation returned to the head of the order,
	// incrementing the round number.
	Wrapped bool
}

// SetOrder replaces the turn order wholesale.
//
// The active pointer is left untouched; the next EndTurn advances within
// the new order. Duplicate or unset participants are rejected.
func SetOrder(current state.GameState, order []participant.Participant) (state.GameState, error) {
	seen := make(map[participant.Participant]struct{}, len(order))
	for _, p := range order {
		if p.IsZero() {
			return state.GameState{}, errors.New(errors.CodeTurnOrderInvalidEntry,
				"turn order entries must be set participants")
		}
		if _, dup := seen[p]; dup {
			return state.GameState{}, errors.WithMetadata(errors.CodeTurnOrderDuplicate,
				"turn order contains a duplicate participant",
				map[string]string{"participant": p.String()})
		}
		seen[p] = struct{}{}
	}

	next := current.Clone()
	next.TurnOrder = make([]participant.Participant, len(order))
	copy(next.TurnOrder, order)
	if err := next.Validate(); err != nil {
		return state.GameState{}, errors.Wrap(errors.CodeUnknown, "invalid state after set order", err)
	}
	return next, nil
}

// EndTurn advances the active pointer to the next participant.
//
// Wrapping past the tail returns to the head and increments the round.
// With an empty order the round still increments and no pointer moves;
// callers tolerate this rather than treating it as an error.
func EndTurn(current state.GameState) Result {
	next := current.Clone()

	if len(next.TurnOrder) == 0 {
		next.RoundNumber++
		next.ActiveParticipant = participant.Participant{}
		return Result{State: next, Wrapped: true}
	}

	idx := indexOf(next.TurnOrder, next.ActiveParticipant)
	var wrapped bool
	switch {
	case idx < 0:
		// Active pointer unset or no longer in the order: start at the head.
		next.ActiveParticipant = next.TurnOrder[0]
	case idx == len(next.TurnOrder)-1:
		next.ActiveParticipant = next.TurnOrder[0]
		next.RoundNumber++
		wrapped = true
	default:
		next.ActiveParticipant = next.TurnOrder[idx+1]
	}

	resetBudget(&next)
	return Result{State: next, Wrapped: wrapped}
}

// Skip forcibly advances past the target regardless of whose turn it is.
//
// The skipped participant is not considered to have completed a turn.
func Skip(current state.GameState, target participant.Participant) (Result, error) {
	idx := indexOf(current.TurnOrder, target)
	if idx < 0 {
		return Result{}, errors.WithMetadata(errors.CodeTurnParticipantNotFound,
			"participant is not in the turn order",
			map[string]string{"participant": target.String()})
	}

	next := current.Clone()
	var wrapped bool
	if idx == len(next.TurnOrder)-1 {
		next.ActiveParticipant = next.TurnOrder[0]
		next.RoundNumber++
		wrapped = true
	} else {
		next.ActiveParticipant = next.TurnOrder[idx+1]
	}

	resetBudget(&next)
	return Result{State: next, Wrapped: wrapped}, nil
}

// resetBudget grants the new active participant a fresh combat allowance.
func resetBudget(doc *state.GameState) {
	if doc.InCombat() {
		doc.CombatTurnBudget = state.NewTurnBudget()
	}
}

func indexOf(order []participant.Participant, p participant.Participant) int {
	if p.IsZero() {
		return -1
	}
	for i, entry := range order {
		if entry == p {
			return i
		}
	}
	return -1
}
