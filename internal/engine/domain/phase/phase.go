// Package phase validates and applies phase transitions for a session.
package phase

import (
	"time"

	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/state"
	"github.com/louisbranch/torchbearer.quest/internal/platform/errors"
)

// TransitionInput describes a requested phase change.
type TransitionInput struct {
	Target state.Phase
	// RestType is required when Target is rest.
	RestType state.RestType
	// EncounterID is required when Target is combat; the caller creates the
	// encounter (in the same transaction) before applying the transition.
	EncounterID string
	Now         time.Time
}

// Result carries the applied transition.
type Result struct {
	PreviousPhase state.Phase
	State         state.GameState
}

// Transition applies a phase change to the document.
//
// Fields not meaningful in the new phase are cleared: rest context outside
// rest, encounter id and turn budget outside combat. Leaving combat with an
// unresolved encounter is rejected; combat end resolution clears the
// encounter before requesting the phase return.
func Transition(current state.GameState, in TransitionInput) (Result, error) {
	if in.Target == current.Phase {
		return Result{}, errors.WithMetadata(errors.CodePhaseTransitionNoOp,
			"session is already in the requested phase",
			map[string]string{"phase": string(current.Phase)})
	}

	if current.Phase == state.PhaseCombat && current.EncounterID != "" {
		return Result{}, errors.WithMetadata(errors.CodeEncounterNotResolved,
			"combat encounter must be resolved before leaving combat",
			map[string]string{"encounterId": current.EncounterID})
	}

	next := current.Clone()
	next.PreviousPhase = current.Phase
	next.Phase = in.Target
	next.RestContext = nil
	next.EncounterID = ""
	next.CombatTurnBudget = nil

	switch in.Target {
	case state.PhaseRest:
		if in.RestType != state.RestShort && in.RestType != state.RestLong {
			return Result{}, errors.New(errors.CodeRestTypeInvalid,
				"rest type must be short or long")
		}
		next.RestContext = &state.RestContext{Type: in.RestType, StartedAt: in.Now.UTC()}
	case state.PhaseCombat:
		if in.EncounterID == "" {
			return Result{}, errors.New(errors.CodeEncounterNotFound,
				"combat entry requires an encounter")
		}
		next.EncounterID = in.EncounterID
		next.CombatTurnBudget = state.NewTurnBudget()
	}

	if err := next.Validate(); err != nil {
		return Result{}, errors.Wrap(errors.CodeUnknown, "invalid state after transition", err)
	}
	return Result{PreviousPhase: current.Phase, State: next}, nil
}
