package phase

import (
	"errors"
	"testing"
	"time"

	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/state"
	platformerrors "github.com/louisbranch/torchbearer.quest/internal/platform/errors"
)

var now = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func TestTransitionToRestSetsContext(t *testing.T) {
	current := state.New()
	result, err := Transition(current, TransitionInput{
		Target:   state.PhaseRest,
		RestType: state.RestShort,
		Now:      now,
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if result.PreviousPhase != state.PhaseExploration {
		t.Fatalf("previous phase = %s, want exploration", result.PreviousPhase)
	}
	if result.State.RestContext == nil || result.State.RestContext.Type != state.RestShort {
		t.Fatalf("rest context = %+v", result.State.RestContext)
	}
	if !result.State.RestContext.StartedAt.Equal(now) {
		t.Fatalf("startedAt = %s, want %s", result.State.RestContext.StartedAt, now)
	}
}

func TestTransitionOutOfRestClearsContext(t *testing.T) {
	current := state.New()
	resting, err := Transition(current, TransitionInput{
		Target: state.PhaseRest, RestType: state.RestLong, Now: now,
	})
	if err != nil {
		t.Fatalf("enter rest: %v", err)
	}

	result, err := Transition(resting.State, TransitionInput{
		Target: state.PhaseSocial, Now: now,
	})
	if err != nil {
		t.Fatalf("leave rest: %v", err)
	}
	if result.State.RestContext != nil {
		t.Fatal("expected rest context cleared")
	}
	if result.State.PreviousPhase != state.PhaseRest {
		t.Fatalf("previous phase = %s, want rest", result.State.PreviousPhase)
	}
}

func TestTransitionIntoCombatRequiresEncounter(t *testing.T) {
	_, err := Transition(state.New(), TransitionInput{Target: state.PhaseCombat, Now: now})
	if err == nil {
		t.Fatal("expected encounter requirement")
	}

	result, err := Transition(state.New(), TransitionInput{
		Target: state.PhaseCombat, EncounterID: "enc-1", Now: now,
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if result.State.EncounterID != "enc-1" {
		t.Fatalf("encounter id = %q", result.State.EncounterID)
	}
	if result.State.CombatTurnBudget.Remaining(state.CategoryAction) != 1 {
		t.Fatal("expected fresh combat budget")
	}
}

func TestTransitionOutOfCombatRequiresResolvedEncounter(t *testing.T) {
	inCombat, err := Transition(state.New(), TransitionInput{
		Target: state.PhaseCombat, EncounterID: "enc-1", Now: now,
	})
	if err != nil {
		t.Fatalf("enter combat: %v", err)
	}

	_, err = Transition(inCombat.State, TransitionInput{Target: state.PhaseExploration, Now: now})
	if !errors.Is(err, platformerrors.New(platformerrors.CodeEncounterNotResolved, "")) {
		t.Fatalf("expected encounter-not-resolved, got %v", err)
	}

	resolved := inCombat.State.Clone()
	resolved.EncounterID = ""
	result, err := Transition(resolved, TransitionInput{Target: state.PhaseExploration, Now: now})
	if err != nil {
		t.Fatalf("leave combat: %v", err)
	}
	if result.State.EncounterID != "" || result.State.CombatTurnBudget != nil {
		t.Fatal("expected combat fields cleared")
	}
}

func TestTransitionSamePhaseIsNoOpError(t *testing.T) {
	_, err := Transition(state.New(), TransitionInput{Target: state.PhaseExploration, Now: now})
	if !errors.Is(err, platformerrors.New(platformerrors.CodePhaseTransitionNoOp, "")) {
		t.Fatalf("expected no-op rejection, got %v", err)
	}
}
