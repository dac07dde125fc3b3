// Package state defines the per-session game-state document.
//
// The document is a value object: it is loaded, transformed by a pure
// operation, and saved atomically inside a single transaction. Nothing
// mutates it in place outside that scope.
package state

import (
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/participant"
	"github.com/louisbranch/torchbearer.quest/internal/platform/errors"
)

// Phase is the current mode of play gating which actions are legal.
type Phase string

const (
	// PhaseExploration is free-form play outside structured scenes.
	PhaseExploration Phase = "exploration"
	// PhaseSocial covers structured social scenes.
	PhaseSocial Phase = "social"
	// PhaseRest covers short and long rests; all actions are forbidden.
	PhaseRest Phase = "rest"
	// PhaseCombat covers encounters with initiative order and budgets.
	PhaseCombat Phase = "combat"
)

// ParsePhase validates a wire phase value.
func ParsePhase(value string) (Phase, error) {
	switch Phase(strings.TrimSpace(value)) {
	case PhaseExploration:
		return PhaseExploration, nil
	case PhaseSocial:
		return PhaseSocial, nil
	case PhaseRest:
		return PhaseRest, nil
	case PhaseCombat:
		return PhaseCombat, nil
	default:
		return "", errors.WithMetadata(errors.CodePhaseInvalid,
			"unknown phase", map[string]string{"phase": value})
	}
}

// RestType distinguishes short from long rests.
type RestType string

const (
	// RestShort is a short rest.
	RestShort RestType = "short"
	// RestLong is a long rest.
	RestLong RestType = "long"
)

// ParseRestType validates a wire rest type value.
func ParseRestType(value string) (RestType, error) {
	switch RestType(strings.TrimSpace(value)) {
	case RestShort:
		return RestShort, nil
	case RestLong:
		return RestLong, nil
	default:
		return "", errors.WithMetadata(errors.CodeRestTypeInvalid,
			"unknown rest type", map[string]string{"restType": value})
	}
}

// RestContext records an in-progress rest; present only while phase = rest.
type RestContext struct {
	Type      RestType  `json:"type"`
	StartedAt time.Time `json:"startedAt"`
}

// BudgetCategory names one slot of the per-turn action economy.
type BudgetCategory string

const (
	// CategoryAction is the primary action slot.
	CategoryAction BudgetCategory = "action"
	// CategoryBonusAction is the bonus action slot.
	CategoryBonusAction BudgetCategory = "bonus_action"
	// CategoryReaction is the reaction slot.
	CategoryReaction BudgetCategory = "reaction"
	// CategoryMovement is the movement slot.
	CategoryMovement BudgetCategory = "movement"
)

// ParseBudgetCategory validates a wire budget category value.
func ParseBudgetCategory(value string) (BudgetCategory, error) {
	switch BudgetCategory(strings.TrimSpace(value)) {
	case CategoryAction:
		return CategoryAction, nil
	case CategoryBonusAction:
		return CategoryBonusAction, nil
	case CategoryReaction:
		return CategoryReaction, nil
	case CategoryMovement:
		return CategoryMovement, nil
	default:
		return "", errors.WithMetadata(errors.CodeBudgetCategoryInvalid,
			"unknown budget category", map[string]string{"category": value})
	}
}

// TurnBudget tracks remaining uses per action category for the active turn.
type TurnBudget map[BudgetCategory]int

// NewTurnBudget returns the standard per-turn allowance.
func NewTurnBudget() TurnBudget {
	return TurnBudget{
		CategoryAction:      1,
		CategoryBonusAction: 1,
		CategoryReaction:    1,
		CategoryMovement:    1,
	}
}

// Remaining reports how many uses of the category are left.
func (b TurnBudget) Remaining(category BudgetCategory) int {
	if b == nil {
		return 0
	}
	return b[category]
}

// Consume spends one use of the category, returning a new budget.
//
// Consume never produces a negative counter: spending an exhausted
// category fails instead.
func (b TurnBudget) Consume(category BudgetCategory) (TurnBudget, error) {
	if b.Remaining(category) <= 0 {
		return nil, errors.WithMetadata(errors.CodeBudgetExhausted,
			"turn budget exhausted for this category",
			map[string]string{"category": string(category)})
	}
	next := make(TurnBudget, len(b))
	for k, v := range b {
		next[k] = v
	}
	next[category]--
	return next, nil
}

// GameState is the session's game-state document.
type GameState struct {
	Phase             Phase                     `json:"phase"`
	RoundNumber       int                       `json:"roundNumber"`
	TurnOrder         []participant.Participant `json:"turnOrder"`
	ActiveParticipant participant.Participant   `json:"activePlayerId"`
	EncounterID       string                    `json:"encounterId,omitempty"`
	CombatTurnBudget  TurnBudget                `json:"combatTurnBudget,omitempty"`
	RestContext       *RestContext              `json:"restContext,omitempty"`
	PreviousPhase     Phase                     `json:"previousPhase,omitempty"`
}

// New returns the initial document for a freshly activated session.
func New() GameState {
	return GameState{
		Phase:       PhaseExploration,
		RoundNumber: 1,
	}
}

// InCombat reports whether the session is in the combat phase.
func (s GameState) InCombat() bool {
	return s.Phase == PhaseCombat
}

// Clone returns a deep copy so callers can derive a new document without
// aliasing the loaded one.
func (s GameState) Clone() GameState {
	clone := s
	if s.TurnOrder != nil {
		clone.TurnOrder = make([]participant.Participant, len(s.TurnOrder))
		copy(clone.TurnOrder, s.TurnOrder)
	}
	if s.CombatTurnBudget != nil {
		clone.CombatTurnBudget = make(TurnBudget, len(s.CombatTurnBudget))
		for k, v := range s.CombatTurnBudget {
			clone.CombatTurnBudget[k] = v
		}
	}
	if s.RestContext != nil {
		rc := *s.RestContext
		clone.RestContext = &rc
	}
	return clone
}

// Validate checks document invariants after a transformation.
func (s GameState) Validate() error {
	if s.RoundNumber < 1 {
		return fmt.Errorf("round number %d must be >= 1", s.RoundNumber)
	}
	seen := make(map[participant.Participant]struct{}, len(s.TurnOrder))
	for _, p := range s.TurnOrder {
		if p.IsZero() {
			return fmt.Errorf("turn order contains an unset participant")
		}
		if _, dup := seen[p]; dup {
			return fmt.Errorf("turn order contains duplicate participant %s", p)
		}
		seen[p] = struct{}{}
	}
	if s.EncounterID != "" && s.Phase != PhaseCombat {
		return fmt.Errorf("encounter id set outside combat phase")
	}
	for category, remaining := range s.CombatTurnBudget {
		if remaining < 0 {
			return fmt.Errorf("budget for %s is negative", category)
		}
	}
	if s.RestContext != nil && s.Phase != PhaseRest {
		return fmt.Errorf("rest context set outside rest phase")
	}
	return nil
}
