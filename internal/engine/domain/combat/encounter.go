// Package combat owns the encounter lifecycle: initiative, the per-round
// action economy, and end-of-combat resolution.
package combat

import (
	"strings"
	"time"

	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/participant"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/state"
	"github.com/louisbranch/torchbearer.quest/internal/platform/errors"
)

// Status describes the encounter lifecycle state.
type Status string

const (
	// StatusPlanned is an encounter created but not yet rolling initiative.
	StatusPlanned Status = "planned"
	// StatusActive is an encounter in progress.
	StatusActive Status = "active"
	// StatusCompleted is a resolved encounter.
	StatusCompleted Status = "completed"
)

// EndCondition describes how an encounter concluded.
type EndCondition string

const (
	// EndVictory means the party defeated the enemies.
	EndVictory EndCondition = "victory"
	// EndEnemiesFled means the enemies withdrew.
	EndEnemiesFled EndCondition = "enemies_fled"
	// EndPartyFled means the party withdrew.
	EndPartyFled EndCondition = "party_fled"
	// EndParley means combat resolved into negotiation.
	EndParley EndCondition = "parley"
)

// ParseEndCondition validates a wire end condition.
func ParseEndCondition(value string) (EndCondition, error) {
	switch EndCondition(strings.TrimSpace(value)) {
	case EndVictory:
		return EndVictory, nil
	case EndEnemiesFled:
		return EndEnemiesFled, nil
	case EndPartyFled:
		return EndPartyFled, nil
	case EndParley:
		return EndParley, nil
	default:
		return "", errors.WithMetadata(errors.CodeEndConditionInvalid,
			"unknown end condition", map[string]string{"endCondition": value})
	}
}

// AwardsExperience reports whether this conclusion distributes experience.
//
// Fleeing the field or talking your way out earns nothing.
func (c EndCondition) AwardsExperience() bool {
	return c == EndVictory || c == EndEnemiesFled
}

// ReturnPhase is the phase the session returns to after this conclusion.
func (c EndCondition) ReturnPhase() state.Phase {
	if c == EndParley {
		return state.PhaseSocial
	}
	return state.PhaseExploration
}

// Encounter is a bounded combat event.
type Encounter struct {
	ID           string
	CampaignID   string
	SessionID    string
	Status       Status
	Reason       string
	EndCondition EndCondition
	// InitiativeOrder is a frozen snapshot taken at roll time, independent
	// of later participant edits.
	InitiativeOrder []InitiativeEntry
	CreatedAt       time.Time
	ResolvedAt      *time.Time
}

// Participant is one roster entry within an encounter.
//
// Live combat state (hit points, conditions, death-save counters) lives on
// the character record; the roster entry freezes who is in the encounter
// and at what initiative.
type Participant struct {
	Ref         participant.Participant
	CharacterID string
	Initiative  int
	HasActed    bool
}
