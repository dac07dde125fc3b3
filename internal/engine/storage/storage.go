// Package storage defines the persistence contracts for the engine.
//
// Interfaces are defined here so the service layer depends on behavior,
// not on SQLite. The sqlite subpackage provides the production store.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/action"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/combat"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/participant"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/state"
	"github.com/louisbranch/torchbearer.quest/internal/engine/narrative"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrActiveSessionExists indicates the campaign already has an active session.
	ErrActiveSessionExists = errors.New("campaign already has an active session")
)

// SessionStatus is the session row lifecycle.
type SessionStatus string

const (
	// SessionScheduled is a session planned but not started.
	SessionScheduled SessionStatus = "scheduled"
	// SessionActive is the session currently being played.
	SessionActive SessionStatus = "active"
	// SessionCompleted is a finished session.
	SessionCompleted SessionStatus = "completed"
	// SessionCancelled is a session that never ran.
	SessionCancelled SessionStatus = "cancelled"
)

// SessionRecord is one scheduled play session with its game-state document.
type SessionRecord struct {
	ID         string
	CampaignID string
	Name       string
	Status     SessionStatus
	State      state.GameState
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CharacterKind distinguishes player characters from NPCs.
type CharacterKind string

const (
	// KindPC is a player-controlled character.
	KindPC CharacterKind = "pc"
	// KindNPC is an engine-controlled character.
	KindNPC CharacterKind = "npc"
)

// CharacterRecord is the engine-owned live state of one character.
//
// Full character sheets live with the character service; the engine keeps
// only what mechanical outcomes, death saves, and live-state broadcasts
// need.
type CharacterRecord struct {
	ID            string
	CampaignID    string
	UserID        string // empty for NPCs
	Name          string
	Kind          CharacterKind
	HitPoints     int
	MaxHitPoints  int
	Conditions    []string
	Experience    int
	Level         int
	ExperienceValue int // XP awarded for defeating this character; NPCs only
	SaveSuccesses int
	SaveFailures  int
	UpdatedAt     time.Time
}

// HasCondition reports whether the character carries the named condition.
func (c CharacterRecord) HasCondition(name string) bool {
	for _, condition := range c.Conditions {
		if condition == name {
			return true
		}
	}
	return false
}

// SessionStore persists sessions and their game-state documents.
type SessionStore interface {
	// PutSession stores a session. Activating a session fails with
	// ErrActiveSessionExists when the campaign already has one active.
	PutSession(ctx context.Context, record SessionRecord) error
	GetSession(ctx context.Context, sessionID string) (SessionRecord, error)
	// ActiveSessionForCampaign returns the campaign's single active session.
	ActiveSessionForCampaign(ctx context.Context, campaignID string) (SessionRecord, error)
	// UpdateGameState reads the current document, applies mutate, and
	// writes the result, all inside one transaction. The returned state is
	// the committed document.
	UpdateGameState(ctx context.Context, sessionID string, mutate func(state.GameState) (state.GameState, error)) (state.GameState, error)
}

// CharacterStore persists engine-owned character live state.
type CharacterStore interface {
	PutCharacter(ctx context.Context, record CharacterRecord) error
	GetCharacter(ctx context.Context, characterID string) (CharacterRecord, error)
	ListCampaignCharacters(ctx context.Context, campaignID string) ([]CharacterRecord, error)
	// UpdateCharacter reads, applies mutate, and writes in one transaction.
	UpdateCharacter(ctx context.Context, characterID string, mutate func(CharacterRecord) (CharacterRecord, error)) (CharacterRecord, error)
	// AwardExperience adds experience to several characters in one
	// transaction and returns the updated records.
	AwardExperience(ctx context.Context, awards map[string]int) ([]CharacterRecord, error)
}

// EncounterStore persists encounters and their rosters.
type EncounterStore interface {
	// CreateEncounter inserts the encounter and its roster and, when update
	// is non-nil, writes the new game-state document in the same
	// transaction so combat entry commits atomically.
	CreateEncounter(ctx context.Context, encounter combat.Encounter, roster []combat.Participant, update *StateUpdate) error
	GetEncounter(ctx context.Context, encounterID string) (combat.Encounter, error)
	ListCombatants(ctx context.Context, encounterID string) ([]combat.Participant, error)
	MarkActed(ctx context.Context, encounterID string, ref participant.Participant) error
	// CompleteEncounter marks the encounter completed with its end
	// condition; completing twice fails with ErrNotFound semantics on the
	// active row.
	CompleteEncounter(ctx context.Context, encounterID string, end combat.EndCondition, resolvedAt time.Time) (combat.Encounter, error)
}

// StateUpdate rewrites the session's game-state document in the same
// transaction as the accompanying insert so both commit or neither does.
//
// Mutate receives the document as of the transaction, not the caller's
// earlier read, so precondition checks re-run against current state; a
// Mutate error aborts the whole write and passes through unchanged.
type StateUpdate struct {
	SessionID string
	Mutate    func(state.GameState) (state.GameState, error)
}

// ActionStore persists pipeline actions.
type ActionStore interface {
	// CreateAction inserts the action and, when update is non-nil, writes
	// the new game-state document in the same transaction.
	CreateAction(ctx context.Context, act action.Action, update *StateUpdate) error
	GetAction(ctx context.Context, actionID string) (action.Action, error)
	// UpdateAction reads, applies mutate, and writes in one transaction.
	UpdateAction(ctx context.Context, actionID string, mutate func(action.Action) (action.Action, error)) (action.Action, error)
	// ApplyOutcome completes the action and applies mechanical effects to
	// character records in one transaction, returning the refreshed
	// records touched by the effects.
	ApplyOutcome(ctx context.Context, actionID string, response []byte, effects []narrative.Effect, now time.Time) (action.Action, []CharacterRecord, error)
}

// Store combines every persistence contract the engine needs.
type Store interface {
	SessionStore
	CharacterStore
	EncounterStore
	ActionStore
}
