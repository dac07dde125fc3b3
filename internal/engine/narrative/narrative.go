// Package narrative defines the contract with the narrative-generation
// collaborator.
//
// The generator is an opaque capability: it accepts a context snapshot and
// returns narration, optional required rolls, and an optional mechanical
// outcome. The engine only sequences it; content and quality are out of
// scope here.
package narrative

import (
	"context"
	"encoding/json"

	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/action"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/state"
)

// RequiredRoll asks the acting player for a die roll before resolution.
type RequiredRoll struct {
	Type   string `json:"type"`
	Sides  int    `json:"sides"`
	Reason string `json:"reason,omitempty"`
}

// Effect is one mechanical change requested against a character.
type Effect struct {
	CharacterID      string   `json:"characterId"`
	HitPointDelta    int      `json:"hitPointDelta,omitempty"`
	AddConditions    []string `json:"addConditions,omitempty"`
	RemoveConditions []string `json:"removeConditions,omitempty"`
	Experience       int      `json:"experience,omitempty"`
}

// Outcome is the structured mechanical result of a generation pass.
type Outcome struct {
	Effects []Effect `json:"effects"`
}

// Result is what the generator returns for one pass.
type Result struct {
	Narration        string         `json:"narration"`
	PrivateNarration string         `json:"privateNarration,omitempty"`
	RequiredRolls    []RequiredRoll `json:"requiredRolls,omitempty"`
	Outcome          *Outcome       `json:"outcome,omitempty"`
}

// CharacterState is the combat-relevant slice of one character.
type CharacterState struct {
	CharacterID  string   `json:"characterId"`
	Name         string   `json:"name,omitempty"`
	HitPoints    int      `json:"hitPoints"`
	MaxHitPoints int      `json:"maxHitPoints"`
	Conditions   []string `json:"conditions,omitempty"`
}

// Context is the snapshot handed to the generator for one pass.
type Context struct {
	CampaignID    string             `json:"campaignId"`
	SessionID     string             `json:"sessionId"`
	Phase         state.Phase        `json:"phase"`
	RoundNumber   int                `json:"roundNumber"`
	UserID        string             `json:"userId"`
	CharacterID   string             `json:"characterId"`
	ActionType    string             `json:"actionType"`
	ActionPayload json.RawMessage    `json:"actionPayload,omitempty"`
	RollResult    *action.RollResult `json:"rollResult,omitempty"`
	Party         []CharacterState   `json:"party,omitempty"`
}

// Generator produces narration and mechanical outcomes for an action.
//
// Implementations own their timeouts; the engine never cancels an in-flight
// call.
type Generator interface {
	Generate(ctx context.Context, snapshot Context) (Result, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, snapshot Context) (Result, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, snapshot Context) (Result, error) {
	return f(ctx, snapshot)
}
