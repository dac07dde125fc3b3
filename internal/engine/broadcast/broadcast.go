// Package broadcast defines the live-notification envelope published after
// state transitions commit.
//
// Events are emitted post-commit only: a rolled-back transaction never
// reaches subscribers, and a failed publish never rolls back the
// transaction that preceded it.
package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/combat"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/participant"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/state"
)

// Kind names one notification type on the session channel.
type Kind string

const (
	// KindPhaseChanged announces a phase transition.
	KindPhaseChanged Kind = "phase.changed"
	// KindTurnAdvanced announces a new active participant.
	KindTurnAdvanced Kind = "turn.advanced"
	// KindTurnOrderChanged announces a moderator edit to the turn order.
	KindTurnOrderChanged Kind = "turn.order_changed"
	// KindCombatEnded announces encounter resolution with awards.
	KindCombatEnded Kind = "combat.ended"
	// KindEnemyTurnStarted announces that an NPC holds the active turn.
	KindEnemyTurnStarted Kind = "combat.enemy_turn_started"
	// KindNarrativeDM carries narration produced by the pipeline.
	KindNarrativeDM Kind = "narrative.dm"
	// KindRollRequested asks the acting player for dice rolls.
	KindRollRequested Kind = "narrative.roll_requested"
	// KindActionCompleted announces an action reaching a terminal status.
	KindActionCompleted Kind = "action.completed"
	// KindLiveStateChanged carries refreshed character live state.
	KindLiveStateChanged Kind = "state.live_changed"
)

// Event is the wire envelope for one session notification.
type Event struct {
	Kind       Kind      `json:"kind"`
	SessionID  string    `json:"sessionId"`
	CampaignID string    `json:"campaignId"`
	At         time.Time `json:"at"`
	Payload    any       `json:"payload,omitempty"`
}

// PhaseChanged is the payload for KindPhaseChanged.
type PhaseChanged struct {
	From     state.Phase    `json:"from"`
	To       state.Phase    `json:"to"`
	RestType state.RestType `json:"restType,omitempty"`
}

// TurnAdvanced is the payload for KindTurnAdvanced.
type TurnAdvanced struct {
	Active      participant.Participant `json:"activePlayerId"`
	RoundNumber int                     `json:"roundNumber"`
	Wrapped     bool                    `json:"wrapped"`
}

// TurnOrderChanged is the payload for KindTurnOrderChanged.
type TurnOrderChanged struct {
	Order []participant.Participant `json:"order"`
}

// ExperienceAward is one character's share of end-of-combat experience.
type ExperienceAward struct {
	CharacterID    string `json:"characterId"`
	Experience     int    `json:"experience"`
	Total          int    `json:"total"`
	PendingLevelUp bool   `json:"pendingLevelUp,omitempty"`
}

// CombatEnded is the payload for KindCombatEnded.
type CombatEnded struct {
	EncounterID  string              `json:"encounterId"`
	EndCondition combat.EndCondition `json:"endCondition"`
	ReturnPhase  state.Phase         `json:"returnPhase"`
	Awards       []ExperienceAward   `json:"awards,omitempty"`
}

// EnemyTurnStarted is the payload for KindEnemyTurnStarted.
type EnemyTurnStarted struct {
	Ref         participant.Participant `json:"ref"`
	RoundNumber int                     `json:"roundNumber"`
}

// NarrativeDM is the payload for KindNarrativeDM. Private narration is
// addressed to a single user id; clients drop it unless it is theirs.
type NarrativeDM struct {
	ActionID      string `json:"actionId"`
	Narration     string `json:"narration"`
	PrivateUserID string `json:"privateUserId,omitempty"`
	Private       string `json:"private,omitempty"`
}

// RequestedRoll is one roll the pipeline asked the actor for.
type RequestedRoll struct {
	Type   string `json:"type"`
	Sides  int    `json:"sides"`
	Reason string `json:"reason,omitempty"`
}

// RollRequested is the payload for KindRollRequested.
type RollRequested struct {
	ActionID string          `json:"actionId"`
	UserID   string          `json:"userId"`
	Rolls    []RequestedRoll `json:"rolls"`
}

// ActionCompleted is the payload for KindActionCompleted.
type ActionCompleted struct {
	ActionID string `json:"actionId"`
	Status   string `json:"status"`
}

// CharacterLiveState is one character's broadcastable live state.
type CharacterLiveState struct {
	CharacterID  string   `json:"characterId"`
	HitPoints    int      `json:"hitPoints"`
	MaxHitPoints int      `json:"maxHitPoints"`
	Conditions   []string `json:"conditions,omitempty"`
	Experience   int      `json:"experience"`
	Level        int      `json:"level"`
}

// LiveStateChanged is the payload for KindLiveStateChanged.
type LiveStateChanged struct {
	Characters []CharacterLiveState `json:"characters"`
}

// Broadcaster publishes session events to connected clients.
type Broadcaster interface {
	Publish(ctx context.Context, event Event) error
}

// Marshal encodes the envelope for the wire.
func Marshal(event Event) ([]byte, error) {
	return json.Marshal(event)
}
