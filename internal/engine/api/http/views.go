package http

import (
	"encoding/json"
	"time"

	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/action"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/combat"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/state"
	"github.com/louisbranch/torchbearer.quest/internal/engine/service"
	"github.com/louisbranch/torchbearer.quest/internal/engine/storage"
)

type sessionView struct {
	ID         string          `json:"id"`
	CampaignID string          `json:"campaignId"`
	Name       string          `json:"name"`
	Status     string          `json:"status"`
	State      state.GameState `json:"state"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

type characterView struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId,omitempty"`
	Name          string    `json:"name"`
	Kind          string    `json:"kind"`
	HitPoints     int       `json:"hitPoints"`
	MaxHitPoints  int       `json:"maxHitPoints"`
	Conditions    []string  `json:"conditions"`
	Experience    int       `json:"experience"`
	Level         int       `json:"level"`
	SaveSuccesses int       `json:"saveSuccesses"`
	SaveFailures  int       `json:"saveFailures"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type stateView struct {
	Session    sessionView     `json:"session"`
	Characters []characterView `json:"characters"`
}

type actionView struct {
	ID          string             `json:"id"`
	SessionID   string             `json:"sessionId"`
	CharacterID string             `json:"characterId,omitempty"`
	Type        string             `json:"type"`
	Category    string             `json:"category,omitempty"`
	Payload     json.RawMessage    `json:"payload,omitempty"`
	Status      string             `json:"status"`
	DMResponse  json.RawMessage    `json:"dmResponse,omitempty"`
	RollResult  *action.RollResult `json:"rollResult,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
	ResolvedAt  *time.Time         `json:"resolvedAt,omitempty"`
}

type encounterView struct {
	ID              string                   `json:"id"`
	SessionID       string                   `json:"sessionId"`
	Status          string                   `json:"status"`
	Reason          string                   `json:"reason,omitempty"`
	EndCondition    string                   `json:"endCondition,omitempty"`
	InitiativeOrder []combat.InitiativeEntry `json:"initiativeOrder"`
	CreatedAt       time.Time                `json:"createdAt"`
	ResolvedAt      *time.Time               `json:"resolvedAt,omitempty"`
}

func newSessionView(record storage.SessionRecord) sessionView {
	return sessionView{
		ID:         record.ID,
		CampaignID: record.CampaignID,
		Name:       record.Name,
		Status:     string(record.Status),
		State:      record.State,
		CreatedAt:  record.CreatedAt,
		UpdatedAt:  record.UpdatedAt,
	}
}

func newCharacterView(record storage.CharacterRecord) characterView {
	conditions := record.Conditions
	if conditions == nil {
		conditions = []string{}
	}
	return characterView{
		ID:            record.ID,
		UserID:        record.UserID,
		Name:          record.Name,
		Kind:          string(record.Kind),
		HitPoints:     record.HitPoints,
		MaxHitPoints:  record.MaxHitPoints,
		Conditions:    conditions,
		Experience:    record.Experience,
		Level:         record.Level,
		SaveSuccesses: record.SaveSuccesses,
		SaveFailures:  record.SaveFailures,
		UpdatedAt:     record.UpdatedAt,
	}
}

func newStateView(view service.StateView) stateView {
	characters := make([]characterView, 0, len(view.Characters))
	for _, record := range view.Characters {
		characters = append(characters, newCharacterView(record))
	}
	return stateView{
		Session:    newSessionView(view.Session),
		Characters: characters,
	}
}

func newActionView(act action.Action) actionView {
	return actionView{
		ID:          act.ID,
		SessionID:   act.SessionID,
		CharacterID: act.CharacterID,
		Type:        act.Type,
		Category:    string(act.Category),
		Payload:     act.Payload,
		Status:      string(act.Status),
		DMResponse:  act.DMResponse,
		RollResult:  act.RollResult,
		CreatedAt:   act.CreatedAt,
		ResolvedAt:  act.ResolvedAt,
	}
}

func newEncounterView(encounter combat.Encounter) encounterView {
	return encounterView{
		ID:              encounter.ID,
		SessionID:       encounter.SessionID,
		Status:          string(encounter.Status),
		Reason:          encounter.Reason,
		EndCondition:    string(encounter.EndCondition),
		InitiativeOrder: encounter.InitiativeOrder,
		CreatedAt:       encounter.CreatedAt,
		ResolvedAt:      encounter.ResolvedAt,
	}
}
