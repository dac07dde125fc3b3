// Package http exposes the engine's operations over a JSON REST surface.
//
// Every route below /sessions and /actions requires a bearer token issued
// by the campaign gateway; the token's role decides what the caller may do.
package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/action"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/combat"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/participant"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/state"
	"github.com/louisbranch/torchbearer.quest/internal/engine/service"
)

// Handler serves the engine REST API.
type Handler struct {
	svc *service.Service
}

// NewRouter assembles the engine routes.
//
// The health and metrics endpoints are unauthenticated; everything else
// goes through the verifier.
func NewRouter(svc *service.Service, verifier *TokenVerifier, gatherer prometheus.Gatherer) http.Handler {
	h := &Handler{svc: svc}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(verifier.RequireActor)

		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/state", h.getState)
			r.Post("/phase", h.changePhase)
			r.Post("/turn/end", h.endTurn)
			r.Put("/turn/order", h.setTurnOrder)
			r.Post("/turn/skip", h.skipTurn)
			r.Post("/combat/end", h.resolveCombatEnd)
			r.Post("/death-saves", h.submitDeathSave)
			r.Post("/actions", h.submitAction)
		})
		r.Route("/actions/{actionID}", func(r chi.Router) {
			r.Get("/", h.getAction)
			r.Post("/roll", h.submitRoll)
		})
	})
	return r
}

func (h *Handler) getState(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetGameState(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newStateView(view))
}

type changePhaseRequest struct {
	Phase               string         `json:"phase"`
	RestType            string         `json:"restType,omitempty"`
	EnemyNPCIDs         []string       `json:"enemyNpcIds,omitempty"`
	Reason              string         `json:"reason,omitempty"`
	InitiativeOverrides map[string]int `json:"initiativeOverrides,omitempty"`
}

type changePhaseResponse struct {
	PreviousPhase string          `json:"previousPhase"`
	State         state.GameState `json:"state"`
	Encounter     *encounterView  `json:"encounter,omitempty"`
}

func (h *Handler) changePhase(w http.ResponseWriter, r *http.Request) {
	var req changePhaseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	target, err := state.ParsePhase(req.Phase)
	if err != nil {
		writeError(w, err)
		return
	}
	in := service.ChangePhaseInput{
		SessionID:           chi.URLParam(r, "sessionID"),
		Target:              target,
		EnemyNPCIDs:         req.EnemyNPCIDs,
		Reason:              req.Reason,
		InitiativeOverrides: req.InitiativeOverrides,
	}
	if req.RestType != "" {
		if in.RestType, err = state.ParseRestType(req.RestType); err != nil {
			writeError(w, err)
			return
		}
	}
	result, err := h.svc.ChangePhase(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := changePhaseResponse{
		PreviousPhase: string(result.PreviousPhase),
		State:         result.State,
	}
	if result.Encounter != nil {
		view := newEncounterView(*result.Encounter)
		resp.Encounter = &view
	}
	writeJSON(w, http.StatusOK, resp)
}

type turnResponse struct {
	State   state.GameState `json:"state"`
	Wrapped bool            `json:"wrapped"`
}

func (h *Handler) endTurn(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.EndTurn(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turnResponse{State: result.State, Wrapped: result.Wrapped})
}

type setTurnOrderRequest struct {
	Order []string `json:"order"`
}

func (h *Handler) setTurnOrder(w http.ResponseWriter, r *http.Request) {
	var req setTurnOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	order, err := participant.ParseList(req.Order)
	if err != nil {
		writeError(w, err)
		return
	}
	doc, err := h.svc.SetTurnOrder(r.Context(), chi.URLParam(r, "sessionID"), order)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]state.GameState{"state": doc})
}

type skipTurnRequest struct {
	Target string `json:"target"`
}

func (h *Handler) skipTurn(w http.ResponseWriter, r *http.Request) {
	var req skipTurnRequest
	if !decodeBody(w, r, &req) {
		return
	}
	target, err := participant.Parse(req.Target)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := h.svc.SkipTurn(r.Context(), chi.URLParam(r, "sessionID"), target)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turnResponse{State: result.State, Wrapped: result.Wrapped})
}

type combatEndRequest struct {
	EncounterID  string `json:"encounterId"`
	EndCondition string `json:"endCondition"`
}

type combatEndResponse struct {
	Encounter encounterView   `json:"encounter"`
	Awards    []awardView     `json:"awards"`
	State     state.GameState `json:"state"`
}

type awardView struct {
	CharacterID    string `json:"characterId"`
	Experience     int    `json:"experience"`
	Total          int    `json:"total"`
	PendingLevelUp bool   `json:"pendingLevelUp"`
}

func (h *Handler) resolveCombatEnd(w http.ResponseWriter, r *http.Request) {
	var req combatEndRequest
	if !decodeBody(w, r, &req) {
		return
	}
	end, err := combat.ParseEndCondition(req.EndCondition)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := h.svc.ResolveCombatEnd(r.Context(), service.ResolveCombatEndInput{
		SessionID:    chi.URLParam(r, "sessionID"),
		EncounterID:  req.EncounterID,
		EndCondition: end,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	awards := make([]awardView, 0, len(result.Awards))
	for _, award := range result.Awards {
		awards = append(awards, awardView{
			CharacterID:    award.CharacterID,
			Experience:     award.Experience,
			Total:          award.Total,
			PendingLevelUp: award.PendingLevelUp,
		})
	}
	writeJSON(w, http.StatusOK, combatEndResponse{
		Encounter: newEncounterView(result.Encounter),
		Awards:    awards,
		State:     result.State,
	})
}

type deathSaveRequest struct {
	CharacterID string `json:"characterId"`
	Roll        int    `json:"roll"`
}

type deathSaveResponse struct {
	Outcome   string        `json:"outcome"`
	Successes int           `json:"successes"`
	Failures  int           `json:"failures"`
	Character characterView `json:"character"`
}

func (h *Handler) submitDeathSave(w http.ResponseWriter, r *http.Request) {
	var req deathSaveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := h.svc.SubmitDeathSave(r.Context(), service.DeathSaveInput{
		SessionID:   chi.URLParam(r, "sessionID"),
		CharacterID: req.CharacterID,
		Roll:        req.Roll,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deathSaveResponse{
		Outcome:   string(result.Outcome),
		Successes: result.Counters.Successes,
		Failures:  result.Counters.Failures,
		Character: newCharacterView(result.Character),
	})
}

type submitActionRequest struct {
	CharacterID string          `json:"characterId,omitempty"`
	ActionType  string          `json:"actionType"`
	Category    string          `json:"category,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

func (h *Handler) submitAction(w http.ResponseWriter, r *http.Request) {
	var req submitActionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	in := service.SubmitActionInput{
		SessionID:   chi.URLParam(r, "sessionID"),
		CharacterID: req.CharacterID,
		ActionType:  req.ActionType,
		Payload:     req.Payload,
	}
	if req.Category != "" {
		category, err := state.ParseBudgetCategory(req.Category)
		if err != nil {
			writeError(w, err)
			return
		}
		in.Category = category
	}
	act, err := h.svc.SubmitAction(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	// The narrated outcome arrives over the broadcast channel.
	writeJSON(w, http.StatusAccepted, newActionView(act))
}

func (h *Handler) getAction(w http.ResponseWriter, r *http.Request) {
	act, err := h.svc.GetAction(r.Context(), chi.URLParam(r, "actionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newActionView(act))
}

func (h *Handler) submitRoll(w http.ResponseWriter, r *http.Request) {
	var req action.RollResult
	if !decodeBody(w, r, &req) {
		return
	}
	act, err := h.svc.SubmitRoll(r.Context(), chi.URLParam(r, "actionID"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, newActionView(act))
}
