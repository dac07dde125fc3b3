package service

import (
	"context"

	"github.com/louisbranch/torchbearer.quest/internal/engine/authz"
	"github.com/louisbranch/torchbearer.quest/internal/engine/broadcast"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/combat"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/phase"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/state"
	"github.com/louisbranch/torchbearer.quest/internal/engine/storage"
	"github.com/louisbranch/torchbearer.quest/internal/platform/errors"
)

// ResolveCombatEndInput concludes an encounter.
type ResolveCombatEndInput struct {
	SessionID    string
	EncounterID  string
	EndCondition combat.EndCondition
}

// CombatEndResult carries the resolution: the completed encounter, the
// experience distributed, and the committed post-combat state.
type CombatEndResult struct {
	Encounter combat.Encounter
	Awards    []broadcast.ExperienceAward
	State     state.GameState
}

// ResolveCombatEnd completes the encounter, distributes experience for
// victorious conclusions, and returns the session to the follow-up phase.
//
// Level-ups are reported as pending, never applied; confirming a level-up
// is the character service's business.
func (s *Service) ResolveCombatEnd(ctx context.Context, in ResolveCombatEndInput) (result CombatEndResult, err error) {
	ctx, done := s.begin(ctx, "ResolveCombatEnd")
	defer func() { done(err) }()

	actor, err := authz.ActorFromContext(ctx)
	if err != nil {
		return CombatEndResult{}, err
	}
	if err = authz.RequireModerator(actor); err != nil {
		return CombatEndResult{}, err
	}

	session, err := s.activeSession(ctx, in.SessionID)
	if err != nil {
		return CombatEndResult{}, err
	}
	if !session.State.InCombat() {
		return CombatEndResult{}, errors.New(errors.CodeNotInCombat,
			"session is not in combat")
	}
	if session.State.EncounterID != in.EncounterID {
		return CombatEndResult{}, errors.WithMetadata(errors.CodeEncounterNotActive,
			"encounter is not the session's active encounter",
			map[string]string{"encounterId": in.EncounterID})
	}

	roster, err := s.store.ListCombatants(ctx, in.EncounterID)
	if err != nil {
		return CombatEndResult{}, errors.Wrap(errors.CodeUnknown, "list combatants", err)
	}

	encounter, err := s.store.CompleteEncounter(ctx, in.EncounterID, in.EndCondition, s.now())
	if err != nil {
		if err == storage.ErrNotFound {
			return CombatEndResult{}, errors.WithMetadata(errors.CodeEncounterNotActive,
				"encounter is already resolved",
				map[string]string{"encounterId": in.EncounterID})
		}
		return CombatEndResult{}, errors.Wrap(errors.CodeUnknown, "complete encounter", err)
	}

	awards, updated, err := s.distributeExperience(ctx, roster, in.EndCondition)
	if err != nil {
		return CombatEndResult{}, err
	}

	returnPhase := in.EndCondition.ReturnPhase()
	committed, err := s.store.UpdateGameState(ctx, in.SessionID, func(doc state.GameState) (state.GameState, error) {
		doc.EncounterID = ""
		transition, transitionErr := phase.Transition(doc, phase.TransitionInput{
			Target: returnPhase,
			Now:    s.now(),
		})
		if transitionErr != nil {
			return state.GameState{}, transitionErr
		}
		return transition.State, nil
	})
	if err != nil {
		return CombatEndResult{}, err
	}

	s.publish(ctx, broadcast.Event{
		Kind:       broadcast.KindCombatEnded,
		SessionID:  session.ID,
		CampaignID: session.CampaignID,
		Payload: broadcast.CombatEnded{
			EncounterID:  encounter.ID,
			EndCondition: in.EndCondition,
			ReturnPhase:  returnPhase,
			Awards:       awards,
		},
	})
	s.publish(ctx, broadcast.Event{
		Kind:       broadcast.KindPhaseChanged,
		SessionID:  session.ID,
		CampaignID: session.CampaignID,
		Payload:    broadcast.PhaseChanged{From: state.PhaseCombat, To: committed.Phase},
	})
	if len(updated) > 0 {
		s.publish(ctx, broadcast.Event{
			Kind:       broadcast.KindLiveStateChanged,
			SessionID:  session.ID,
			CampaignID: session.CampaignID,
			Payload:    liveState(updated),
		})
	}

	return CombatEndResult{Encounter: encounter, Awards: awards, State: committed}, nil
}

// distributeExperience computes and persists the per-character share for
// conclusions that award experience.
func (s *Service) distributeExperience(ctx context.Context, roster []combat.Participant, end combat.EndCondition) ([]broadcast.ExperienceAward, []storage.CharacterRecord, error) {
	if !end.AwardsExperience() {
		return nil, nil, nil
	}

	var (
		enemyValues []int
		partyIDs    []string
	)
	for _, entry := range roster {
		record, err := s.store.GetCharacter(ctx, entry.CharacterID)
		if err != nil {
			if err == storage.ErrNotFound {
				continue
			}
			return nil, nil, errors.Wrap(errors.CodeUnknown, "load combatant", err)
		}
		if entry.Ref.IsNPC() {
			enemyValues = append(enemyValues, record.ExperienceValue)
			continue
		}
		// The dead earn nothing; survivors split the whole pool.
		if record.HasCondition(storage.ConditionDead) {
			continue
		}
		partyIDs = append(partyIDs, record.ID)
	}

	share := combat.ExperienceShare(end, enemyValues, len(partyIDs))
	if share == 0 || len(partyIDs) == 0 {
		return nil, nil, nil
	}

	grants := make(map[string]int, len(partyIDs))
	for _, id := range partyIDs {
		grants[id] = share
	}
	updated, err := s.store.AwardExperience(ctx, grants)
	if err != nil {
		return nil, nil, errors.Wrap(errors.CodeUnknown, "award experience", err)
	}

	awards := make([]broadcast.ExperienceAward, 0, len(updated))
	for _, record := range updated {
		_, pending := combat.PendingLevelUp(record.Experience-share, record.Experience)
		awards = append(awards, broadcast.ExperienceAward{
			CharacterID:    record.ID,
			Experience:     share,
			Total:          record.Experience,
			PendingLevelUp: pending,
		})
	}
	return awards, updated, nil
}
