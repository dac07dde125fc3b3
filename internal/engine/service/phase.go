package service

import (
	"context"

	"github.com/louisbranch/torchbearer.quest/internal/engine/authz"
	"github.com/louisbranch/torchbearer.quest/internal/engine/broadcast"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/combat"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/participant"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/phase"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/state"
	"github.com/louisbranch/torchbearer.quest/internal/engine/storage"
	"github.com/louisbranch/torchbearer.quest/internal/platform/errors"
)

// ChangePhaseInput describes a requested phase transition.
type ChangePhaseInput struct {
	SessionID string
	Target    state.Phase
	// RestType is consumed when Target is rest.
	RestType state.RestType
	// EnemyNPCIDs and Reason are consumed when Target is combat; the
	// encounter is created in the same transaction as the transition.
	EnemyNPCIDs []string
	Reason      string
	// InitiativeOverrides replace the rolled initiative for the keyed
	// participant refs (GM fiat).
	InitiativeOverrides map[string]int
}

// ChangePhaseResult carries the applied transition.
type ChangePhaseResult struct {
	PreviousPhase state.Phase
	State         state.GameState
	// Encounter is set when the transition entered combat.
	Encounter *combat.Encounter
}

// ChangePhase moves the session to a new phase.
//
// DM authority is required; players advance the game through EndTurn only.
// Combat entry rolls initiative, freezes the order, seeds the session turn
// order, and activates the encounter atomically with the phase write.
func (s *Service) ChangePhase(ctx context.Context, in ChangePhaseInput) (result ChangePhaseResult, err error) {
	ctx, done := s.begin(ctx, "ChangePhase")
	defer func() { done(err) }()

	actor, err := authz.ActorFromContext(ctx)
	if err != nil {
		return ChangePhaseResult{}, err
	}
	if err = authz.RequireModerator(actor); err != nil {
		return ChangePhaseResult{}, err
	}

	session, err := s.activeSession(ctx, in.SessionID)
	if err != nil {
		return ChangePhaseResult{}, err
	}

	if in.Target == state.PhaseCombat {
		return s.initiateCombat(ctx, session, in)
	}

	var transition phase.Result
	committed, err := s.store.UpdateGameState(ctx, in.SessionID, func(doc state.GameState) (state.GameState, error) {
		transition, err = phase.Transition(doc, phase.TransitionInput{
			Target:   in.Target,
			RestType: in.RestType,
			Now:      s.now(),
		})
		if err != nil {
			return state.GameState{}, err
		}
		return transition.State, nil
	})
	if err != nil {
		return ChangePhaseResult{}, err
	}

	s.publish(ctx, broadcast.Event{
		Kind:       broadcast.KindPhaseChanged,
		SessionID:  session.ID,
		CampaignID: session.CampaignID,
		Payload: broadcast.PhaseChanged{
			From:     transition.PreviousPhase,
			To:       committed.Phase,
			RestType: restType(committed),
		},
	})

	return ChangePhaseResult{PreviousPhase: transition.PreviousPhase, State: committed}, nil
}

// initiateCombat creates the encounter, rolls initiative, and applies the
// combat transition in one storage transaction.
func (s *Service) initiateCombat(ctx context.Context, session storage.SessionRecord, in ChangePhaseInput) (ChangePhaseResult, error) {
	if session.State.Phase == state.PhaseCombat {
		return ChangePhaseResult{}, errors.WithMetadata(errors.CodeEncounterAlreadyActive,
			"session is already in combat",
			map[string]string{"encounterId": session.State.EncounterID})
	}

	roster, inputs, err := s.combatRoster(ctx, session.CampaignID, in)
	if err != nil {
		return ChangePhaseResult{}, err
	}

	encounterID, err := s.newID()
	if err != nil {
		return ChangePhaseResult{}, errors.Wrap(errors.CodeUnknown, "generate encounter id", err)
	}

	now := s.now().UTC()
	entries := combat.RollInitiative(inputs, s.seed())

	encounter := combat.Encounter{
		ID:              encounterID,
		CampaignID:      session.CampaignID,
		SessionID:       session.ID,
		Status:          combat.StatusActive,
		Reason:          in.Reason,
		InitiativeOrder: entries,
		CreatedAt:       now,
	}

	rosterRows := make([]combat.Participant, 0, len(roster))
	for _, entry := range entries {
		rosterRows = append(rosterRows, combat.Participant{
			Ref:         entry.Ref,
			CharacterID: roster[entry.Ref],
			Initiative:  entry.Initiative,
		})
	}

	// The transition runs against the document as of the write
	// transaction, so a combat entry that raced another one fails its
	// re-check instead of clobbering the winner's state.
	var (
		doc           state.GameState
		previousPhase state.Phase
	)
	err = s.store.CreateEncounter(ctx, encounter, rosterRows, &storage.StateUpdate{
		SessionID: session.ID,
		Mutate: func(current state.GameState) (state.GameState, error) {
			if current.Phase == state.PhaseCombat {
				return state.GameState{}, errors.WithMetadata(errors.CodeEncounterAlreadyActive,
					"session is already in combat",
					map[string]string{"encounterId": current.EncounterID})
			}
			transition, transitionErr := phase.Transition(current, phase.TransitionInput{
				Target:      state.PhaseCombat,
				EncounterID: encounterID,
				Now:         now,
			})
			if transitionErr != nil {
				return state.GameState{}, transitionErr
			}
			previousPhase = transition.PreviousPhase
			doc = transition.State
			doc.TurnOrder = combat.TurnOrder(entries)
			if len(doc.TurnOrder) > 0 {
				doc.ActiveParticipant = doc.TurnOrder[0]
			}
			return doc, nil
		},
	})
	if err != nil {
		if errors.CodeOf(err) != errors.CodeUnknown {
			return ChangePhaseResult{}, err
		}
		return ChangePhaseResult{}, errors.Wrap(errors.CodeUnknown, "create encounter", err)
	}

	s.publish(ctx, broadcast.Event{
		Kind:       broadcast.KindPhaseChanged,
		SessionID:  session.ID,
		CampaignID: session.CampaignID,
		Payload:    broadcast.PhaseChanged{From: previousPhase, To: state.PhaseCombat},
	})
	s.publish(ctx, broadcast.Event{
		Kind:       broadcast.KindTurnOrderChanged,
		SessionID:  session.ID,
		CampaignID: session.CampaignID,
		Payload:    broadcast.TurnOrderChanged{Order: doc.TurnOrder},
	})
	if doc.ActiveParticipant.IsNPC() {
		record := session
		record.State = doc
		s.signalEnemyTurn(ctx, record, doc.ActiveParticipant, doc.RoundNumber)
	}

	return ChangePhaseResult{
		PreviousPhase: previousPhase,
		State:         doc,
		Encounter:     &encounter,
	}, nil
}

// combatRoster resolves the party and the named enemies into initiative
// inputs and a ref -> character id mapping.
func (s *Service) combatRoster(ctx context.Context, campaignID string, in ChangePhaseInput) (map[participant.Participant]string, []combat.InitiativeInput, error) {
	characters, err := s.store.ListCampaignCharacters(ctx, campaignID)
	if err != nil {
		return nil, nil, errors.Wrap(errors.CodeUnknown, "list campaign characters", err)
	}

	byID := make(map[string]storage.CharacterRecord, len(characters))
	for _, record := range characters {
		byID[record.ID] = record
	}

	roster := make(map[participant.Participant]string)
	var inputs []combat.InitiativeInput

	add := func(ref participant.Participant, characterID string) {
		roster[ref] = characterID
		input := combat.InitiativeInput{Ref: ref}
		if override, ok := in.InitiativeOverrides[ref.String()]; ok {
			value := override
			input.Override = &value
		}
		inputs = append(inputs, input)
	}

	for _, record := range characters {
		if record.Kind != storage.KindPC || record.HasCondition(storage.ConditionDead) {
			continue
		}
		add(participant.Player(record.UserID), record.ID)
	}

	for _, npcID := range in.EnemyNPCIDs {
		record, ok := byID[npcID]
		if !ok || record.Kind != storage.KindNPC {
			return nil, nil, errors.WithMetadata(errors.CodeCharacterNotFound,
				"enemy npc is not a character in this campaign",
				map[string]string{"characterId": npcID})
		}
		add(participant.NPC(record.ID), record.ID)
	}

	return roster, inputs, nil
}

func restType(doc state.GameState) state.RestType {
	if doc.RestContext == nil {
		return ""
	}
	return doc.RestContext.Type
}
