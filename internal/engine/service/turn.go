package service

import (
	"context"
	"log"

	"github.com/louisbranch/torchbearer.quest/internal/engine/authz"
	"github.com/louisbranch/torchbearer.quest/internal/engine/broadcast"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/participant"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/state"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/turn"
	"github.com/louisbranch/torchbearer.quest/internal/engine/storage"
	"github.com/louisbranch/torchbearer.quest/internal/platform/errors"
)

// TurnResult carries the committed document after a rotation.
type TurnResult struct {
	State   state.GameState
	Wrapped bool
}

// EndTurn advances the active pointer to the next participant.
//
// The active participant ends their own turn; DM authority may end anyone's,
// which is also how NPC turns (driven by the system actor) conclude.
func (s *Service) EndTurn(ctx context.Context, sessionID string) (result TurnResult, err error) {
	ctx, done := s.begin(ctx, "EndTurn")
	defer func() { done(err) }()

	actor, err := authz.ActorFromContext(ctx)
	if err != nil {
		return TurnResult{}, err
	}

	session, err := s.activeSession(ctx, sessionID)
	if err != nil {
		return TurnResult{}, err
	}

	var (
		rotation turn.Result
		ended    participant.Participant
	)
	committed, err := s.store.UpdateGameState(ctx, sessionID, func(doc state.GameState) (state.GameState, error) {
		if mutateErr := requireTurnHolder(actor, doc.ActiveParticipant); mutateErr != nil {
			return state.GameState{}, mutateErr
		}
		ended = doc.ActiveParticipant
		rotation = turn.EndTurn(doc)
		return rotation.State, nil
	})
	if err != nil {
		return TurnResult{}, err
	}

	// The departing combatant has now acted this round. The rotation is
	// already committed, so a bookkeeping failure here must not hide it
	// from clients.
	if session.State.InCombat() && !ended.IsZero() {
		if markErr := s.store.MarkActed(ctx, session.State.EncounterID, ended); markErr != nil && markErr != storage.ErrNotFound {
			log.Printf("mark combatant %s acted in %s: %v", ended, session.State.EncounterID, markErr)
		}
	}

	s.broadcastTurnAdvanced(ctx, session, committed, rotation.Wrapped)
	return TurnResult{State: committed, Wrapped: rotation.Wrapped}, nil
}

// SetTurnOrder replaces the turn order wholesale. DM authority only.
func (s *Service) SetTurnOrder(ctx context.Context, sessionID string, order []participant.Participant) (doc state.GameState, err error) {
	ctx, done := s.begin(ctx, "SetTurnOrder")
	defer func() { done(err) }()

	actor, err := authz.ActorFromContext(ctx)
	if err != nil {
		return state.GameState{}, err
	}
	if err = authz.RequireModerator(actor); err != nil {
		return state.GameState{}, err
	}

	session, err := s.activeSession(ctx, sessionID)
	if err != nil {
		return state.GameState{}, err
	}

	committed, err := s.store.UpdateGameState(ctx, sessionID, func(current state.GameState) (state.GameState, error) {
		return turn.SetOrder(current, order)
	})
	if err != nil {
		return state.GameState{}, err
	}

	s.publish(ctx, broadcast.Event{
		Kind:       broadcast.KindTurnOrderChanged,
		SessionID:  session.ID,
		CampaignID: session.CampaignID,
		Payload:    broadcast.TurnOrderChanged{Order: committed.TurnOrder},
	})
	return committed, nil
}

// SkipTurn forcibly advances past the target. DM authority only; the
// skipped participant is not marked as having acted.
func (s *Service) SkipTurn(ctx context.Context, sessionID string, target participant.Participant) (result TurnResult, err error) {
	ctx, done := s.begin(ctx, "SkipTurn")
	defer func() { done(err) }()

	actor, err := authz.ActorFromContext(ctx)
	if err != nil {
		return TurnResult{}, err
	}
	if err = authz.RequireModerator(actor); err != nil {
		return TurnResult{}, err
	}

	session, err := s.activeSession(ctx, sessionID)
	if err != nil {
		return TurnResult{}, err
	}

	var rotation turn.Result
	committed, err := s.store.UpdateGameState(ctx, sessionID, func(doc state.GameState) (state.GameState, error) {
		var mutateErr error
		rotation, mutateErr = turn.Skip(doc, target)
		if mutateErr != nil {
			return state.GameState{}, mutateErr
		}
		return rotation.State, nil
	})
	if err != nil {
		return TurnResult{}, err
	}

	s.broadcastTurnAdvanced(ctx, session, committed, rotation.Wrapped)
	return TurnResult{State: committed, Wrapped: rotation.Wrapped}, nil
}

// broadcastTurnAdvanced publishes the rotation and, when an NPC now holds
// the turn, the enemy signal.
func (s *Service) broadcastTurnAdvanced(ctx context.Context, session storage.SessionRecord, doc state.GameState, wrapped bool) {
	s.publish(ctx, broadcast.Event{
		Kind:       broadcast.KindTurnAdvanced,
		SessionID:  session.ID,
		CampaignID: session.CampaignID,
		Payload: broadcast.TurnAdvanced{
			Active:      doc.ActiveParticipant,
			RoundNumber: doc.RoundNumber,
			Wrapped:     wrapped,
		},
	})
	if doc.ActiveParticipant.IsNPC() {
		record := session
		record.State = doc
		s.signalEnemyTurn(ctx, record, doc.ActiveParticipant, doc.RoundNumber)
	}
}

// requireTurnHolder allows the active participant or a moderator.
//
// With no active pointer anyone in the session may end the (vacant) turn;
// the rotation simply seeds the head of the order.
func requireTurnHolder(actor authz.Actor, active participant.Participant) error {
	if actor.CanModerate() || active.IsZero() {
		return nil
	}
	if active == participant.Player(actor.UserID) {
		return nil
	}
	return errors.WithMetadata(errors.CodeNotYourTurn,
		"only the active participant may end the turn",
		map[string]string{"activePlayerId": active.String()})
}
