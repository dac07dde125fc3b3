package service

import (
	"context"

	"github.com/louisbranch/torchbearer.quest/internal/engine/authz"
	"github.com/louisbranch/torchbearer.quest/internal/engine/broadcast"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/deathsave"
	"github.com/louisbranch/torchbearer.quest/internal/engine/storage"
	"github.com/louisbranch/torchbearer.quest/internal/platform/errors"
)

// DeathSaveInput is one death-save roll for an unconscious character.
type DeathSaveInput struct {
	SessionID   string
	CharacterID string
	Roll        int
}

// DeathSaveResult carries the save outcome and the refreshed character.
type DeathSaveResult struct {
	Outcome   deathsave.Outcome
	Counters  deathsave.Counters
	Character storage.CharacterRecord
}

// SubmitDeathSave resolves one save-or-die roll.
//
// Only the character's player or a moderator may roll. Partial progress
// persists on the character record between rolls.
func (s *Service) SubmitDeathSave(ctx context.Context, in DeathSaveInput) (result DeathSaveResult, err error) {
	ctx, done := s.begin(ctx, "SubmitDeathSave")
	defer func() { done(err) }()

	actor, err := authz.ActorFromContext(ctx)
	if err != nil {
		return DeathSaveResult{}, err
	}

	session, err := s.activeSession(ctx, in.SessionID)
	if err != nil {
		return DeathSaveResult{}, err
	}

	var outcome deathsave.Result
	updated, err := s.store.UpdateCharacter(ctx, in.CharacterID, func(record storage.CharacterRecord) (storage.CharacterRecord, error) {
		if !actor.CanModerate() && record.UserID != actor.UserID {
			return storage.CharacterRecord{}, errors.WithMetadata(errors.CodeActorForbidden,
				"death saves belong to the character's player",
				map[string]string{"characterId": record.ID})
		}
		if record.HasCondition(storage.ConditionDead) {
			return storage.CharacterRecord{}, errors.New(errors.CodeDeathSaveCharacterDead,
				"character is dead")
		}
		if !record.HasCondition(storage.ConditionUnconscious) {
			return storage.CharacterRecord{}, errors.New(errors.CodeDeathSaveNotUnconscious,
				"only an unconscious character rolls death saves")
		}

		var applyErr error
		outcome, applyErr = deathsave.Apply(deathsave.Counters{
			Successes: record.SaveSuccesses,
			Failures:  record.SaveFailures,
		}, in.Roll)
		if applyErr != nil {
			return storage.CharacterRecord{}, applyErr
		}

		record.SaveSuccesses = outcome.Counters.Successes
		record.SaveFailures = outcome.Counters.Failures
		switch outcome.Outcome {
		case deathsave.OutcomeDead:
			record.Conditions = append(record.Conditions, storage.ConditionDead)
		case deathsave.OutcomeStabilized:
			if outcome.RestoredHitPoints > 0 {
				record.HitPoints = outcome.RestoredHitPoints
				record.Conditions = withoutCondition(record.Conditions, storage.ConditionUnconscious)
			}
		}
		record.UpdatedAt = s.now().UTC()
		return record, nil
	})
	if err != nil {
		if err == storage.ErrNotFound {
			return DeathSaveResult{}, errors.WithMetadata(errors.CodeCharacterNotFound,
				"character does not exist",
				map[string]string{"characterId": in.CharacterID})
		}
		return DeathSaveResult{}, err
	}

	s.publish(ctx, broadcast.Event{
		Kind:       broadcast.KindLiveStateChanged,
		SessionID:  session.ID,
		CampaignID: session.CampaignID,
		Payload:    liveState([]storage.CharacterRecord{updated}),
	})

	return DeathSaveResult{
		Outcome:   outcome.Outcome,
		Counters:  outcome.Counters,
		Character: updated,
	}, nil
}

func withoutCondition(conditions []string, name string) []string {
	out := conditions[:0]
	for _, condition := range conditions {
		if condition != name {
			out = append(out, condition)
		}
	}
	return out
}
