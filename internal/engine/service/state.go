package service

import (
	"context"

	"github.com/louisbranch/torchbearer.quest/internal/engine/authz"
	"github.com/louisbranch/torchbearer.quest/internal/engine/storage"
	"github.com/louisbranch/torchbearer.quest/internal/platform/errors"
)

// StateView is the full reconnect snapshot: the session document plus the
// campaign's character live state.
type StateView struct {
	Session    storage.SessionRecord
	Characters []storage.CharacterRecord
}

// GetGameState returns the session's current state snapshot.
//
// Any authenticated campaign member may read it; completed sessions stay
// readable for recaps.
func (s *Service) GetGameState(ctx context.Context, sessionID string) (view StateView, err error) {
	ctx, done := s.begin(ctx, "GetGameState")
	defer func() { done(err) }()

	if _, err = authz.ActorFromContext(ctx); err != nil {
		return StateView{}, err
	}

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if err == storage.ErrNotFound {
			return StateView{}, errors.WithMetadata(errors.CodeSessionNotFound,
				"session does not exist",
				map[string]string{"sessionId": sessionID})
		}
		return StateView{}, errors.Wrap(errors.CodeUnknown, "load session", err)
	}

	characters, err := s.store.ListCampaignCharacters(ctx, session.CampaignID)
	if err != nil {
		return StateView{}, errors.Wrap(errors.CodeUnknown, "list campaign characters", err)
	}

	return StateView{Session: session, Characters: characters}, nil
}
