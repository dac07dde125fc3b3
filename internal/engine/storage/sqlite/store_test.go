package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/participant"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/state"
	"github.com/louisbranch/torchbearer.quest/internal/engine/storage"
	perrors "github.com/louisbranch/torchbearer.quest/internal/platform/errors"
)

var testTime = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.sqlite")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func testSession(id, campaignID string, status storage.SessionStatus) storage.SessionRecord {
	return storage.SessionRecord{
		ID:         id,
		CampaignID: campaignID,
		Name:       "Session Zero",
		Status:     status,
		State:      state.New(),
		CreatedAt:  testTime,
		UpdatedAt:  testTime,
	}
}

func TestPutSessionRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	record := testSession("sess-1", "camp-1", storage.SessionActive)
	record.State.TurnOrder = []participant.Participant{
		participant.Player("user-1"),
		participant.NPC("goblin-1"),
	}
	record.State.ActiveParticipant = participant.Player("user-1")

	if err := store.PutSession(ctx, record); err != nil {
		t.Fatalf("put session: %v", err)
	}

	got, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Name != "Session Zero" || got.Status != storage.SessionActive {
		t.Fatalf("unexpected session: %+v", got)
	}
	if got.State.Phase != state.PhaseExploration {
		t.Fatalf("phase = %q, want exploration", got.State.Phase)
	}
	if len(got.State.TurnOrder) != 2 || !got.State.TurnOrder[1].IsNPC() {
		t.Fatalf("turn order lost npc resolution: %+v", got.State.TurnOrder)
	}
	if got.State.ActiveParticipant != participant.Player("user-1") {
		t.Fatalf("active participant = %+v", got.State.ActiveParticipant)
	}
}

func TestPutSessionRejectsSecondActive(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.PutSession(ctx, testSession("sess-1", "camp-1", storage.SessionActive)); err != nil {
		t.Fatalf("put first session: %v", err)
	}
	err := store.PutSession(ctx, testSession("sess-2", "camp-1", storage.SessionActive))
	if !errors.Is(err, storage.ErrActiveSessionExists) {
		t.Fatalf("err = %v, want ErrActiveSessionExists", err)
	}

	// Re-putting the same active session is an upsert, not a conflict.
	if err := store.PutSession(ctx, testSession("sess-1", "camp-1", storage.SessionActive)); err != nil {
		t.Fatalf("re-put active session: %v", err)
	}
	// A different campaign is unaffected.
	if err := store.PutSession(ctx, testSession("sess-3", "camp-2", storage.SessionActive)); err != nil {
		t.Fatalf("put other campaign session: %v", err)
	}
}

func TestActiveSessionForCampaign(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.PutSession(ctx, testSession("sess-1", "camp-1", storage.SessionCompleted)); err != nil {
		t.Fatalf("put completed session: %v", err)
	}
	if _, err := store.ActiveSessionForCampaign(ctx, "camp-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	if err := store.PutSession(ctx, testSession("sess-2", "camp-1", storage.SessionActive)); err != nil {
		t.Fatalf("put active session: %v", err)
	}
	got, err := store.ActiveSessionForCampaign(ctx, "camp-1")
	if err != nil {
		t.Fatalf("active session: %v", err)
	}
	if got.ID != "sess-2" {
		t.Fatalf("active session id = %q, want sess-2", got.ID)
	}
}

func TestUpdateGameStateCommitsMutation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.PutSession(ctx, testSession("sess-1", "camp-1", storage.SessionActive)); err != nil {
		t.Fatalf("put session: %v", err)
	}

	updated, err := store.UpdateGameState(ctx, "sess-1", func(doc state.GameState) (state.GameState, error) {
		doc.RoundNumber = 4
		doc.Phase = state.PhaseSocial
		return doc, nil
	})
	if err != nil {
		t.Fatalf("update game state: %v", err)
	}
	if updated.RoundNumber != 4 {
		t.Fatalf("returned round = %d, want 4", updated.RoundNumber)
	}

	got, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.State.RoundNumber != 4 || got.State.Phase != state.PhaseSocial {
		t.Fatalf("persisted state = %+v", got.State)
	}
}

func TestUpdateGameStateRollsBackOnMutateError(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.PutSession(ctx, testSession("sess-1", "camp-1", storage.SessionActive)); err != nil {
		t.Fatalf("put session: %v", err)
	}

	domainErr := perrors.New(perrors.CodePhaseInvalid, "bad phase")
	_, err := store.UpdateGameState(ctx, "sess-1", func(doc state.GameState) (state.GameState, error) {
		doc.RoundNumber = 99
		return doc, domainErr
	})
	if !errors.Is(err, domainErr) {
		t.Fatalf("err = %v, want domain error to pass through", err)
	}

	got, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.State.RoundNumber != 1 {
		t.Fatalf("round = %d, want untouched 1", got.State.RoundNumber)
	}
}

func TestUpdateGameStateUnknownSession(t *testing.T) {
	store := openTestStore(t)
	_, err := store.UpdateGameState(context.Background(), "missing", func(doc state.GameState) (state.GameState, error) {
		return doc, nil
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
