package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/torchbearer.quest/internal/engine/authz"
	"github.com/louisbranch/torchbearer.quest/internal/engine/broadcast"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/action"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/participant"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/state"
	"github.com/louisbranch/torchbearer.quest/internal/engine/narrative"
	"github.com/louisbranch/torchbearer.quest/internal/engine/service"
	"github.com/louisbranch/torchbearer.quest/internal/engine/storage"
	"github.com/louisbranch/torchbearer.quest/internal/engine/storage/sqlite"
)

var testTime = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store  *sqlite.Store
	events *broadcast.Memory
	svc    *service.Service
	worker *Worker
}

// newFixture wires a real store, service, and worker around the given
// generator. The worker is driven synchronously; Start is not called.
func newFixture(t *testing.T, generator narrative.Generator) *fixture {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "engine.sqlite"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})

	events := broadcast.NewMemory()

	var ids int
	svc := service.New(service.Deps{
		Store:       store,
		Broadcaster: events,
		Now:         func() time.Time { return testTime },
		NewID: func() (string, error) {
			ids++
			return fmt.Sprintf("id-%d", ids), nil
		},
		Seed: func() int64 { return 42 },
	})

	worker := New(Deps{
		Store:       store,
		Generator:   generator,
		Broadcaster: events,
		Service:     svc,
		Now:         func() time.Time { return testTime },
	})

	f := &fixture{store: store, events: events, svc: svc, worker: worker}
	f.seed(t)
	return f
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if err := f.store.PutSession(ctx, storage.SessionRecord{
		ID:         "sess-1",
		CampaignID: "camp-1",
		Name:       "The Sunken Vault",
		Status:     storage.SessionActive,
		State:      state.New(),
		CreatedAt:  testTime,
		UpdatedAt:  testTime,
	}); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	records := []storage.CharacterRecord{
		{ID: "char-1", CampaignID: "camp-1", UserID: "user-1", Name: "Brennor",
			Kind: storage.KindPC, HitPoints: 12, MaxHitPoints: 12, Level: 1, UpdatedAt: testTime},
		{ID: "goblin-1", CampaignID: "camp-1", Name: "Goblin Skirmisher",
			Kind: storage.KindNPC, HitPoints: 7, MaxHitPoints: 7, ExperienceValue: 100, UpdatedAt: testTime},
	}
	for _, record := range records {
		if err := f.store.PutCharacter(ctx, record); err != nil {
			t.Fatalf("seed character %s: %v", record.ID, err)
		}
	}
}

func playerCtx(userID string) context.Context {
	return authz.WithActor(context.Background(), authz.Actor{UserID: userID, Role: authz.RolePlayer})
}

func (f *fixture) submit(t *testing.T, actionType string) action.Action {
	t.Helper()
	act, err := f.svc.SubmitAction(playerCtx("user-1"), service.SubmitActionInput{
		SessionID:   "sess-1",
		CharacterID: "char-1",
		ActionType:  actionType,
		Payload:     json.RawMessage(`{"target":"goblin-1"}`),
	})
	if err != nil {
		t.Fatalf("submit action: %v", err)
	}
	return act
}

func hasKind(kinds []broadcast.Kind, want broadcast.Kind) bool {
	for _, kind := range kinds {
		if kind == want {
			return true
		}
	}
	return false
}

func TestResolveCompletesWithOutcome(t *testing.T) {
	generator := narrative.GeneratorFunc(func(_ context.Context, snapshot narrative.Context) (narrative.Result, error) {
		if snapshot.ActionType != "attack" || snapshot.CharacterID != "char-1" {
			t.Fatalf("unexpected snapshot: %+v", snapshot)
		}
		return narrative.Result{
			Narration:        "the blade lands true",
			PrivateNarration: "you feel the vault watching",
			Outcome: &narrative.Outcome{Effects: []narrative.Effect{
				{CharacterID: "goblin-1", HitPointDelta: -7},
			}},
		}, nil
	})
	f := newFixture(t, generator)

	act := f.submit(t, "attack")
	f.worker.Resolve(context.Background(), act.ID)

	resolved, err := f.store.GetAction(context.Background(), act.ID)
	if err != nil {
		t.Fatalf("get action: %v", err)
	}
	if resolved.Status != action.StatusCompleted || resolved.ResolvedAt == nil {
		t.Fatalf("unexpected action: %+v", resolved)
	}
	if len(resolved.DMResponse) == 0 {
		t.Fatal("dm response not persisted")
	}

	goblin, err := f.store.GetCharacter(context.Background(), "goblin-1")
	if err != nil {
		t.Fatalf("get goblin: %v", err)
	}
	if goblin.HitPoints != 0 || !goblin.HasCondition(storage.ConditionUnconscious) {
		t.Fatalf("outcome not applied: %+v", goblin)
	}

	kinds := f.events.Kinds()
	for _, want := range []broadcast.Kind{
		broadcast.KindNarrativeDM,
		broadcast.KindActionCompleted,
		broadcast.KindLiveStateChanged,
	} {
		if !hasKind(kinds, want) {
			t.Fatalf("kinds %v missing %s", kinds, want)
		}
	}
}

// End-to-end scenario: generation asks for a roll, the owner answers, and
// the second pass completes the action.
func TestRollGatedResolution(t *testing.T) {
	generator := narrative.GeneratorFunc(func(_ context.Context, snapshot narrative.Context) (narrative.Result, error) {
		if snapshot.RollResult == nil {
			return narrative.Result{
				Narration:     "the goblin raises its shield",
				RequiredRolls: []narrative.RequiredRoll{{Type: "to-hit", Sides: 20}},
			}, nil
		}
		return narrative.Result{
			Narration: fmt.Sprintf("a %d slips past the shield", snapshot.RollResult.Value),
			// A second pass must never re-request rolls; these are ignored.
			RequiredRolls: []narrative.RequiredRoll{{Type: "to-hit", Sides: 20}},
			Outcome: &narrative.Outcome{Effects: []narrative.Effect{
				{CharacterID: "goblin-1", HitPointDelta: -3},
			}},
		}, nil
	})
	f := newFixture(t, generator)

	act := f.submit(t, "attack")
	f.worker.Resolve(context.Background(), act.ID)

	paused, err := f.store.GetAction(context.Background(), act.ID)
	if err != nil {
		t.Fatalf("get action: %v", err)
	}
	if paused.Status != action.StatusAwaitingRoll {
		t.Fatalf("status = %q, want awaiting_roll", paused.Status)
	}
	if !hasKind(f.events.Kinds(), broadcast.KindRollRequested) {
		t.Fatalf("kinds %v missing roll request", f.events.Kinds())
	}

	rolled, err := f.svc.SubmitRoll(playerCtx("user-1"), act.ID, action.RollResult{Type: "to-hit", Value: 14})
	if err != nil {
		t.Fatalf("submit roll: %v", err)
	}
	f.worker.Resolve(context.Background(), rolled.ID)

	resolved, err := f.store.GetAction(context.Background(), act.ID)
	if err != nil {
		t.Fatalf("get action: %v", err)
	}
	if resolved.Status != action.StatusCompleted || resolved.ResolvedAt == nil {
		t.Fatalf("unexpected action: %+v", resolved)
	}
	if len(resolved.DMResponse) == 0 {
		t.Fatal("dm response not persisted")
	}

	goblin, err := f.store.GetCharacter(context.Background(), "goblin-1")
	if err != nil {
		t.Fatalf("get goblin: %v", err)
	}
	if goblin.HitPoints != 4 {
		t.Fatalf("goblin hp = %d, want 4", goblin.HitPoints)
	}
}

func TestGeneratorErrorMarksActionFailed(t *testing.T) {
	generator := narrative.GeneratorFunc(func(context.Context, narrative.Context) (narrative.Result, error) {
		return narrative.Result{}, fmt.Errorf("model unavailable")
	})
	f := newFixture(t, generator)

	act := f.submit(t, "attack")
	f.worker.Resolve(context.Background(), act.ID)

	failed, err := f.store.GetAction(context.Background(), act.ID)
	if err != nil {
		t.Fatalf("get action: %v", err)
	}
	if failed.Status != action.StatusFailed || failed.ResolvedAt == nil {
		t.Fatalf("unexpected action: %+v", failed)
	}
	if !hasKind(f.events.Kinds(), broadcast.KindActionCompleted) {
		t.Fatalf("kinds %v missing failure notification", f.events.Kinds())
	}

	// No retry: the next pass sees a terminal action and does nothing.
	f.worker.Resolve(context.Background(), act.ID)
	again, err := f.store.GetAction(context.Background(), act.ID)
	if err != nil {
		t.Fatalf("get action: %v", err)
	}
	if again.Status != action.StatusFailed {
		t.Fatalf("status = %q after redundant resolve", again.Status)
	}
}

func TestEnemyTurnExecutorActsAndEndsTurn(t *testing.T) {
	generator := narrative.GeneratorFunc(func(_ context.Context, snapshot narrative.Context) (narrative.Result, error) {
		return narrative.Result{
			Narration: "the goblin lunges",
			Outcome: &narrative.Outcome{Effects: []narrative.Effect{
				{CharacterID: "char-1", HitPointDelta: -4},
			}},
		}, nil
	})
	f := newFixture(t, generator)

	// Combat with the goblin holding the turn.
	doc := state.New()
	doc.Phase = state.PhaseCombat
	doc.EncounterID = "enc-1"
	doc.TurnOrder = []participant.Participant{
		participant.NPC("goblin-1"),
		participant.Player("user-1"),
	}
	doc.ActiveParticipant = participant.NPC("goblin-1")
	doc.CombatTurnBudget = state.NewTurnBudget()
	if _, err := f.store.UpdateGameState(context.Background(), "sess-1", func(state.GameState) (state.GameState, error) {
		return doc, nil
	}); err != nil {
		t.Fatalf("stage combat state: %v", err)
	}

	f.worker.runEnemyTurn(context.Background(), "sess-1", participant.NPC("goblin-1"))

	session, err := f.store.GetSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session.State.ActiveParticipant != participant.Player("user-1") {
		t.Fatalf("active = %v, want user-1 after npc turn", session.State.ActiveParticipant)
	}

	hero, err := f.store.GetCharacter(context.Background(), "char-1")
	if err != nil {
		t.Fatalf("get hero: %v", err)
	}
	if hero.HitPoints != 8 {
		t.Fatalf("hero hp = %d, want 8", hero.HitPoints)
	}

	if !hasKind(f.events.Kinds(), broadcast.KindTurnAdvanced) {
		t.Fatalf("kinds %v missing turn advance", f.events.Kinds())
	}
}

func TestStartDrainsQueue(t *testing.T) {
	generator := narrative.GeneratorFunc(func(context.Context, narrative.Context) (narrative.Result, error) {
		return narrative.Result{Narration: "done"}, nil
	})
	f := newFixture(t, generator)

	act := f.submit(t, "attack")

	ctx, cancel := context.WithCancel(context.Background())
	f.worker.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		resolved, err := f.store.GetAction(context.Background(), act.ID)
		if err != nil {
			t.Fatalf("get action: %v", err)
		}
		if resolved.Status == action.StatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("action never resolved, status %q", resolved.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	f.worker.Wait()
}
