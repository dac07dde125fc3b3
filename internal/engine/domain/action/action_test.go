package action

import (
	"encoding/json"
	"testing"
	"time"
)

var now = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

func newProcessing(t *testing.T) Action {
	t.Helper()
	a, err := New(NewInput{
		ID:          "act-1",
		SessionID:   "sess-1",
		CampaignID:  "camp-1",
		UserID:      "user-1",
		CharacterID: "char-1",
		Type:        "attack",
		Payload:     json.RawMessage(`{"target":"npc:goblin-1"}`),
		Now:         now,
	})
	if err != nil {
		t.Fatalf("new action: %v", err)
	}
	return a
}

func TestNewRequiresType(t *testing.T) {
	if _, err := New(NewInput{ID: "act-1", Now: now}); err == nil {
		t.Fatal("expected type requirement")
	}
}

func TestNewStartsProcessing(t *testing.T) {
	a := newProcessing(t)
	if a.Status != StatusProcessing {
		t.Fatalf("status = %s, want processing", a.Status)
	}
	if a.ResolvedAt != nil {
		t.Fatal("expected no resolution timestamp")
	}
}

func TestAwaitRollThenResume(t *testing.T) {
	a := newProcessing(t)
	awaiting, err := a.AwaitRoll(json.RawMessage(`{"narration":"roll to hit"}`))
	if err != nil {
		t.Fatalf("await roll: %v", err)
	}
	if awaiting.Status != StatusAwaitingRoll {
		t.Fatalf("status = %s, want awaiting_roll", awaiting.Status)
	}

	resumed, err := awaiting.WithRollResult(RollResult{Type: "to-hit", Value: 14})
	if err != nil {
		t.Fatalf("with roll result: %v", err)
	}
	if resumed.Status != StatusProcessing {
		t.Fatalf("status = %s, want processing", resumed.Status)
	}
	if resumed.RollResult == nil || resumed.RollResult.Value != 14 {
		t.Fatalf("roll result = %+v", resumed.RollResult)
	}
}

func TestRollRejectedUnlessAwaiting(t *testing.T) {
	a := newProcessing(t)
	if _, err := a.WithRollResult(RollResult{Type: "to-hit", Value: 14}); err == nil {
		t.Fatal("expected rejection while processing")
	}

	completed, err := a.Complete(json.RawMessage(`{}`), now)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := completed.WithRollResult(RollResult{Type: "to-hit", Value: 14}); err == nil {
		t.Fatal("expected rejection after completion")
	}
}

func TestAtMostOneRollResult(t *testing.T) {
	a := newProcessing(t)
	awaiting, err := a.AwaitRoll(nil)
	if err != nil {
		t.Fatalf("await roll: %v", err)
	}
	resumed, err := awaiting.WithRollResult(RollResult{Type: "to-hit", Value: 9})
	if err != nil {
		t.Fatalf("with roll result: %v", err)
	}

	// Force a second await to prove a second roll is still refused.
	again, err := resumed.AwaitRoll(nil)
	if err != nil {
		t.Fatalf("await roll again: %v", err)
	}
	if _, err := again.WithRollResult(RollResult{Type: "to-hit", Value: 12}); err == nil {
		t.Fatal("expected second roll result rejection")
	}
}

func TestCompleteStampsResolvedAt(t *testing.T) {
	a := newProcessing(t)
	completed, err := a.Complete(json.RawMessage(`{"narration":"done"}`), now)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", completed.Status)
	}
	if completed.ResolvedAt == nil || !completed.ResolvedAt.Equal(now) {
		t.Fatalf("resolved at = %v, want %v", completed.ResolvedAt, now)
	}
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	a := newProcessing(t)
	failed, err := a.Fail(now)
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if failed.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", failed.Status)
	}

	if _, err := failed.Complete(nil, now); err == nil {
		t.Fatal("expected completion rejection after failure")
	}
	if _, err := failed.Fail(now); err == nil {
		t.Fatal("expected fail rejection after failure")
	}
	if _, err := failed.AwaitRoll(nil); err == nil {
		t.Fatal("expected await rejection after failure")
	}
}

func TestTerminalNeverPendsRoll(t *testing.T) {
	a := newProcessing(t)
	completed, err := a.Complete(nil, now)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status.Terminal() && completed.Status == StatusAwaitingRoll {
		t.Fatal("terminal action cannot await a roll")
	}
	if !completed.Status.Terminal() {
		t.Fatal("completed must be terminal")
	}
	if !StatusFailed.Terminal() {
		t.Fatal("failed must be terminal")
	}
	if StatusAwaitingRoll.Terminal() {
		t.Fatal("awaiting_roll must not be terminal")
	}
}
