package storage

import (
	"testing"
	"time"

	"github.com/louisbranch/torchbearer.quest/internal/engine/narrative"
)

var now = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func baseCharacter() CharacterRecord {
	return CharacterRecord{
		ID:           "char-1",
		CampaignID:   "camp-1",
		Kind:         KindPC,
		HitPoints:    10,
		MaxHitPoints: 12,
	}
}

func TestApplyEffectDamageClampsAtZeroAndKnocksOut(t *testing.T) {
	record := ApplyEffect(baseCharacter(), narrative.Effect{
		CharacterID:   "char-1",
		HitPointDelta: -15,
	}, now)

	if record.HitPoints != 0 {
		t.Fatalf("hp = %d, want 0", record.HitPoints)
	}
	if !record.HasCondition(ConditionUnconscious) {
		t.Fatal("expected unconscious condition at 0 hp")
	}
}

func TestApplyEffectHealingClampsAtMaxAndWakes(t *testing.T) {
	down := baseCharacter()
	down.HitPoints = 0
	down.Conditions = []string{ConditionUnconscious}
	down.SaveFailures = 2

	record := ApplyEffect(down, narrative.Effect{
		CharacterID:   "char-1",
		HitPointDelta: 99,
	}, now)

	if record.HitPoints != 12 {
		t.Fatalf("hp = %d, want max 12", record.HitPoints)
	}
	if record.HasCondition(ConditionUnconscious) {
		t.Fatal("expected unconscious cleared on waking")
	}
	if record.SaveFailures != 0 || record.SaveSuccesses != 0 {
		t.Fatal("expected death-save counters reset on waking")
	}
}

func TestApplyEffectConditionsDeduplicated(t *testing.T) {
	record := ApplyEffect(baseCharacter(), narrative.Effect{
		AddConditions: []string{"stunned", "stunned"},
	}, now)
	count := 0
	for _, c := range record.Conditions {
		if c == "stunned" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("stunned condition count = %d, want 1", count)
	}
}

func TestApplyEffectExperience(t *testing.T) {
	record := ApplyEffect(baseCharacter(), narrative.Effect{Experience: 150}, now)
	if record.Experience != 150 {
		t.Fatalf("experience = %d, want 150", record.Experience)
	}
}

func TestApplyEffectDoesNotMutateInput(t *testing.T) {
	original := baseCharacter()
	original.Conditions = []string{"blessed"}

	_ = ApplyEffect(original, narrative.Effect{
		AddConditions:    []string{"stunned"},
		RemoveConditions: []string{"blessed"},
	}, now)

	if len(original.Conditions) != 1 || original.Conditions[0] != "blessed" {
		t.Fatalf("input mutated: %+v", original.Conditions)
	}
}

func TestApplyEffectDeadResetsCounters(t *testing.T) {
	down := baseCharacter()
	down.SaveFailures = 3

	record := ApplyEffect(down, narrative.Effect{
		AddConditions: []string{ConditionDead},
	}, now)
	if record.SaveFailures != 0 {
		t.Fatal("expected counters reset on death")
	}
	if !record.HasCondition(ConditionDead) {
		t.Fatal("expected dead condition")
	}
}
