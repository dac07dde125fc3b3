package storage

import (
	"time"

	"github.com/louisbranch/torchbearer.quest/internal/engine/narrative"
)

// ConditionUnconscious marks a character at 0 hit points.
const ConditionUnconscious = "unconscious"

// ConditionDead marks a character who failed their death saves.
const ConditionDead = "dead"

// ApplyEffect folds one mechanical effect into a character record.
//
// Hit points are clamped to [0, max]. Dropping to 0 adds the unconscious
// condition; healing above 0 removes it and resets death-save counters.
// The dead condition also resets the counters.
func ApplyEffect(record CharacterRecord, effect narrative.Effect, now time.Time) CharacterRecord {
	next := record
	next.Conditions = append([]string(nil), record.Conditions...)

	if effect.HitPointDelta != 0 {
		hp := next.HitPoints + effect.HitPointDelta
		if hp < 0 {
			hp = 0
		}
		if hp > next.MaxHitPoints {
			hp = next.MaxHitPoints
		}
		wasDown := next.HitPoints <= 0
		next.HitPoints = hp
		if hp == 0 {
			next.Conditions = addCondition(next.Conditions, ConditionUnconscious)
		} else if wasDown {
			next.Conditions = removeCondition(next.Conditions, ConditionUnconscious)
			next.SaveSuccesses = 0
			next.SaveFailures = 0
		}
	}

	for _, condition := range effect.AddConditions {
		next.Conditions = addCondition(next.Conditions, condition)
		if condition == ConditionDead {
			next.SaveSuccesses = 0
			next.SaveFailures = 0
		}
	}
	for _, condition := range effect.RemoveConditions {
		next.Conditions = removeCondition(next.Conditions, condition)
		if condition == ConditionUnconscious {
			next.SaveSuccesses = 0
			next.SaveFailures = 0
		}
	}

	if effect.Experience > 0 {
		next.Experience += effect.Experience
	}

	next.UpdatedAt = now.UTC()
	return next
}

func addCondition(conditions []string, name string) []string {
	for _, c := range conditions {
		if c == name {
			return conditions
		}
	}
	return append(conditions, name)
}

func removeCondition(conditions []string, name string) []string {
	out := conditions[:0]
	for _, c := range conditions {
		if c != name {
			out = append(out, c)
		}
	}
	return out
}
