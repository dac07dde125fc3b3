package combat

import (
	"math/rand"
	"sort"

	"github.com/louisbranch/torchbearer.quest/internal/core/dice"
	"github.com/louisbranch/torchbearer.quest/internal/engine/domain/participant"
)

// InitiativeInput describes one combatant entering initiative.
type InitiativeInput struct {
	Ref      participant.Participant
	Modifier int
	// Override, when set, replaces the rolled value entirely. Used for
	// GM-supplied initiative.
	Override *int
}

// InitiativeEntry is one slot of a frozen initiative order.
type InitiativeEntry struct {
	Ref        participant.Participant `json:"participant"`
	Initiative int                     `json:"initiative"`
}

// RollInitiative rolls a d20 per combatant and returns the order sorted
// descending by initiative.
//
// Rolls are deterministic for a given seed and input order. The rolled die
// is clamped to [1,20] before the modifier is applied; an Override replaces
// the final value. Ties keep the input order (earlier inputs act first).
func RollInitiative(inputs []InitiativeInput, seed int64) []InitiativeEntry {
	rng := rand.New(rand.NewSource(seed))
	entries := make([]InitiativeEntry, 0, len(inputs))
	for _, in := range inputs {
		value := clamp(dice.D20(rng), 1, 20) + in.Modifier
		if in.Override != nil {
			value = *in.Override
		}
		entries = append(entries, InitiativeEntry{Ref: in.Ref, Initiative: value})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Initiative > entries[j].Initiative
	})
	return entries
}

// TurnOrder projects the frozen initiative order onto participant refs.
func TurnOrder(entries []InitiativeEntry) []participant.Participant {
	order := make([]participant.Participant, 0, len(entries))
	for _, entry := range entries {
		order = append(order, entry.Ref)
	}
	return order
}

func clamp(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
