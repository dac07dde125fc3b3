package dice

import (
	"math/rand"
	"testing"
)

func TestRollDiceDeterministicBySeed(t *testing.T) {
	request := Request{
		Dice: []Spec{{Sides: 6, Count: 2}, {Sides: 8, Count: 1}},
		Seed: 42,
	}

	first, err := RollDice(request)
	if err != nil {
		t.Fatalf("roll dice: %v", err)
	}
	second, err := RollDice(request)
	if err != nil {
		t.Fatalf("roll dice: %v", err)
	}

	if first.Total != second.Total {
		t.Fatalf("totals differ for same seed: %d vs %d", first.Total, second.Total)
	}
	for i := range first.Rolls {
		for j := range first.Rolls[i].Results {
			if first.Rolls[i].Results[j] != second.Rolls[i].Results[j] {
				t.Fatalf("die %d/%d differs for same seed", i, j)
			}
		}
	}
}

func TestRollDiceTotals(t *testing.T) {
	result, err := RollDice(Request{Dice: []Spec{{Sides: 6, Count: 3}}, Seed: 7})
	if err != nil {
		t.Fatalf("roll dice: %v", err)
	}
	if len(result.Rolls) != 1 {
		t.Fatalf("expected 1 roll group, got %d", len(result.Rolls))
	}
	sum := 0
	for _, v := range result.Rolls[0].Results {
		if v < 1 || v > 6 {
			t.Fatalf("die result %d out of range [1,6]", v)
		}
		sum += v
	}
	if result.Total != sum {
		t.Fatalf("total = %d, want %d", result.Total, sum)
	}
}

func TestRollDiceRejectsEmptyRequest(t *testing.T) {
	if _, err := RollDice(Request{Seed: 1}); err != ErrMissingDice {
		t.Fatalf("expected ErrMissingDice, got %v", err)
	}
}

func TestRollDiceRejectsInvalidSpec(t *testing.T) {
	if _, err := RollDice(Request{Dice: []Spec{{Sides: 0, Count: 1}}, Seed: 1}); err != ErrInvalidDiceSpec {
		t.Fatalf("expected ErrInvalidDiceSpec, got %v", err)
	}
	if _, err := RollDice(Request{Dice: []Spec{{Sides: 6, Count: 0}}, Seed: 1}); err != ErrInvalidDiceSpec {
		t.Fatalf("expected ErrInvalidDiceSpec, got %v", err)
	}
}

func TestD20Range(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	for i := 0; i < 100; i++ {
		value := D20(rng)
		if value < 1 || value > 20 {
			t.Fatalf("d20 result %d out of range [1,20]", value)
		}
	}
}
