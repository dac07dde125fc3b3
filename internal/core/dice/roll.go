// Package dice provides deterministic dice rolling for engine mechanics.
package dice

import (
	"errors"
	"math/rand"
)

var (
	// ErrMissingDice indicates a request with no dice specs.
	ErrMissingDice = errors.New("at least one dice spec is required")
	// ErrInvalidDiceSpec indicates a spec with non-positive sides or count.
	ErrInvalidDiceSpec = errors.New("dice spec sides and count must be positive")
)

// Spec describes a set of identical dice to roll.
type Spec struct {
	Sides int
	Count int
}

// Roll holds the outcome of rolling one Spec.
type Roll struct {
	Sides   int
	Results []int
	Total   int
}

// Result holds the outcome of a full request.
type Result struct {
	Rolls []Roll
	Total int
}

// Request describes dice to roll with a deterministic seed.
type Request struct {
	Dice []Spec
	Seed int64
}

// RollDice rolls dice based on the provided request.
//
// RollDice is deterministic with respect to the Seed field on Request:
// given the same Seed and the same Dice slice (including order), it always
// produces the same Result. Specs are processed in slice order and the
// resulting Roll entries appear in the same order. Result.Total is the sum
// of every die rolled across the entire request.
func RollDice(request Request) (Result, error) {
	if len(request.Dice) == 0 {
		return Result{}, ErrMissingDice
	}
	rng := rand.New(rand.NewSource(request.Seed))
	return RollWithRng(rng, request.Dice)
}

// RollWithRng rolls dice using a provided random source.
//
// Useful when several rolls must share one deterministic sequence, such as
// rolling initiative for every encounter participant from a single seed.
func RollWithRng(rng *rand.Rand, specs []Spec) (Result, error) {
	if len(specs) == 0 {
		return Result{}, ErrMissingDice
	}

	rolls := make([]Roll, 0, len(specs))
	total := 0

	for _, spec := range specs {
		if spec.Sides <= 0 || spec.Count <= 0 {
			return Result{}, ErrInvalidDiceSpec
		}

		results := make([]int, spec.Count)
		rollTotal := 0
		for i := 0; i < spec.Count; i++ {
			value := rollDie(rng, spec.Sides)
			results[i] = value
			rollTotal += value
		}

		rolls = append(rolls, Roll{
			Sides:   spec.Sides,
			Results: results,
			Total:   rollTotal,
		})
		total += rollTotal
	}

	return Result{
		Rolls: rolls,
		Total: total,
	}, nil
}

// D20 rolls a single twenty-sided die.
func D20(rng *rand.Rand) int {
	return rollDie(rng, 20)
}

// rollDie rolls a single die with the provided number of sides.
func rollDie(rng *rand.Rand, sides int) int {
	return rng.Intn(sides) + 1
}
