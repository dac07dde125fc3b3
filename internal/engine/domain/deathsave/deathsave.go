// Package deathsave resolves save-or-die rolls for unconscious characters.
package deathsave

import (
	"github.com/louisbranch/torchbearer.quest/internal/platform/errors"
)

// Outcome is the result of a single death-save roll.
type Outcome string

const (
	// OutcomeSuccess is a non-terminal successful save.
	OutcomeSuccess Outcome = "success"
	// OutcomeFailure is a non-terminal failed save.
	OutcomeFailure Outcome = "failure"
	// OutcomeStabilized means the character is stable.
	OutcomeStabilized Outcome = "stabilized"
	// OutcomeDead means the character has died.
	OutcomeDead Outcome = "dead"
)

// Counters holds a character's accumulated save progress.
type Counters struct {
	Successes int
	Failures  int
}

// Result carries the outcome of applying one roll.
type Result struct {
	Outcome  Outcome
	Counters Counters
	// RestoredHitPoints is 1 when a natural 20 brings the character back
	// conscious at 1 HP; otherwise 0 (stabilizing never heals).
	RestoredHitPoints int
}

const (
	successThreshold = 10
	terminalCount    = 3
)

// Apply resolves one death-save roll against accumulated counters.
//
// A roll of 20 immediately stabilizes the character at 1 hit point and
// clears all counters. A roll of 1 counts as two failures. Otherwise a roll
// of 10 or higher is one success and anything lower is one failure. Three
// accumulated failures mean death; three accumulated successes stabilize
// without healing. Counters reset on every terminal outcome.
func Apply(counters Counters, roll int) (Result, error) {
	if roll < 1 || roll > 20 {
		return Result{}, errors.New(errors.CodeDeathSaveRollOutOfRange,
			"death save roll must be between 1 and 20")
	}

	if roll == 20 {
		return Result{
			Outcome:           OutcomeStabilized,
			RestoredHitPoints: 1,
		}, nil
	}

	next := counters
	switch {
	case roll == 1:
		next.Failures += 2
	case roll >= successThreshold:
		next.Successes++
	default:
		next.Failures++
	}

	if next.Failures >= terminalCount {
		return Result{Outcome: OutcomeDead}, nil
	}
	if next.Successes >= terminalCount {
		return Result{Outcome: OutcomeStabilized}, nil
	}

	outcome := OutcomeFailure
	if roll >= successThreshold {
		outcome = OutcomeSuccess
	}
	return Result{Outcome: outcome, Counters: next}, nil
}
