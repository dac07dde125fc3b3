package deathsave

import "testing"

func TestApplyRejectsOutOfRange(t *testing.T) {
	if _, err := Apply(Counters{}, 0); err == nil {
		t.Fatal("expected rejection for roll 0")
	}
	if _, err := Apply(Counters{}, 21); err == nil {
		t.Fatal("expected rejection for roll 21")
	}
}

func TestNaturalTwentyStabilizesAtOneHP(t *testing.T) {
	result, err := Apply(Counters{Successes: 1, Failures: 2}, 20)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.Outcome != OutcomeStabilized {
		t.Fatalf("outcome = %s, want stabilized", result.Outcome)
	}
	if result.RestoredHitPoints != 1 {
		t.Fatalf("restored hp = %d, want 1", result.RestoredHitPoints)
	}
	if result.Counters != (Counters{}) {
		t.Fatalf("counters not cleared: %+v", result.Counters)
	}
}

func TestSuccessAndFailureAccumulate(t *testing.T) {
	result, err := Apply(Counters{}, 14)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.Outcome != OutcomeSuccess || result.Counters.Successes != 1 {
		t.Fatalf("result = %+v, want 1 success", result)
	}

	result, err = Apply(result.Counters, 6)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.Outcome != OutcomeFailure || result.Counters.Failures != 1 {
		t.Fatalf("result = %+v, want 1 failure", result)
	}
}

func TestThreeSuccessesStabilizeWithoutHealing(t *testing.T) {
	result, err := Apply(Counters{Successes: 2}, 10)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.Outcome != OutcomeStabilized {
		t.Fatalf("outcome = %s, want stabilized", result.Outcome)
	}
	if result.RestoredHitPoints != 0 {
		t.Fatalf("restored hp = %d, want 0", result.RestoredHitPoints)
	}
}

func TestThreeFailuresMeanDeath(t *testing.T) {
	result, err := Apply(Counters{Failures: 2}, 4)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.Outcome != OutcomeDead {
		t.Fatalf("outcome = %s, want dead", result.Outcome)
	}
}

func TestNaturalOneCountsTwoFailures(t *testing.T) {
	result, err := Apply(Counters{}, 1)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.Outcome != OutcomeFailure || result.Counters.Failures != 2 {
		t.Fatalf("result = %+v, want 2 failures", result)
	}

	// Two prior failures plus a natural 1 is lethal.
	result, err = Apply(Counters{Failures: 2}, 1)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.Outcome != OutcomeDead {
		t.Fatalf("outcome = %s, want dead", result.Outcome)
	}
}

func TestFailuresNeverExceedThreeBeforeDeath(t *testing.T) {
	counters := Counters{}
	for i := 0; i < 5; i++ {
		result, err := Apply(counters, 5)
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
		if result.Outcome == OutcomeDead {
			return
		}
		if result.Counters.Failures >= 3 {
			t.Fatalf("counters reached %d failures without death", result.Counters.Failures)
		}
		counters = result.Counters
	}
	t.Fatal("expected death within five failed saves")
}
