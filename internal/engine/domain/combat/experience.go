package combat

// MaxLevel is the highest attainable level; levelThresholds carries one
// row per level.
const MaxLevel = 20

// levelThresholds holds cumulative experience required per level, indexed by
// level-1, following the conventional SRD progression.
var levelThresholds = [MaxLevel]int{
	0, 300, 900, 2700, 6500,
	14000, 23000, 34000, 48000, 64000,
	85000, 100000, 120000, 140000, 165000,
	195000, 225000, 265000, 305000, 355000,
}

// ExperienceShare splits the total enemy experience value evenly across the
// surviving party.
//
// Returns 0 when the end condition awards nothing or the party is empty.
func ExperienceShare(end EndCondition, enemyValues []int, partySize int) int {
	if !end.AwardsExperience() || partySize <= 0 {
		return 0
	}
	total := 0
	for _, v := range enemyValues {
		if v > 0 {
			total += v
		}
	}
	return total / partySize
}

// LevelForExperience returns the level a cumulative experience total earns.
func LevelForExperience(xp int) int {
	level := 1
	for i, threshold := range levelThresholds {
		if xp >= threshold {
			level = i + 1
		}
	}
	return level
}

// PendingLevelUp reports whether an experience gain crosses a threshold.
//
// The new level is reported to the caller as pending rather than applied
// automatically.
func PendingLevelUp(before, after int) (int, bool) {
	levelBefore := LevelForExperience(before)
	levelAfter := LevelForExperience(after)
	if levelAfter > levelBefore {
		return levelAfter, true
	}
	return levelBefore, false
}
