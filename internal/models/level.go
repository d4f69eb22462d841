package models

// levelThresholds holds the minimum XP required for each level.
// Index 0 is level 1.
var levelThresholds = [...]int{0, 100, 250, 450, 700}

// MaxLevel is the highest level a user can reach
const MaxLevel = len(levelThresholds)

// LevelFor returns the level reached with the given amount of XP.
//
// The result is the highest level whose threshold is less than or equal to "xp", always in [1, MaxLevel].
// Negative XP yields level 1, callers are expected to reject negative values before they get here.
func LevelFor(xp int) int {
	level := 1
	for i, threshold := range levelThresholds {
		if xp >= threshold {
			level = i + 1
		}
	}
	return level
}

// XPForNextLevel returns the XP threshold of the level after the one reached with "xp".
// The second value is false when the user is already at MaxLevel.
func XPForNextLevel(xp int) (int, bool) {
	level := LevelFor(xp)
	if level >= MaxLevel {
		return 0, false
	}
	return levelThresholds[level], true
}
