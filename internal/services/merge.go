package services

import (
	"sort"
	"time"

	"github.com/finquiz/backend/internal/models"
)

// MergeProgress combines the stored record of a user with a client submitted update.
//
// XP takes the maximum of both values, completed levels and exams are set unions where an already stored entry
// is kept unchanged. New completed levels are stamped with "now". Inputs are never mutated and the output sets are sorted.
func MergeProgress(current models.ProgressRecord, update models.PartialUpdate, now time.Time) models.ProgressRecord {
	merged := models.ProgressRecord{
		UserKey:     current.UserKey,
		XP:          current.XP,
		LastUpdated: now,
	}
	if update.XP != nil && *update.XP > merged.XP {
		merged.XP = *update.XP
	}
	merged.Level = models.LevelFor(merged.XP)

	seenLevels := make(map[string]struct{}, len(current.CompletedLevels)+len(update.CompletedLevels))
	merged.CompletedLevels = make([]models.CompletedLevel, 0, len(current.CompletedLevels)+len(update.CompletedLevels))
	for _, level := range current.CompletedLevels {
		if _, ok := seenLevels[level.Key()]; ok {
			continue
		}
		seenLevels[level.Key()] = struct{}{}
		merged.CompletedLevels = append(merged.CompletedLevels, level)
	}
	for _, level := range update.CompletedLevels {
		if _, ok := seenLevels[level.Key()]; ok {
			continue
		}
		seenLevels[level.Key()] = struct{}{}
		level.CompletedAt = now
		merged.CompletedLevels = append(merged.CompletedLevels, level)
	}
	sortCompletedLevels(merged.CompletedLevels)

	merged.CompletedExams = unionExams(current.CompletedExams, update.CompletedExams)

	return merged
}

// ApplyPenalty lowers XP by delta, never below zero. Completed sets are copied unchanged.
func ApplyPenalty(current models.ProgressRecord, delta int, now time.Time) models.ProgressRecord {
	next := current
	next.XP = max(0, current.XP-delta)
	next.Level = models.LevelFor(next.XP)
	next.CompletedLevels = append([]models.CompletedLevel{}, current.CompletedLevels...)
	next.CompletedExams = append([]string{}, current.CompletedExams...)
	next.LastUpdated = now
	return next
}

// ResetProgress returns the default record of a user stamped with "now"
func ResetProgress(userKey string, now time.Time) models.ProgressRecord {
	record := models.NewProgressRecord(userKey)
	record.LastUpdated = now
	return record
}

func unionExams(current, update []string) []string {
	seen := make(map[string]struct{}, len(current)+len(update))
	exams := make([]string, 0, len(current)+len(update))
	for _, list := range [][]string{current, update} {
		for _, exam := range list {
			if _, ok := seen[exam]; ok {
				continue
			}
			seen[exam] = struct{}{}
			exams = append(exams, exam)
		}
	}
	sort.Strings(exams)
	return exams
}

func sortCompletedLevels(levels []models.CompletedLevel) {
	sort.Slice(levels, func(i, j int) bool {
		if levels[i].TopicID != levels[j].TopicID {
			return levels[i].TopicID < levels[j].TopicID
		}
		return levels[i].SubLevelID < levels[j].SubLevelID
	})
}
