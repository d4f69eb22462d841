package services

import (
	"fmt"
	"math"
	"regexp"

	"github.com/finquiz/backend/internal/models"
)

const (
	maxXP         = 1_000_000_000
	maxTopicID    = 1_000_000
	maxSubLevelID = 99_999.999
	maxExamKeyLen = 32
	maxListItems  = 1000
)

var (
	userKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_.@-]{1,64}$`)
	examKeyPattern = regexp.MustCompile(`^\d+\.\d+$`)
)

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", models.ErrInvalidInput, fmt.Sprintf(format, args...))
}

// validateUserKey checks that a trusted user key is usable as a storage identifier
func validateUserKey(userKey string) error {
	if userKey == "" {
		return fmt.Errorf("%w: user key is required", models.ErrUnauthorized)
	}
	if !userKeyPattern.MatchString(userKey) {
		return invalidInput("user key must be 1-64 characters of letters, digits, '_', '.', '@' or '-'")
	}
	return nil
}

// toPartialUpdate validates a sync request and converts it into a merge input
func toPartialUpdate(req models.ProgressSyncRequest) (models.PartialUpdate, error) {
	var update models.PartialUpdate

	if req.XP != nil {
		if *req.XP < 0 {
			return update, invalidInput("xp must be a non-negative integer")
		}
		if *req.XP > maxXP {
			return update, invalidInput("xp must not exceed %d", maxXP)
		}
		xp := *req.XP
		update.XP = &xp
	}

	if len(req.CompletedLevels) > maxListItems {
		return update, invalidInput("completed_levels must not contain more than %d entries", maxListItems)
	}
	for i, level := range req.CompletedLevels {
		if level.TopicID == nil || level.SubLevelID == nil {
			return update, invalidInput("completed_levels[%d] must contain topicId and subLevelId", i)
		}
		if *level.TopicID < 1 || *level.TopicID > maxTopicID {
			return update, invalidInput("completed_levels[%d].topicId must be an integer between 1 and %d", i, maxTopicID)
		}
		if err := validateSubLevelID(*level.SubLevelID); err != nil {
			return update, invalidInput("completed_levels[%d].subLevelId %s", i, err.Error())
		}
		update.CompletedLevels = append(update.CompletedLevels, models.CompletedLevel{
			TopicID:    *level.TopicID,
			SubLevelID: normalizeSubLevelID(*level.SubLevelID),
		})
	}

	if len(req.CompletedExams) > maxListItems {
		return update, invalidInput("completed_exams must not contain more than %d entries", maxListItems)
	}
	for i, exam := range req.CompletedExams {
		if len(exam) > maxExamKeyLen || !examKeyPattern.MatchString(exam) {
			return update, invalidInput("completed_exams[%d] must match \"{topicId}.{subLevelId}\"", i)
		}
		update.CompletedExams = append(update.CompletedExams, exam)
	}

	return update, nil
}

// validateSubLevelID accepts positive values with at most three decimals, which is what the store can keep exactly
func validateSubLevelID(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 || v > maxSubLevelID {
		return fmt.Errorf("must be a number greater than 0 and at most %g", maxSubLevelID)
	}
	scaled := v * 1000
	if math.Abs(scaled-math.Round(scaled)) > 1e-6 {
		return fmt.Errorf("must have at most 3 decimal places")
	}
	return nil
}

// normalizeSubLevelID rounds a validated sub-level id to the three decimals the store keeps,
// so values that only differ below that precision share one set key
func normalizeSubLevelID(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// validateDelta checks a penalty amount
func validateDelta(delta *int) error {
	if delta == nil {
		return invalidInput("delta is required")
	}
	if *delta < 0 {
		return invalidInput("delta must be a non-negative integer")
	}
	if *delta > maxXP {
		return invalidInput("delta must not exceed %d", maxXP)
	}
	return nil
}
