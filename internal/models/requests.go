package models

// ProgressSyncRequest represents the body of POST /progress
//
// All fields are optional. Pointer fields let validation tell a missing value from a zero one.
type ProgressSyncRequest struct {
	XP              *int                    `json:"xp"`
	CompletedLevels []CompletedLevelRequest `json:"completed_levels"`
	CompletedExams  []string                `json:"completed_exams"`
}

// CompletedLevelRequest represents a single completed level entry of a sync request
type CompletedLevelRequest struct {
	TopicID    *int     `json:"topicId"`
	SubLevelID *float64 `json:"subLevelId"`
}

// PenaltyRequest represents the body of POST /progress/penalty
type PenaltyRequest struct {
	Delta *int `json:"delta"`
}
