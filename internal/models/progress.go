package models

import (
	"strconv"
	"time"
)

// CompletedLevel identifies a passed topic sub-level
//
// Set identity is the (TopicID, SubLevelID) pair, CompletedAt is kept from the first submission.
type CompletedLevel struct {
	TopicID     int       `json:"topicId"`
	SubLevelID  float64   `json:"subLevelId"`
	CompletedAt time.Time `json:"-"`
}

// Key returns the set identity of the completed level
func (l CompletedLevel) Key() string {
	return strconv.Itoa(l.TopicID) + "." + strconv.FormatFloat(l.SubLevelID, 'f', -1, 64)
}

// ProgressRecord is the authoritative progress of a single user.
//
// Level is always derived from XP with LevelFor, the stored value is only a cache.
type ProgressRecord struct {
	UserKey         string
	XP              int
	Level           int
	CompletedLevels []CompletedLevel
	CompletedExams  []string
	LastUpdated     time.Time
}

// NewProgressRecord returns the default record for a user that has no stored progress yet
func NewProgressRecord(userKey string) ProgressRecord {
	return ProgressRecord{
		UserKey:         userKey,
		XP:              0,
		Level:           LevelFor(0),
		CompletedLevels: []CompletedLevel{},
		CompletedExams:  []string{},
	}
}

// PartialUpdate is a client submitted change to a progress record.
// A nil XP means the field was not submitted.
type PartialUpdate struct {
	XP              *int
	CompletedLevels []CompletedLevel
	CompletedExams  []string
}

// ProgressUpdateFunc computes the next state of a record from its current, locked state
type ProgressUpdateFunc func(current ProgressRecord) (ProgressRecord, error)

// ProgressResponse is the wire representation of a progress record
type ProgressResponse struct {
	Success         bool             `json:"success"`
	UserKey         string           `json:"user_key"`
	XP              int              `json:"xp"`
	Level           int              `json:"level"`
	NextLevelXP     *int             `json:"next_level_xp,omitempty"`
	CompletedLevels []CompletedLevel `json:"completed_levels"`
	CompletedExams  []string         `json:"completed_exams"`
	LastUpdated     *time.Time       `json:"last_updated,omitempty"`
}

// NewProgressResponse builds the response body for a record.
// Level is recomputed here as well so a stale cached level never reaches the client.
func NewProgressResponse(record *ProgressRecord) ProgressResponse {
	resp := ProgressResponse{
		Success:         true,
		UserKey:         record.UserKey,
		XP:              record.XP,
		Level:           LevelFor(record.XP),
		CompletedLevels: record.CompletedLevels,
		CompletedExams:  record.CompletedExams,
	}
	if resp.CompletedLevels == nil {
		resp.CompletedLevels = []CompletedLevel{}
	}
	if resp.CompletedExams == nil {
		resp.CompletedExams = []string{}
	}
	if next, ok := XPForNextLevel(record.XP); ok {
		resp.NextLevelXP = &next
	}
	if !record.LastUpdated.IsZero() {
		lastUpdated := record.LastUpdated
		resp.LastUpdated = &lastUpdated
	}
	return resp
}

// ErrorResponse is the wire representation of a failed request
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
