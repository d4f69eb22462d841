package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/finquiz/backend/internal/models"
	"go.uber.org/zap"
)

// ProgressRepository is the interface that wraps methods for user progress data access
type ProgressRepository interface {
	// Method GetByUserKey retrieve the progress record of a user.
	//
	// For a user without stored progress the default record (xp 0, level 1, empty sets) is returned and nothing is persisted.
	// Storage failures are returned wrapping models.ErrStorageUnavailable together with "nil" value.
	GetByUserKey(ctx context.Context, userKey string) (*models.ProgressRecord, error)
	// Method Update run a read-merge-write cycle for a user.
	//
	// "fn" receives the current record while it is locked against concurrent updates of the same user and returns the next one.
	// The next record is persisted atomically, an error returned by "fn" aborts the update and is returned unchanged.
	Update(ctx context.Context, userKey string, fn models.ProgressUpdateFunc) (*models.ProgressRecord, error)
}

type progressService struct {
	repo    ProgressRepository
	locks   *keyedMutex
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewProgressService creates a new progress service.
//
// "timeout" bounds every storage call including the wait for the per-user lock.
func NewProgressService(repo ProgressRepository, timeout time.Duration, logger *zap.Logger) *progressService {
	return &progressService{
		repo:    repo,
		locks:   newKeyedMutex(),
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger,
	}
}

// GetProgress returns the current progress of a user
func (s *progressService) GetProgress(ctx context.Context, userKey string) (*models.ProgressRecord, error) {
	if err := validateUserKey(userKey); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	record, err := s.repo.GetByUserKey(ctx, userKey)
	if err != nil {
		s.logger.Error("failed to get progress", zap.Error(err), zap.String("user_key", userKey))
		return nil, s.translateError("failed to get progress", err)
	}
	record.Level = models.LevelFor(record.XP)

	return record, nil
}

// SyncProgress merges a client submitted update into the stored progress of a user and returns the merged record
func (s *progressService) SyncProgress(ctx context.Context, userKey string, req models.ProgressSyncRequest) (*models.ProgressRecord, error) {
	if err := validateUserKey(userKey); err != nil {
		return nil, err
	}
	update, err := toPartialUpdate(req)
	if err != nil {
		return nil, err
	}

	return s.update(ctx, userKey, "sync", func(current models.ProgressRecord) (models.ProgressRecord, error) {
		return MergeProgress(current, update, s.now()), nil
	})
}

// ApplyPenalty lowers the XP of a user by the requested delta, never below zero
func (s *progressService) ApplyPenalty(ctx context.Context, userKey string, req models.PenaltyRequest) (*models.ProgressRecord, error) {
	if err := validateUserKey(userKey); err != nil {
		return nil, err
	}
	if err := validateDelta(req.Delta); err != nil {
		return nil, err
	}
	delta := *req.Delta

	return s.update(ctx, userKey, "penalty", func(current models.ProgressRecord) (models.ProgressRecord, error) {
		return ApplyPenalty(current, delta, s.now()), nil
	})
}

// ResetProgress overwrites the progress of a user with the default record
func (s *progressService) ResetProgress(ctx context.Context, userKey string) (*models.ProgressRecord, error) {
	if err := validateUserKey(userKey); err != nil {
		return nil, err
	}

	return s.update(ctx, userKey, "reset", func(current models.ProgressRecord) (models.ProgressRecord, error) {
		return ResetProgress(userKey, s.now()), nil
	})
}

// update serializes writes of the same user in process and runs fn through the repository
func (s *progressService) update(ctx context.Context, userKey, operation string, fn models.ProgressUpdateFunc) (*models.ProgressRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	unlock, err := s.locks.Lock(ctx, userKey)
	if err != nil {
		s.logger.Warn("timed out waiting for progress lock", zap.Error(err), zap.String("user_key", userKey))
		return nil, s.translateError("failed to acquire progress lock", err)
	}
	defer unlock()

	record, err := s.repo.Update(ctx, userKey, fn)
	if err != nil {
		s.logger.Error("failed to update progress",
			zap.Error(err),
			zap.String("user_key", userKey),
			zap.String("operation", operation),
		)
		return nil, s.translateError("failed to update progress", err)
	}
	record.Level = models.LevelFor(record.XP)

	s.logger.Info("progress updated",
		zap.String("user_key", userKey),
		zap.String("operation", operation),
		zap.Int("xp", record.XP),
		zap.Int("level", record.Level),
		zap.Int("completed_levels", len(record.CompletedLevels)),
		zap.Int("completed_exams", len(record.CompletedExams)),
	)

	return record, nil
}

// translateError maps context expiry onto the storage taxonomy and adds a message to every error
func (s *progressService) translateError(message string, err error) error {
	if !errors.Is(err, models.ErrStorageUnavailable) &&
		(errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		return fmt.Errorf("%s: %w: %w", message, models.ErrStorageUnavailable, err)
	}
	return fmt.Errorf("%s: %w", message, err)
}
