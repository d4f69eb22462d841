package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/finquiz/backend/internal/database"
	"github.com/finquiz/backend/internal/models"
	"go.uber.org/zap"
)

type progressRepository struct {
	db      *sql.DB
	dialect database.Dialect
	logger  *zap.Logger
}

// NewProgressRepository creates a new progress repository for the given SQL dialect
func NewProgressRepository(db *sql.DB, dialect database.Dialect, logger *zap.Logger) *progressRepository {
	return &progressRepository{
		db:      db,
		dialect: dialect,
		logger:  logger,
	}
}

// storageError wraps a driver failure into the storage unavailable taxonomy error
func storageError(message string, err error) error {
	return fmt.Errorf("%s: %w: %w", message, models.ErrStorageUnavailable, err)
}

// GetByUserKey retrieves the progress record of a user.
//
// For a user without stored progress the default record is returned and nothing is persisted.
func (r *progressRepository) GetByUserKey(ctx context.Context, userKey string) (*models.ProgressRecord, error) {
	record := models.NewProgressRecord(userKey)

	// The row and its completed sets are read in one transaction so a concurrent commit cannot split them
	tx, err := r.db.BeginTx(ctx, r.dialect.ReadTxOptions())
	if err != nil {
		r.logger.Error("failed to begin read transaction", zap.Error(err))
		return nil, storageError("failed to begin read transaction", err)
	}
	defer tx.Rollback()

	query := `SELECT xp, updated_at FROM user_progress WHERE user_key = ?`
	err = tx.QueryRowContext(ctx, query, userKey).Scan(&record.XP, &record.LastUpdated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &record, nil
		}
		r.logger.Error("failed to query progress", zap.Error(err), zap.String("user_key", userKey))
		return nil, storageError("failed to query progress", err)
	}

	if err := r.loadCompleted(ctx, tx, &record); err != nil {
		return nil, err
	}
	record.Level = models.LevelFor(record.XP)

	if err := tx.Commit(); err != nil {
		r.logger.Error("failed to commit read transaction", zap.Error(err), zap.String("user_key", userKey))
		return nil, storageError("failed to commit read transaction", err)
	}

	return &record, nil
}

// Update runs a read-merge-write cycle for a user inside a single transaction.
//
// The user row is created when missing and write-locked before "fn" sees it, so concurrent updates
// of the same user are applied one after another. "fn" errors are returned unchanged and roll back the transaction.
func (r *progressRepository) Update(ctx context.Context, userKey string, fn models.ProgressUpdateFunc) (*models.ProgressRecord, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.logger.Error("failed to begin transaction", zap.Error(err))
		return nil, storageError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	current, err := r.lockRecord(ctx, tx, userKey)
	if err != nil {
		return nil, err
	}

	next, err := fn(*current)
	if err != nil {
		return nil, err
	}
	next.UserKey = userKey
	next.Level = models.LevelFor(next.XP)
	if next.LastUpdated.IsZero() {
		next.LastUpdated = time.Now().UTC()
	}

	updateQuery := `UPDATE user_progress SET xp = ?, level = ?, updated_at = ? WHERE user_key = ?`
	if _, err := tx.ExecContext(ctx, updateQuery, next.XP, next.Level, next.LastUpdated.UTC(), userKey); err != nil {
		r.logger.Error("failed to update progress", zap.Error(err), zap.String("user_key", userKey))
		return nil, storageError("failed to update progress", err)
	}

	if err := r.saveCompletedLevels(ctx, tx, userKey, current.CompletedLevels, next.CompletedLevels); err != nil {
		return nil, err
	}
	if err := r.saveCompletedExams(ctx, tx, userKey, current.CompletedExams, next.CompletedExams, next.LastUpdated); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error("failed to commit progress", zap.Error(err), zap.String("user_key", userKey))
		return nil, storageError("failed to commit transaction", err)
	}

	return &next, nil
}

// Ping checks that the database is reachable
func (r *progressRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return storageError("failed to ping database", err)
	}
	return nil
}

// lockRecord loads the record of a user with its row write-locked, creating the row first when it does not exist.
//
// The row is always written before it is selected, so the first lock taken on it is exclusive.
func (r *progressRepository) lockRecord(ctx context.Context, tx *sql.Tx, userKey string) (*models.ProgressRecord, error) {
	record := models.NewProgressRecord(userKey)

	now := time.Now().UTC()
	prefix, suffix := r.dialect.InsertOrLock("user_key")
	insertQuery := prefix + ` INTO user_progress (user_key, xp, level, created_at, updated_at) VALUES (?, 0, 1, ?, ?)` + suffix
	if _, err := tx.ExecContext(ctx, insertQuery, userKey, now, now); err != nil {
		r.logger.Error("failed to create progress", zap.Error(err), zap.String("user_key", userKey))
		return nil, storageError("failed to create progress", err)
	}

	lockQuery := `SELECT xp, updated_at FROM user_progress WHERE user_key = ?` + r.dialect.LockClause()
	if err := tx.QueryRowContext(ctx, lockQuery, userKey).Scan(&record.XP, &record.LastUpdated); err != nil {
		r.logger.Error("failed to lock progress", zap.Error(err), zap.String("user_key", userKey))
		return nil, storageError("failed to lock progress", err)
	}

	if err := r.loadCompleted(ctx, tx, &record); err != nil {
		return nil, err
	}
	record.Level = models.LevelFor(record.XP)

	return &record, nil
}

// loadCompleted fills the completed levels and exams of a record
func (r *progressRepository) loadCompleted(ctx context.Context, tx *sql.Tx, record *models.ProgressRecord) error {
	levelsQuery := `
		SELECT topic_id, sub_level_id, completed_at
		FROM completed_levels
		WHERE user_key = ?
		ORDER BY topic_id, sub_level_id
	`
	rows, err := tx.QueryContext(ctx, levelsQuery, record.UserKey)
	if err != nil {
		r.logger.Error("failed to query completed levels", zap.Error(err))
		return storageError("failed to query completed levels", err)
	}
	defer rows.Close()

	for rows.Next() {
		var level models.CompletedLevel
		if err := rows.Scan(&level.TopicID, &level.SubLevelID, &level.CompletedAt); err != nil {
			r.logger.Error("failed to scan completed level", zap.Error(err))
			return storageError("failed to scan completed level", err)
		}
		record.CompletedLevels = append(record.CompletedLevels, level)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("error iterating completed levels", zap.Error(err))
		return storageError("error iterating completed levels", err)
	}

	examsQuery := `
		SELECT exam_key
		FROM completed_exams
		WHERE user_key = ?
		ORDER BY exam_key
	`
	examRows, err := tx.QueryContext(ctx, examsQuery, record.UserKey)
	if err != nil {
		r.logger.Error("failed to query completed exams", zap.Error(err))
		return storageError("failed to query completed exams", err)
	}
	defer examRows.Close()

	for examRows.Next() {
		var exam string
		if err := examRows.Scan(&exam); err != nil {
			r.logger.Error("failed to scan completed exam", zap.Error(err))
			return storageError("failed to scan completed exam", err)
		}
		record.CompletedExams = append(record.CompletedExams, exam)
	}
	if err := examRows.Err(); err != nil {
		r.logger.Error("error iterating completed exams", zap.Error(err))
		return storageError("error iterating completed exams", err)
	}

	return nil
}

// saveCompletedLevels writes the difference between the stored and the next set of completed levels.
// Entries are only ever added by merges, a removal (reset) clears the whole set before re-inserting.
func (r *progressRepository) saveCompletedLevels(ctx context.Context, tx *sql.Tx, userKey string, current, next []models.CompletedLevel) error {
	nextKeys := make(map[string]struct{}, len(next))
	for _, level := range next {
		nextKeys[level.Key()] = struct{}{}
	}
	currentKeys := make(map[string]struct{}, len(current))
	removed := false
	for _, level := range current {
		currentKeys[level.Key()] = struct{}{}
		if _, ok := nextKeys[level.Key()]; !ok {
			removed = true
		}
	}

	toInsert := make([]models.CompletedLevel, 0, len(next))
	if removed {
		if _, err := tx.ExecContext(ctx, `DELETE FROM completed_levels WHERE user_key = ?`, userKey); err != nil {
			r.logger.Error("failed to clear completed levels", zap.Error(err), zap.String("user_key", userKey))
			return storageError("failed to clear completed levels", err)
		}
		toInsert = append(toInsert, next...)
	} else {
		for _, level := range next {
			if _, ok := currentKeys[level.Key()]; !ok {
				toInsert = append(toInsert, level)
			}
		}
	}
	if len(toInsert) == 0 {
		return nil
	}

	// Placeholders are transformed into "(?, ?, ?, ?), (?, ?, ?, ?)" string for a single batch insert
	placeholders := make([]string, len(toInsert))
	args := make([]any, 0, len(toInsert)*4)
	for i, level := range toInsert {
		placeholders[i] = "(?, ?, ?, ?)"
		args = append(args, userKey, level.TopicID, level.SubLevelID, level.CompletedAt.UTC())
	}
	query := fmt.Sprintf(`%s INTO completed_levels (user_key, topic_id, sub_level_id, completed_at) VALUES %s`,
		r.dialect.InsertIgnore(), strings.Join(placeholders, ", "))

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("failed to insert completed levels", zap.Error(err), zap.String("user_key", userKey))
		return storageError("failed to insert completed levels", err)
	}

	return nil
}

// saveCompletedExams writes the difference between the stored and the next set of completed exams
func (r *progressRepository) saveCompletedExams(ctx context.Context, tx *sql.Tx, userKey string, current, next []string, completedAt time.Time) error {
	nextKeys := make(map[string]struct{}, len(next))
	for _, exam := range next {
		nextKeys[exam] = struct{}{}
	}
	currentKeys := make(map[string]struct{}, len(current))
	removed := false
	for _, exam := range current {
		currentKeys[exam] = struct{}{}
		if _, ok := nextKeys[exam]; !ok {
			removed = true
		}
	}

	toInsert := make([]string, 0, len(next))
	if removed {
		if _, err := tx.ExecContext(ctx, `DELETE FROM completed_exams WHERE user_key = ?`, userKey); err != nil {
			r.logger.Error("failed to clear completed exams", zap.Error(err), zap.String("user_key", userKey))
			return storageError("failed to clear completed exams", err)
		}
		toInsert = append(toInsert, next...)
	} else {
		for _, exam := range next {
			if _, ok := currentKeys[exam]; !ok {
				toInsert = append(toInsert, exam)
			}
		}
	}
	if len(toInsert) == 0 {
		return nil
	}

	placeholders := make([]string, len(toInsert))
	args := make([]any, 0, len(toInsert)*3)
	for i, exam := range toInsert {
		placeholders[i] = "(?, ?, ?)"
		args = append(args, userKey, exam, completedAt.UTC())
	}
	query := fmt.Sprintf(`%s INTO completed_exams (user_key, exam_key, completed_at) VALUES %s`,
		r.dialect.InsertIgnore(), strings.Join(placeholders, ", "))

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("failed to insert completed exams", zap.Error(err), zap.String("user_key", userKey))
		return storageError("failed to insert completed exams", err)
	}

	return nil
}
