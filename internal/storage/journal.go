package storage

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/model"
)

const (
	// DefaultRecentActivityLimit bounds Recent when callers pass a non-positive limit.
	DefaultRecentActivityLimit = 50
	maximumRecentActivityLimit = 500
)

var ErrMissingJournalDatabase = errors.New("storage: missing journal database")

// ActivityJournal logs every console operation outcome and persists it for later review.
type ActivityJournal struct {
	database *gorm.DB
	logger   *zap.Logger
}

// NewActivityJournal constructs an ActivityJournal backed by database.
func NewActivityJournal(database *gorm.DB, logger *zap.Logger) (*ActivityJournal, error) {
	if database == nil {
		return nil, ErrMissingJournalDatabase
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityJournal{database: database, logger: logger}, nil
}

// Record logs the activity and stores it. Storage failures are logged and never surface to callers.
func (journal *ActivityJournal) Record(ctx context.Context, input model.ActivityInput) {
	entry, entryErr := model.NewActivityEntry(input)
	if entryErr != nil {
		journal.logger.Warn("activity_invalid", zap.String("action", input.Action), zap.Error(entryErr))
		return
	}

	fields := []zap.Field{
		zap.String("action", entry.Action),
		zap.String("target", entry.Target),
		zap.String("actor", entry.Actor),
		zap.String("outcome", entry.Outcome),
	}
	if entry.Detail != "" {
		fields = append(fields, zap.String("detail", entry.Detail))
	}
	if entry.Outcome == model.ActivityOutcomeFailed {
		journal.logger.Warn("activity_recorded", fields...)
	} else {
		journal.logger.Info("activity_recorded", fields...)
	}

	if createErr := journal.database.WithContext(ctx).Create(&entry).Error; createErr != nil {
		journal.logger.Error("activity_persist_failed", zap.String("action", entry.Action), zap.Error(createErr))
	}
}

// Recent returns the newest entries first.
func (journal *ActivityJournal) Recent(ctx context.Context, limit int) ([]model.ActivityEntry, error) {
	if limit <= 0 {
		limit = DefaultRecentActivityLimit
	}
	if limit > maximumRecentActivityLimit {
		limit = maximumRecentActivityLimit
	}
	var entries []model.ActivityEntry
	queryErr := journal.database.WithContext(ctx).
		Order("occurred_at DESC").
		Limit(limit).
		Find(&entries).Error
	if queryErr != nil {
		return nil, queryErr
	}
	return entries, nil
}

// Prune deletes entries that occurred before cutoff and reports how many were removed.
func (journal *ActivityJournal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result := journal.database.WithContext(ctx).
		Where("occurred_at < ?", cutoff).
		Delete(&model.ActivityEntry{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
