// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the per-user daily quota counter used
// to reserve send slots atomically.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-mail-dispatch/internal/domain"
)

// SeedDailyQuota makes sure a counter row exists for (userID, day). A new
// row starts at the number of records already stored for that day; an
// existing row is left untouched. Being a write, it takes the database write
// lock on SQLite before any read happens inside the surrounding transaction.
func SeedDailyQuota(ctx context.Context, tx *gorm.DB, userID, day string, at time.Time) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO daily_quotas (user_id, day, used, updated_at)
		 SELECT ?, ?, COUNT(*), ? FROM send_records WHERE user_id = ? AND day = ?
		 ON CONFLICT (user_id, day) DO NOTHING`,
		userID, day, at, userID, day,
	).Error
}

// IncrementDailyQuota bumps the counter by one only while it is below limit.
// It reports false when the limit has already been reached.
func IncrementDailyQuota(ctx context.Context, tx *gorm.DB, userID, day string, limit int, at time.Time) (bool, error) {
	res := tx.WithContext(ctx).
		Model(&domain.DailyQuota{}).
		Where("user_id = ? AND day = ? AND used < ?", userID, day, limit).
		Updates(map[string]any{
			"used":       gorm.Expr("used + 1"),
			"updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// GetDailyQuota returns the counter row for (userID, day), or ErrNotFound.
func GetDailyQuota(ctx context.Context, db *gorm.DB, userID, day string) (*domain.DailyQuota, error) {
	var q domain.DailyQuota
	if err := db.WithContext(ctx).Where("user_id = ? AND day = ?", userID, day).First(&q).Error; err != nil {
		return nil, err
	}
	return &q, nil
}
