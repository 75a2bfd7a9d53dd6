// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-mail-dispatch/internal/domain"
)

// RecordsStats returns aggregate metadata for a user's send records: the
// total number of rows and the latest SentAt among them. SentAt is rewritten
// on finalize, so a status change also moves the returned timestamp.
//
// When the user has no records, the returned count is 0 and maxSentAt is nil.
func RecordsStats(ctx context.Context, db *gorm.DB, userID string) (count int64, maxSentAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.SendRecord{}).Where("user_id = ?", userID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Latest sent_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		SentAt time.Time
	}
	if err = db.WithContext(ctx).Model(&domain.SendRecord{}).
		Where("user_id = ?", userID).
		Select("sent_at").Order("sent_at DESC").Limit(1).
		Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.SentAt, nil
}
