// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// SendRecord model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-mail-dispatch/internal/domain"
)

// CreateRecord inserts rec, filling ID and timestamps when they are zero.
func CreateRecord(ctx context.Context, db *gorm.DB, rec *domain.SendRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.SentAt.IsZero() {
		rec.SentAt = rec.CreatedAt
	}
	return db.WithContext(ctx).Create(rec).Error
}

// GetRecord fetches a record by ID.
func GetRecord(ctx context.Context, db *gorm.DB, id string) (*domain.SendRecord, error) {
	var r domain.SendRecord
	if err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// CountRecordsByDay counts a user's records for one quota day, whatever
// their status.
func CountRecordsByDay(ctx context.Context, db *gorm.DB, userID, day string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.SendRecord{}).
		Where("user_id = ? AND day = ?", userID, day).
		Count(&total).Error
	return total, err
}

// ListRecordsByDay returns a user's records for one quota day, newest first.
func ListRecordsByDay(ctx context.Context, db *gorm.DB, userID, day string) ([]domain.SendRecord, error) {
	var out []domain.SendRecord
	err := db.WithContext(ctx).
		Where("user_id = ? AND day = ?", userID, day).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	return out, err
}

// FinalizeRecord moves a pending record to a terminal status. The update is
// guarded by status = 'pending' so a terminal record is never rewritten; the
// returned count is 0 when nothing matched.
func FinalizeRecord(ctx context.Context, db *gorm.DB, id, status string, providerMessageID *string, at time.Time) (int64, error) {
	updates := map[string]any{
		"status":  status,
		"sent_at": at,
	}
	if providerMessageID != nil {
		updates["provider_message_id"] = *providerMessageID
	}
	res := db.WithContext(ctx).
		Model(&domain.SendRecord{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// ListRecordsByUser returns all records of a user, newest first.
func ListRecordsByUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.SendRecord, error) {
	var out []domain.SendRecord
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	return out, err
}

// CountRecordsByUser returns the total number of records owned by the user.
func CountRecordsByUser(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.SendRecord{}).Where("user_id = ?", userID).Count(&total).Error
	return total, err
}

// ListRecordsByUserPage returns a paginated slice ordered newest first.
func ListRecordsByUserPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.SendRecord, error) {
	var out []domain.SendRecord
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
