// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the Idempotency
// model used to implement safe-retry semantics for POST endpoints.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-mail-dispatch/internal/domain"
)

// GetIdempotency returns a non-expired record or ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, owner, scope, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(owner) == "" || strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("owner = ? AND scope = ? AND key = ? AND expires_at > ?", owner, scope, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateIdempotency inserts a record and returns ErrDuplicate on unique violation.
// Expired rows holding the same key are removed first so the key can be reused.
func CreateIdempotency(ctx context.Context, db *gorm.DB, owner, scope, key, recordID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	if err := db.WithContext(ctx).
		Where("owner = ? AND scope = ? AND key = ? AND expires_at <= ?", owner, scope, key, now).
		Delete(&domain.Idempotency{}).Error; err != nil {
		return nil, err
	}
	rec := &domain.Idempotency{
		ID:        uuid.NewString(),
		Owner:     owner,
		Scope:     scope,
		Key:       key,
		RecordID:  recordID,
		Status:    status,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// CompleteIdempotency attaches recordID to a key reserved with an empty
// record id. It returns ErrNotFound when no in-flight row matches.
func CompleteIdempotency(ctx context.Context, db *gorm.DB, owner, scope, key, recordID string, status int) error {
	res := db.WithContext(ctx).
		Model(&domain.Idempotency{}).
		Where("owner = ? AND scope = ? AND key = ? AND record_id = ''", owner, scope, key).
		Updates(map[string]any{"record_id": recordID, "status": status})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteIdempotency removes an in-flight reservation so the key can be retried.
// Completed rows are left untouched.
func DeleteIdempotency(ctx context.Context, db *gorm.DB, owner, scope, key string) error {
	return db.WithContext(ctx).
		Where("owner = ? AND scope = ? AND key = ? AND record_id = ''", owner, scope, key).
		Delete(&domain.Idempotency{}).Error
}
