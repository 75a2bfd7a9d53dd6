// Package services – HistoryService
//
// HistoryService is the read side of the ledger: it lists a user's send
// records newest first, optionally one page at a time. It never creates
// users; an unknown email is reported as ErrUserNotFound.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-mail-dispatch/internal/domain"
	"github.com/tbourn/go-mail-dispatch/internal/repo"
	"github.com/tbourn/go-mail-dispatch/internal/utils"
)

// HistoryService reads send records.
type HistoryService struct {
	DB *gorm.DB
}

// NewHistoryService constructs a HistoryService.
func NewHistoryService(db *gorm.DB) *HistoryService {
	return &HistoryService{DB: db}
}

// ListForUser returns every record of userID, newest first.
func (s *HistoryService) ListForUser(ctx context.Context, userID string) ([]domain.SendRecord, error) {
	recs, err := repo.ListRecordsByUser(ctx, s.DB, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list records: %v", ErrStorage, err)
	}
	return recs, nil
}

// Lookup returns the user behind email without creating one.
func (s *HistoryService) Lookup(ctx context.Context, email string) (*domain.User, error) {
	u, err := repo.GetUserByEmail(ctx, s.DB, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: lookup user: %v", ErrStorage, err)
	}
	return u, nil
}

// ListForEmail returns the user behind email, one page of their records and
// the total record count. page is 1-based; pageSize <= 0 returns all records.
func (s *HistoryService) ListForEmail(ctx context.Context, email string, page, pageSize int) (*domain.User, []domain.SendRecord, int64, error) {
	u, err := s.Lookup(ctx, email)
	if err != nil {
		return nil, nil, 0, err
	}
	recs, total, err := s.ListPage(ctx, u.ID, page, pageSize)
	if err != nil {
		return nil, nil, 0, err
	}
	return u, recs, total, nil
}

// ListPage returns one page of a user's records, newest first, and the
// total count. pageSize <= 0 returns every record.
func (s *HistoryService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.SendRecord, int64, error) {
	ctx, span := otel.Tracer("services/HistoryService").Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if pageSize <= 0 {
		recs, err := s.ListForUser(ctx, userID)
		if err != nil {
			span.RecordError(err)
			return nil, 0, err
		}
		return recs, int64(len(recs)), nil
	}

	total, err := repo.CountRecordsByUser(ctx, s.DB, userID)
	if err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("%w: count records: %v", ErrStorage, err)
	}
	if total == 0 {
		return []domain.SendRecord{}, 0, nil
	}
	recs, err := repo.ListRecordsByUserPage(ctx, s.DB, userID, utils.Offset(page, pageSize), pageSize)
	if err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("%w: list records: %v", ErrStorage, err)
	}
	return recs, total, nil
}

// Stats returns the record count and the newest sent_at of a user. Handlers
// derive cache validators from it.
func (s *HistoryService) Stats(ctx context.Context, userID string) (int64, *time.Time, error) {
	n, last, err := repo.RecordsStats(ctx, s.DB, userID)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: record stats: %v", ErrStorage, err)
	}
	return n, last, nil
}
