// Package services – LedgerService
//
// LedgerService owns the send-record lifecycle: a record is written as
// pending before the provider is called and is finalized exactly once as
// sent or failed. Finalization is a guarded update, so a terminal record is
// never rewritten.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-mail-dispatch/internal/domain"
	"github.com/tbourn/go-mail-dispatch/internal/repo"
)

// LedgerService creates and finalizes send records.
type LedgerService struct {
	DB    *gorm.DB
	Quota *QuotaService
}

// NewLedgerService constructs a LedgerService that reserves slots through q.
func NewLedgerService(db *gorm.DB, q *QuotaService) *LedgerService {
	return &LedgerService{DB: db, Quota: q}
}

// CreatePending stores rec as a pending record stamped with the current
// time and quota day.
func (s *LedgerService) CreatePending(ctx context.Context, rec *domain.SendRecord) (*domain.SendRecord, error) {
	s.stamp(rec)
	if err := repo.CreateRecord(ctx, s.DB, rec); err != nil {
		return nil, fmt.Errorf("%w: create record: %v", ErrStorage, err)
	}
	return rec, nil
}

// ReservePending reserves a quota slot and stores rec as pending in one
// transaction. It returns the stored record and the user's count for the
// day including it. With limit <= 0 no slot is reserved and the count is
// read from the records table.
func (s *LedgerService) ReservePending(ctx context.Context, rec *domain.SendRecord, limit int) (*domain.SendRecord, int, error) {
	ctx, span := otel.Tracer("services/LedgerService").Start(ctx, "ReservePending",
		trace.WithAttributes(
			attribute.String("user.id", rec.UserID),
			attribute.Int("quota.limit", limit),
		),
	)
	defer span.End()

	s.stamp(rec)
	var count int
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if limit > 0 {
			n, err := s.Quota.Reserve(ctx, tx, rec.UserID, rec.Day, limit)
			if err != nil {
				return err
			}
			count = n
		}
		if err := repo.CreateRecord(ctx, tx, rec); err != nil {
			return fmt.Errorf("%w: create record: %v", ErrStorage, err)
		}
		if limit <= 0 {
			n, err := repo.CountRecordsByDay(ctx, tx, rec.UserID, rec.Day)
			if err != nil {
				return fmt.Errorf("%w: count records: %v", ErrStorage, err)
			}
			count = int(n)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrStorage) {
			return nil, 0, err
		}
		// Commit or begin failures surface from the transaction itself.
		return nil, 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	span.SetAttributes(attribute.Int("quota.count", count))
	return rec, count, nil
}

// Finalize moves a pending record to status (sent or failed). A non-empty
// providerMessageID is stored with it. Returns ErrRecordNotPending when the
// record is unknown or already terminal.
func (s *LedgerService) Finalize(ctx context.Context, id, status, providerMessageID string) error {
	if status != domain.StatusSent && status != domain.StatusFailed {
		return fmt.Errorf("finalize: invalid terminal status %q", status)
	}
	var pid *string
	if strings.TrimSpace(providerMessageID) != "" {
		pid = &providerMessageID
	}
	n, err := repo.FinalizeRecord(ctx, s.DB, id, status, pid, s.Quota.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: finalize record: %v", ErrStorage, err)
	}
	if n == 0 {
		return ErrRecordNotPending
	}
	return nil
}

func (s *LedgerService) stamp(rec *domain.SendRecord) {
	now := s.Quota.Now()
	rec.Status = domain.StatusPending
	rec.ProviderMessageID = nil
	rec.CreatedAt = now.UTC()
	rec.SentAt = rec.CreatedAt
	rec.Day = domain.DayKey(now, s.Quota.Location)
}
