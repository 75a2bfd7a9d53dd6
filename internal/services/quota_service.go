// Package services – QuotaService
//
// QuotaService answers "how many sends has this user made today" and owns
// the atomic reservation of a send slot. The day is the calendar date in
// the configured quota location (the server's local zone by default).
//
// Counting is never cached: every call reads the store. Reservation goes
// through the per-user, per-day counter row so that concurrent dispatches
// cannot push the accepted count past the limit.
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
)

// QuotaService counts and reserves daily sends.
type QuotaService struct {
	DB *gorm.DB
	// Limit is the configured daily cap; zero or less disables the gate.
	Limit int
	// Location defines the calendar day; nil means time.Local.
	Location *time.Location

	now func() time.Time
}

// QuotaSummary describes a user's usage for the current day.
type QuotaSummary struct {
	Day       string
	Count     int
	Limit     int
	Remaining int // -1 when no limit is configured
	Records   []domain.SendRecord
}

// NewQuotaService constructs a QuotaService for the given limit and day location.
func NewQuotaService(db *gorm.DB, limit int, loc *time.Location) *QuotaService {
	return &QuotaService{DB: db, Limit: limit, Location: loc, now: time.Now}
}

// Now returns the current instant from the service clock.
func (s *QuotaService) Now() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

// Today returns the current quota day key (YYYY-MM-DD).
func (s *QuotaService) Today() string {
	return domain.DayKey(s.Now(), s.Location)
}

// CountToday returns how many records the user created today, whatever
// their status.
func (s *QuotaService) CountToday(ctx context.Context, userID string) (int, error) {
	ctx, span := otel.Tracer("services/QuotaService").Start(ctx, "CountToday",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	n, err := repo.CountRecordsByDay(ctx, s.DB, userID, s.Today())
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("%w: count records: %v", ErrStorage, err)
	}
	return int(n), nil
}

// Reserve takes one send slot for the user on day, inside tx. It returns
// the count including the new slot, or ErrQuotaExceeded when the user
// already holds limit slots. The caller must insert the matching record in
// the same transaction.
func (s *QuotaService) Reserve(ctx context.Context, tx *gorm.DB, userID, day string, limit int) (int, error) {
	at := s.Now().UTC()
	if err := repo.SeedDailyQuota(ctx, tx, userID, day, at); err != nil {
		return 0, fmt.Errorf("%w: seed quota: %v", ErrStorage, err)
	}
	ok, err := repo.IncrementDailyQuota(ctx, tx, userID, day, limit, at)
	if err != nil {
		return 0, fmt.Errorf("%w: reserve quota: %v", ErrStorage, err)
	}
	if !ok {
		return 0, ErrQuotaExceeded
	}
	q, err := repo.GetDailyQuota(ctx, tx, userID, day)
	if err != nil {
		return 0, fmt.Errorf("%w: read quota: %v", ErrStorage, err)
	}
	return q.Used, nil
}

// Summary reports today's usage for the user identified by email.
func (s *QuotaService) Summary(ctx context.Context, email string) (*QuotaSummary, error) {
	ctx, span := otel.Tracer("services/QuotaService").Start(ctx, "Summary")
	defer span.End()

	u, err := repo.GetUserByEmail(ctx, s.DB, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: lookup user: %v", ErrStorage, err)
	}

	day := s.Today()
	recs, err := repo.ListRecordsByDay(ctx, s.DB, u.ID, day)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: list records: %v", ErrStorage, err)
	}

	sum := &QuotaSummary{Day: day, Count: len(recs), Limit: s.Limit, Records: recs, Remaining: -1}
	if s.Limit > 0 {
		sum.Remaining = max(s.Limit-sum.Count, 0)
	}
	return sum, nil
}
