// Package services – IdentityService
//
// This file implements IdentityService, which maps an authenticated email
// address to exactly one stored User. Resolution is an upsert keyed by
// email: an unknown email creates a user, a known one has its display
// fields refreshed. Concurrent first resolutions of the same email are
// settled by the unique index and a re-read of the winning row.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-mail-dispatch/internal/domain"
	"github.com/tbourn/go-mail-dispatch/internal/repo"
)

// UserRepo defines the repository contract required by IdentityService.
type UserRepo interface {
	// GetUserByEmail returns the user with the exact email, or repo.ErrNotFound.
	GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error)

	// CreateUser inserts a new user; a lost race on the email index yields repo.ErrDuplicate.
	CreateUser(ctx context.Context, db *gorm.DB, email, name, picture string) (*domain.User, error)

	// UpdateUserProfile overwrites the display fields of an existing user.
	UpdateUserProfile(ctx context.Context, db *gorm.DB, id, name, picture string, at time.Time) error
}

// IdentityService resolves requester emails to users.
type IdentityService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the user repository used by this service.
	Repo UserRepo

	now func() time.Time
}

// NewIdentityService constructs an IdentityService.
func NewIdentityService(db *gorm.DB, r UserRepo) *IdentityService {
	return &IdentityService{DB: db, Repo: r, now: time.Now}
}

// Resolve returns the user for email, creating it on first sight.
//
// For an existing user, non-empty name and picture replace the stored ones
// and updated_at is bumped; empty values keep what is stored. A new user
// without a name is named after the local part of the email. Store errors
// are wrapped in ErrStorage.
func (s *IdentityService) Resolve(ctx context.Context, email, name, picture string) (*domain.User, error) {
	ctx, span := otel.Tracer("services/IdentityService").Start(ctx, "Resolve",
		trace.WithAttributes(attribute.String("user.email", email)),
	)
	defer span.End()

	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrUnauthenticated
	}
	name = strings.TrimSpace(name)
	picture = strings.TrimSpace(picture)

	u, err := s.Repo.GetUserByEmail(ctx, s.DB, email)
	switch {
	case err == nil:
		return s.refresh(ctx, span, u, name, picture)
	case !errors.Is(err, repo.ErrNotFound):
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		return nil, fmt.Errorf("%w: lookup user: %v", ErrStorage, err)
	}

	if name == "" {
		name = localPart(email)
	}
	u, err = s.Repo.CreateUser(ctx, s.DB, email, name, picture)
	if err == nil {
		span.SetAttributes(attribute.Bool("user.created", true))
		return u, nil
	}
	if !errors.Is(err, repo.ErrDuplicate) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return nil, fmt.Errorf("%w: create user: %v", ErrStorage, err)
	}

	// Another request inserted the same email first.
	u, err = s.Repo.GetUserByEmail(ctx, s.DB, email)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: reread user: %v", ErrStorage, err)
	}
	return s.refresh(ctx, span, u, name, picture)
}

func (s *IdentityService) refresh(ctx context.Context, span trace.Span, u *domain.User, name, picture string) (*domain.User, error) {
	if name == "" {
		name = u.Name
	}
	if picture == "" {
		picture = u.Picture
	}
	at := s.clock().UTC()
	if err := s.Repo.UpdateUserProfile(ctx, s.DB, u.ID, name, picture, at); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return nil, fmt.Errorf("%w: update user: %v", ErrStorage, err)
	}
	u.Name, u.Picture, u.UpdatedAt = name, picture, at
	return u, nil
}

func (s *IdentityService) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

// localPart returns the part of an address before the last '@'.
func localPart(email string) string {
	if i := strings.LastIndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}
