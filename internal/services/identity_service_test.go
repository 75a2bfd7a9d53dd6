package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-mail-dispatch/internal/domain"
	"github.com/tbourn/go-mail-dispatch/internal/repo"
)

// ----- Test helpers -----

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// userRepoFuncs adapts the repo package functions to UserRepo.
type userRepoFuncs struct{}

func (userRepoFuncs) GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	return repo.GetUserByEmail(ctx, db, email)
}

func (userRepoFuncs) CreateUser(ctx context.Context, db *gorm.DB, email, name, picture string) (*domain.User, error) {
	return repo.CreateUser(ctx, db, email, name, picture)
}

func (userRepoFuncs) UpdateUserProfile(ctx context.Context, db *gorm.DB, id, name, picture string, at time.Time) error {
	return repo.UpdateUserProfile(ctx, db, id, name, picture, at)
}

// ----- Fake repo -----

type fakeUserRepo struct {
	getCalls int
	getUsers []*domain.User // returned in order, one per call
	getErrs  []error

	createEmail, createName, createPicture string
	createUser                             *domain.User
	createErr                              error

	updateID, updateName, updatePicture string
	updateCalls                         int
	updateErr                           error
}

func (r *fakeUserRepo) GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	i := r.getCalls
	r.getCalls++
	var u *domain.User
	var err error
	if i < len(r.getUsers) {
		u = r.getUsers[i]
	}
	if i < len(r.getErrs) {
		err = r.getErrs[i]
	}
	return u, err
}

func (r *fakeUserRepo) CreateUser(ctx context.Context, db *gorm.DB, email, name, picture string) (*domain.User, error) {
	r.createEmail, r.createName, r.createPicture = email, name, picture
	if r.createErr != nil {
		return nil, r.createErr
	}
	if r.createUser != nil {
		return r.createUser, nil
	}
	return &domain.User{ID: "u-new", Email: email, Name: name, Picture: picture}, nil
}

func (r *fakeUserRepo) UpdateUserProfile(ctx context.Context, db *gorm.DB, id, name, picture string, at time.Time) error {
	r.updateCalls++
	r.updateID, r.updateName, r.updatePicture = id, name, picture
	return r.updateErr
}

// ----- Tests -----

func TestIdentityResolve_NewUser_DefaultsNameToLocalPart(t *testing.T) {
	r := &fakeUserRepo{getErrs: []error{repo.ErrNotFound}}
	s := NewIdentityService(nil, r)

	u, err := s.Resolve(context.Background(), "  alice@example.com ", "", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r.createEmail != "alice@example.com" || r.createName != "alice" {
		t.Fatalf("create args: email=%q name=%q", r.createEmail, r.createName)
	}
	if u.ID != "u-new" || r.updateCalls != 0 {
		t.Fatalf("unexpected result %+v (updates=%d)", u, r.updateCalls)
	}
}

func TestIdentityResolve_Existing_KeepsStoredFieldsWhenEmpty(t *testing.T) {
	stored := &domain.User{ID: "u1", Email: "a@x.com", Name: "Alice", Picture: "p1"}
	r := &fakeUserRepo{getUsers: []*domain.User{stored}}
	s := NewIdentityService(nil, r)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	u, err := s.Resolve(context.Background(), "a@x.com", "", "p2")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r.updateID != "u1" || r.updateName != "Alice" || r.updatePicture != "p2" {
		t.Fatalf("update args: %q %q %q", r.updateID, r.updateName, r.updatePicture)
	}
	if u.Name != "Alice" || u.Picture != "p2" || !u.UpdatedAt.Equal(fixed) {
		t.Fatalf("merged user = %+v", u)
	}
}

func TestIdentityResolve_DuplicateRace_RereadsWinner(t *testing.T) {
	winner := &domain.User{ID: "u-winner", Email: "a@x.com", Name: "A"}
	r := &fakeUserRepo{
		getUsers:  []*domain.User{nil, winner},
		getErrs:   []error{repo.ErrNotFound, nil},
		createErr: repo.ErrDuplicate,
	}
	s := NewIdentityService(nil, r)

	u, err := s.Resolve(context.Background(), "a@x.com", "Alice", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if u.ID != "u-winner" || u.Name != "Alice" || r.getCalls != 2 || r.updateCalls != 1 {
		t.Fatalf("u=%+v gets=%d updates=%d", u, r.getCalls, r.updateCalls)
	}
}

func TestIdentityResolve_StorageErrors(t *testing.T) {
	boom := errors.New("boom")
	cases := map[string]*fakeUserRepo{
		"lookup": {getErrs: []error{boom}},
		"create": {getErrs: []error{repo.ErrNotFound}, createErr: boom},
		"update": {getUsers: []*domain.User{{ID: "u1"}}, updateErr: boom},
		"reread": {getErrs: []error{repo.ErrNotFound, boom}, createErr: repo.ErrDuplicate},
	}
	for name, r := range cases {
		s := NewIdentityService(nil, r)
		if _, err := s.Resolve(context.Background(), "a@x.com", "", ""); !errors.Is(err, ErrStorage) {
			t.Fatalf("%s: expected ErrStorage, got %v", name, err)
		}
	}
}

func TestIdentityResolve_EmptyEmail(t *testing.T) {
	r := &fakeUserRepo{}
	s := NewIdentityService(nil, r)
	if _, err := s.Resolve(context.Background(), "   ", "n", ""); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if r.getCalls != 0 {
		t.Fatalf("store should not be touched")
	}
}

func TestIdentityResolve_SQLite_StableIDAndLatestProfile(t *testing.T) {
	db := newTestDB(t)
	s := NewIdentityService(db, userRepoFuncs{})
	ctx := context.Background()

	first, err := s.Resolve(ctx, "bob@example.com", "Bob", "pic-1")
	if err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	second, err := s.Resolve(ctx, "bob@example.com", "Robert", "pic-2")
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("id changed across resolutions: %s vs %s", first.ID, second.ID)
	}

	var n int64
	db.Model(&domain.User{}).Where("email = ?", "bob@example.com").Count(&n)
	if n != 1 {
		t.Fatalf("expected exactly one user row, got %d", n)
	}
	got, _ := repo.GetUserByEmail(ctx, db, "bob@example.com")
	if got.Name != "Robert" || got.Picture != "pic-2" {
		t.Fatalf("stored profile not refreshed: %+v", got)
	}
}

func TestLocalPart(t *testing.T) {
	cases := map[string]string{
		"a@x.com":     "a",
		"a.b@c@d.com": "a.b@c",
		"nodomain":    "nodomain",
		"@x.com":      "@x.com",
	}
	for in, want := range cases {
		if got := localPart(in); got != want {
			t.Fatalf("localPart(%q) = %q, want %q", in, got, want)
		}
	}
}
