// Package httpapi wires the HTTP transport (Gin) to the mail dispatch
// services, middleware and handlers. It centralizes cross-cutting concerns:
// tracing, correlation IDs, redacted access logs, panic recovery, error
// reporting, compression, metrics, identity, idempotency, rate limiting, CORS
// and security headers.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-mail-dispatch/docs"
	"github.com/tbourn/go-mail-dispatch/internal/config"
	"github.com/tbourn/go-mail-dispatch/internal/domain"
	"github.com/tbourn/go-mail-dispatch/internal/http/handlers"
	"github.com/tbourn/go-mail-dispatch/internal/http/middleware"
	"github.com/tbourn/go-mail-dispatch/internal/mailer"
	"github.com/tbourn/go-mail-dispatch/internal/repo"
	"github.com/tbourn/go-mail-dispatch/internal/services"
)

// maxBodyBytes caps request bodies; HTML content is the largest field.
const maxBodyBytes = 1 << 20

// Deps are the collaborators built by main that the router cannot derive
// from config alone.
type Deps struct {
	// Provider delivers messages. Required.
	Provider mailer.Provider
	// Verifier checks identity tokens. Nil runs in development mode.
	Verifier middleware.TokenVerifier
}

// userRepoShim adapts the repo free functions to services.UserRepo.
type userRepoShim struct{}

func (userRepoShim) GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	return repo.GetUserByEmail(ctx, db, email)
}

func (userRepoShim) CreateUser(ctx context.Context, db *gorm.DB, email, name, picture string) (*domain.User, error) {
	return repo.CreateUser(ctx, db, email, name, picture)
}

func (userRepoShim) UpdateUserProfile(ctx context.Context, db *gorm.DB, id, name, picture string, at time.Time) error {
	return repo.UpdateUserProfile(ctx, db, id, name, picture, at)
}

// replayStore backs Idempotency-Key handling with the idempotency table.
type replayStore struct {
	db  *gorm.DB
	ttl time.Duration
}

// Replay returns the record stored for a completed, unexpired key.
func (s replayStore) Replay(ctx context.Context, owner, scope, key string) (*domain.SendRecord, bool) {
	idem, err := repo.GetIdempotency(ctx, s.db, owner, scope, key, time.Now().UTC())
	if err != nil || !idem.Completed() {
		return nil, false
	}
	rec, err := repo.GetRecord(ctx, s.db, idem.RecordID)
	if err != nil {
		return nil, false
	}
	return rec, true
}

// Reserve inserts an in-flight row for the key. The unique index decides
// which of two concurrent requests wins.
func (s replayStore) Reserve(ctx context.Context, owner, scope, key string) (bool, error) {
	_, err := repo.CreateIdempotency(ctx, s.db, owner, scope, key, "", 0, s.ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return false, nil
	}
	return err == nil, err
}

// Complete binds recordID to the reserved key.
func (s replayStore) Complete(ctx context.Context, owner, scope, key, recordID string) error {
	return repo.CompleteIdempotency(ctx, s.db, owner, scope, key, recordID, http.StatusOK)
}

// Release frees a reservation whose dispatch failed.
func (s replayStore) Release(ctx context.Context, owner, scope, key string) error {
	return repo.DeleteIdempotency(ctx, s.db, owner, scope, key)
}

// Exists reports whether an unexpired key is stored. Used by the idempotency
// middleware to exempt replays from rate limiting.
func (s replayStore) Exists(ctx context.Context, owner, scope, key string) (bool, error) {
	_, err := repo.GetIdempotency(ctx, s.db, owner, scope, key, time.Now().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

type dbPinger struct{ db *gorm.DB }

func (p dbPinger) Ping(ctx context.Context) error { return repo.Ping(ctx, p.db) }

// RegisterRoutes attaches middleware and endpoints to r.
//
// Middleware order matters:
//  1. OpenTelemetry
//  2. RequestID
//  3. Logger (redacted)
//  4. Recovery
//  5. Sentry hub + 5xx reporting (when SENTRY_DSN is set)
//  6. gzip, body size limit
//  7. Metrics
//  8. Authenticate (sets the requester used by 9 and 10)
//  9. Idempotency validator
//  10. Rate limiter (replays bypass)
//  11. CORS and security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	devMode := deps.Verifier == nil

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(middleware.RedactOptions{
		MaskHeaders: []string{"X-User-Email", middleware.HeaderIdempotencyKey},
	}))
	r.Use(middleware.Recovery())
	if cfg.Sentry.DSN != "" {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	r.Use(middleware.ReportServerErrors())
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	r.Use(limitBody(maxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(middleware.MetricsHandler()))

	r.Use(middleware.Authenticate(deps.Verifier, middleware.AuthOptions{TrustRequestEmail: devMode}))

	replays := replayStore{db: db, ttl: cfg.IdempotencyTTL}
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, replays.Exists))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByRequesterOrIP())
	r.Use(rl.Handler())

	r.Use(cors.New(corsConfig(cfg.CORS.AllowedOrigins)))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Services
	quota := services.NewQuotaService(db, cfg.Mail.DailyLimit, cfg.Mail.QuotaLocation())
	ledger := services.NewLedgerService(db, quota)
	dispatch := &services.DispatchService{
		Identity:        services.NewIdentityService(db, userRepoShim{}),
		Ledger:          ledger,
		Provider:        deps.Provider,
		SenderDomain:    cfg.Mail.SenderDomain,
		DailyLimit:      cfg.Mail.DailyLimit,
		ProviderTimeout: cfg.Mail.ProviderTimeout,
	}
	history := services.NewHistoryService(db)

	h := handlers.New(dispatch, history, quota, handlers.Options{
		Replays:           replays,
		DailyLimit:        cfg.Mail.DailyLimit,
		Ready:             dbPinger{db: db},
		TrustRequestEmail: devMode,
	})

	r.GET("/health", h.Health)
	r.GET("/readyz", h.Ready)

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(middleware.SecurityHeaders(middleware.SecurityOptions{NoStore: true}))
	{
		api.POST("/send", h.Send)
		api.GET("/history", h.History)
		api.GET("/quota", h.Quota)
	}
}

// corsConfig allows every origin when none are configured (credentials off),
// otherwise only the listed ones.
func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Accept-Language", "Authorization",
			"If-None-Match", "X-User-Email", middleware.HeaderIdempotencyKey,
		},
		ExposeHeaders: []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}

// limitBody caps request bodies at maxBytes; reads beyond fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
