// Command server runs the mail dispatch HTTP API.
//
//	@title			Mail Dispatch API
//	@version		1.0
//	@description	Quota-checked email sending with per-user history.
//	@BasePath		/api/v1
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-mail-dispatch/internal/auth"
	"github.com/tbourn/go-mail-dispatch/internal/config"
	httpapi "github.com/tbourn/go-mail-dispatch/internal/http"
	"github.com/tbourn/go-mail-dispatch/internal/mailer"
	"github.com/tbourn/go-mail-dispatch/internal/observability"
	"github.com/tbourn/go-mail-dispatch/internal/repo"
	"github.com/tbourn/go-mail-dispatch/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	sysutil.ConfigureLogging(os.Stdout, cfg.LogLevel, cfg.LogPretty)
	release := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observability.SetupOTel(ctx, cfg.OTEL, release)
	if err != nil {
		log.Fatal().Err(err).Msg("tracing setup failed")
	}
	sentryShutdown, err := observability.SetupSentry(cfg.Sentry, release)
	if err != nil {
		log.Fatal().Err(err).Msg("sentry setup failed")
	}

	db, err := repo.Open(cfg.DBDriver, cfg.DBPath, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("database open failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("schema migration failed")
	}

	provider, err := buildProvider(ctx, cfg.Mail)
	if err != nil {
		log.Fatal().Err(err).Str("provider", cfg.Mail.Provider).Msg("mail provider setup failed")
	}

	deps := httpapi.Deps{Provider: provider}
	if cfg.Auth.AuthEnabled() {
		v, err := auth.NewGoogleVerifier(ctx, cfg.Auth.GoogleClientID, cfg.Auth.GoogleJWKSURL)
		if err != nil {
			log.Fatal().Err(err).Msg("identity token verifier setup failed")
		}
		deps.Verifier = v
	} else {
		log.Warn().Msg("GOOGLE_CLIENT_ID not set: requester emails are trusted as sent (development mode)")
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, deps, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", release).
			Str("provider", cfg.Mail.Provider).
			Int("daily_limit", cfg.Mail.DailyLimit).
			Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server forced to stop")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("tracer shutdown")
	}
	if err := sentryShutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("sentry flush")
	}
	log.Info().Msg("server stopped")
}

// buildProvider selects the mail provider named by MAIL_PROVIDER.
func buildProvider(ctx context.Context, mc config.MailConfig) (mailer.Provider, error) {
	switch strings.ToLower(mc.Provider) {
	case "resend":
		if mc.ResendAPIKey == "" {
			return nil, errors.New("RESEND_API_KEY is required for the resend provider")
		}
		return mailer.NewResendClient(mc.ResendAPIKey, mc.ProviderTimeout, mailer.WithResendBaseURL(mc.ResendBaseURL)), nil
	case "gmail":
		creds, err := gmailCredentials(mc.GmailCredsJSON)
		if err != nil {
			return nil, err
		}
		return mailer.NewGmailProviderFromServiceAccount(ctx, creds, mc.GmailMailbox)
	case "log", "":
		return mailer.LogProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", mc.Provider)
	}
}

// gmailCredentials accepts either inline JSON or a path to a key file.
func gmailCredentials(v string) ([]byte, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, errors.New("GMAIL_CREDENTIALS_JSON is required for the gmail provider")
	}
	if strings.HasPrefix(v, "{") {
		return []byte(v), nil
	}
	b, err := os.ReadFile(v)
	if err != nil {
		return nil, fmt.Errorf("read gmail credentials: %w", err)
	}
	return b, nil
}
