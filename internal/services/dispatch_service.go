// Package services – DispatchService
//
// DispatchService runs one end-to-end send attempt:
//
//	validate → resolve identity → reserve quota + pending record
//	         → provider call (bounded) → finalize sent|failed
//
// Steps run strictly in that order. Invalid input never touches the store;
// an over-quota request creates no record; storage failures before the
// provider call abort the attempt so nothing is sent without a record.
// Once a record exists it is always finalized, even if the caller's context
// is cancelled mid-flight.
package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-mail-dispatch/internal/domain"
	"github.com/tbourn/go-mail-dispatch/internal/mailer"
)

// DefaultProviderTimeout bounds a provider call when none is configured.
const DefaultProviderTimeout = 15 * time.Second

// DefaultFinalizeTimeout bounds the write that moves a record to its
// terminal status when none is configured.
const DefaultFinalizeTimeout = 5 * time.Second

// recipientRe accepts anything shaped like local@host.tld.
var recipientRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Dispatch outcomes recorded in mail_dispatch_total.
const (
	outcomeSent          = "sent"
	outcomeInvalid       = "invalid"
	outcomeQuotaExceeded = "quota_exceeded"
	outcomeProviderError = "provider_error"
	outcomeStorageError  = "storage_error"
)

var dispatchTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mail_dispatch_total",
		Help: "Email dispatch attempts by outcome.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(dispatchTotal)
}

// DispatchRequest is one send attempt on behalf of a requester.
type DispatchRequest struct {
	FromName        string
	SenderLocalPart string
	Recipient       string
	Subject         string
	Content         string

	RequesterEmail   string
	RequesterName    string
	RequesterPicture string
}

// DispatchResult is returned for an accepted, delivered message.
type DispatchResult struct {
	ProviderMessageID string
	RecordID          string
	DailyCount        int
	DailyLimit        int
}

// DispatchService coordinates identity, quota, ledger and provider.
type DispatchService struct {
	Identity *IdentityService
	Ledger   *LedgerService
	Provider mailer.Provider

	// SenderDomain is appended to the sender local part ("local@domain").
	SenderDomain string
	// DailyLimit caps accepted sends per user per day; <= 0 disables the cap.
	DailyLimit int
	// ProviderTimeout bounds the provider call.
	ProviderTimeout time.Duration
	// FinalizeTimeout bounds the terminal status write, which outlives
	// request cancellation.
	FinalizeTimeout time.Duration
}

// Dispatch validates req, reserves a slot, sends the message and records
// the outcome. Errors wrap one of ErrMissingFields, ErrInvalidRecipient,
// ErrUnauthenticated, ErrQuotaExceeded, ErrStorage or ErrProviderFailure.
func (s *DispatchService) Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResult, error) {
	ctx, span := otel.Tracer("services/DispatchService").Start(ctx, "Dispatch",
		trace.WithAttributes(attribute.Int("quota.limit", s.DailyLimit)),
	)
	defer span.End()

	req = normalizeRequest(req)
	if err := validateRequest(req); err != nil {
		dispatchTotal.WithLabelValues(outcomeInvalid).Inc()
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	user, err := s.Identity.Resolve(ctx, req.RequesterEmail, req.RequesterName, req.RequesterPicture)
	if err != nil {
		return nil, s.fail(span, outcomeStorageError, err)
	}
	span.SetAttributes(attribute.String("user.id", user.ID))

	rec, count, err := s.Ledger.ReservePending(ctx, &domain.SendRecord{
		UserID:          user.ID,
		FromName:        req.FromName,
		SenderLocalPart: req.SenderLocalPart,
		Recipient:       req.Recipient,
		Subject:         req.Subject,
		Content:         req.Content,
	}, s.DailyLimit)
	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			dispatchTotal.WithLabelValues(outcomeQuotaExceeded).Inc()
			span.SetStatus(codes.Error, "quota exceeded")
			return nil, fmt.Errorf("%w: limit is %d per day", ErrQuotaExceeded, s.DailyLimit)
		}
		return nil, s.fail(span, outcomeStorageError, err)
	}
	span.SetAttributes(attribute.String("record.id", rec.ID), attribute.Int("quota.count", count))

	providerID, sendErr := s.send(ctx, req)

	// The record must reach a terminal state even if the request is gone.
	fctx, cancel := s.finalizeContext(ctx)
	defer cancel()
	if sendErr != nil {
		if err := s.Ledger.Finalize(fctx, rec.ID, domain.StatusFailed, ""); err != nil {
			loggerFor(ctx).Error().Err(err).Str("record_id", rec.ID).Msg("failed to mark send record as failed")
		}
		return nil, s.fail(span, outcomeProviderError, fmt.Errorf("%w: %v", ErrProviderFailure, sendErr))
	}

	if err := s.Ledger.Finalize(fctx, rec.ID, domain.StatusSent, providerID); err != nil {
		loggerFor(ctx).Error().Err(err).
			Str("record_id", rec.ID).
			Str("provider_message_id", providerID).
			Msg("email sent but send record could not be finalized")
		if !errors.Is(err, ErrStorage) {
			err = fmt.Errorf("%w: %v", ErrStorage, err)
		}
		return nil, s.fail(span, outcomeStorageError, err)
	}

	dispatchTotal.WithLabelValues(outcomeSent).Inc()
	span.SetAttributes(attribute.String("provider.message_id", providerID))
	return &DispatchResult{
		ProviderMessageID: providerID,
		RecordID:          rec.ID,
		DailyCount:        count,
		DailyLimit:        s.DailyLimit,
	}, nil
}

func (s *DispatchService) finalizeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.FinalizeTimeout
	if timeout <= 0 {
		timeout = DefaultFinalizeTimeout
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

// send performs the bounded provider call.
func (s *DispatchService) send(ctx context.Context, req DispatchRequest) (string, error) {
	timeout := s.ProviderTimeout
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if s.Provider == nil {
		return "", errors.New("no email provider configured")
	}
	id, err := s.Provider.Send(pctx, mailer.Message{
		From:    mailer.FormatAddress(req.FromName, req.SenderLocalPart+"@"+s.SenderDomain),
		To:      []string{req.Recipient},
		Subject: req.Subject,
		HTML:    req.Content,
		ReplyTo: req.RequesterEmail,
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(id) == "" {
		return "", errors.New("provider returned an empty message id")
	}
	return id, nil
}

func (s *DispatchService) fail(span trace.Span, outcome string, err error) error {
	dispatchTotal.WithLabelValues(outcome).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, outcome)
	return err
}

func normalizeRequest(req DispatchRequest) DispatchRequest {
	req.FromName = strings.TrimSpace(req.FromName)
	req.SenderLocalPart = strings.TrimSpace(req.SenderLocalPart)
	req.Recipient = strings.TrimSpace(req.Recipient)
	req.Subject = strings.TrimSpace(req.Subject)
	req.RequesterEmail = strings.TrimSpace(req.RequesterEmail)
	return req
}

// validateRequest runs before any side effect.
func validateRequest(req DispatchRequest) error {
	if req.FromName == "" || req.SenderLocalPart == "" || req.Recipient == "" ||
		req.Subject == "" || strings.TrimSpace(req.Content) == "" {
		return ErrMissingFields
	}
	if !recipientRe.MatchString(req.Recipient) {
		return ErrInvalidRecipient
	}
	if req.RequesterEmail == "" {
		return ErrUnauthenticated
	}
	return nil
}

// loggerFor returns the logger carried by ctx, or the global one.
func loggerFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
