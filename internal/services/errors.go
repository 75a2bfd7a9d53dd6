// Package services defines the business logic for identity resolution,
// quota accounting, the send-record ledger, dispatch orchestration and
// history reads. This file centralizes the service-level error values so
// that they can be consistently returned by service methods and checked by
// callers.
//
// Translation into user-facing messages or HTTP status codes is performed
// at the handler layer.
package services

import "errors"

// Request validation errors.
var (
	// ErrMissingFields is returned when one of the required message fields
	// (sender name, sender local part, recipient, subject, content) is empty.
	ErrMissingFields = errors.New("missing required fields")

	// ErrInvalidRecipient is returned when the recipient is not shaped like
	// an email address.
	ErrInvalidRecipient = errors.New("invalid recipient address")

	// ErrUnauthenticated is returned when no requester identity accompanies
	// the request.
	ErrUnauthenticated = errors.New("requester identity required")
)

// Dispatch outcome errors.
var (
	// ErrQuotaExceeded is returned when the requester has already used the
	// configured number of sends for the current day. No record is created.
	ErrQuotaExceeded = errors.New("daily email limit reached")

	// ErrStorage wraps any persistence failure. When it is returned before
	// the provider call, no email has been sent.
	ErrStorage = errors.New("storage failure")

	// ErrProviderFailure is returned when the delivery provider rejects the
	// message, fails, or times out. The attempt is recorded as failed.
	ErrProviderFailure = errors.New("email provider failure")
)

// Lookup and lifecycle errors.
var (
	// ErrUserNotFound indicates that no user exists for the given email.
	ErrUserNotFound = errors.New("user not found")

	// ErrRecordNotPending is returned when finalizing a record that is
	// missing or has already reached a terminal status.
	ErrRecordNotPending = errors.New("send record is not pending")
)
