package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")

	// Staged-action errors.
	ErrRateLimited      = errors.New("rate limited")
	ErrInvalidCode      = errors.New("invalid code")
	ErrTooManyAttempts  = errors.New("too many attempts")
	ErrExpired          = errors.New("expired")
	ErrApprovalNotFound = errors.New("approval not found")

	// ErrDeliveryFailed is returned by realtime pushes that could not reach their target.
	// It is logged by callers and never surfaced to HTTP clients.
	ErrDeliveryFailed = errors.New("delivery failed")
)
