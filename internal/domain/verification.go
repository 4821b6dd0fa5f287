package domain

import "time"

// Purpose distinguishes the flows a verification code can unlock.
type Purpose string

const (
	PurposeSignup        Purpose = "signup"
	PurposePasswordReset Purpose = "password_reset"
)

// VerificationTicket is the staged one-time code for a (purpose, identifier) pair.
// Only one ticket is live per pair; issuing a new one replaces the previous.
type VerificationTicket struct {
	Code       string
	Purpose    Purpose
	LastSentAt time.Time
	// Superseded holds the most recent codes this ticket replaced, newest last.
	Superseded []string
}
