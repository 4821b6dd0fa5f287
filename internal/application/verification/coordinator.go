package verification

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math"
	"math/big"
	"slices"
	"time"

	"github.com/go-restaurant-api/internal/config"
	"github.com/go-restaurant-api/internal/domain"
	"github.com/go-restaurant-api/internal/infrastructure/staging"
)

// maxSuperseded bounds how many replaced codes a ticket remembers.
const maxSuperseded = 5

// Coordinator issues, rate-limits and validates one-time codes. Delivery of the code
// is left to the caller.
type Coordinator struct {
	tickets *staging.Store[domain.VerificationTicket]
	policy  config.Staging
	now     func() time.Time
}

// NewCoordinator builds a coordinator owning its own ticket store. now may be nil.
func NewCoordinator(policy config.Staging, now func() time.Time) *Coordinator {
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		tickets: staging.New[domain.VerificationTicket](staging.WithClock(now), staging.WithName("verification_tickets")),
		policy:  policy,
		now:     now,
	}
}

// Issue generates a fresh code for (identifier, purpose), replacing any live ticket.
// It fails with domain.ErrRateLimited while the previous send is younger than the
// resend cooldown.
func (c *Coordinator) Issue(identifier string, purpose domain.Purpose) (string, error) {
	code, err := newCode()
	if err != nil {
		return "", err
	}
	_, err = c.tickets.Compute(ticketKey(purpose, identifier), func(cur staging.Entry[domain.VerificationTicket], found bool) (domain.VerificationTicket, time.Duration, error) {
		now := c.now()
		next := domain.VerificationTicket{Code: code, Purpose: purpose, LastSentAt: now}
		if !found {
			return next, c.policy.CodeTTL, nil
		}
		if wait := c.policy.ResendCooldown - now.Sub(cur.Value.LastSentAt); wait > 0 {
			return next, 0, fmt.Errorf("a code was sent recently, retry in %ds: %w", int(math.Ceil(wait.Seconds())), domain.ErrRateLimited)
		}
		next.Superseded = append(slices.Clone(cur.Value.Superseded), cur.Value.Code)
		if len(next.Superseded) > maxSuperseded {
			next.Superseded = next.Superseded[len(next.Superseded)-maxSuperseded:]
		}
		return next, c.policy.CodeTTL, nil
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

// Verify checks code against the live ticket. nil means the code matched and the ticket
// is consumed. Otherwise the error wraps domain.ErrInvalidCode (ticket kept, attempt
// counted), domain.ErrExpired (no live ticket, or a replaced code) or
// domain.ErrTooManyAttempts (ticket discarded).
func (c *Coordinator) Verify(identifier string, purpose domain.Purpose, code string) error {
	var result error
	_, err := c.tickets.Apply(ticketKey(purpose, identifier), func(e staging.Entry[domain.VerificationTicket]) staging.Op {
		if e.Attempts >= c.policy.MaxCodeAttempts {
			result = fmt.Errorf("code locked after %d failed attempts, request a new one: %w", e.Attempts, domain.ErrTooManyAttempts)
			return staging.Remove
		}
		if codesEqual(e.Value.Code, code) {
			return staging.Remove
		}
		for _, old := range e.Value.Superseded {
			if codesEqual(old, code) {
				result = fmt.Errorf("code was replaced by a newer one: %w", domain.ErrExpired)
				return staging.Keep
			}
		}
		result = fmt.Errorf("wrong code: %w", domain.ErrInvalidCode)
		return staging.Touch
	})
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("code expired or never issued: %w", domain.ErrExpired)
	}
	if err != nil {
		return err
	}
	return result
}

// Invalidate drops the live ticket for (identifier, purpose), if any.
func (c *Coordinator) Invalidate(identifier string, purpose domain.Purpose) {
	c.tickets.Remove(ticketKey(purpose, identifier))
}

// Run sweeps expired tickets until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	c.tickets.Run(ctx, c.policy.SweepInterval)
}

func ticketKey(purpose domain.Purpose, identifier string) string {
	return string(purpose) + ":" + identifier
}

func codesEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// newCode returns a uniformly random 6-digit numeric code.
func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
