package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-restaurant-api/internal/domain"
	"github.com/go-restaurant-api/internal/infrastructure/staging"
	"github.com/go-restaurant-api/internal/pkg/id"
)

const (
	rejectedMessage = "Your login was rejected by an administrator"
	auditTimeout    = 5 * time.Second
)

var errSelfDecision = fmt.Errorf("administrators cannot decide their own login: %w", domain.ErrUnauthorized)

// Outcome is the immediate result of an admin login.
// For StateAwaitingApproval only ApprovalID and ExpiresAt are set: the caller learns the
// final result over the realtime channel, and silence past ExpiresAt means the attempt
// failed by timeout, not by explicit rejection.
type Outcome struct {
	State      State
	Token      string
	User       *domain.User
	ApprovalID string
	ExpiresAt  time.Time
}

// Resolution is the result of a decision on a parked login.
type Resolution struct {
	ApprovalID string
	State      State
	// Delivered is false when the requester had no live channel connection.
	Delivered bool
}

// Channel payloads.
type (
	RequestPayload struct {
		ApprovalID          string `json:"approvalId"`
		RequestingAdminName string `json:"requestingAdminName"`
	}
	ApprovedPayload struct {
		Token string       `json:"token"`
		User  *domain.User `json:"user"`
	}
	RejectedPayload struct {
		Message string `json:"message"`
	}
)

// Service is what the HTTP and channel layers need from the coordinator.
type Service interface {
	Begin(ctx context.Context, u *domain.User) (*Outcome, error)
	AttachRequester(approvalID, address string) error
	Decide(ctx context.Context, deciderID, approvalID string, approved bool) (*Resolution, error)
}

type presenceRegistry interface {
	AnyPresent() bool
	IsPresent(adminID string) bool
	FirstPresent() (domain.AdminPresenceRecord, error)
}

type notifier interface {
	Push(msg domain.OutboundMessage) error
	Connected(address string) bool
}

type tokenSigner interface {
	Sign(userID, role, name string) (string, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, v any) error
}

type ServiceDeps struct {
	Presence      presenceRegistry
	Notifier      notifier
	Signer        tokenSigner
	Events        eventPublisher // optional
	TTL           time.Duration
	SweepInterval time.Duration
	Now           func() time.Time
}

// Coordinator runs the out-of-band approval protocol for admin logins. It owns the
// map of parked approvals; an approval id leaves that map exactly once, by decision
// or by expiry, which is what makes double resolution impossible.
type Coordinator struct {
	pending       *staging.Store[domain.PendingApproval]
	presence      presenceRegistry
	notifier      notifier
	signer        tokenSigner
	events        eventPublisher
	ttl           time.Duration
	sweepInterval time.Duration
	now           func() time.Time
}

func NewCoordinator(deps ServiceDeps) *Coordinator {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	c := &Coordinator{
		pending:       staging.New[domain.PendingApproval](staging.WithClock(now), staging.WithName("login_approvals")),
		presence:      deps.Presence,
		notifier:      deps.Notifier,
		signer:        deps.Signer,
		events:        deps.Events,
		ttl:           deps.TTL,
		sweepInterval: deps.SweepInterval,
		now:           now,
	}
	c.pending.OnExpire(c.expire)
	return c
}

// Begin handles a credential-valid admin login. It never blocks on the approver.
func (c *Coordinator) Begin(ctx context.Context, u *domain.User) (*Outcome, error) {
	if !c.presence.AnyPresent() || c.presence.IsPresent(u.UserID) {
		return c.direct(u)
	}
	approver, err := c.presence.FirstPresent()
	if err != nil {
		// The last admin left between the two checks.
		return c.direct(u)
	}

	now := c.now()
	pa := domain.PendingApproval{
		ApprovalID:          id.New(),
		RequestingAdminID:   u.UserID,
		RequestingAdminName: u.Name,
		ApproverAddress:     approver.ChannelAddress,
		User:                *u,
		CreatedAt:           now,
	}
	c.pending.Put(pa.ApprovalID, pa, c.ttl)

	c.push(domain.OutboundMessage{
		To:      domain.ToAddress(approver.ChannelAddress),
		Event:   domain.EventLoginApprovalRequest,
		Payload: RequestPayload{ApprovalID: pa.ApprovalID, RequestingAdminName: u.Name},
	})
	slog.Info("admin login parked for approval",
		"approval_id", pa.ApprovalID, "admin_id", u.UserID, "approver_id", approver.AdminID)
	c.audit(pa, "", StateAwaitingApproval)

	return &Outcome{State: StateAwaitingApproval, ApprovalID: pa.ApprovalID, ExpiresAt: now.Add(c.ttl)}, nil
}

// AttachRequester binds the requester's channel connection to a parked approval so the
// outcome can be pushed to it. The first binding holds while its connection is open.
func (c *Coordinator) AttachRequester(approvalID, address string) error {
	err := c.pending.Update(approvalID, func(pa domain.PendingApproval) (domain.PendingApproval, error) {
		if pa.RequesterAddress != "" && pa.RequesterAddress != address && c.notifier.Connected(pa.RequesterAddress) {
			return pa, fmt.Errorf("approval %s is bound to another connection: %w", approvalID, domain.ErrConflict)
		}
		pa.RequesterAddress = address
		return pa, nil
	})
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("approval %s: %w", approvalID, domain.ErrApprovalNotFound)
	}
	return err
}

// Decide resolves a parked approval on behalf of a present administrator.
func (c *Coordinator) Decide(ctx context.Context, deciderID, approvalID string, approved bool) (*Resolution, error) {
	if !c.presence.IsPresent(deciderID) {
		return nil, fmt.Errorf("decisions require a connected administrator: %w", domain.ErrUnauthorized)
	}
	ev := eventReject
	var token string
	if approved {
		ev = eventApprove
		// Sign before consuming, so a signing failure leaves the approval decidable.
		staged, err := c.pending.Get(approvalID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("approval %s: %w", approvalID, domain.ErrApprovalNotFound)
		}
		if err != nil {
			return nil, err
		}
		if staged.RequestingAdminID == deciderID {
			return nil, errSelfDecision
		}
		token, err = c.signer.Sign(staged.User.UserID, staged.User.Role, staged.User.Name)
		if err != nil {
			slog.Error("approval left pending, token signing failed", "approval_id", approvalID, "err", err)
			return nil, fmt.Errorf("sign token: %w", err)
		}
	}

	var (
		to    State
		trErr error
	)
	entry, err := c.pending.Apply(approvalID, func(e staging.Entry[domain.PendingApproval]) staging.Op {
		if e.Value.RequestingAdminID == deciderID {
			trErr = errSelfDecision
			return staging.Keep
		}
		to, trErr = next(StateAwaitingApproval, ev)
		if trErr != nil {
			return staging.Keep
		}
		return staging.Remove
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("approval %s: %w", approvalID, domain.ErrApprovalNotFound)
	}
	if err != nil {
		return nil, err
	}
	if trErr != nil {
		return nil, trErr
	}

	pa := entry.Value
	res := &Resolution{ApprovalID: approvalID, State: to}
	switch to {
	case StateApproved:
		res.Delivered = c.deliver(pa, domain.EventLoginApproved, ApprovedPayload{Token: token, User: &pa.User})
	case StateRejected:
		res.Delivered = c.deliver(pa, domain.EventLoginRejected, RejectedPayload{Message: rejectedMessage})
	}
	slog.Info("admin login decided",
		"approval_id", approvalID, "outcome", to.String(), "decider_id", deciderID, "delivered", res.Delivered)
	c.audit(pa, deciderID, to)
	return res, nil
}

// Run sweeps expired approvals until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	c.pending.Run(ctx, c.sweepInterval)
}

func (c *Coordinator) direct(u *domain.User) (*Outcome, error) {
	token, err := c.signer.Sign(u.UserID, u.Role, u.Name)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Outcome{State: StateDirect, Token: token, User: u}, nil
}

// expire is the staging expiry hook: the approval window closed without a decision.
func (c *Coordinator) expire(approvalID string, pa domain.PendingApproval) {
	to, err := next(StateAwaitingApproval, eventTimeout)
	if err != nil {
		return
	}
	slog.Info("admin login approval expired", "approval_id", approvalID, "admin_id", pa.RequestingAdminID)
	c.audit(pa, "", to)
}

// deliver pushes the outcome to the requester if it registered a connection.
func (c *Coordinator) deliver(pa domain.PendingApproval, event string, payload any) bool {
	if pa.RequesterAddress == "" {
		slog.Info("requester not connected, outcome not delivered", "approval_id", pa.ApprovalID, "event", event)
		return false
	}
	return c.push(domain.OutboundMessage{To: domain.ToAddress(pa.RequesterAddress), Event: event, Payload: payload})
}

func (c *Coordinator) push(msg domain.OutboundMessage) bool {
	if err := c.notifier.Push(msg); err != nil {
		slog.Warn("realtime push failed", "event", msg.Event, "address", msg.To.Address, "err", err)
		return false
	}
	return true
}

// audit publishes the transition in the background; failures are only logged.
func (c *Coordinator) audit(pa domain.PendingApproval, deciderID string, s State) {
	if c.events == nil {
		return
	}
	ev := domain.LoginApprovalEvent{
		ApprovalID:        pa.ApprovalID,
		RequestingAdminID: pa.RequestingAdminID,
		DeciderID:         deciderID,
		Outcome:           s.String(),
		OccurredAt:        c.now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()
		if err := c.events.Publish(ctx, ev); err != nil {
			slog.Warn("publish login approval event", "approval_id", ev.ApprovalID, "err", err)
		}
	}()
}
