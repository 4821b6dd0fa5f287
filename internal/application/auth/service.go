package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-restaurant-api/internal/application/approval"
	"github.com/go-restaurant-api/internal/config"
	"github.com/go-restaurant-api/internal/domain"
	"github.com/go-restaurant-api/internal/infrastructure/staging"
	"github.com/go-restaurant-api/internal/pkg/id"
	pkgtoken "github.com/go-restaurant-api/internal/pkg/token"
	"golang.org/x/crypto/bcrypt"
)

const (
	ViaEmail = "email"
	ViaSMS   = "sms"
)

var errRestaged = errors.New("signup staged again")

type SignupRequest struct {
	Name       string  `json:"name" validate:"required,max=100"`
	Identifier string  `json:"identifier" validate:"required,email"`
	Credential string  `json:"credential" validate:"required,min=8,max=72"`
	Phone      *string `json:"phone" validate:"omitempty,e164"`
}

type IdentifierRequest struct {
	Identifier string `json:"identifier" validate:"required,email"`
}

type VerifyCodeRequest struct {
	Identifier string `json:"identifier" validate:"required,email"`
	Code       string `json:"code" validate:"required,len=6,numeric"`
}

type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Credential string `json:"credential" validate:"required"`
}

type ResetCodeRequest struct {
	Identifier string `json:"identifier" validate:"required,email"`
	Via        string `json:"via" validate:"omitempty,oneof=email sms"`
}

type ResetPasswordRequest struct {
	ResetToken string `json:"reset_token" validate:"required,len=64,hexadecimal"`
	Credential string `json:"credential" validate:"required,min=8,max=72"`
}

// Session is a completed authentication.
type Session struct {
	User  *domain.User `json:"user"`
	Token string       `json:"token"`
}

type Service interface {
	Signup(ctx context.Context, req SignupRequest) (string, error)
	SendVerificationCode(ctx context.Context, identifier string) error
	VerifyCode(ctx context.Context, req VerifyCodeRequest) (*Session, error)
	Login(ctx context.Context, req LoginRequest) (*approval.Outcome, error)
	SendPasswordResetCode(ctx context.Context, req ResetCodeRequest) error
	VerifyResetCode(ctx context.Context, req VerifyCodeRequest) (string, error)
	ResetPassword(ctx context.Context, req ResetPasswordRequest) error
	Run(ctx context.Context)
}

type userStore interface {
	Put(ctx context.Context, u *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

type codeIssuer interface {
	Issue(identifier string, purpose domain.Purpose) (string, error)
	Verify(identifier string, purpose domain.Purpose, code string) error
	Invalidate(identifier string, purpose domain.Purpose)
	Run(ctx context.Context)
}

type loginApprover interface {
	Begin(ctx context.Context, u *domain.User) (*approval.Outcome, error)
}

type jwtSigner interface {
	Sign(userID, role, name string) (string, error)
}

type mailer interface {
	SendCode(to string, purpose domain.Purpose, code string) error
}

type smsSender interface {
	SendCode(ctx context.Context, to string, purpose domain.Purpose, code string) error
}

type service struct {
	users     userStore
	codes     codeIssuer
	approvals loginApprover
	signer    jwtSigner
	mailer    mailer
	sms       smsSender
	policy    config.Staging
	now       func() time.Time

	pending *staging.Store[domain.PendingAccount]
	grants  *staging.Store[domain.ResetGrant]
}

type ServiceDeps struct {
	UserRepo  userStore
	Codes     codeIssuer
	Approvals loginApprover
	Signer    jwtSigner
	Mailer    mailer
	SMS       smsSender // optional; nil disables SMS reset codes
	Policy    config.Staging
	Now       func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		users:     deps.UserRepo,
		codes:     deps.Codes,
		approvals: deps.Approvals,
		signer:    deps.Signer,
		mailer:    deps.Mailer,
		sms:       deps.SMS,
		policy:    deps.Policy,
		now:       now,
		pending:   staging.New[domain.PendingAccount](staging.WithClock(now), staging.WithName("pending_signups")),
		grants:    staging.New[domain.ResetGrant](staging.WithClock(now), staging.WithName("reset_grants")),
	}
}

// Signup stages the profile in memory and emails a code. Nothing is persisted
// until VerifyCode succeeds.
func (s *service) Signup(ctx context.Context, req SignupRequest) (string, error) {
	ident := normalize(req.Identifier)
	if err := s.ensureUnused(ctx, ident); err != nil {
		return "", err
	}

	code, err := s.codes.Issue(ident, domain.PurposeSignup)
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Credential), bcrypt.DefaultCost)
	if err != nil {
		s.codes.Invalidate(ident, domain.PurposeSignup)
		return "", fmt.Errorf("hash credential: %w", err)
	}
	s.pending.Put(ident, domain.PendingAccount{
		Name:         strings.TrimSpace(req.Name),
		Identifier:   ident,
		PasswordHash: string(hash),
		Role:         domain.RoleCustomer,
		Phone:        req.Phone,
	}, s.policy.PendingSignupTTL)

	if err := s.mailer.SendCode(ident, domain.PurposeSignup, code); err != nil {
		// Lift the cooldown so the client can ask for another code right away.
		s.codes.Invalidate(ident, domain.PurposeSignup)
		return "", err
	}
	return ident, nil
}

func (s *service) SendVerificationCode(ctx context.Context, identifier string) error {
	ident := normalize(identifier)
	if _, err := s.pending.Get(ident); err != nil {
		return fmt.Errorf("no pending signup for %s: %w", ident, domain.ErrNotFound)
	}
	code, err := s.codes.Issue(ident, domain.PurposeSignup)
	if err != nil {
		return err
	}
	if err := s.mailer.SendCode(ident, domain.PurposeSignup, code); err != nil {
		s.codes.Invalidate(ident, domain.PurposeSignup)
		return err
	}
	return nil
}

// VerifyCode converts the staged signup into a durable user, exactly once.
func (s *service) VerifyCode(ctx context.Context, req VerifyCodeRequest) (*Session, error) {
	ident := normalize(req.Identifier)
	if err := s.codes.Verify(ident, domain.PurposeSignup, req.Code); err != nil {
		return nil, err
	}
	staged, err := s.pending.Apply(ident, func(staging.Entry[domain.PendingAccount]) staging.Op {
		return staging.Remove
	})
	if err != nil {
		return nil, fmt.Errorf("signup for %s is no longer pending: %w", ident, domain.ErrExpired)
	}
	pa := staged.Value
	if err := s.ensureUnused(ctx, ident); err != nil {
		s.restorePending(staged, err)
		return nil, err
	}

	now := s.now().UTC()
	u := &domain.User{
		UserID:       id.New(),
		Name:         pa.Name,
		Email:        pa.Identifier,
		Phone:        pa.Phone,
		PasswordHash: pa.PasswordHash,
		Role:         pa.Role,
		Enable:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Put(ctx, u); err != nil {
		s.restorePending(staged, err)
		return nil, err
	}
	slog.Info("account created", "user_id", u.UserID)

	token, err := s.signer.Sign(u.UserID, u.Role, u.Name)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Session{User: u, Token: token}, nil
}

// Login checks credentials. Administrators go through the approval protocol and
// may come back AwaitingApproval; everyone else gets a token directly.
func (s *service) Login(ctx context.Context, req LoginRequest) (*approval.Outcome, error) {
	u, err := s.users.GetByEmail(ctx, normalize(req.Identifier))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Credential)) != nil {
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}
	if !u.Enable {
		return nil, fmt.Errorf("account disabled: %w", domain.ErrForbidden)
	}

	if u.IsAdmin() {
		return s.approvals.Begin(ctx, u)
	}
	token, err := s.signer.Sign(u.UserID, u.Role, u.Name)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &approval.Outcome{State: approval.StateDirect, Token: token, User: u}, nil
}

func (s *service) SendPasswordResetCode(ctx context.Context, req ResetCodeRequest) error {
	ident := normalize(req.Identifier)
	u, err := s.users.GetByEmail(ctx, ident)
	if err != nil {
		return err
	}
	if req.Via == ViaSMS {
		if u.Phone == nil || *u.Phone == "" {
			return fmt.Errorf("no phone number on account: %w", domain.ErrBadRequest)
		}
		if s.sms == nil {
			return fmt.Errorf("sms delivery is not available: %w", domain.ErrBadRequest)
		}
	}

	code, err := s.codes.Issue(ident, domain.PurposePasswordReset)
	if err != nil {
		return err
	}
	if req.Via == ViaSMS {
		err = s.sms.SendCode(ctx, *u.Phone, domain.PurposePasswordReset, code)
	} else {
		err = s.mailer.SendCode(ident, domain.PurposePasswordReset, code)
	}
	if err != nil {
		s.codes.Invalidate(ident, domain.PurposePasswordReset)
		return err
	}
	return nil
}

// VerifyResetCode only unlocks the next step: it stages a grant under a fresh
// reset token and leaves the stored credential untouched.
func (s *service) VerifyResetCode(ctx context.Context, req VerifyCodeRequest) (string, error) {
	ident := normalize(req.Identifier)
	if err := s.codes.Verify(ident, domain.PurposePasswordReset, req.Code); err != nil {
		return "", err
	}
	u, err := s.users.GetByEmail(ctx, ident)
	if err != nil {
		return "", err
	}
	token, err := pkgtoken.NewResetToken()
	if err != nil {
		return "", err
	}
	s.grants.Put(token, domain.ResetGrant{UserID: u.UserID, Identifier: ident}, s.policy.CodeTTL)
	return token, nil
}

func (s *service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	grant, err := s.grants.Take(req.ResetToken)
	if err != nil {
		return fmt.Errorf("reset token: %w", domain.ErrExpired)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Credential), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash credential: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, grant.UserID, string(hash)); err != nil {
		return err
	}
	slog.Info("password reset", "user_id", grant.UserID)
	return nil
}

// Run sweeps the staged signups, reset grants and codes until ctx is cancelled.
func (s *service) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); s.codes.Run(ctx) }()
	go func() { defer wg.Done(); s.pending.Run(ctx, s.policy.SweepInterval) }()
	go func() { defer wg.Done(); s.grants.Run(ctx, s.policy.SweepInterval) }()
	wg.Wait()
}

// restorePending puts a consumed signup back for its remaining lifetime after a
// failed durable write, so the client can request a new code and retry. A conflict
// is final, and a signup staged again in the meantime wins.
func (s *service) restorePending(staged staging.Entry[domain.PendingAccount], cause error) {
	if errors.Is(cause, domain.ErrConflict) {
		return
	}
	ttl := staged.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return
	}
	_, err := s.pending.Compute(staged.Key, func(_ staging.Entry[domain.PendingAccount], found bool) (domain.PendingAccount, time.Duration, error) {
		if found {
			return domain.PendingAccount{}, 0, errRestaged
		}
		return staged.Value, ttl, nil
	})
	if err == nil {
		slog.Warn("account creation failed, signup kept pending", "identifier", staged.Key, "err", cause)
	}
}

func (s *service) ensureUnused(ctx context.Context, ident string) error {
	_, err := s.users.GetByEmail(ctx, ident)
	switch {
	case err == nil:
		return fmt.Errorf("email already registered: %w", domain.ErrConflict)
	case errors.Is(err, domain.ErrNotFound):
		return nil
	default:
		return err
	}
}

func normalize(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
