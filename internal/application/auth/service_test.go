package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-restaurant-api/internal/application/approval"
	"github.com/go-restaurant-api/internal/application/verification"
	"github.com/go-restaurant-api/internal/config"
	"github.com/go-restaurant-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- mocks ---

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) Put(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}
func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	return m.Called(ctx, userID, passwordHash).Error(0)
}

type mockApprover struct{ mock.Mock }

func (m *mockApprover) Begin(ctx context.Context, u *domain.User) (*approval.Outcome, error) {
	args := m.Called(ctx, u)
	o, _ := args.Get(0).(*approval.Outcome)
	return o, args.Error(1)
}

type mockSigner struct{ mock.Mock }

func (m *mockSigner) Sign(userID, role, name string) (string, error) {
	args := m.Called(userID, role, name)
	return args.String(0), args.Error(1)
}

type mockSMS struct{ mock.Mock }

func (m *mockSMS) SendCode(ctx context.Context, to string, purpose domain.Purpose, code string) error {
	return m.Called(ctx, to, purpose, code).Error(0)
}

// recordingMailer keeps the last code sent to each address.
type recordingMailer struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func (m *recordingMailer) SendCode(to string, purpose domain.Purpose, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.codes == nil {
		m.codes = map[string]string{}
	}
	m.codes[string(purpose)+":"+to] = code
	return nil
}

func (m *recordingMailer) code(purpose domain.Purpose, to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[string(purpose)+":"+to]
}

// --- fixture ---

type fixture struct {
	svc       Service
	users     *mockUserStore
	approvals *mockApprover
	signer    *mockSigner
	mailer    *recordingMailer
	sms       *mockSMS
	now       time.Time
}

func newFixture() *fixture {
	f := &fixture{
		users:     &mockUserStore{},
		approvals: &mockApprover{},
		signer:    &mockSigner{},
		mailer:    &recordingMailer{},
		sms:       &mockSMS{},
		now:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	policy := config.DefaultStaging()
	f.svc = NewService(ServiceDeps{
		UserRepo:  f.users,
		Codes:     verification.NewCoordinator(policy, clock),
		Approvals: f.approvals,
		Signer:    f.signer,
		Mailer:    f.mailer,
		SMS:       f.sms,
		Policy:    policy,
		Now:       clock,
	})
	return f
}

func notFound() error { return fmt.Errorf("user: %w", domain.ErrNotFound) }

func hashOf(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func signupReq() SignupRequest {
	return SignupRequest{Name: "Alice", Identifier: "  Alice@Example.com ", Credential: "s3cret-pass"}
}

const alice = "alice@example.com"

// --- Signup / verify ---

func TestSignup_StagesAndSendsCode(t *testing.T) {
	f := newFixture()
	f.users.On("GetByEmail", mock.Anything, alice).Return(nil, notFound())

	ident, err := f.svc.Signup(context.Background(), signupReq())
	require.NoError(t, err)
	assert.Equal(t, alice, ident)
	assert.Len(t, f.mailer.code(domain.PurposeSignup, alice), 6)
	f.users.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestSignup_EmailTaken(t *testing.T) {
	f := newFixture()
	f.users.On("GetByEmail", mock.Anything, alice).Return(&domain.User{UserID: "u1"}, nil)

	_, err := f.svc.Signup(context.Background(), signupReq())
	assert.True(t, errors.Is(err, domain.ErrConflict))
	assert.Empty(t, f.mailer.code(domain.PurposeSignup, alice))
}

func TestSignup_ResendCooldown(t *testing.T) {
	f := newFixture()
	f.users.On("GetByEmail", mock.Anything, alice).Return(nil, notFound())

	_, err := f.svc.Signup(context.Background(), signupReq())
	require.NoError(t, err)
	f.now = f.now.Add(30 * time.Second)
	_, err = f.svc.Signup(context.Background(), signupReq())
	assert.True(t, errors.Is(err, domain.ErrRateLimited))

	err = f.svc.SendVerificationCode(context.Background(), alice)
	assert.True(t, errors.Is(err, domain.ErrRateLimited))

	f.now = f.now.Add(30 * time.Second)
	assert.NoError(t, f.svc.SendVerificationCode(context.Background(), alice))
}

func TestSignup_MailFailureLiftsCooldown(t *testing.T) {
	f := newFixture()
	f.users.On("GetByEmail", mock.Anything, alice).Return(nil, notFound())
	f.mailer.err = errors.New("smtp down")

	_, err := f.svc.Signup(context.Background(), signupReq())
	require.Error(t, err)

	f.mailer.err = nil
	assert.NoError(t, f.svc.SendVerificationCode(context.Background(), alice))
}

func TestSendVerificationCode_NoPendingSignup(t *testing.T) {
	f := newFixture()
	err := f.svc.SendVerificationCode(context.Background(), alice)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestVerifyCode_CreatesAccountOnce(t *testing.T) {
	f := newFixture()
	f.users.On("GetByEmail", mock.Anything, alice).Return(nil, notFound())
	f.users.On("Put", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.Email == alice && u.Role == domain.RoleCustomer && u.Enable && u.UserID != "" &&
			bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("s3cret-pass")) == nil
	})).Return(nil).Once()
	f.signer.On("Sign", mock.Anything, domain.RoleCustomer, "Alice").Return("tok", nil)

	_, err := f.svc.Signup(context.Background(), signupReq())
	require.NoError(t, err)
	code := f.mailer.code(domain.PurposeSignup, alice)

	sess, err := f.svc.VerifyCode(context.Background(), VerifyCodeRequest{Identifier: "ALICE@example.com", Code: code})
	require.NoError(t, err)
	assert.Equal(t, "tok", sess.Token)
	assert.Equal(t, alice, sess.User.Email)

	_, err = f.svc.VerifyCode(context.Background(), VerifyCodeRequest{Identifier: alice, Code: code})
	assert.True(t, errors.Is(err, domain.ErrExpired))
	f.users.AssertNumberOfCalls(t, "Put", 1)
}

func TestVerifyCode_WrongCodeKeepsPending(t *testing.T) {
	f := newFixture()
	f.users.On("GetByEmail", mock.Anything, alice).Return(nil, notFound())
	_, err := f.svc.Signup(context.Background(), signupReq())
	require.NoError(t, err)
	code := f.mailer.code(domain.PurposeSignup, alice)
	wrong := "000000"
	if code == wrong {
		wrong = "000001"
	}

	_, err = f.svc.VerifyCode(context.Background(), VerifyCodeRequest{Identifier: alice, Code: wrong})
	assert.True(t, errors.Is(err, domain.ErrInvalidCode))
	f.users.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)

	f.users.On("Put", mock.Anything, mock.Anything).Return(nil)
	f.signer.On("Sign", mock.Anything, mock.Anything, mock.Anything).Return("tok", nil)
	_, err = f.svc.VerifyCode(context.Background(), VerifyCodeRequest{Identifier: alice, Code: code})
	assert.NoError(t, err)
}

func TestVerifyCode_FailedWriteKeepsSignupPending(t *testing.T) {
	f := newFixture()
	f.users.On("GetByEmail", mock.Anything, alice).Return(nil, notFound())
	f.users.On("Put", mock.Anything, mock.Anything).Return(errors.New("dynamo throttled")).Once()
	_, err := f.svc.Signup(context.Background(), signupReq())
	require.NoError(t, err)

	_, err = f.svc.VerifyCode(context.Background(), VerifyCodeRequest{Identifier: alice, Code: f.mailer.code(domain.PurposeSignup, alice)})
	assert.ErrorContains(t, err, "dynamo throttled")

	f.now = f.now.Add(time.Minute)
	require.NoError(t, f.svc.SendVerificationCode(context.Background(), alice))

	f.users.On("Put", mock.Anything, mock.Anything).Return(nil).Once()
	f.signer.On("Sign", mock.Anything, domain.RoleCustomer, "Alice").Return("tok", nil)
	sess, err := f.svc.VerifyCode(context.Background(), VerifyCodeRequest{Identifier: alice, Code: f.mailer.code(domain.PurposeSignup, alice)})
	require.NoError(t, err)
	assert.Equal(t, alice, sess.User.Email)
	f.users.AssertNumberOfCalls(t, "Put", 2)
}

func TestVerifyCode_FailedWriteKeepsOriginalExpiry(t *testing.T) {
	f := newFixture()
	f.users.On("GetByEmail", mock.Anything, alice).Return(nil, notFound())
	f.users.On("Put", mock.Anything, mock.Anything).Return(errors.New("dynamo throttled"))
	_, err := f.svc.Signup(context.Background(), signupReq())
	require.NoError(t, err)

	f.now = f.now.Add(23 * time.Hour)
	require.NoError(t, f.svc.SendVerificationCode(context.Background(), alice))
	_, err = f.svc.VerifyCode(context.Background(), VerifyCodeRequest{Identifier: alice, Code: f.mailer.code(domain.PurposeSignup, alice)})
	require.Error(t, err)

	f.now = f.now.Add(time.Hour)
	err = f.svc.SendVerificationCode(context.Background(), alice)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestVerifyCode_ConflictDropsSignup(t *testing.T) {
	f := newFixture()
	f.users.On("GetByEmail", mock.Anything, alice).Return(nil, notFound())
	f.users.On("Put", mock.Anything, mock.Anything).Return(fmt.Errorf("user: %w", domain.ErrConflict))
	_, err := f.svc.Signup(context.Background(), signupReq())
	require.NoError(t, err)

	_, err = f.svc.VerifyCode(context.Background(), VerifyCodeRequest{Identifier: alice, Code: f.mailer.code(domain.PurposeSignup, alice)})
	assert.True(t, errors.Is(err, domain.ErrConflict))

	f.now = f.now.Add(time.Minute)
	err = f.svc.SendVerificationCode(context.Background(), alice)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestVerifyCode_PendingSignupExpired(t *testing.T) {
	f := newFixture()
	f.users.On("GetByEmail", mock.Anything, alice).Return(nil, notFound())
	_, err := f.svc.Signup(context.Background(), signupReq())
	require.NoError(t, err)

	f.now = f.now.Add(24 * time.Hour)
	err = f.svc.SendVerificationCode(context.Background(), alice)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

// --- Login ---

func TestLogin_UnknownUser(t *testing.T) {
	f := newFixture()
	f.users.On("GetByEmail", mock.Anything, alice).Return(nil, notFound())
	_, err := f.svc.Login(context.Background(), LoginRequest{Identifier: alice, Credential: "x"})
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestLogin_WrongPassword(t *testing.T) {
	f := newFixture()
	f.users.On("GetByEmail", mock.Anything, alice).Return(&domain.User{PasswordHash: hashOf(t, "right"), Enable: true}, nil)
	_, err := f.svc.Login(context.Background(), LoginRequest{Identifier: alice, Credential: "wrong"})
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestLogin_Disabled(t *testing.T) {
	f := newFixture()
	f.users.On("GetByEmail", mock.Anything, alice).Return(&domain.User{PasswordHash: hashOf(t, "pw"), Enable: false}, nil)
	_, err := f.svc.Login(context.Background(), LoginRequest{Identifier: alice, Credential: "pw"})
	assert.True(t, errors.Is(err, domain.ErrForbidden))
}

func TestLogin_CustomerDirect(t *testing.T) {
	f := newFixture()
	u := &domain.User{UserID: "c1", Name: "Carl", Role: domain.RoleCustomer, PasswordHash: hashOf(t, "pw"), Enable: true}
	f.users.On("GetByEmail", mock.Anything, alice).Return(u, nil)
	f.signer.On("Sign", "c1", domain.RoleCustomer, "Carl").Return("tok", nil)

	out, err := f.svc.Login(context.Background(), LoginRequest{Identifier: alice, Credential: "pw"})
	require.NoError(t, err)
	assert.Equal(t, approval.StateDirect, out.State)
	assert.Equal(t, "tok", out.Token)
	f.approvals.AssertNotCalled(t, "Begin", mock.Anything, mock.Anything)
}

func TestLogin_AdminGoesThroughApproval(t *testing.T) {
	f := newFixture()
	u := &domain.User{UserID: "a1", Name: "Ann", Role: domain.RoleAdmin, PasswordHash: hashOf(t, "pw"), Enable: true}
	f.users.On("GetByEmail", mock.Anything, alice).Return(u, nil)
	f.approvals.On("Begin", mock.Anything, u).Return(&approval.Outcome{State: approval.StateAwaitingApproval, ApprovalID: "ap1"}, nil)

	out, err := f.svc.Login(context.Background(), LoginRequest{Identifier: alice, Credential: "pw"})
	require.NoError(t, err)
	assert.Equal(t, approval.StateAwaitingApproval, out.State)
	assert.Equal(t, "ap1", out.ApprovalID)
	f.signer.AssertNotCalled(t, "Sign", mock.Anything, mock.Anything, mock.Anything)
}

// --- password reset ---

func TestPasswordReset_FullFlow(t *testing.T) {
	f := newFixture()
	f.users.On("GetByEmail", mock.Anything, alice).Return(&domain.User{UserID: "u1", Email: alice, Enable: true}, nil)
	var stored string
	f.users.On("UpdatePassword", mock.Anything, "u1", mock.Anything).Run(func(args mock.Arguments) {
		stored = args.String(2)
	}).Return(nil).Once()

	require.NoError(t, f.svc.SendPasswordResetCode(context.Background(), ResetCodeRequest{Identifier: alice}))
	code := f.mailer.code(domain.PurposePasswordReset, alice)
	require.Len(t, code, 6)

	token, err := f.svc.VerifyResetCode(context.Background(), VerifyCodeRequest{Identifier: alice, Code: code})
	require.NoError(t, err)
	assert.Len(t, token, 64)
	f.users.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything, mock.Anything)

	require.NoError(t, f.svc.ResetPassword(context.Background(), ResetPasswordRequest{ResetToken: token, Credential: "brand-new-pass"}))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored), []byte("brand-new-pass")))

	err = f.svc.ResetPassword(context.Background(), ResetPasswordRequest{ResetToken: token, Credential: "again-new-pass"})
	assert.True(t, errors.Is(err, domain.ErrExpired))
}

func TestPasswordReset_GrantExpires(t *testing.T) {
	f := newFixture()
	f.users.On("GetByEmail", mock.Anything, alice).Return(&domain.User{UserID: "u1", Email: alice, Enable: true}, nil)
	require.NoError(t, f.svc.SendPasswordResetCode(context.Background(), ResetCodeRequest{Identifier: alice}))
	token, err := f.svc.VerifyResetCode(context.Background(), VerifyCodeRequest{Identifier: alice, Code: f.mailer.code(domain.PurposePasswordReset, alice)})
	require.NoError(t, err)

	f.now = f.now.Add(10 * time.Minute)
	err = f.svc.ResetPassword(context.Background(), ResetPasswordRequest{ResetToken: token, Credential: "brand-new-pass"})
	assert.True(t, errors.Is(err, domain.ErrExpired))
}

func TestPasswordReset_UnknownUser(t *testing.T) {
	f := newFixture()
	f.users.On("GetByEmail", mock.Anything, alice).Return(nil, notFound())
	err := f.svc.SendPasswordResetCode(context.Background(), ResetCodeRequest{Identifier: alice})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestPasswordReset_SMSRequiresPhone(t *testing.T) {
	f := newFixture()
	f.users.On("GetByEmail", mock.Anything, alice).Return(&domain.User{UserID: "u1", Email: alice}, nil)
	err := f.svc.SendPasswordResetCode(context.Background(), ResetCodeRequest{Identifier: alice, Via: ViaSMS})
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestPasswordReset_SMS(t *testing.T) {
	f := newFixture()
	phone := "+15550100"
	f.users.On("GetByEmail", mock.Anything, alice).Return(&domain.User{UserID: "u1", Email: alice, Phone: &phone}, nil)
	f.sms.On("SendCode", mock.Anything, phone, domain.PurposePasswordReset, mock.AnythingOfType("string")).Return(nil)

	require.NoError(t, f.svc.SendPasswordResetCode(context.Background(), ResetCodeRequest{Identifier: alice, Via: ViaSMS}))
	f.sms.AssertExpectations(t)
	assert.Empty(t, f.mailer.code(domain.PurposePasswordReset, alice))
}

func TestPasswordReset_PurposesDoNotMix(t *testing.T) {
	f := newFixture()
	f.users.On("GetByEmail", mock.Anything, alice).Return(&domain.User{UserID: "u1", Email: alice}, nil)
	require.NoError(t, f.svc.SendPasswordResetCode(context.Background(), ResetCodeRequest{Identifier: alice}))
	code := f.mailer.code(domain.PurposePasswordReset, alice)

	_, err := f.svc.VerifyCode(context.Background(), VerifyCodeRequest{Identifier: alice, Code: code})
	assert.True(t, errors.Is(err, domain.ErrExpired))
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { f.svc.Run(ctx); close(done) }()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
