package handler

import (
	"net/http"

	"github.com/go-restaurant-api/internal/application/approval"
	"github.com/go-restaurant-api/internal/application/auth"
)

const pendingApprovalMessage = "Login is waiting for approval by an active administrator. " +
	"Register this approvalId on the realtime channel to receive the result. " +
	"If nothing arrives before expiresAt the login has failed and must be retried."

// AuthHandler handles the account flows: signup, login and password reset.
type AuthHandler struct {
	svc auth.Service
}

func NewAuthHandler(svc auth.Service) *AuthHandler { return &AuthHandler{svc: svc} }

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req auth.SignupRequest
	if !decode(w, r, &req) {
		return
	}
	ident, err := h.svc.Signup(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SignupEnvelope{Identifier: ident, Message: "verification code sent"})
}

func (h *AuthHandler) SendVerificationCode(w http.ResponseWriter, r *http.Request) {
	var req auth.IdentifierRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.SendVerificationCode(r.Context(), req.Identifier); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "verification code sent"})
}

func (h *AuthHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req auth.VerifyCodeRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.svc.VerifyCode(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthEnvelope{User: sess.User, Token: sess.Token})
}

// Login answers 200 with a token, or 202 when an admin login was parked for
// approval. A parked login fails by timeout, never by an explicit error: the
// client only learns the outcome over the realtime channel.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if !decode(w, r, &req) {
		return
	}
	out, err := h.svc.Login(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	if out.State == approval.StateAwaitingApproval {
		writeJSON(w, http.StatusAccepted, PendingApprovalEnvelope{
			Status:     out.State.String(),
			ApprovalID: out.ApprovalID,
			ExpiresAt:  out.ExpiresAt,
			Message:    pendingApprovalMessage,
		})
		return
	}
	writeJSON(w, http.StatusOK, AuthEnvelope{User: out.User, Token: out.Token})
}

func (h *AuthHandler) SendPasswordResetCode(w http.ResponseWriter, r *http.Request) {
	var req auth.ResetCodeRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.SendPasswordResetCode(r.Context(), req); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "reset code sent"})
}

func (h *AuthHandler) VerifyResetCode(w http.ResponseWriter, r *http.Request) {
	var req auth.VerifyCodeRequest
	if !decode(w, r, &req) {
		return
	}
	token, err := h.svc.VerifyResetCode(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ResetTokenEnvelope{ResetToken: token})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req auth.ResetPasswordRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "password updated"})
}
