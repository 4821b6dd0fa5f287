package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-restaurant-api/internal/domain"
	"github.com/go-restaurant-api/internal/pkg/validate"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// AuthEnvelope wraps responses that complete an authentication.
type AuthEnvelope struct {
	User  *domain.User `json:"user"`
	Token string       `json:"token"`
}

// PendingApprovalEnvelope is the 202 body of an admin login parked for approval.
type PendingApprovalEnvelope struct {
	Status     string    `json:"status"`
	ApprovalID string    `json:"approvalId"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Message    string    `json:"message"`
}

type SignupEnvelope struct {
	Identifier string `json:"identifier"`
	Message    string `json:"message,omitempty"`
}

type ResetTokenEnvelope struct {
	ResetToken string `json:"reset_token"`
}

type DecisionEnvelope struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Delivered bool   `json:"delivered"`
}

type SeenEnvelope struct {
	Section string    `json:"section"`
	SeenAt  time.Time `json:"seen_at"`
}

type UnseenEnvelope struct {
	Unseen map[domain.Category]int64 `json:"unseen"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg, ErrorCode: status})
}

// decode reads a JSON body into v and runs its validate tags. It writes the
// error response itself and reports whether the handler may continue.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return false
	}
	return true
}

// httpError maps domain sentinels to status codes. Anything unmapped is logged
// and reported as 500 without detail.
func httpError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal server error"
	switch {
	case errors.Is(err, domain.ErrApprovalNotFound):
		status, msg = http.StatusNotFound, "approval not found or already resolved"
	case errors.Is(err, domain.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrConflict):
		status, msg = http.StatusConflict, "already exists"
	case errors.Is(err, domain.ErrUnauthorized):
		status, msg = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrForbidden):
		status, msg = http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrBadRequest):
		status, msg = http.StatusBadRequest, "bad request"
	case errors.Is(err, domain.ErrRateLimited):
		status, msg = http.StatusTooManyRequests, "please wait before requesting another code"
	case errors.Is(err, domain.ErrInvalidCode):
		status, msg = http.StatusBadRequest, "invalid code"
	case errors.Is(err, domain.ErrTooManyAttempts):
		status, msg = http.StatusTooManyRequests, "too many attempts, request a new code"
	case errors.Is(err, domain.ErrExpired):
		status, msg = http.StatusGone, "code expired, request a new one"
	default:
		slog.Error("unhandled error", "err", err)
	}
	if status < http.StatusInternalServerError {
		msg = err.Error()
	}
	writeError(w, status, msg)
}
