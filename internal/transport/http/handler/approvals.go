package handler

import (
	"net/http"

	"github.com/go-restaurant-api/internal/application/approval"
	"github.com/go-restaurant-api/internal/transport/http/middleware"
)

type decisionRequest struct {
	ApprovalID string `json:"approvalId" validate:"required"`
	Approved   *bool  `json:"approved" validate:"required"`
}

// ApprovalHandler lets an administrator decide a parked login over HTTP.
type ApprovalHandler struct {
	svc approval.Service
}

func NewApprovalHandler(svc approval.Service) *ApprovalHandler { return &ApprovalHandler{svc: svc} }

func (h *ApprovalHandler) Decide(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req decisionRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.Decide(r.Context(), claims.UserID, req.ApprovalID, *req.Approved)
	if err != nil {
		httpError(w, err)
		return
	}
	msg := "login approved"
	if res.State == approval.StateRejected {
		msg = "login rejected"
	}
	if !res.Delivered {
		msg += "; the requester is not connected and will have to log in again"
	}
	writeJSON(w, http.StatusOK, DecisionEnvelope{Status: res.State.String(), Message: msg, Delivered: res.Delivered})
}
