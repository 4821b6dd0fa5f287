package handler

import (
	"net/http"

	"github.com/go-restaurant-api/internal/application/dashboard"
)

type seenRequest struct {
	Section string `json:"section" validate:"required"`
}

// DashboardHandler serves the admin console's unseen counters.
type DashboardHandler struct {
	svc dashboard.Service
}

func NewDashboardHandler(svc dashboard.Service) *DashboardHandler {
	return &DashboardHandler{svc: svc}
}

func (h *DashboardHandler) MarkSeen(w http.ResponseWriter, r *http.Request) {
	var req seenRequest
	if !decode(w, r, &req) {
		return
	}
	c, at, err := h.svc.MarkSeen(r.Context(), req.Section)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SeenEnvelope{Section: string(c), SeenAt: at})
}

func (h *DashboardHandler) Unseen(w http.ResponseWriter, r *http.Request) {
	counts, err := h.svc.UnseenCounts(r.Context())
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UnseenEnvelope{Unseen: counts})
}
