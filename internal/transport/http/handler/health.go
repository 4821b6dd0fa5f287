package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type statusEnvelope struct {
	Status              string `json:"status"`
	RealtimeConnections int    `json:"realtime_connections"`
}

// HealthHandler handles health-check endpoints.
type HealthHandler struct {
	connections func() int
}

// NewHealthHandler takes the open realtime connection count; it may be nil.
func NewHealthHandler(connections func() int) *HealthHandler {
	return &HealthHandler{connections: connections}
}

func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "ping":
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "pong"})
	case "status":
		n := 0
		if h.connections != nil {
			n = h.connections()
		}
		writeJSON(w, http.StatusOK, statusEnvelope{Status: "ok", RealtimeConnections: n})
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}
