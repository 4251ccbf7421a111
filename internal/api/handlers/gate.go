package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/verityhq/verity/internal/api/middleware"
	"github.com/verityhq/verity/internal/domain"
	"github.com/verityhq/verity/internal/service"
)

type GateHandler struct {
	svc *service.GateService
}

func NewGateHandler(svc *service.GateService) *GateHandler {
	return &GateHandler{svc: svc}
}

type gateCheckRequest struct {
	ThreadID string   `json:"thread_id"`
	Slots    []string `json:"slots"`
}

// Check evaluates whether an answer touching the given slots may be given.
// The decision itself is always 200; a blocked answer is a payload, not an
// HTTP error.
func (h *GateHandler) Check(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req gateCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ThreadID == "" {
		writeError(w, http.StatusBadRequest, "thread_id is required")
		return
	}

	slots := make([]domain.Slot, 0, len(req.Slots))
	for _, raw := range req.Slots {
		if !domain.ValidSlot(raw) {
			writeError(w, http.StatusBadRequest, "unknown slot: "+raw)
			return
		}
		slots = append(slots, domain.Slot(raw))
	}

	decision := h.svc.Check(r.Context(), tenant.ID, req.ThreadID, slots)
	writeJSON(w, http.StatusOK, decision)
}
