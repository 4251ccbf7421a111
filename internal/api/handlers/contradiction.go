package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/verityhq/verity/internal/api/middleware"
	"github.com/verityhq/verity/internal/domain"
	"github.com/verityhq/verity/internal/service"
)

type ContradictionHandler struct {
	ledger *service.LedgerService
	policy *service.PolicyService
}

func NewContradictionHandler(ledger *service.LedgerService, policy *service.PolicyService) *ContradictionHandler {
	return &ContradictionHandler{ledger: ledger, policy: policy}
}

type resolveRequest struct {
	Action         string `json:"action"`
	ChosenMemoryID string `json:"chosen_memory_id,omitempty"`
	Confirmation   string `json:"confirmation,omitempty"`
}

type listContradictionsResponse struct {
	Records []domain.ContradictionRecord `json:"records"`
	Count   int                          `json:"count"`
}

// List returns the thread's ledger records, optionally filtered by status.
func (h *ContradictionHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	threadID := r.URL.Query().Get("thread_id")
	if threadID == "" {
		writeError(w, http.StatusBadRequest, "thread_id is required")
		return
	}

	var status *domain.ContradictionStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		if !domain.ValidStatus(raw) {
			writeError(w, http.StatusBadRequest, "status must be open or resolved")
			return
		}
		s := domain.ContradictionStatus(raw)
		status = &s
	}

	records, err := h.ledger.ListByThread(r.Context(), tenant.ID, threadID, status)
	if err != nil {
		if errors.Is(err, service.ErrLedgerTimeout) {
			writeError(w, http.StatusGatewayTimeout, "ledger timed out")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list contradictions")
		return
	}

	writeJSON(w, http.StatusOK, listContradictionsResponse{
		Records: records,
		Count:   len(records),
	})
}

// Resolve applies a caller-chosen resolution to one open ledger record.
func (h *ContradictionHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ledgerID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ledger id")
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res := domain.Resolution{
		Action:       domain.ResolutionAction(req.Action),
		Confirmation: req.Confirmation,
	}
	if req.ChosenMemoryID != "" {
		chosen, err := uuid.Parse(req.ChosenMemoryID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid chosen_memory_id")
			return
		}
		res.ChosenMemoryID = &chosen
	}

	rec, err := h.ledger.Resolve(r.Context(), tenant.ID, ledgerID, res)
	if err != nil {
		writeResolveError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// Auto applies the policy default action for the record's category.
func (h *ContradictionHandler) Auto(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ledgerID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ledger id")
		return
	}

	rec, err := h.policy.ApplyDefault(r.Context(), tenant.ID, ledgerID)
	if err != nil {
		writeResolveError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func writeResolveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidResolutionAction),
		errors.Is(err, service.ErrChosenMemoryRequired),
		errors.Is(err, service.ErrChosenMemoryNotInRecord):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrLedgerNotFound):
		writeError(w, http.StatusNotFound, "contradiction record not found")
	case errors.Is(err, service.ErrLedgerConflict):
		writeError(w, http.StatusConflict, "record already resolved")
	case errors.Is(err, service.ErrLedgerTimeout):
		writeError(w, http.StatusGatewayTimeout, "ledger timed out")
	default:
		writeError(w, http.StatusInternalServerError, "failed to resolve contradiction")
	}
}
