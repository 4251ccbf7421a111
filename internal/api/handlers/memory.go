package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/verityhq/verity/internal/api/middleware"
	"github.com/verityhq/verity/internal/domain"
	"github.com/verityhq/verity/internal/service"
)

type MemoryHandler struct {
	svc *service.MemoryService
}

func NewMemoryHandler(svc *service.MemoryService) *MemoryHandler {
	return &MemoryHandler{svc: svc}
}

type createMemoryRequest struct {
	ThreadID  string     `json:"thread_id"`
	Text      string     `json:"text"`
	Trust     float32    `json:"trust,omitempty"`
	Source    string     `json:"source,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

type listMemoriesResponse struct {
	Memories []domain.Memory `json:"memories"`
	Count    int             `json:"count"`
}

// Create ingests one memory from an external writer. Trust defaults by
// source when omitted.
func (h *MemoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	memory := &domain.Memory{
		TenantID:  tenant.ID,
		ThreadID:  req.ThreadID,
		Text:      req.Text,
		Trust:     req.Trust,
		Source:    domain.MemorySource(req.Source),
		Timestamp: req.Timestamp,
	}

	if err := h.svc.Create(r.Context(), memory); err != nil {
		switch {
		case errors.Is(err, service.ErrMemoryTextEmpty),
			errors.Is(err, service.ErrThreadIDMissing),
			errors.Is(err, service.ErrInvalidTrust),
			errors.Is(err, service.ErrInvalidSource):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to create memory")
		}
		return
	}

	writeJSON(w, http.StatusCreated, memory)
}

func (h *MemoryHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}

	memory, err := h.svc.GetByID(r.Context(), id, tenant.ID)
	if err != nil {
		if errors.Is(err, service.ErrMemoryNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get memory")
		return
	}

	writeJSON(w, http.StatusOK, memory)
}

// List returns the thread's active memories, highest trust first.
func (h *MemoryHandler) List(w http.ResponseWriter, r *http.Request) {
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

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	memories, err := h.svc.ListActive(r.Context(), tenant.ID, threadID, limit)
	if err != nil {
		if errors.Is(err, service.ErrThreadIDMissing) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list memories")
		return
	}

	writeJSON(w, http.StatusOK, listMemoriesResponse{
		Memories: memories,
		Count:    len(memories),
	})
}
