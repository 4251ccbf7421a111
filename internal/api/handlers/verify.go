package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/verityhq/verity/internal/api/middleware"
	"github.com/verityhq/verity/internal/domain"
	"github.com/verityhq/verity/internal/service"
)

type VerifyHandler struct {
	svc *service.VerificationService
}

func NewVerifyHandler(svc *service.VerificationService) *VerifyHandler {
	return &VerifyHandler{svc: svc}
}

// inlineMemory lets a caller verify against an explicit memory set instead
// of the thread's stored one. Memories without ids get one minted so ledger
// records stay well formed.
type inlineMemory struct {
	ID        string     `json:"id,omitempty"`
	Text      string     `json:"text"`
	Trust     float32    `json:"trust,omitempty"`
	Source    string     `json:"source,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

type verifyRequest struct {
	ThreadID string         `json:"thread_id"`
	Text     string         `json:"text"`
	Mode     string         `json:"mode,omitempty"`
	Memories []inlineMemory `json:"memories,omitempty"`
}

// Verify checks a candidate answer against the thread's memories and records
// any newly detected contradictions in the ledger.
func (h *VerifyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	inline, err := buildInlineMemories(tenant.ID, req.ThreadID, req.Memories)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := h.svc.VerifyAndRecord(r.Context(), tenant.ID, req.ThreadID, req.Text, domain.VerifyMode(req.Mode), inline)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTextRequired),
			errors.Is(err, service.ErrInvalidVerifyMode),
			errors.Is(err, service.ErrThreadIDMissing):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrLedgerTimeout):
			writeError(w, http.StatusGatewayTimeout, "ledger timed out recording contradictions")
		default:
			writeError(w, http.StatusInternalServerError, "verification failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

func buildInlineMemories(tenantID uuid.UUID, threadID string, in []inlineMemory) ([]domain.Memory, error) {
	if len(in) == 0 {
		return nil, nil
	}
	memories := make([]domain.Memory, 0, len(in))
	for _, im := range in {
		id := uuid.New()
		if im.ID != "" {
			parsed, err := uuid.Parse(im.ID)
			if err != nil {
				return nil, errors.New("invalid memory id: " + im.ID)
			}
			id = parsed
		}
		if im.Text == "" {
			return nil, errors.New("inline memory text is required")
		}
		if im.Source != "" && !domain.ValidMemorySource(im.Source) {
			return nil, errors.New("invalid memory source: " + im.Source)
		}
		trust := im.Trust
		if trust == 0 {
			trust = domain.MemorySource(im.Source).InitialTrust()
		}
		if trust < 0 || trust > 1 {
			return nil, errors.New("inline memory trust must be within [0,1]")
		}
		memories = append(memories, domain.Memory{
			ID:        id,
			TenantID:  tenantID,
			ThreadID:  threadID,
			Text:      im.Text,
			Trust:     trust,
			Source:    domain.MemorySource(im.Source),
			Timestamp: im.Timestamp,
			CreatedAt: time.Now(),
		})
	}
	return memories, nil
}
