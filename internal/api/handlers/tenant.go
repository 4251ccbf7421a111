package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/verityhq/verity/internal/api/middleware"
	"github.com/verityhq/verity/internal/domain"
	"github.com/verityhq/verity/internal/store"
)

type TenantHandler struct {
	store domain.TenantStore
}

func NewTenantHandler(store domain.TenantStore) *TenantHandler {
	return &TenantHandler{store: store}
}

type createTenantRequest struct {
	Name string `json:"name"`
}

type createTenantResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	APIKey    string    `json:"api_key"`
	CreatedAt time.Time `json:"created_at"`
}

// Create bootstraps a tenant and returns its API key. The key is shown only
// once; the store keeps the hash. A key-hash collision gets one fresh key
// before giving up.
func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	var tenant *domain.Tenant
	var apiKey string
	for attempt := 0; attempt < 2; attempt++ {
		key, err := generateAPIKey()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to generate API key")
			return
		}

		t := &domain.Tenant{
			Name:       name,
			APIKeyHash: middleware.HashAPIKey(key),
		}
		err = h.store.Create(r.Context(), t)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to create tenant")
			return
		}
		tenant, apiKey = t, key
		break
	}
	if tenant == nil {
		writeError(w, http.StatusInternalServerError, "failed to create tenant")
		return
	}

	writeJSON(w, http.StatusCreated, createTenantResponse{
		ID:        tenant.ID.String(),
		Name:      tenant.Name,
		APIKey:    apiKey,
		CreatedAt: tenant.CreatedAt,
	})
}

func generateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "vk_" + hex.EncodeToString(b), nil
}
