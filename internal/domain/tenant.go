package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is the isolation boundary: memories, ledger records, and
// verifications are all scoped to one tenant. APIKeyHash holds the SHA-256
// of the issued key; the plaintext is shown once at creation and never
// persisted.
type Tenant struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	APIKeyHash string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
