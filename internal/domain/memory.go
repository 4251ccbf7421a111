package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultTrust is assigned to memories written without an explicit trust score.
const DefaultTrust float32 = 1.0

type MemorySource string

const (
	SourceUser     MemorySource = "user"
	SourceImporter MemorySource = "importer"
	SourceDerived  MemorySource = "derived"
)

func ValidMemorySource(s string) bool {
	switch MemorySource(s) {
	case SourceUser, SourceImporter, SourceDerived:
		return true
	}
	return false
}

// InitialTrust returns the trust assigned when the writer does not supply one.
func (s MemorySource) InitialTrust() float32 {
	switch s {
	case SourceUser:
		return 1.0
	case SourceImporter:
		return 0.8
	case SourceDerived:
		return 0.6
	default:
		return DefaultTrust
	}
}

func ValidTrust(t float32) bool {
	return t >= 0 && t <= 1
}

// Memory is a stored user assertion. Text is immutable once written;
// deprecation is the only permitted state change and records which ledger
// entry caused it. Memories are never deleted.
type Memory struct {
	ID                uuid.UUID    `json:"id"`
	TenantID          uuid.UUID    `json:"tenant_id,omitempty"`
	ThreadID          string       `json:"thread_id"`
	Text              string       `json:"text"`
	Trust             float32      `json:"trust"`
	Timestamp         *time.Time   `json:"timestamp,omitempty"`
	Embedding         []float32    `json:"-"`
	EmbeddingProvider string       `json:"embedding_provider,omitempty"`
	EmbeddingModel    string       `json:"embedding_model,omitempty"`
	Source            MemorySource `json:"source,omitempty"`
	Deprecated        bool         `json:"deprecated"`
	DeprecationReason string       `json:"deprecation_reason,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// Active reports whether the memory still participates in grounding and
// contradiction detection.
func (m *Memory) Active() bool {
	return !m.Deprecated
}

// AssertedAt returns the best-known time the fact was asserted: the explicit
// timestamp when present, otherwise the write time.
func (m *Memory) AssertedAt() time.Time {
	if m.Timestamp != nil {
		return *m.Timestamp
	}
	return m.CreatedAt
}

// ThreadRef identifies a thread within a tenant. Used by background sweeps.
type ThreadRef struct {
	TenantID uuid.UUID `json:"tenant_id"`
	ThreadID string    `json:"thread_id"`
}
