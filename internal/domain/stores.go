package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TenantStore interface {
	Create(ctx context.Context, t *Tenant) error
	GetByAPIKeyHash(ctx context.Context, apiKeyHash string) (*Tenant, error)
}

type MemoryStore interface {
	Create(ctx context.Context, m *Memory) error
	GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*Memory, error)
	// ListActiveByThread returns non-deprecated memories ordered by trust
	// descending then assertion time descending, capped at limit.
	ListActiveByThread(ctx context.Context, tenantID uuid.UUID, threadID string, limit int) ([]Memory, error)
	// ListRelevantByThread shortlists active memories by embedding proximity
	// to the candidate text. Memories without embeddings are appended after
	// the scored ones up to limit.
	ListRelevantByThread(ctx context.Context, tenantID uuid.UUID, threadID string, embedding []float32, limit int) ([]Memory, error)
	// MarkDeprecated flags the memory and records why. The row is never
	// removed.
	MarkDeprecated(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, reason string) error
	// ListThreadsUpdatedSince reports threads with memory writes after the
	// given time. Drives the background sweep.
	ListThreadsUpdatedSince(ctx context.Context, since time.Time, limit int) ([]ThreadRef, error)
}

// LedgerFilter narrows ledger listings. Nil fields match everything.
type LedgerFilter struct {
	Status *ContradictionStatus
	Slots  []Slot
}

type LedgerStore interface {
	// Create appends a record. A record over the same thread, slot, and
	// memory set as a live one is dropped and ErrConflict returned.
	Create(ctx context.Context, rec *ContradictionRecord) error
	GetByID(ctx context.Context, ledgerID uuid.UUID, tenantID uuid.UUID) (*ContradictionRecord, error)
	ListByThread(ctx context.Context, tenantID uuid.UUID, threadID string, filter LedgerFilter) ([]ContradictionRecord, error)
	// Resolve applies a resolution exactly once. Closing actions require the
	// record to still be open; ask_user requires no prior recommendation.
	// Losing either race returns ErrConflict.
	Resolve(ctx context.Context, ledgerID uuid.UUID, tenantID uuid.UUID, res Resolution) (*ContradictionRecord, error)
}

// EmbeddingClient produces vectors for the semantic shortlist and match
// tier. Provider and Model identify where a stored vector came from;
// vectors from different models never compare.
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Provider() string
	Model() string
}

// SemanticMatcher scores how close two normalized values are in meaning,
// in [0,1]. Implementations may be lexical or embedding-backed.
type SemanticMatcher interface {
	Score(ctx context.Context, a, b string) (float32, error)
}

// ChangeClassification is a classifier's verdict on a pair of conflicting
// values.
type ChangeClassification struct {
	Category   ContradictionCategory `json:"category"`
	Confidence float32               `json:"confidence"`
	Rationale  string                `json:"rationale,omitempty"`
}

// ChangeContext is everything a classifier may consider about a detected
// conflict. Old and new are ordered by assertion time when known, by trust
// otherwise.
type ChangeContext struct {
	Slot     Slot
	OldValue string
	NewValue string
	OldText  string
	NewText  string
	Gap      time.Duration
}

// ChangeClassifier decides what kind of change a detected conflict
// represents. Implementations must be safe for concurrent use.
type ChangeClassifier interface {
	ClassifyChange(ctx context.Context, change ChangeContext) (*ChangeClassification, error)
}
