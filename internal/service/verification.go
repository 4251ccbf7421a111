package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verityhq/verity/internal/domain"
)

var (
	ErrTextRequired      = errors.New("text is required")
	ErrInvalidVerifyMode = errors.New("mode must be advisory or strict")
)

// VerificationService wraps the pure verifier with storage: it loads the
// thread's memories when the caller supplies none, feeds preserve
// resolutions into detection, and appends every detected conflict to the
// ledger.
type VerificationService struct {
	verifier        *Verifier
	memoryStore     domain.MemoryStore
	ledger          *LedgerService
	embeddingClient domain.EmbeddingClient
	maxMemories     int
	logger          *zap.Logger
}

func NewVerificationService(verifier *Verifier, memoryStore domain.MemoryStore, ledger *LedgerService, logger *zap.Logger) *VerificationService {
	return &VerificationService{
		verifier:    verifier,
		memoryStore: memoryStore,
		ledger:      ledger,
		maxMemories: DefaultMaxMemories,
		logger:      logger,
	}
}

// SetEmbeddingClient enables relevance-ordered memory loading. Without it
// memories load in trust order.
func (s *VerificationService) SetEmbeddingClient(client domain.EmbeddingClient) {
	s.embeddingClient = client
}

// SetMaxMemories overrides how many memories are loaded per verification.
func (s *VerificationService) SetMaxMemories(n int) {
	if n > 0 {
		s.maxMemories = n
	}
}

// VerifyOutcome is a verification result plus the ledger records it created.
type VerifyOutcome struct {
	Result    *domain.VerificationResult `json:"result"`
	LedgerIDs []uuid.UUID                `json:"ledger_ids,omitempty"`
}

// VerifyAndRecord verifies the text against the thread's memories (or the
// inline set when given) and appends each newly detected conflict to the
// ledger. Conflicts already ledgered for the same memory set are skipped.
func (s *VerificationService) VerifyAndRecord(ctx context.Context, tenantID uuid.UUID, threadID string, text string, mode domain.VerifyMode, inline []domain.Memory) (*VerifyOutcome, error) {
	if text == "" {
		return nil, ErrTextRequired
	}
	if mode != "" && !domain.ValidVerifyMode(string(mode)) {
		return nil, ErrInvalidVerifyMode
	}
	if threadID == "" {
		return nil, ErrThreadIDMissing
	}

	memories := inline
	if len(memories) == 0 {
		loaded, err := s.loadMemories(ctx, tenantID, threadID, text)
		if err != nil {
			return nil, fmt.Errorf("load thread memories: %w", err)
		}
		memories = loaded
	}

	preserved, err := s.ledger.PreservedPairs(ctx, tenantID, threadID)
	if err != nil {
		s.logger.Warn("preserved pairs unavailable, conflicts may be re-flagged",
			zap.String("thread_id", threadID),
			zap.Error(err))
		preserved = nil
	}

	result := s.verifier.Verify(ctx, VerifyInput{
		Text:      text,
		Memories:  memories,
		Mode:      mode,
		Preserved: preserved,
	})

	byID := make(map[uuid.UUID]*domain.Memory, len(memories))
	for i := range memories {
		byID[memories[i].ID] = &memories[i]
	}

	outcome := &VerifyOutcome{Result: result}
	for _, detail := range result.ContradictionDetails {
		rec, err := s.ledger.Record(ctx, tenantID, threadID, detail, changeContextFor(detail, byID))
		if errors.Is(err, ErrLedgerConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("record contradiction: %w", err)
		}
		outcome.LedgerIDs = append(outcome.LedgerIDs, rec.LedgerID)
	}
	return outcome, nil
}

func (s *VerificationService) loadMemories(ctx context.Context, tenantID uuid.UUID, threadID string, text string) ([]domain.Memory, error) {
	if s.embeddingClient != nil {
		emb, err := s.embeddingClient.Embed(ctx, text)
		if err != nil {
			s.logger.Warn("embedding candidate text failed, falling back to trust order",
				zap.String("thread_id", threadID),
				zap.Error(err))
		} else if len(emb) > 0 {
			return s.memoryStore.ListRelevantByThread(ctx, tenantID, threadID, emb, s.maxMemories)
		}
	}
	return s.memoryStore.ListActiveByThread(ctx, tenantID, threadID, s.maxMemories)
}
