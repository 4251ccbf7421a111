package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verityhq/verity/internal/domain"
	"github.com/verityhq/verity/internal/store"
)

var (
	ErrMemoryNotFound  = errors.New("memory not found")
	ErrMemoryTextEmpty = errors.New("memory text is required")
	ErrThreadIDMissing = errors.New("thread_id is required")
	ErrInvalidTrust    = errors.New("trust must be between 0 and 1")
	ErrInvalidSource   = errors.New("source must be one of: user, importer, derived")
)

// MemoryService is the intake surface for externally written memories. It
// never deletes; deprecation happens only through ledger overrides.
type MemoryService struct {
	memoryStore     domain.MemoryStore
	embeddingClient domain.EmbeddingClient
	logger          *zap.Logger
}

func NewMemoryService(memoryStore domain.MemoryStore, embeddingClient domain.EmbeddingClient, logger *zap.Logger) *MemoryService {
	return &MemoryService{
		memoryStore:     memoryStore,
		embeddingClient: embeddingClient,
		logger:          logger,
	}
}

// Create validates and persists one memory. A zero trust means the writer
// did not score it, so the source's default applies. Embedding failures
// degrade to storing without a vector.
func (s *MemoryService) Create(ctx context.Context, m *domain.Memory) error {
	if m.Text == "" {
		return ErrMemoryTextEmpty
	}
	if m.ThreadID == "" {
		return ErrThreadIDMissing
	}
	if !domain.ValidTrust(m.Trust) {
		return ErrInvalidTrust
	}
	if m.Source == "" {
		m.Source = domain.SourceUser
	} else if !domain.ValidMemorySource(string(m.Source)) {
		return ErrInvalidSource
	}
	if m.Trust == 0 {
		m.Trust = m.Source.InitialTrust()
	}

	if s.embeddingClient != nil && len(m.Embedding) == 0 {
		emb, err := s.embeddingClient.Embed(ctx, m.Text)
		if err != nil {
			s.logger.Warn("embedding memory failed, storing without vector",
				zap.String("thread_id", m.ThreadID),
				zap.Error(err))
		} else {
			m.Embedding = emb
			m.EmbeddingProvider = s.embeddingClient.Provider()
			m.EmbeddingModel = s.embeddingClient.Model()
		}
	}

	if err := s.memoryStore.Create(ctx, m); err != nil {
		return err
	}
	s.logger.Info("memory created",
		zap.String("memory_id", m.ID.String()),
		zap.String("thread_id", m.ThreadID),
		zap.Float32("trust", m.Trust))
	return nil
}

func (s *MemoryService) GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*domain.Memory, error) {
	m, err := s.memoryStore.GetByID(ctx, id, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMemoryNotFound
		}
		return nil, err
	}
	return m, nil
}

// ListActive returns the thread's non-deprecated memories, strongest first.
func (s *MemoryService) ListActive(ctx context.Context, tenantID uuid.UUID, threadID string, limit int) ([]domain.Memory, error) {
	if threadID == "" {
		return nil, ErrThreadIDMissing
	}
	if limit <= 0 {
		limit = DefaultMaxMemories
	}
	return s.memoryStore.ListActiveByThread(ctx, tenantID, threadID, limit)
}
