package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/verityhq/verity/internal/domain"
)

type MemoryStore struct {
	db *pgxpool.Pool
}

func NewMemoryStore(db *pgxpool.Pool) *MemoryStore {
	return &MemoryStore{db: db}
}

func (s *MemoryStore) Create(ctx context.Context, m *domain.Memory) error {
	var embedding *pgvector.Vector
	if len(m.Embedding) > 0 {
		v := pgvector.NewVector(m.Embedding)
		embedding = &v
	}

	if m.Source == "" {
		m.Source = domain.SourceUser
	}

	return s.db.QueryRow(ctx,
		`INSERT INTO memories (tenant_id, thread_id, text, trust, asserted_at, embedding, embedding_provider, embedding_model, source)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at, updated_at`,
		m.TenantID, m.ThreadID, m.Text, m.Trust, m.Timestamp, embedding, m.EmbeddingProvider, m.EmbeddingModel, m.Source,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
}

func (s *MemoryStore) GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*domain.Memory, error) {
	m := &domain.Memory{}
	err := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, thread_id, text, trust, asserted_at, embedding_provider, embedding_model, source, deprecated, deprecation_reason, created_at, updated_at
		 FROM memories WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	).Scan(&m.ID, &m.TenantID, &m.ThreadID, &m.Text, &m.Trust, &m.Timestamp, &m.EmbeddingProvider, &m.EmbeddingModel, &m.Source, &m.Deprecated, &m.DeprecationReason, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (s *MemoryStore) ListActiveByThread(ctx context.Context, tenantID uuid.UUID, threadID string, limit int) ([]domain.Memory, error) {
	if limit <= 0 {
		limit = 64
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, tenant_id, thread_id, text, trust, asserted_at, embedding_provider, embedding_model, source, deprecated, deprecation_reason, created_at, updated_at
		 FROM memories
		 WHERE tenant_id = $1 AND thread_id = $2 AND NOT deprecated
		 ORDER BY trust DESC, COALESCE(asserted_at, created_at) DESC
		 LIMIT $3`,
		tenantID, threadID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list active query: %w", err)
	}
	defer rows.Close()

	return scanMemories(rows)
}

func (s *MemoryStore) ListRelevantByThread(ctx context.Context, tenantID uuid.UUID, threadID string, embedding []float32, limit int) ([]domain.Memory, error) {
	if limit <= 0 {
		limit = 64
	}
	if len(embedding) == 0 {
		return s.ListActiveByThread(ctx, tenantID, threadID, limit)
	}

	vec := pgvector.NewVector(embedding)

	// Scored memories first, then the ones without embeddings.
	rows, err := s.db.Query(ctx,
		`SELECT id, tenant_id, thread_id, text, trust, asserted_at, embedding_provider, embedding_model, source, deprecated, deprecation_reason, created_at, updated_at
		 FROM memories
		 WHERE tenant_id = $1 AND thread_id = $2 AND NOT deprecated
		 ORDER BY (embedding IS NULL), embedding <=> $3, trust DESC
		 LIMIT $4`,
		tenantID, threadID, vec, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list relevant query: %w", err)
	}
	defer rows.Close()

	return scanMemories(rows)
}

func (s *MemoryStore) MarkDeprecated(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, reason string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE memories
		 SET deprecated = TRUE, deprecation_reason = $3, updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2`,
		id, tenantID, reason,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MemoryStore) ListThreadsUpdatedSince(ctx context.Context, since time.Time, limit int) ([]domain.ThreadRef, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(ctx,
		`SELECT DISTINCT tenant_id, thread_id FROM memories WHERE updated_at >= $1 LIMIT $2`,
		since, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []domain.ThreadRef
	for rows.Next() {
		var r domain.ThreadRef
		if err := rows.Scan(&r.TenantID, &r.ThreadID); err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

func scanMemories(rows pgx.Rows) ([]domain.Memory, error) {
	var memories []domain.Memory
	for rows.Next() {
		var m domain.Memory
		if err := rows.Scan(&m.ID, &m.TenantID, &m.ThreadID, &m.Text, &m.Trust, &m.Timestamp, &m.EmbeddingProvider, &m.EmbeddingModel, &m.Source, &m.Deprecated, &m.DeprecationReason, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}
