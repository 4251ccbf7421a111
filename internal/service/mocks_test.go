package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/verityhq/verity/internal/domain"
	"github.com/verityhq/verity/internal/store"
)

// mockMemoryStore implements domain.MemoryStore for testing.
type mockMemoryStore struct {
	mu           sync.Mutex
	memories     map[uuid.UUID]*domain.Memory
	createErr    error
	listErr      error
	deprecateErr error
	deprecated   []uuid.UUID
}

func newMockMemoryStore() *mockMemoryStore {
	return &mockMemoryStore{memories: make(map[uuid.UUID]*domain.Memory)}
}

func (m *mockMemoryStore) add(mem domain.Memory) *domain.Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mem.ID == uuid.Nil {
		mem.ID = uuid.New()
	}
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = time.Now()
	}
	m.memories[mem.ID] = &mem
	return &mem
}

func (m *mockMemoryStore) Create(ctx context.Context, mem *domain.Memory) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	mem.ID = uuid.New()
	mem.CreatedAt = time.Now()
	mem.UpdatedAt = mem.CreatedAt
	cp := *mem
	m.memories[mem.ID] = &cp
	return nil
}

func (m *mockMemoryStore) GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*domain.Memory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.memories[id]
	if !ok || mem.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	cp := *mem
	return &cp, nil
}

func (m *mockMemoryStore) ListActiveByThread(ctx context.Context, tenantID uuid.UUID, threadID string, limit int) ([]domain.Memory, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Memory
	for _, mem := range m.memories {
		if mem.TenantID == tenantID && mem.ThreadID == threadID && !mem.Deprecated {
			out = append(out, *mem)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Trust != out[j].Trust {
			return out[i].Trust > out[j].Trust
		}
		return out[i].AssertedAt().After(out[j].AssertedAt())
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockMemoryStore) ListRelevantByThread(ctx context.Context, tenantID uuid.UUID, threadID string, embedding []float32, limit int) ([]domain.Memory, error) {
	return m.ListActiveByThread(ctx, tenantID, threadID, limit)
}

func (m *mockMemoryStore) MarkDeprecated(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, reason string) error {
	if m.deprecateErr != nil {
		return m.deprecateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.memories[id]
	if !ok || mem.TenantID != tenantID {
		return store.ErrNotFound
	}
	mem.Deprecated = true
	mem.DeprecationReason = reason
	m.deprecated = append(m.deprecated, id)
	return nil
}

func (m *mockMemoryStore) ListThreadsUpdatedSince(ctx context.Context, since time.Time, limit int) ([]domain.ThreadRef, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[domain.ThreadRef]bool)
	var out []domain.ThreadRef
	for _, mem := range m.memories {
		ref := domain.ThreadRef{TenantID: mem.TenantID, ThreadID: mem.ThreadID}
		if mem.UpdatedAt.After(since) || mem.CreatedAt.After(since) {
			if !seen[ref] {
				seen[ref] = true
				out = append(out, ref)
			}
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// mockLedgerStore implements domain.LedgerStore with the same uniqueness and
// compare-and-swap behavior as the Postgres store.
type mockLedgerStore struct {
	mu         sync.Mutex
	records    map[uuid.UUID]*domain.ContradictionRecord
	byKey      map[string]uuid.UUID
	createErr  error
	getErr     error
	listErr    error
	resolveErr error
	delay      time.Duration
}

func newMockLedgerStore() *mockLedgerStore {
	return &mockLedgerStore{
		records: make(map[uuid.UUID]*domain.ContradictionRecord),
		byKey:   make(map[string]uuid.UUID),
	}
}

func (m *mockLedgerStore) wait(ctx context.Context) error {
	if m.delay == 0 {
		return nil
	}
	select {
	case <-time.After(m.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *mockLedgerStore) uniqueKey(rec *domain.ContradictionRecord) string {
	return rec.TenantID.String() + "|" + rec.ThreadID + "|" + string(rec.Slot) + "|" + rec.MemoryKey()
}

func (m *mockLedgerStore) Create(ctx context.Context, rec *domain.ContradictionRecord) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := m.uniqueKey(rec)
	if _, ok := m.byKey[key]; ok {
		return store.ErrConflict
	}
	rec.LedgerID = uuid.New()
	rec.DetectedAt = time.Now()
	if rec.Status == "" {
		rec.Status = domain.StatusOpen
	}
	cp := *rec
	m.records[rec.LedgerID] = &cp
	m.byKey[key] = rec.LedgerID
	return nil
}

func (m *mockLedgerStore) GetByID(ctx context.Context, ledgerID uuid.UUID, tenantID uuid.UUID) (*domain.ContradictionRecord, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[ledgerID]
	if !ok || rec.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *mockLedgerStore) ListByThread(ctx context.Context, tenantID uuid.UUID, threadID string, filter domain.LedgerFilter) ([]domain.ContradictionRecord, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	slotSet := make(map[domain.Slot]bool, len(filter.Slots))
	for _, sl := range filter.Slots {
		slotSet[sl] = true
	}
	var out []domain.ContradictionRecord
	for _, rec := range m.records {
		if rec.TenantID != tenantID || rec.ThreadID != threadID {
			continue
		}
		if filter.Status != nil && rec.Status != *filter.Status {
			continue
		}
		if len(slotSet) > 0 && !slotSet[rec.Slot] {
			continue
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.Before(out[j].DetectedAt) })
	return out, nil
}

func (m *mockLedgerStore) Resolve(ctx context.Context, ledgerID uuid.UUID, tenantID uuid.UUID, res domain.Resolution) (*domain.ContradictionRecord, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if m.resolveErr != nil {
		return nil, m.resolveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[ledgerID]
	if !ok || rec.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	if res.Action.Closes() {
		if rec.Status != domain.StatusOpen {
			return nil, store.ErrConflict
		}
		now := time.Now()
		rec.Status = domain.StatusResolved
		rec.ResolutionAction = &res.Action
		rec.ResolutionConfirmation = res.Confirmation
		rec.ChosenMemoryID = res.ChosenMemoryID
		rec.ResolvedAt = &now
	} else {
		if rec.Status != domain.StatusOpen || rec.ResolutionAction != nil {
			return nil, store.ErrConflict
		}
		rec.ResolutionAction = &res.Action
		rec.ResolutionConfirmation = res.Confirmation
	}
	cp := *rec
	return &cp, nil
}
