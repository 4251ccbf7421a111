package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verityhq/verity/internal/domain"
	"github.com/verityhq/verity/internal/store"
)

var (
	ErrLedgerNotFound          = errors.New("ledger record not found")
	ErrLedgerConflict          = errors.New("ledger record already recorded or resolved")
	ErrLedgerTimeout           = errors.New("ledger operation timed out")
	ErrInvalidResolutionAction = errors.New("resolution action must be one of: override, preserve, ask_user")
	ErrChosenMemoryRequired    = errors.New("override resolution requires chosen_memory_id")
	ErrChosenMemoryNotInRecord = errors.New("chosen memory is not part of the record")
)

// DefaultLedgerTimeout bounds every ledger store call. Callers that cannot
// wait treat the timeout as unavailability and fail safe.
const DefaultLedgerTimeout = 2 * time.Second

// LedgerService owns the contradiction ledger: recording detected conflicts,
// applying resolutions exactly once, and answering reads for the gate and
// the API.
type LedgerService struct {
	ledgerStore domain.LedgerStore
	memoryStore domain.MemoryStore
	classifier  domain.ChangeClassifier
	timeout     time.Duration
	logger      *zap.Logger
}

func NewLedgerService(ledgerStore domain.LedgerStore, memoryStore domain.MemoryStore, classifier domain.ChangeClassifier, logger *zap.Logger) *LedgerService {
	return &LedgerService{
		ledgerStore: ledgerStore,
		memoryStore: memoryStore,
		classifier:  classifier,
		timeout:     DefaultLedgerTimeout,
		logger:      logger,
	}
}

// SetTimeout overrides the per-call ledger deadline.
func (s *LedgerService) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// Record appends one detected conflict to the ledger, classifying the change
// first. A record for the same memory set already in the ledger returns
// ErrLedgerConflict and writes nothing. Classifier failures degrade to an
// unclassified conflict rather than losing the record.
func (s *LedgerService) Record(ctx context.Context, tenantID uuid.UUID, threadID string, detail domain.ContradictionDetail, change domain.ChangeContext) (*domain.ContradictionRecord, error) {
	category := domain.CategoryConflict
	var confidence float32
	if verdict, err := s.classifier.ClassifyChange(ctx, change); err != nil {
		s.logger.Warn("change classification failed, recording as conflict",
			zap.String("slot", string(detail.Slot)),
			zap.Error(err))
	} else {
		category = verdict.Category
		confidence = verdict.Confidence
	}

	rec := &domain.ContradictionRecord{
		TenantID:           tenantID,
		ThreadID:           threadID,
		Slot:               detail.Slot,
		MemoryIDs:          detail.MemoryIDs,
		Values:             detail.Values,
		Category:           category,
		CategoryConfidence: confidence,
		Status:             domain.StatusOpen,
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	if err := s.ledgerStore.Create(opCtx, rec); err != nil {
		return nil, s.mapErr(err)
	}

	s.logger.Info("contradiction recorded",
		zap.String("ledger_id", rec.LedgerID.String()),
		zap.String("thread_id", threadID),
		zap.String("slot", string(detail.Slot)),
		zap.String("category", string(category)))
	return rec, nil
}

// Resolve applies one resolution to an open record. OVERRIDE additionally
// deprecates every memory the chosen one supersedes; deprecation failures
// are logged, not fatal, since the resolution itself already committed.
func (s *LedgerService) Resolve(ctx context.Context, tenantID uuid.UUID, ledgerID uuid.UUID, res domain.Resolution) (*domain.ContradictionRecord, error) {
	if !domain.ValidResolutionAction(string(res.Action)) {
		return nil, ErrInvalidResolutionAction
	}
	if res.Action == domain.ActionOverride {
		if res.ChosenMemoryID == nil {
			return nil, ErrChosenMemoryRequired
		}
		rec, err := s.Get(ctx, tenantID, ledgerID)
		if err != nil {
			return nil, err
		}
		member := false
		for _, id := range rec.MemoryIDs {
			if id == *res.ChosenMemoryID {
				member = true
				break
			}
		}
		if !member {
			return nil, ErrChosenMemoryNotInRecord
		}
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	rec, err := s.ledgerStore.Resolve(opCtx, ledgerID, tenantID, res)
	if err != nil {
		return nil, s.mapErr(err)
	}

	if res.Action == domain.ActionOverride {
		s.deprecateLosers(ctx, rec)
	}

	s.logger.Info("contradiction resolved",
		zap.String("ledger_id", ledgerID.String()),
		zap.String("action", string(res.Action)),
		zap.String("status", string(rec.Status)))
	return rec, nil
}

func (s *LedgerService) deprecateLosers(ctx context.Context, rec *domain.ContradictionRecord) {
	reason := fmt.Sprintf("superseded by ledger %s", rec.LedgerID)
	for _, id := range rec.MemoryIDs {
		if rec.ChosenMemoryID != nil && id == *rec.ChosenMemoryID {
			continue
		}
		opCtx, cancel := s.opContext(ctx)
		err := s.memoryStore.MarkDeprecated(opCtx, id, rec.TenantID, reason)
		cancel()
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("failed to deprecate superseded memory",
				zap.String("memory_id", id.String()),
				zap.String("ledger_id", rec.LedgerID.String()),
				zap.Error(err))
		}
	}
}

func (s *LedgerService) Get(ctx context.Context, tenantID uuid.UUID, ledgerID uuid.UUID) (*domain.ContradictionRecord, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	rec, err := s.ledgerStore.GetByID(opCtx, ledgerID, tenantID)
	if err != nil {
		return nil, s.mapErr(err)
	}
	return rec, nil
}

// ListByThread returns the thread's records, optionally filtered by status.
func (s *LedgerService) ListByThread(ctx context.Context, tenantID uuid.UUID, threadID string, status *domain.ContradictionStatus) ([]domain.ContradictionRecord, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	records, err := s.ledgerStore.ListByThread(opCtx, tenantID, threadID, domain.LedgerFilter{Status: status})
	if err != nil {
		return nil, s.mapErr(err)
	}
	return records, nil
}

// ListBySlots returns the thread's records touching any of the given slots.
func (s *LedgerService) ListBySlots(ctx context.Context, tenantID uuid.UUID, threadID string, slots []domain.Slot) ([]domain.ContradictionRecord, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	records, err := s.ledgerStore.ListByThread(opCtx, tenantID, threadID, domain.LedgerFilter{Slots: slots})
	if err != nil {
		return nil, s.mapErr(err)
	}
	return records, nil
}

// PreservedPairs returns the slot/memory-set pairs a preserve resolution has
// blessed for the thread, keyed by domain.PreservedKey. The detector skips
// them.
func (s *LedgerService) PreservedPairs(ctx context.Context, tenantID uuid.UUID, threadID string) (map[string]bool, error) {
	resolved := domain.StatusResolved
	records, err := s.ListByThread(ctx, tenantID, threadID, &resolved)
	if err != nil {
		return nil, err
	}
	pairs := make(map[string]bool)
	for i := range records {
		rec := &records[i]
		if rec.ResolutionAction != nil && *rec.ResolutionAction == domain.ActionPreserve {
			pairs[domain.PreservedKey(rec.Slot, rec.MemoryKey())] = true
		}
	}
	return pairs, nil
}

func (s *LedgerService) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *LedgerService) mapErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrLedgerNotFound
	case errors.Is(err, store.ErrConflict):
		return ErrLedgerConflict
	case errors.Is(err, context.DeadlineExceeded):
		return ErrLedgerTimeout
	}
	return err
}
