package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verityhq/verity/internal/classify"
	"github.com/verityhq/verity/internal/domain"
)

func conflictDetail(slot domain.Slot, values ...string) domain.ContradictionDetail {
	ids := make([]uuid.UUID, len(values))
	for i := range values {
		ids[i] = uuid.New()
	}
	d := domain.ContradictionDetail{
		Slot:               slot,
		Values:             values,
		MemoryIDs:          ids,
		RequiresDisclosure: true,
	}
	if len(values) > 0 {
		d.WinnerMemoryID = &ids[len(ids)-1]
		d.WinnerValue = values[len(values)-1]
		d.PriorValues = values[:len(values)-1]
	}
	return d
}

func newLedgerFixture() (*LedgerService, *mockLedgerStore, *mockMemoryStore, *classify.MockClassifier) {
	ledgerStore := newMockLedgerStore()
	memoryStore := newMockMemoryStore()
	classifier := classify.NewMockClassifier()
	svc := NewLedgerService(ledgerStore, memoryStore, classifier, zap.NewNop())
	return svc, ledgerStore, memoryStore, classifier
}

func TestLedgerService_Record(t *testing.T) {
	svc, _, _, classifier := newLedgerFixture()
	tenantID := uuid.New()
	classifier.Classification = &domain.ChangeClassification{
		Category:   domain.CategoryRevision,
		Confidence: 0.8,
	}

	detail := conflictDetail(domain.SlotEmployer, "microsoft", "amazon")
	rec, err := svc.Record(context.Background(), tenantID, "thread-1", detail, domain.ChangeContext{
		Slot:     domain.SlotEmployer,
		OldValue: "microsoft",
		NewValue: "amazon",
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rec.LedgerID == uuid.Nil {
		t.Error("ledger id not assigned")
	}
	if rec.Category != domain.CategoryRevision || rec.CategoryConfidence != 0.8 {
		t.Errorf("category = %v/%v, want revision/0.8", rec.Category, rec.CategoryConfidence)
	}
	if rec.Status != domain.StatusOpen {
		t.Errorf("status = %v, want open", rec.Status)
	}
	if len(classifier.Calls) != 1 {
		t.Errorf("classifier calls = %d, want 1", len(classifier.Calls))
	}
}

func TestLedgerService_RecordDuplicateIsConflict(t *testing.T) {
	svc, _, _, _ := newLedgerFixture()
	tenantID := uuid.New()
	detail := conflictDetail(domain.SlotEmployer, "microsoft", "amazon")

	if _, err := svc.Record(context.Background(), tenantID, "thread-1", detail, domain.ChangeContext{}); err != nil {
		t.Fatalf("first Record: %v", err)
	}
	_, err := svc.Record(context.Background(), tenantID, "thread-1", detail, domain.ChangeContext{})
	if !errors.Is(err, ErrLedgerConflict) {
		t.Fatalf("second Record err = %v, want ErrLedgerConflict", err)
	}
}

func TestLedgerService_RecordClassifierFailureDegrades(t *testing.T) {
	svc, _, _, classifier := newLedgerFixture()
	classifier.Err = errors.New("upstream down")

	detail := conflictDetail(domain.SlotLocation, "seattle", "portland")
	rec, err := svc.Record(context.Background(), uuid.New(), "thread-1", detail, domain.ChangeContext{})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rec.Category != domain.CategoryConflict || rec.CategoryConfidence != 0 {
		t.Errorf("category = %v/%v, want conflict/0 on classifier failure", rec.Category, rec.CategoryConfidence)
	}
}

func TestLedgerService_ResolveOverride(t *testing.T) {
	svc, _, memoryStore, _ := newLedgerFixture()
	tenantID := uuid.New()

	older := memoryStore.add(domain.Memory{TenantID: tenantID, ThreadID: "t", Text: "User works at Microsoft", Trust: 0.9})
	newer := memoryStore.add(domain.Memory{TenantID: tenantID, ThreadID: "t", Text: "User works at Amazon", Trust: 0.9})

	detail := domain.ContradictionDetail{
		Slot:      domain.SlotEmployer,
		Values:    []string{"microsoft", "amazon"},
		MemoryIDs: []uuid.UUID{older.ID, newer.ID},
	}
	rec, err := svc.Record(context.Background(), tenantID, "t", detail, domain.ChangeContext{})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	resolved, err := svc.Resolve(context.Background(), tenantID, rec.LedgerID, domain.Resolution{
		Action:         domain.ActionOverride,
		ChosenMemoryID: &newer.ID,
		Confirmation:   "user confirmed the move",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Status != domain.StatusResolved {
		t.Errorf("status = %v, want resolved", resolved.Status)
	}
	if resolved.ResolvedAt == nil {
		t.Error("resolved_at not set")
	}

	loser, err := memoryStore.GetByID(context.Background(), older.ID, tenantID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !loser.Deprecated {
		t.Error("superseded memory not deprecated")
	}
	if loser.DeprecationReason == "" {
		t.Error("deprecation reason empty")
	}
	winner, err := memoryStore.GetByID(context.Background(), newer.ID, tenantID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if winner.Deprecated {
		t.Error("chosen memory must stay active")
	}
}

func TestLedgerService_ResolveValidation(t *testing.T) {
	svc, _, _, _ := newLedgerFixture()
	tenantID := uuid.New()

	detail := conflictDetail(domain.SlotEmployer, "microsoft", "amazon")
	rec, err := svc.Record(context.Background(), tenantID, "t", detail, domain.ChangeContext{})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	t.Run("unknown action", func(t *testing.T) {
		_, err := svc.Resolve(context.Background(), tenantID, rec.LedgerID, domain.Resolution{Action: "delete"})
		if !errors.Is(err, ErrInvalidResolutionAction) {
			t.Errorf("err = %v, want ErrInvalidResolutionAction", err)
		}
	})

	t.Run("override without chosen memory", func(t *testing.T) {
		_, err := svc.Resolve(context.Background(), tenantID, rec.LedgerID, domain.Resolution{Action: domain.ActionOverride})
		if !errors.Is(err, ErrChosenMemoryRequired) {
			t.Errorf("err = %v, want ErrChosenMemoryRequired", err)
		}
	})

	t.Run("override with foreign memory", func(t *testing.T) {
		stranger := uuid.New()
		_, err := svc.Resolve(context.Background(), tenantID, rec.LedgerID, domain.Resolution{
			Action:         domain.ActionOverride,
			ChosenMemoryID: &stranger,
		})
		if !errors.Is(err, ErrChosenMemoryNotInRecord) {
			t.Errorf("err = %v, want ErrChosenMemoryNotInRecord", err)
		}
	})

	t.Run("unknown ledger id", func(t *testing.T) {
		_, err := svc.Resolve(context.Background(), tenantID, uuid.New(), domain.Resolution{Action: domain.ActionPreserve})
		if !errors.Is(err, ErrLedgerNotFound) {
			t.Errorf("err = %v, want ErrLedgerNotFound", err)
		}
	})
}

func TestLedgerService_DoubleResolveIsConflict(t *testing.T) {
	svc, _, _, _ := newLedgerFixture()
	tenantID := uuid.New()

	detail := conflictDetail(domain.SlotEmployer, "microsoft", "amazon")
	rec, err := svc.Record(context.Background(), tenantID, "t", detail, domain.ChangeContext{})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	if _, err := svc.Resolve(context.Background(), tenantID, rec.LedgerID, domain.Resolution{Action: domain.ActionPreserve}); err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	_, err = svc.Resolve(context.Background(), tenantID, rec.LedgerID, domain.Resolution{Action: domain.ActionPreserve})
	if !errors.Is(err, ErrLedgerConflict) {
		t.Fatalf("second Resolve err = %v, want ErrLedgerConflict", err)
	}
}

func TestLedgerService_AskUserKeepsRecordOpen(t *testing.T) {
	svc, _, _, _ := newLedgerFixture()
	tenantID := uuid.New()

	detail := conflictDetail(domain.SlotEmployer, "microsoft", "amazon")
	rec, err := svc.Record(context.Background(), tenantID, "t", detail, domain.ChangeContext{})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	asked, err := svc.Resolve(context.Background(), tenantID, rec.LedgerID, domain.Resolution{Action: domain.ActionAskUser})
	if err != nil {
		t.Fatalf("Resolve ask_user: %v", err)
	}
	if asked.Status != domain.StatusOpen {
		t.Errorf("status = %v, ask_user must keep the record open", asked.Status)
	}
	if asked.ResolutionAction == nil || *asked.ResolutionAction != domain.ActionAskUser {
		t.Errorf("action = %v, want ask_user recorded", asked.ResolutionAction)
	}

	_, err = svc.Resolve(context.Background(), tenantID, rec.LedgerID, domain.Resolution{Action: domain.ActionAskUser})
	if !errors.Is(err, ErrLedgerConflict) {
		t.Errorf("repeated ask_user err = %v, want ErrLedgerConflict", err)
	}

	closed, err := svc.Resolve(context.Background(), tenantID, rec.LedgerID, domain.Resolution{Action: domain.ActionPreserve})
	if err != nil {
		t.Fatalf("closing Resolve after ask_user: %v", err)
	}
	if closed.Status != domain.StatusResolved {
		t.Errorf("status = %v, want resolved after human decision", closed.Status)
	}
}

func TestLedgerService_PreservedPairs(t *testing.T) {
	svc, _, _, _ := newLedgerFixture()
	tenantID := uuid.New()

	detail := conflictDetail(domain.SlotEmployer, "microsoft", "amazon")
	rec, err := svc.Record(context.Background(), tenantID, "t", detail, domain.ChangeContext{})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	open := conflictDetail(domain.SlotLocation, "seattle", "portland")
	if _, err := svc.Record(context.Background(), tenantID, "t", open, domain.ChangeContext{}); err != nil {
		t.Fatalf("Record open: %v", err)
	}

	if _, err := svc.Resolve(context.Background(), tenantID, rec.LedgerID, domain.Resolution{Action: domain.ActionPreserve}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	pairs, err := svc.PreservedPairs(context.Background(), tenantID, "t")
	if err != nil {
		t.Fatalf("PreservedPairs: %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("pairs = %d, want 1", len(pairs))
	}
	key := domain.PreservedKey(domain.SlotEmployer, domain.MemoryKeyFor(detail.MemoryIDs))
	if !pairs[key] {
		t.Errorf("preserved pair key missing: %v", pairs)
	}
}

func TestLedgerService_TimeoutSurfaces(t *testing.T) {
	svc, ledgerStore, _, _ := newLedgerFixture()
	svc.SetTimeout(10 * time.Millisecond)
	ledgerStore.delay = 100 * time.Millisecond

	detail := conflictDetail(domain.SlotEmployer, "microsoft", "amazon")
	_, err := svc.Record(context.Background(), uuid.New(), "t", detail, domain.ChangeContext{})
	if !errors.Is(err, ErrLedgerTimeout) {
		t.Fatalf("err = %v, want ErrLedgerTimeout", err)
	}
}
