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
	"github.com/verityhq/verity/internal/embedding"
)

type verificationFixture struct {
	svc         *VerificationService
	ledger      *LedgerService
	ledgerStore *mockLedgerStore
	memoryStore *mockMemoryStore
	tenantID    uuid.UUID
}

func newVerificationFixture() *verificationFixture {
	logger := zap.NewNop()
	ledgerStore := newMockLedgerStore()
	memoryStore := newMockMemoryStore()
	ledger := NewLedgerService(ledgerStore, memoryStore, classify.NewMockClassifier(), logger)
	svc := NewVerificationService(newTestVerifier(), memoryStore, ledger, logger)
	return &verificationFixture{
		svc:         svc,
		ledger:      ledger,
		ledgerStore: ledgerStore,
		memoryStore: memoryStore,
		tenantID:    uuid.New(),
	}
}

func (f *verificationFixture) seedEmployerConflict(t *testing.T) (older, newer *domain.Memory) {
	t.Helper()
	now := time.Now()
	past := now.Add(-time.Hour)
	older = f.memoryStore.add(domain.Memory{
		TenantID: f.tenantID, ThreadID: "thread-1",
		Text: "User works at Microsoft", Trust: 0.9, Timestamp: &past,
	})
	newer = f.memoryStore.add(domain.Memory{
		TenantID: f.tenantID, ThreadID: "thread-1",
		Text: "User works at Amazon", Trust: 0.9, Timestamp: &now,
	})
	return older, newer
}

func TestVerificationService_VerifyAndRecord(t *testing.T) {
	f := newVerificationFixture()
	f.seedEmployerConflict(t)

	outcome, err := f.svc.VerifyAndRecord(context.Background(), f.tenantID, "thread-1", "You work at Amazon.", domain.ModeAdvisory, nil)
	if err != nil {
		t.Fatalf("VerifyAndRecord: %v", err)
	}
	if outcome.Result.Passed {
		t.Error("Passed = true for an undisclosed conflict")
	}
	if len(outcome.LedgerIDs) != 1 {
		t.Fatalf("ledger ids = %d, want 1", len(outcome.LedgerIDs))
	}

	rec, err := f.ledger.Get(context.Background(), f.tenantID, outcome.LedgerIDs[0])
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Slot != domain.SlotEmployer || rec.Status != domain.StatusOpen {
		t.Errorf("record = %v/%v, want open employer conflict", rec.Slot, rec.Status)
	}
	if len(rec.Values) != len(rec.MemoryIDs) {
		t.Errorf("values/memory ids not parallel: %d vs %d", len(rec.Values), len(rec.MemoryIDs))
	}
}

func TestVerificationService_RepeatDetectionIsNoOp(t *testing.T) {
	f := newVerificationFixture()
	f.seedEmployerConflict(t)

	first, err := f.svc.VerifyAndRecord(context.Background(), f.tenantID, "thread-1", "You work at Amazon.", "", nil)
	if err != nil {
		t.Fatalf("first VerifyAndRecord: %v", err)
	}
	if len(first.LedgerIDs) != 1 {
		t.Fatalf("first ledger ids = %d, want 1", len(first.LedgerIDs))
	}

	second, err := f.svc.VerifyAndRecord(context.Background(), f.tenantID, "thread-1", "You work at Amazon.", "", nil)
	if err != nil {
		t.Fatalf("second VerifyAndRecord: %v", err)
	}
	if len(second.LedgerIDs) != 0 {
		t.Errorf("second ledger ids = %v, duplicate detection must not append", second.LedgerIDs)
	}

	records, err := f.ledger.ListByThread(context.Background(), f.tenantID, "thread-1", nil)
	if err != nil {
		t.Fatalf("ListByThread: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("ledger records = %d, want 1", len(records))
	}
}

func TestVerificationService_PreserveStopsReflagging(t *testing.T) {
	f := newVerificationFixture()
	f.seedEmployerConflict(t)

	outcome, err := f.svc.VerifyAndRecord(context.Background(), f.tenantID, "thread-1", "You work at Amazon.", "", nil)
	if err != nil {
		t.Fatalf("VerifyAndRecord: %v", err)
	}
	if _, err := f.ledger.Resolve(context.Background(), f.tenantID, outcome.LedgerIDs[0], domain.Resolution{
		Action:       domain.ActionPreserve,
		Confirmation: "user works both jobs",
	}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	after, err := f.svc.VerifyAndRecord(context.Background(), f.tenantID, "thread-1", "You work at Amazon.", "", nil)
	if err != nil {
		t.Fatalf("VerifyAndRecord after preserve: %v", err)
	}
	if !after.Result.Passed {
		t.Errorf("Passed = false after preserve: %+v", after.Result)
	}
	if len(after.Result.ContradictionDetails) != 0 {
		t.Errorf("details = %+v, preserved pair must not re-flag", after.Result.ContradictionDetails)
	}
	if len(after.LedgerIDs) != 0 {
		t.Errorf("ledger ids = %v, want none", after.LedgerIDs)
	}
}

func TestVerificationService_OverrideRemovesConflict(t *testing.T) {
	f := newVerificationFixture()
	_, newer := f.seedEmployerConflict(t)

	outcome, err := f.svc.VerifyAndRecord(context.Background(), f.tenantID, "thread-1", "You work at Amazon.", "", nil)
	if err != nil {
		t.Fatalf("VerifyAndRecord: %v", err)
	}
	if _, err := f.ledger.Resolve(context.Background(), f.tenantID, outcome.LedgerIDs[0], domain.Resolution{
		Action:         domain.ActionOverride,
		ChosenMemoryID: &newer.ID,
	}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	after, err := f.svc.VerifyAndRecord(context.Background(), f.tenantID, "thread-1", "You work at Amazon.", "", nil)
	if err != nil {
		t.Fatalf("VerifyAndRecord after override: %v", err)
	}
	if !after.Result.Passed {
		t.Errorf("Passed = false after override deprecated the loser: %+v", after.Result)
	}
	if len(after.Result.ContradictionDetails) != 0 {
		t.Errorf("details = %+v, want none", after.Result.ContradictionDetails)
	}
}

func TestVerificationService_InlineMemories(t *testing.T) {
	f := newVerificationFixture()
	now := time.Now()

	inline := []domain.Memory{testMemory("User lives in Seattle", 1.0, now)}
	outcome, err := f.svc.VerifyAndRecord(context.Background(), f.tenantID, "thread-1", "You live in Seattle.", "", inline)
	if err != nil {
		t.Fatalf("VerifyAndRecord: %v", err)
	}
	if !outcome.Result.Passed {
		t.Errorf("Passed = false with inline grounding: %+v", outcome.Result)
	}
}

func TestVerificationService_Validation(t *testing.T) {
	f := newVerificationFixture()

	if _, err := f.svc.VerifyAndRecord(context.Background(), f.tenantID, "thread-1", "", "", nil); !errors.Is(err, ErrTextRequired) {
		t.Errorf("empty text err = %v, want ErrTextRequired", err)
	}
	if _, err := f.svc.VerifyAndRecord(context.Background(), f.tenantID, "thread-1", "hi", "loose", nil); !errors.Is(err, ErrInvalidVerifyMode) {
		t.Errorf("bad mode err = %v, want ErrInvalidVerifyMode", err)
	}
	if _, err := f.svc.VerifyAndRecord(context.Background(), f.tenantID, "", "hi", "", nil); !errors.Is(err, ErrThreadIDMissing) {
		t.Errorf("missing thread err = %v, want ErrThreadIDMissing", err)
	}
}

func TestVerificationService_LedgerReadFailureStillVerifies(t *testing.T) {
	f := newVerificationFixture()
	f.seedEmployerConflict(t)
	f.ledgerStore.listErr = errors.New("ledger read down")

	outcome, err := f.svc.VerifyAndRecord(context.Background(), f.tenantID, "thread-1", "You work at Amazon.", "", nil)
	if err != nil {
		t.Fatalf("VerifyAndRecord: %v", err)
	}
	if outcome.Result.Passed {
		t.Error("Passed = true, conflict must still be detected without preserve data")
	}
	if len(outcome.LedgerIDs) != 1 {
		t.Errorf("ledger ids = %d, recording should still happen", len(outcome.LedgerIDs))
	}
}

func TestVerificationService_EmbeddingShortlist(t *testing.T) {
	f := newVerificationFixture()
	f.seedEmployerConflict(t)

	client := embedding.NewMockClient()
	f.svc.SetEmbeddingClient(client)

	if _, err := f.svc.VerifyAndRecord(context.Background(), f.tenantID, "thread-1", "You work at Amazon.", "", nil); err != nil {
		t.Fatalf("VerifyAndRecord: %v", err)
	}
	if len(client.EmbedCalls) != 1 {
		t.Errorf("embed calls = %d, want 1", len(client.EmbedCalls))
	}

	client.EmbedError = errors.New("embedder down")
	if _, err := f.svc.VerifyAndRecord(context.Background(), f.tenantID, "thread-1", "You live in Seattle.", "", nil); err != nil {
		t.Fatalf("VerifyAndRecord with failing embedder: %v", err)
	}
}
