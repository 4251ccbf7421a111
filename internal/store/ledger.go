package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/verityhq/verity/internal/domain"
)

// LedgerStore persists contradiction records. Rows are append-only: the only
// mutation is the one-shot resolution, applied as a compare-and-swap so a
// lost race never double-applies.
type LedgerStore struct {
	db *pgxpool.Pool
}

func NewLedgerStore(db *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{db: db}
}

const ledgerColumns = `ledger_id, tenant_id, thread_id, slot, memory_ids, conflict_values, category, category_confidence, status, resolution_action, resolution_confirmation, chosen_memory_id, detected_at, resolved_at`

func (s *LedgerStore) Create(ctx context.Context, rec *domain.ContradictionRecord) error {
	if rec.Status == "" {
		rec.Status = domain.StatusOpen
	}

	// The unique index on (tenant_id, thread_id, slot, memory_key) makes a
	// repeat detection of the same memory set a no-op.
	err := s.db.QueryRow(ctx,
		`INSERT INTO contradiction_ledger (tenant_id, thread_id, slot, memory_ids, memory_key, conflict_values, category, category_confidence, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (tenant_id, thread_id, slot, memory_key) DO NOTHING
		 RETURNING ledger_id, detected_at`,
		rec.TenantID, rec.ThreadID, rec.Slot, rec.MemoryIDs, rec.MemoryKey(), rec.Values, rec.Category, rec.CategoryConfidence, rec.Status,
	).Scan(&rec.LedgerID, &rec.DetectedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrConflict
		}
		return fmt.Errorf("insert ledger record: %w", err)
	}
	return nil
}

func (s *LedgerStore) GetByID(ctx context.Context, ledgerID uuid.UUID, tenantID uuid.UUID) (*domain.ContradictionRecord, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+ledgerColumns+`
		 FROM contradiction_ledger WHERE ledger_id = $1 AND tenant_id = $2`,
		ledgerID, tenantID,
	)
	rec, err := scanLedgerRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (s *LedgerStore) ListByThread(ctx context.Context, tenantID uuid.UUID, threadID string, filter domain.LedgerFilter) ([]domain.ContradictionRecord, error) {
	conditions := []string{"tenant_id = $1", "thread_id = $2"}
	args := []any{tenantID, threadID}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, string(*filter.Status))
	}

	if len(filter.Slots) > 0 {
		slots := make([]string, len(filter.Slots))
		for i, sl := range filter.Slots {
			slots[i] = string(sl)
		}
		conditions = append(conditions, fmt.Sprintf("slot = ANY($%d)", len(args)+1))
		args = append(args, slots)
	}

	query := fmt.Sprintf(
		`SELECT %s FROM contradiction_ledger WHERE %s ORDER BY detected_at ASC`,
		ledgerColumns,
		strings.Join(conditions, " AND "),
	)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger query: %w", err)
	}
	defer rows.Close()

	var records []domain.ContradictionRecord
	for rows.Next() {
		rec, err := scanLedgerRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (s *LedgerStore) Resolve(ctx context.Context, ledgerID uuid.UUID, tenantID uuid.UUID, res domain.Resolution) (*domain.ContradictionRecord, error) {
	var row pgx.Row
	if res.Action.Closes() {
		row = s.db.QueryRow(ctx,
			`UPDATE contradiction_ledger
			 SET status = $3, resolution_action = $4, resolution_confirmation = $5, chosen_memory_id = $6, resolved_at = NOW()
			 WHERE ledger_id = $1 AND tenant_id = $2 AND status = $7
			 RETURNING `+ledgerColumns,
			ledgerID, tenantID, domain.StatusResolved, res.Action, res.Confirmation, res.ChosenMemoryID, domain.StatusOpen,
		)
	} else {
		// ask_user keeps the record open; a repeat recommendation loses the
		// swap and surfaces as a conflict.
		row = s.db.QueryRow(ctx,
			`UPDATE contradiction_ledger
			 SET resolution_action = $3, resolution_confirmation = $4
			 WHERE ledger_id = $1 AND tenant_id = $2 AND status = $5 AND resolution_action IS NULL
			 RETURNING `+ledgerColumns,
			ledgerID, tenantID, res.Action, res.Confirmation, domain.StatusOpen,
		)
	}

	rec, err := scanLedgerRow(row)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("resolve ledger record: %w", err)
	}

	// Zero rows: distinguish a missing record from a lost race.
	var status string
	err = s.db.QueryRow(ctx,
		`SELECT status FROM contradiction_ledger WHERE ledger_id = $1 AND tenant_id = $2`,
		ledgerID, tenantID,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return nil, ErrConflict
}

func scanLedgerRow(row pgx.Row) (*domain.ContradictionRecord, error) {
	rec := &domain.ContradictionRecord{}
	var action *string
	var confirmation *string
	err := row.Scan(
		&rec.LedgerID, &rec.TenantID, &rec.ThreadID, &rec.Slot, &rec.MemoryIDs, &rec.Values,
		&rec.Category, &rec.CategoryConfidence, &rec.Status,
		&action, &confirmation, &rec.ChosenMemoryID, &rec.DetectedAt, &rec.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	if action != nil {
		a := domain.ResolutionAction(*action)
		rec.ResolutionAction = &a
	}
	if confirmation != nil {
		rec.ResolutionConfirmation = *confirmation
	}
	return rec, nil
}
