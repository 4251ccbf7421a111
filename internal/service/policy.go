package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verityhq/verity/internal/domain"
)

// PolicyService applies the default resolution for a record's category:
// refinements preserve, revisions and temporal changes override, plain
// conflicts escalate to the user. The table lives on
// domain.ContradictionCategory.
type PolicyService struct {
	ledger      *LedgerService
	memoryStore domain.MemoryStore
	logger      *zap.Logger
}

func NewPolicyService(ledger *LedgerService, memoryStore domain.MemoryStore, logger *zap.Logger) *PolicyService {
	return &PolicyService{
		ledger:      ledger,
		memoryStore: memoryStore,
		logger:      logger,
	}
}

// ApplyDefault resolves the record with its category's default action. For
// an override the strongest referenced memory wins: highest trust, then most
// recently asserted. When no referenced memory can be loaded the decision
// falls back to asking the user.
func (s *PolicyService) ApplyDefault(ctx context.Context, tenantID uuid.UUID, ledgerID uuid.UUID) (*domain.ContradictionRecord, error) {
	rec, err := s.ledger.Get(ctx, tenantID, ledgerID)
	if err != nil {
		return nil, err
	}

	action := rec.Category.DefaultAction()
	res := domain.Resolution{
		Action:       action,
		Confirmation: fmt.Sprintf("policy default for %s", rec.Category),
	}

	if action == domain.ActionOverride {
		winner := s.pickWinner(ctx, rec)
		if winner == nil {
			s.logger.Warn("no loadable memory to choose for override, asking user",
				zap.String("ledger_id", ledgerID.String()))
			res.Action = domain.ActionAskUser
			res.Confirmation = fmt.Sprintf("policy default for %s, but no winner could be determined", rec.Category)
		} else {
			res.ChosenMemoryID = &winner.ID
		}
	}

	return s.ledger.Resolve(ctx, tenantID, ledgerID, res)
}

func (s *PolicyService) pickWinner(ctx context.Context, rec *domain.ContradictionRecord) *domain.Memory {
	var winner *domain.Memory
	for _, id := range rec.MemoryIDs {
		m, err := s.memoryStore.GetByID(ctx, id, rec.TenantID)
		if err != nil {
			s.logger.Warn("referenced memory not loadable",
				zap.String("memory_id", id.String()),
				zap.String("ledger_id", rec.LedgerID.String()),
				zap.Error(err))
			continue
		}
		if winner == nil || strongerSupport(m, winner) {
			winner = m
		}
	}
	return winner
}
