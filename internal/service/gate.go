package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verityhq/verity/internal/domain"
)

// Gate block reasons. Clarification text is always natural language; the
// reason is the machine-readable code.
const (
	GateReasonOpenContradiction = "open_contradiction"
	GateReasonLedgerUnavailable = "ledger_unavailable"
)

// GateService decides whether an answer touching the given slots may be
// given. It never returns an error: when the ledger cannot be read the gate
// blocks, because answering from possibly conflicting memory is worse than
// asking the user to wait.
type GateService struct {
	ledger *LedgerService
	logger *zap.Logger
}

func NewGateService(ledger *LedgerService, logger *zap.Logger) *GateService {
	return &GateService{ledger: ledger, logger: logger}
}

// Check evaluates the thread's ledger records for the inferred slots. Any
// open record blocks with a clarification question; resolved records let the
// answer through with a caveat describing what changed.
func (s *GateService) Check(ctx context.Context, tenantID uuid.UUID, threadID string, slots []domain.Slot) *domain.GateDecision {
	if len(slots) == 0 {
		return &domain.GateDecision{Passed: true}
	}

	records, err := s.ledger.ListBySlots(ctx, tenantID, threadID, slots)
	if err != nil {
		s.logger.Warn("gate check failed to read ledger, blocking",
			zap.String("thread_id", threadID),
			zap.Error(err))
		return &domain.GateDecision{
			Passed:        false,
			Reason:        GateReasonLedgerUnavailable,
			Clarification: "I can't check my records for consistency right now, so I'd rather not answer from memory. Please try again in a moment.",
		}
	}

	var open []domain.ContradictionRecord
	var resolved []domain.ContradictionRecord
	for _, rec := range records {
		if rec.Pending() {
			open = append(open, rec)
		} else {
			resolved = append(resolved, rec)
		}
	}

	if len(open) > 0 {
		return s.blockedDecision(open)
	}

	decision := &domain.GateDecision{Passed: true}
	if caveat := resolutionCaveat(resolved); caveat != "" {
		decision.Caveat = caveat
	}
	return decision
}

func (s *GateService) blockedDecision(open []domain.ContradictionRecord) *domain.GateDecision {
	var sentences []string
	ids := make([]string, 0, len(open))
	for i := range open {
		rec := &open[i]
		ids = append(ids, rec.LedgerID.String())
		values := rec.DistinctValues()
		sentences = append(sentences, fmt.Sprintf(
			"I have conflicting records for your %s: %s.",
			rec.Slot, joinList(values)))
	}
	clarification := strings.Join(sentences, " ") + " Which is correct?"

	return &domain.GateDecision{
		Passed:        false,
		Reason:        GateReasonOpenContradiction,
		Clarification: clarification,
		OpenLedgerIDs: ids,
	}
}

// resolutionCaveat summarizes how past conflicts on the requested slots were
// settled. Identical caveats collapse to one.
func resolutionCaveat(resolved []domain.ContradictionRecord) string {
	var parts []string
	for i := range resolved {
		rec := &resolved[i]
		if rec.ResolutionAction == nil {
			continue
		}
		var caveat string
		switch *rec.ResolutionAction {
		case domain.ActionOverride:
			caveat = ChangeCaveat(rec.PriorValues())
		case domain.ActionPreserve:
			values := rec.DistinctValues()
			if len(values) > 0 {
				caveat = fmt.Sprintf("(keeping both %s)", joinList(values))
			}
		}
		if caveat != "" {
			parts = append(parts, caveat)
		}
	}
	return strings.Join(dedupeValues(parts), " ")
}
