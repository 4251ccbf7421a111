package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/verityhq/verity/internal/domain"
)

// DefaultSemanticThreshold is the minimum similarity score a memory value
// must reach before it can ground a claim at the semantic tier.
const DefaultSemanticThreshold float32 = 0.85

// GroundingMatcher checks extracted claims against memory-derived facts,
// first by exact normalized equality and then by semantic similarity.
type GroundingMatcher struct {
	matcher           domain.SemanticMatcher
	weights           domain.TierWeights
	semanticThreshold float32
	logger            *zap.Logger
}

func NewGroundingMatcher(matcher domain.SemanticMatcher, logger *zap.Logger) *GroundingMatcher {
	return &GroundingMatcher{
		matcher:           matcher,
		weights:           domain.DefaultTierWeights,
		semanticThreshold: DefaultSemanticThreshold,
		logger:            logger,
	}
}

// SetTierWeights overrides the per-tier confidence weights.
func (g *GroundingMatcher) SetTierWeights(weights domain.TierWeights) {
	if len(weights) > 0 {
		g.weights = weights
	}
}

// SetSemanticThreshold overrides the minimum semantic match score.
func (g *GroundingMatcher) SetSemanticThreshold(threshold float32) {
	if threshold > 0 && threshold <= 1 {
		g.semanticThreshold = threshold
	}
}

// Ground matches each claim against the facts for its slot. Claims no fact
// supports are returned as hallucinations. Each grounded claim carries the
// tier it matched at and a contribution of tier weight scaled by the trust
// of the supporting memory.
func (g *GroundingMatcher) Ground(ctx context.Context, claims []domain.Claim, facts map[domain.Slot][]MemoryFact) ([]domain.GroundedFact, []domain.Claim) {
	var grounded []domain.GroundedFact
	var hallucinations []domain.Claim

	for _, claim := range claims {
		candidates := facts[claim.Slot]
		if len(candidates) == 0 {
			hallucinations = append(hallucinations, claim)
			continue
		}

		if fact, ok := g.exactMatch(claim, candidates); ok {
			grounded = append(grounded, g.groundedFact(claim, fact, domain.TierExact))
			continue
		}
		if fact, ok := g.semanticMatch(ctx, claim, candidates); ok {
			grounded = append(grounded, g.groundedFact(claim, fact, domain.TierSemantic))
			continue
		}

		hallucinations = append(hallucinations, claim)
	}

	return grounded, hallucinations
}

func (g *GroundingMatcher) groundedFact(claim domain.Claim, fact MemoryFact, tier domain.GroundTier) domain.GroundedFact {
	return domain.GroundedFact{
		Claim:        claim,
		MemoryID:     fact.Memory.ID,
		Tier:         tier,
		Contribution: g.weights.Weight(tier) * fact.Memory.Trust,
	}
}

// exactMatch prefers the most trusted supporting memory, breaking ties by
// the most recently asserted one.
func (g *GroundingMatcher) exactMatch(claim domain.Claim, candidates []MemoryFact) (MemoryFact, bool) {
	var best MemoryFact
	found := false
	for _, fact := range candidates {
		if fact.Claim.Normalized != claim.Normalized {
			continue
		}
		if !found || betterSupport(fact, best) {
			best = fact
			found = true
		}
	}
	return best, found
}

func (g *GroundingMatcher) semanticMatch(ctx context.Context, claim domain.Claim, candidates []MemoryFact) (MemoryFact, bool) {
	var best MemoryFact
	var bestScore float32
	found := false

	for _, fact := range candidates {
		score, err := g.matcher.Score(ctx, claim.Normalized, fact.Claim.Normalized)
		if err != nil {
			g.logger.Warn("semantic match failed",
				zap.String("claim", claim.Normalized),
				zap.String("fact", fact.Claim.Normalized),
				zap.Error(err))
			continue
		}
		if score < g.semanticThreshold {
			continue
		}
		if !found || score > bestScore || (score == bestScore && betterSupport(fact, best)) {
			best = fact
			bestScore = score
			found = true
		}
	}

	return best, found
}

// betterSupport reports whether a should be preferred over b as the
// supporting memory for a grounded claim.
func betterSupport(a, b MemoryFact) bool {
	if a.Memory.Trust != b.Memory.Trust {
		return a.Memory.Trust > b.Memory.Trust
	}
	return a.Memory.AssertedAt().After(b.Memory.AssertedAt())
}
