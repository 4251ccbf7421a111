package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verityhq/verity/internal/domain"
	"github.com/verityhq/verity/internal/semantic"
)

func testMemory(text string, trust float32, assertedAt time.Time) domain.Memory {
	m := domain.Memory{
		ID:    uuid.New(),
		Text:  text,
		Trust: trust,
	}
	if !assertedAt.IsZero() {
		m.Timestamp = &assertedAt
	}
	return m
}

func TestGroundingMatcher_Ground(t *testing.T) {
	extractor := NewClaimExtractor()
	logger := zap.NewNop()

	now := time.Now()
	memories := []domain.Memory{
		testMemory("User works at Microsoft", 0.9, now),
		testMemory("User knows Python and JavaScript", 0.8, now),
	}
	facts := extractor.MemoryFacts(memories)

	matcher := semantic.NewMockMatcher()
	g := NewGroundingMatcher(matcher, logger)

	claims := extractor.Extract("You work at Microsoft and you use Python, JavaScript, Ruby, and Go")
	grounded, hallucinations := g.Ground(context.Background(), claims, facts)

	if len(grounded) != 3 {
		t.Fatalf("grounded = %d, want 3: %+v", len(grounded), grounded)
	}
	if len(hallucinations) != 2 {
		t.Fatalf("hallucinations = %d, want 2: %+v", len(hallucinations), hallucinations)
	}

	wantMissing := map[string]bool{"language=ruby": true, "language=go": true}
	for _, h := range hallucinations {
		if !wantMissing[h.Key()] {
			t.Errorf("unexpected hallucination %q", h.Key())
		}
	}
	for _, gf := range grounded {
		if gf.Tier != domain.TierExact {
			t.Errorf("claim %q grounded at tier %v, want exact", gf.Claim.Key(), gf.Tier)
		}
	}
}

func TestGroundingMatcher_SemanticTier(t *testing.T) {
	extractor := NewClaimExtractor()
	logger := zap.NewNop()

	memories := []domain.Memory{
		testMemory("User lives in New York City", 1.0, time.Time{}),
	}
	facts := extractor.MemoryFacts(memories)

	matcher := semantic.NewMockMatcher()
	matcher.SetScore("big apple", "new york city", 0.92)

	g := NewGroundingMatcher(matcher, logger)

	claims := []domain.Claim{{Slot: domain.SlotLocation, Value: "Big Apple", Normalized: "big apple"}}
	grounded, hallucinations := g.Ground(context.Background(), claims, facts)

	if len(hallucinations) != 0 {
		t.Fatalf("hallucinations = %+v, want none", hallucinations)
	}
	if len(grounded) != 1 {
		t.Fatalf("grounded = %d, want 1", len(grounded))
	}
	if grounded[0].Tier != domain.TierSemantic {
		t.Errorf("tier = %v, want semantic", grounded[0].Tier)
	}
	want := domain.DefaultTierWeights[domain.TierSemantic] * 1.0
	if grounded[0].Contribution != want {
		t.Errorf("contribution = %v, want %v", grounded[0].Contribution, want)
	}
}

func TestGroundingMatcher_BelowThresholdIsHallucination(t *testing.T) {
	extractor := NewClaimExtractor()
	logger := zap.NewNop()

	facts := extractor.MemoryFacts([]domain.Memory{
		testMemory("User lives in Seattle", 1.0, time.Time{}),
	})

	matcher := semantic.NewMockMatcher()
	matcher.SetScore("portland", "seattle", 0.6)

	g := NewGroundingMatcher(matcher, logger)

	claims := []domain.Claim{{Slot: domain.SlotLocation, Value: "Portland", Normalized: "portland"}}
	grounded, hallucinations := g.Ground(context.Background(), claims, facts)

	if len(grounded) != 0 {
		t.Fatalf("grounded = %+v, want none", grounded)
	}
	if len(hallucinations) != 1 {
		t.Fatalf("hallucinations = %d, want 1", len(hallucinations))
	}
}

func TestGroundingMatcher_PrefersTrustedMemory(t *testing.T) {
	extractor := NewClaimExtractor()
	logger := zap.NewNop()

	weak := testMemory("User works at Microsoft", 0.3, time.Time{})
	strong := testMemory("User works at Microsoft", 0.9, time.Time{})
	facts := extractor.MemoryFacts([]domain.Memory{weak, strong})

	g := NewGroundingMatcher(semantic.NewMockMatcher(), logger)

	claims := []domain.Claim{{Slot: domain.SlotEmployer, Value: "Microsoft", Normalized: "microsoft"}}
	grounded, _ := g.Ground(context.Background(), claims, facts)

	if len(grounded) != 1 {
		t.Fatalf("grounded = %d, want 1", len(grounded))
	}
	if grounded[0].MemoryID != strong.ID {
		t.Errorf("grounded on memory %v, want the higher-trust one %v", grounded[0].MemoryID, strong.ID)
	}
	want := domain.DefaultTierWeights[domain.TierExact] * 0.9
	if grounded[0].Contribution != want {
		t.Errorf("contribution = %v, want %v", grounded[0].Contribution, want)
	}
}

func TestGroundingMatcher_MatcherErrorDegradesToHallucination(t *testing.T) {
	extractor := NewClaimExtractor()
	logger := zap.NewNop()

	facts := extractor.MemoryFacts([]domain.Memory{
		testMemory("User lives in Seattle", 1.0, time.Time{}),
	})

	matcher := semantic.NewMockMatcher()
	matcher.Err = context.DeadlineExceeded

	g := NewGroundingMatcher(matcher, logger)

	claims := []domain.Claim{{Slot: domain.SlotLocation, Value: "Emerald City", Normalized: "emerald city"}}
	grounded, hallucinations := g.Ground(context.Background(), claims, facts)

	if len(grounded) != 0 || len(hallucinations) != 1 {
		t.Fatalf("grounded=%d hallucinations=%d, want 0 and 1", len(grounded), len(hallucinations))
	}
}
