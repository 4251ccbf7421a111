package service

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/verityhq/verity/internal/domain"
)

// DefaultMaxMemories caps how many memories a single verification consults.
// Larger inputs keep the highest-trust, most recent ones.
const DefaultMaxMemories = 64

// Verifier runs the full grounding pipeline over one candidate text. It is
// pure: no I/O beyond the semantic matcher, no shared mutable state, safe for
// arbitrary concurrent callers.
type Verifier struct {
	extractor   *ClaimExtractor
	grounding   *GroundingMatcher
	detector    *ContradictionDetector
	disclosure  *DisclosureChecker
	corrector   *Corrector
	maxMemories int
}

func NewVerifier(extractor *ClaimExtractor, grounding *GroundingMatcher, detector *ContradictionDetector, disclosure *DisclosureChecker, corrector *Corrector) *Verifier {
	return &Verifier{
		extractor:   extractor,
		grounding:   grounding,
		detector:    detector,
		disclosure:  disclosure,
		corrector:   corrector,
		maxMemories: DefaultMaxMemories,
	}
}

// SetMaxMemories overrides the per-call memory bound.
func (v *Verifier) SetMaxMemories(n int) {
	if n > 0 {
		v.maxMemories = n
	}
}

// VerifyInput is one verification request. Preserved carries the thread's
// preserve-resolved pairs, keyed by domain.PreservedKey; callers without
// ledger access pass nil.
type VerifyInput struct {
	Text      string
	Memories  []domain.Memory
	Mode      domain.VerifyMode
	Preserved map[string]bool
}

// Verify checks the text against the memories. Passed means every claim is
// grounded and every required contradiction the text touches is disclosed.
// Strict mode additionally produces a corrected text when the check fails.
// Malformed text never errors; whatever cannot be parsed grounds nothing.
func (v *Verifier) Verify(ctx context.Context, in VerifyInput) *domain.VerificationResult {
	mode := in.Mode
	if mode == "" {
		mode = domain.ModeAdvisory
	}

	memories := boundMemories(in.Memories, v.maxMemories)
	claims := v.extractor.Extract(in.Text)
	facts := v.extractor.MemoryFacts(memories)

	grounded, hallucinations := v.grounding.Ground(ctx, claims, facts)
	details := v.detector.Detect(facts, in.Preserved)
	report := v.disclosure.Check(in.Text, claims, details)

	result := &domain.VerificationResult{
		Passed:               len(hallucinations) == 0 && report.OK,
		Hallucinations:       hallucinations,
		GroundedFacts:        make(map[string]uuid.UUID, len(grounded)),
		Grounded:             grounded,
		ContradictionDetails: details,
		RequiresDisclosure:   touchesRequiredDetail(claims, details),
		ExpectedDisclosure:   report.Expected,
		Confidence:           meanContribution(grounded, len(claims)),
	}
	for _, gf := range grounded {
		result.GroundedFacts[gf.Claim.Key()] = gf.MemoryID
	}
	result.ContradictedClaims = contradictedClaims(claims, report.MissingDetails)

	if mode == domain.ModeStrict && !result.Passed {
		result.Original = in.Text
		result.Corrected = v.corrector.Correct(in.Text, facts, hallucinations, report.MissingDetails)
	}
	return result
}

// boundMemories keeps the strongest memories when the input exceeds the cap:
// active only, trust descending, then most recently asserted. The input
// slice is never mutated.
func boundMemories(memories []domain.Memory, max int) []domain.Memory {
	active := make([]domain.Memory, 0, len(memories))
	for _, m := range memories {
		if m.Active() {
			active = append(active, m)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Trust != active[j].Trust {
			return active[i].Trust > active[j].Trust
		}
		return active[i].AssertedAt().After(active[j].AssertedAt())
	})
	if len(active) > max {
		active = active[:max]
	}
	return active
}

// meanContribution averages grounded contributions over all claims, so
// ungrounded claims pull the score down. No claims means no confidence
// either way.
func meanContribution(grounded []domain.GroundedFact, claimCount int) float32 {
	if claimCount == 0 {
		return 0
	}
	var sum float32
	for _, gf := range grounded {
		sum += gf.Contribution
	}
	return sum / float32(claimCount)
}

func touchesRequiredDetail(claims []domain.Claim, details []domain.ContradictionDetail) bool {
	claimed := make(map[domain.Slot]bool, len(claims))
	for _, c := range claims {
		claimed[c.Slot] = true
	}
	for _, d := range details {
		if d.RequiresDisclosure && claimed[d.Slot] {
			return true
		}
	}
	return false
}

func contradictedClaims(claims []domain.Claim, missing []domain.ContradictionDetail) []domain.Claim {
	if len(missing) == 0 {
		return nil
	}
	slots := make(map[domain.Slot]bool, len(missing))
	for _, d := range missing {
		slots[d.Slot] = true
	}
	var out []domain.Claim
	for _, c := range claims {
		if slots[c.Slot] {
			out = append(out, c)
		}
	}
	return out
}
