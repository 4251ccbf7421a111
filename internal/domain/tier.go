package domain

// GroundTier records how a claim was matched to a memory. Tiers are tried in
// order and the first hit wins.
type GroundTier string

const (
	TierExact    GroundTier = "exact"
	TierSemantic GroundTier = "semantic"
)

// TierWeights scales a supporting memory's trust into a confidence
// contribution per match tier. Values are tunable, not invariants.
type TierWeights map[GroundTier]float32

func DefaultTierWeights() TierWeights {
	return TierWeights{
		TierExact:    1.0,
		TierSemantic: 0.8,
	}
}

// Weight returns the tier's multiplier, falling back to the default table for
// tiers the map does not override.
func (w TierWeights) Weight(t GroundTier) float32 {
	if w != nil {
		if v, ok := w[t]; ok {
			return v
		}
	}
	switch t {
	case TierExact:
		return 1.0
	case TierSemantic:
		return 0.8
	default:
		return 0
	}
}

func ValidGroundTier(t string) bool {
	switch GroundTier(t) {
	case TierExact, TierSemantic:
		return true
	}
	return false
}

func AllGroundTiers() []GroundTier {
	return []GroundTier{TierExact, TierSemantic}
}
