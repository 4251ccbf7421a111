package semantic

import (
	"context"
	"strings"
)

// LexicalMatcher scores value similarity from token overlap. It is the
// default matcher: deterministic, allocation-light, and usable with no
// external service.
type LexicalMatcher struct{}

func NewLexicalMatcher() *LexicalMatcher {
	return &LexicalMatcher{}
}

const containmentScore = 0.9

func (m *LexicalMatcher) Score(ctx context.Context, a, b string) (float32, error) {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0, nil
	}
	if a == b {
		return 1, nil
	}

	ta := tokenSet(a)
	tb := tokenSet(b)

	// One value naming a subset of the other ("engineer" vs "software
	// engineer") counts as near-equivalent.
	if subset(ta, tb) || subset(tb, ta) {
		return containmentScore, nil
	}

	inter := 0
	for tok := range ta {
		if tb[tok] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	if union == 0 {
		return 0, nil
	}
	return float32(inter) / float32(union), nil
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		tok = strings.Trim(tok, `"'.,;:!?()`)
		if tok != "" {
			set[tok] = true
		}
	}
	return set
}

func subset(small, big map[string]bool) bool {
	if len(small) == 0 || len(small) > len(big) {
		return false
	}
	for tok := range small {
		if !big[tok] {
			return false
		}
	}
	return true
}
