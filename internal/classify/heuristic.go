package classify

import (
	"context"
	"strings"

	"github.com/verityhq/verity/internal/domain"
)

// HeuristicClassifier categorizes conflicts from surface features alone.
// It is the default strategy: deterministic and requiring no API key.
type HeuristicClassifier struct{}

func NewHeuristicClassifier() *HeuristicClassifier {
	return &HeuristicClassifier{}
}

var revisionMarkers = []string{
	"no longer", "not anymore", "changed", "switched", "instead",
	"moved to", "now works", "now lives", "quit", "left",
}

var temporalMarkers = []string{
	"until", "temporarily", "for now", "for the summer", "for the winter",
	"this week", "this month", "currently", "at the moment",
}

func (c *HeuristicClassifier) ClassifyChange(ctx context.Context, change domain.ChangeContext) (*domain.ChangeClassification, error) {
	oldVal := strings.ToLower(change.OldValue)
	newVal := strings.ToLower(change.NewValue)
	oldText := strings.ToLower(change.OldText)
	newText := strings.ToLower(change.NewText)

	// One value elaborating the other is added detail, not a change of fact.
	if containsAllTokens(newVal, oldVal) || containsAllTokens(oldVal, newVal) {
		return &domain.ChangeClassification{
			Category:   domain.CategoryRefinement,
			Confidence: 0.7,
			Rationale:  "values overlap",
		}, nil
	}

	for _, marker := range temporalMarkers {
		if strings.Contains(newText, marker) || strings.Contains(oldText, marker) {
			return &domain.ChangeClassification{
				Category:   domain.CategoryTemporal,
				Confidence: 0.6,
				Rationale:  "time-bound wording: " + marker,
			}, nil
		}
	}

	for _, marker := range revisionMarkers {
		if strings.Contains(newText, marker) {
			return &domain.ChangeClassification{
				Category:   domain.CategoryRevision,
				Confidence: 0.8,
				Rationale:  "explicit change wording: " + marker,
			}, nil
		}
	}

	return &domain.ChangeClassification{
		Category:   domain.CategoryConflict,
		Confidence: 0.5,
		Rationale:  "no change signal found",
	}, nil
}

// containsAllTokens reports whether every token of sub occurs in full.
func containsAllTokens(full, sub string) bool {
	subTokens := strings.Fields(sub)
	if len(subTokens) == 0 {
		return false
	}
	fullSet := make(map[string]bool)
	for _, tok := range strings.Fields(full) {
		fullSet[tok] = true
	}
	for _, tok := range subTokens {
		if !fullSet[tok] {
			return false
		}
	}
	return true
}
