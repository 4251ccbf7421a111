package classify

import (
	"context"
	"testing"

	"github.com/verityhq/verity/internal/domain"
)

func TestHeuristicClassifier_ClassifyChange(t *testing.T) {
	c := NewHeuristicClassifier()
	ctx := context.Background()

	tests := []struct {
		name   string
		change domain.ChangeContext
		want   domain.ContradictionCategory
	}{
		{
			name: "value overlap is refinement",
			change: domain.ChangeContext{
				Slot:     domain.SlotLocation,
				OldValue: "seattle",
				NewValue: "seattle washington",
				OldText:  "User lives in Seattle",
				NewText:  "User lives in Seattle, Washington",
			},
			want: domain.CategoryRefinement,
		},
		{
			name: "explicit change wording is revision",
			change: domain.ChangeContext{
				Slot:     domain.SlotEmployer,
				OldValue: "microsoft",
				NewValue: "amazon",
				OldText:  "User works at Microsoft",
				NewText:  "User no longer works at Microsoft, now works at Amazon",
			},
			want: domain.CategoryRevision,
		},
		{
			name: "time-bound wording is temporal",
			change: domain.ChangeContext{
				Slot:     domain.SlotLocation,
				OldValue: "seattle",
				NewValue: "london",
				OldText:  "User lives in Seattle",
				NewText:  "User is living in London for the summer",
			},
			want: domain.CategoryTemporal,
		},
		{
			name: "bare disagreement is conflict",
			change: domain.ChangeContext{
				Slot:     domain.SlotEmployer,
				OldValue: "microsoft",
				NewValue: "amazon",
				OldText:  "User works at Microsoft",
				NewText:  "User works at Amazon",
			},
			want: domain.CategoryConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.ClassifyChange(ctx, tt.change)
			if err != nil {
				t.Fatalf("ClassifyChange() error: %v", err)
			}
			if got.Category != tt.want {
				t.Errorf("ClassifyChange() category = %v, want %v", got.Category, tt.want)
			}
			if got.Confidence <= 0 || got.Confidence > 1 {
				t.Errorf("ClassifyChange() confidence = %v, want in (0, 1]", got.Confidence)
			}
		})
	}
}

func TestHeuristicClassifier_TemporalBeatsRevision(t *testing.T) {
	c := NewHeuristicClassifier()

	// "moved to X for now" carries both signals; time-bound wording wins so
	// the old fact is not overridden by default.
	got, err := c.ClassifyChange(context.Background(), domain.ChangeContext{
		Slot:     domain.SlotLocation,
		OldValue: "seattle",
		NewValue: "london",
		OldText:  "User lives in Seattle",
		NewText:  "User moved to London for now",
	})
	if err != nil {
		t.Fatalf("ClassifyChange() error: %v", err)
	}
	if got.Category != domain.CategoryTemporal {
		t.Errorf("category = %v, want %v", got.Category, domain.CategoryTemporal)
	}
}
