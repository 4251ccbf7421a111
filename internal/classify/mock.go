package classify

import (
	"context"

	"github.com/verityhq/verity/internal/domain"
)

// MockClassifier is a configurable classifier for testing.
// Set the response fields to control what ClassifyChange returns.
type MockClassifier struct {
	Classification *domain.ChangeClassification
	Err            error

	// Call tracking for assertions
	Calls []domain.ChangeContext
}

func NewMockClassifier() *MockClassifier {
	return &MockClassifier{
		Classification: &domain.ChangeClassification{
			Category:   domain.CategoryConflict,
			Confidence: 0.5,
		},
	}
}

func (c *MockClassifier) ClassifyChange(ctx context.Context, change domain.ChangeContext) (*domain.ChangeClassification, error) {
	c.Calls = append(c.Calls, change)
	if c.Err != nil {
		return nil, c.Err
	}
	return c.Classification, nil
}

// Reset clears recorded calls and restores defaults.
func (c *MockClassifier) Reset() {
	c.Classification = &domain.ChangeClassification{
		Category:   domain.CategoryConflict,
		Confidence: 0.5,
	}
	c.Err = nil
	c.Calls = nil
}
