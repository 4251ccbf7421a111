package classify

import (
	"fmt"

	"github.com/verityhq/verity/internal/domain"
)

// Provider constants
const (
	ProviderHeuristic = "heuristic"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

// NewClassifier creates a change classifier based on the provider name.
// Returns an error if the provider is unknown or the API key is empty
// (except for heuristic and mock).
func NewClassifier(provider, apiKey string) (domain.ChangeClassifier, error) {
	switch provider {
	case ProviderHeuristic:
		return NewHeuristicClassifier(), nil

	case ProviderAnthropic:
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for Anthropic classifier")
		}
		return NewAnthropicClassifier(apiKey), nil

	case ProviderMock:
		return NewMockClassifier(), nil

	default:
		return nil, fmt.Errorf("unknown classifier provider: %s (valid options: heuristic, anthropic, mock)", provider)
	}
}
