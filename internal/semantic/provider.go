package semantic

import (
	"fmt"

	"github.com/verityhq/verity/internal/domain"
)

// Provider constants
const (
	ProviderLexical   = "lexical"
	ProviderEmbedding = "embedding"
	ProviderMock      = "mock"
)

// NewMatcher creates a semantic matcher based on the provider name.
// The embedding provider needs a configured embedding client.
func NewMatcher(provider string, embeddingClient domain.EmbeddingClient) (domain.SemanticMatcher, error) {
	switch provider {
	case ProviderLexical:
		return NewLexicalMatcher(), nil

	case ProviderEmbedding:
		if embeddingClient == nil {
			return nil, fmt.Errorf("embedding matcher requires an embedding client")
		}
		return NewEmbeddingMatcher(embeddingClient), nil

	case ProviderMock:
		return NewMockMatcher(), nil

	default:
		return nil, fmt.Errorf("unknown semantic matcher: %s (valid options: lexical, embedding, mock)", provider)
	}
}
