package semantic

import (
	"context"
	"fmt"
	"math"

	"github.com/verityhq/verity/internal/domain"
)

// EmbeddingMatcher scores value similarity as cosine similarity of
// embeddings. Costs one embedding call per side, so grounding keeps it as
// the second tier behind exact matching.
type EmbeddingMatcher struct {
	client domain.EmbeddingClient
}

func NewEmbeddingMatcher(client domain.EmbeddingClient) *EmbeddingMatcher {
	return &EmbeddingMatcher{client: client}
}

func (m *EmbeddingMatcher) Score(ctx context.Context, a, b string) (float32, error) {
	if a == b {
		return 1, nil
	}

	va, err := m.client.Embed(ctx, a)
	if err != nil {
		return 0, fmt.Errorf("embed %q: %w", a, err)
	}
	vb, err := m.client.Embed(ctx, b)
	if err != nil {
		return 0, fmt.Errorf("embed %q: %w", b, err)
	}

	return Cosine(va, vb), nil
}

// Cosine returns the cosine similarity of two vectors, 0 when either is
// empty or they disagree on dimension.
func Cosine(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
