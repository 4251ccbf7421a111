package semantic

import "context"

// MockMatcher is a configurable matcher for testing.
// Pair scores are keyed "a|b"; lookups try both orders.
type MockMatcher struct {
	Scores       map[string]float32
	DefaultScore float32
	Err          error

	// Call tracking for assertions
	Calls [][2]string
}

func NewMockMatcher() *MockMatcher {
	return &MockMatcher{Scores: make(map[string]float32)}
}

func (m *MockMatcher) SetScore(a, b string, score float32) {
	if m.Scores == nil {
		m.Scores = make(map[string]float32)
	}
	m.Scores[a+"|"+b] = score
}

func (m *MockMatcher) Score(ctx context.Context, a, b string) (float32, error) {
	m.Calls = append(m.Calls, [2]string{a, b})
	if m.Err != nil {
		return 0, m.Err
	}
	if s, ok := m.Scores[a+"|"+b]; ok {
		return s, nil
	}
	if s, ok := m.Scores[b+"|"+a]; ok {
		return s, nil
	}
	if a == b {
		return 1, nil
	}
	return m.DefaultScore, nil
}
