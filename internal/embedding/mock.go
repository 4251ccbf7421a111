package embedding

import (
	"context"
	"hash/fnv"
)

// MockClient is a configurable embedding client for testing.
// By default it derives a small deterministic vector from the text so equal
// inputs embed identically without any network round trip.
type MockClient struct {
	EmbedResponse []float32
	EmbedError    error

	// Call tracking for assertions
	EmbedCalls []string
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (c *MockClient) Provider() string {
	return ProviderMock
}

func (c *MockClient) Model() string {
	return "mock"
}

func (c *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	c.EmbedCalls = append(c.EmbedCalls, text)
	if c.EmbedError != nil {
		return nil, c.EmbedError
	}
	if c.EmbedResponse != nil {
		return c.EmbedResponse, nil
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum32()

	vec := make([]float32, 8)
	for i := range vec {
		seed = seed*1664525 + 1013904223
		vec[i] = float32(seed%2000)/1000 - 1
	}
	return vec, nil
}

// Reset clears recorded calls and configured responses.
func (c *MockClient) Reset() {
	c.EmbedResponse = nil
	c.EmbedError = nil
	c.EmbedCalls = nil
}
