package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/verityhq/verity/internal/domain"
)

const classifierSystemPrompt = `You categorize how a new personal fact relates to an older conflicting one.
Respond with a single JSON object and nothing else:
{"category": "refinement" | "revision" | "temporal" | "conflict", "confidence": 0.0-1.0, "rationale": "short reason"}

refinement: the new fact adds detail to the old one.
revision: the new fact deliberately replaces the old one.
temporal: one of the facts is explicitly time-bound.
conflict: the facts disagree with no signal of intent.`

// AnthropicClassifier asks a Claude model to categorize a conflict. Use it
// when heuristic categories are too coarse; the heuristic remains the
// fallback-free default.
type AnthropicClassifier struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

func NewAnthropicClassifier(apiKey string) *AnthropicClassifier {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicClassifier{
		client:    &client,
		model:     anthropic.ModelClaude3_5Sonnet20241022,
		maxTokens: 256,
	}
}

func (c *AnthropicClassifier) SetModel(model anthropic.Model) {
	c.model = model
}

type classifierVerdict struct {
	Category   string  `json:"category"`
	Confidence float32 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

func (c *AnthropicClassifier) ClassifyChange(ctx context.Context, change domain.ChangeContext) (*domain.ChangeClassification, error) {
	prompt := fmt.Sprintf(
		"Slot: %s\nOld statement: %q (value: %q)\nNew statement: %q (value: %q)\nTime between statements: %s",
		change.Slot, change.OldText, change.OldValue, change.NewText, change.NewValue, change.Gap,
	)

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: classifierSystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text = block.AsText().Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("anthropic returned no text content")
	}

	var verdict classifierVerdict
	if err := json.Unmarshal([]byte(stripFences(text)), &verdict); err != nil {
		return nil, fmt.Errorf("parse classifier verdict %q: %w", text, err)
	}
	if !domain.ValidCategory(verdict.Category) {
		return nil, fmt.Errorf("classifier returned unknown category %q", verdict.Category)
	}
	if verdict.Confidence < 0 {
		verdict.Confidence = 0
	}
	if verdict.Confidence > 1 {
		verdict.Confidence = 1
	}

	return &domain.ChangeClassification{
		Category:   domain.ContradictionCategory(verdict.Category),
		Confidence: verdict.Confidence,
		Rationale:  verdict.Rationale,
	}, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
