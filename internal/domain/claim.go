package domain

import "fmt"

// Span locates a claim inside its source text as byte offsets.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Claim is a single slot/value assertion extracted from text. Value keeps the
// surface form; Normalized is the canonical form used for all comparisons.
type Claim struct {
	Slot       Slot   `json:"slot"`
	Value      string `json:"value"`
	Normalized string `json:"normalized"`
	Span       *Span  `json:"span,omitempty"`
}

// Key identifies a claim by slot and normalized value. Two claims with equal
// keys assert the same fact regardless of surface wording.
func (c Claim) Key() string {
	return fmt.Sprintf("%s=%s", c.Slot, c.Normalized)
}
