package domain

import "github.com/google/uuid"

// VerifyMode selects what a failed verification produces. Advisory reports
// problems; strict additionally rewrites the text.
type VerifyMode string

const (
	ModeAdvisory VerifyMode = "advisory"
	ModeStrict   VerifyMode = "strict"
)

func ValidVerifyMode(m string) bool {
	switch VerifyMode(m) {
	case ModeAdvisory, ModeStrict:
		return true
	}
	return false
}

// GroundedFact ties one claim from the candidate text to the memory that
// supports it.
type GroundedFact struct {
	Claim        Claim      `json:"claim"`
	MemoryID     uuid.UUID  `json:"memory_id"`
	Tier         GroundTier `json:"tier"`
	Contribution float32    `json:"contribution"`
}

// ContradictionDetail describes one slot conflict found among the memories
// consulted for a verification. Values is parallel to MemoryIDs. Transient;
// the ledger holds the durable form.
type ContradictionDetail struct {
	Slot               Slot        `json:"slot"`
	Values             []string    `json:"values"`
	MemoryIDs          []uuid.UUID `json:"memory_ids"`
	TrustGap           float32     `json:"trust_gap"`
	RequiresDisclosure bool        `json:"requires_disclosure"`
	WinnerMemoryID     *uuid.UUID  `json:"winner_memory_id,omitempty"`
	WinnerValue        string      `json:"winner_value,omitempty"`
	PriorValues        []string    `json:"prior_values,omitempty"`
}

// VerificationResult is the full verdict for one candidate text. It is
// computed fresh per call and never persisted.
type VerificationResult struct {
	Passed               bool                  `json:"passed"`
	Hallucinations       []Claim               `json:"hallucinations"`
	GroundedFacts        map[string]uuid.UUID  `json:"grounded_facts"`
	Grounded             []GroundedFact        `json:"grounded"`
	ContradictedClaims   []Claim               `json:"contradicted_claims"`
	ContradictionDetails []ContradictionDetail `json:"contradiction_details"`
	RequiresDisclosure   bool                  `json:"requires_disclosure"`
	ExpectedDisclosure   string                `json:"expected_disclosure,omitempty"`
	Original             string                `json:"original,omitempty"`
	Corrected            string                `json:"corrected,omitempty"`
	Confidence           float32               `json:"confidence"`
}

// GateDecision is the answer gate's verdict for a thread and a set of slots
// the pending answer touches.
type GateDecision struct {
	Passed        bool     `json:"gates_passed"`
	Reason        string   `json:"gate_reason,omitempty"`
	Clarification string   `json:"clarification,omitempty"`
	Caveat        string   `json:"caveat,omitempty"`
	OpenLedgerIDs []string `json:"open_ledger_ids,omitempty"`
}
