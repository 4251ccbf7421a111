package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ContradictionCategory string

const (
	CategoryRefinement ContradictionCategory = "refinement"
	CategoryRevision   ContradictionCategory = "revision"
	CategoryTemporal   ContradictionCategory = "temporal"
	CategoryConflict   ContradictionCategory = "conflict"
)

func ValidCategory(c string) bool {
	switch ContradictionCategory(c) {
	case CategoryRefinement, CategoryRevision, CategoryTemporal, CategoryConflict:
		return true
	}
	return false
}

// DefaultAction maps a category to the resolution the policy applies when no
// human overrides it. CONFLICT always escalates.
func (c ContradictionCategory) DefaultAction() ResolutionAction {
	switch c {
	case CategoryRefinement:
		return ActionPreserve
	case CategoryRevision:
		return ActionOverride
	case CategoryTemporal:
		return ActionOverride
	default:
		return ActionAskUser
	}
}

type ContradictionStatus string

const (
	StatusOpen     ContradictionStatus = "open"
	StatusResolved ContradictionStatus = "resolved"
)

func ValidStatus(s string) bool {
	switch ContradictionStatus(s) {
	case StatusOpen, StatusResolved:
		return true
	}
	return false
}

type ResolutionAction string

const (
	ActionOverride ResolutionAction = "override"
	ActionPreserve ResolutionAction = "preserve"
	ActionAskUser  ResolutionAction = "ask_user"
)

func ValidResolutionAction(a string) bool {
	switch ResolutionAction(a) {
	case ActionOverride, ActionPreserve, ActionAskUser:
		return true
	}
	return false
}

// Closes reports whether the action transitions a record to resolved.
// ASK_USER records a pending recommendation and leaves the record open.
func (a ResolutionAction) Closes() bool {
	return a == ActionOverride || a == ActionPreserve
}

// ContradictionRecord is one append-only ledger entry: two or more memories
// asserting mutually exclusive values for the same slot in a thread.
// Values is parallel to MemoryIDs: Values[i] is the normalized value
// MemoryIDs[i] asserted. Resolving sets the resolution fields and status;
// nothing else ever changes and records are never deleted. A fresh conflict
// on a slot with a resolved record gets a new entry.
type ContradictionRecord struct {
	LedgerID               uuid.UUID             `json:"ledger_id"`
	TenantID               uuid.UUID             `json:"tenant_id,omitempty"`
	ThreadID               string                `json:"thread_id"`
	Slot                   Slot                  `json:"slot"`
	MemoryIDs              []uuid.UUID           `json:"memory_ids"`
	Values                 []string              `json:"values"`
	Category               ContradictionCategory `json:"category"`
	CategoryConfidence     float32               `json:"category_confidence"`
	Status                 ContradictionStatus   `json:"status"`
	ResolutionAction       *ResolutionAction     `json:"resolution_action,omitempty"`
	ResolutionConfirmation string                `json:"resolution_confirmation,omitempty"`
	ChosenMemoryID         *uuid.UUID            `json:"chosen_memory_id,omitempty"`
	DetectedAt             time.Time             `json:"detected_at"`
	ResolvedAt             *time.Time            `json:"resolved_at,omitempty"`
}

// MemoryKey canonicalizes the record's memory set: sorted ids joined with a
// comma. Two records over the same memories produce the same key, which backs
// the ledger's uniqueness guarantee.
func (r *ContradictionRecord) MemoryKey() string {
	return MemoryKeyFor(r.MemoryIDs)
}

func MemoryKeyFor(ids []uuid.UUID) string {
	ss := make([]string, len(ids))
	for i, id := range ids {
		ss[i] = id.String()
	}
	sort.Strings(ss)
	return strings.Join(ss, ",")
}

// Pending reports whether the record still blocks the answer gate.
func (r *ContradictionRecord) Pending() bool {
	return r.Status == StatusOpen
}

// DistinctValues returns the record's conflicting values with duplicates
// removed, preserving first-seen order.
func (r *ContradictionRecord) DistinctValues() []string {
	seen := make(map[string]bool, len(r.Values))
	var out []string
	for _, v := range r.Values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// ValueOf returns the value asserted by the given memory, or "" when the
// memory is not part of the record.
func (r *ContradictionRecord) ValueOf(memoryID uuid.UUID) string {
	for i, id := range r.MemoryIDs {
		if id == memoryID && i < len(r.Values) {
			return r.Values[i]
		}
	}
	return ""
}

// PriorValues returns the distinct values superseded by the resolution: every
// value except the chosen memory's. Before resolution, or for preserve, it
// returns all but the newest value.
func (r *ContradictionRecord) PriorValues() []string {
	distinct := r.DistinctValues()
	if len(distinct) < 2 {
		return nil
	}
	exclude := distinct[len(distinct)-1]
	if r.ChosenMemoryID != nil {
		if v := r.ValueOf(*r.ChosenMemoryID); v != "" {
			exclude = v
		}
	}
	var out []string
	for _, v := range distinct {
		if v != exclude {
			out = append(out, v)
		}
	}
	return out
}

// PreservedKey names a slot/memory-set pair kept multi-valued by a preserve
// resolution. The detector skips pairs whose key it has seen.
func PreservedKey(slot Slot, memoryKey string) string {
	return string(slot) + "|" + memoryKey
}

// Resolution carries the caller's decision for one open ledger record.
type Resolution struct {
	Action         ResolutionAction `json:"action"`
	ChosenMemoryID *uuid.UUID       `json:"chosen_memory_id,omitempty"`
	Confirmation   string           `json:"confirmation,omitempty"`
}
