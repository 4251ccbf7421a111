package service

import (
	"regexp"
	"strings"

	"github.com/verityhq/verity/internal/domain"
)

// AcknowledgmentMarkers are phrases that count as the text owning up to a
// change. Any one of them satisfies the disclosure requirement for every
// conflicted slot the text touches. Matched on word boundaries, so "now"
// does not fire inside "knows".
var AcknowledgmentMarkers = []string{
	"previously",
	"changed from",
	"used to",
	"no longer",
	"not anymore",
	"formerly",
	"now",
}

// DisclosureReport says whether a text acknowledged the conflicts it was
// required to, and what a compliant text would have said.
type DisclosureReport struct {
	OK             bool
	MissingDetails []domain.ContradictionDetail
	Expected       string
}

// DisclosureChecker verifies that answers touching a conflicted slot admit
// the conflict instead of silently asserting one side.
type DisclosureChecker struct {
	markerRe *regexp.Regexp
}

func NewDisclosureChecker() *DisclosureChecker {
	quoted := make([]string, len(AcknowledgmentMarkers))
	for i, m := range AcknowledgmentMarkers {
		quoted[i] = regexp.QuoteMeta(m)
	}
	return &DisclosureChecker{
		markerRe: regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`),
	}
}

// Check inspects the candidate text for each detail that demands disclosure
// and whose slot the text makes a claim about. A detail is acknowledged when
// the text carries a change marker, or when it states every conflicting
// value itself.
func (c *DisclosureChecker) Check(text string, claims []domain.Claim, details []domain.ContradictionDetail) DisclosureReport {
	claimed := make(map[domain.Slot]map[string]bool)
	for _, cl := range claims {
		if claimed[cl.Slot] == nil {
			claimed[cl.Slot] = make(map[string]bool)
		}
		claimed[cl.Slot][cl.Normalized] = true
	}

	marked := c.markerRe.MatchString(text)

	report := DisclosureReport{OK: true}
	var expected []string
	for _, detail := range details {
		if !detail.RequiresDisclosure {
			continue
		}
		values, touches := claimed[detail.Slot]
		if !touches {
			continue
		}
		if marked || statesAllValues(values, detail) {
			continue
		}
		report.OK = false
		report.MissingDetails = append(report.MissingDetails, detail)
		expected = append(expected, expectedDisclosure(detail))
	}
	report.Expected = strings.Join(expected, "; ")
	return report
}

// statesAllValues reports whether the text itself claimed every distinct
// value in the conflict, which discloses it without marker words.
func statesAllValues(claimedValues map[string]bool, detail domain.ContradictionDetail) bool {
	for _, v := range dedupeValues(detail.Values) {
		if !claimedValues[v] {
			return false
		}
	}
	return true
}

// expectedDisclosure renders what a compliant answer says about the detail.
func expectedDisclosure(detail domain.ContradictionDetail) string {
	if detail.WinnerValue != "" {
		return detail.WinnerValue + " " + ChangeCaveat(detail.PriorValues)
	}
	return ConflictCaveat(detail.Values)
}

// ChangeCaveat renders the parenthetical appended after a winning value,
// naming the values it superseded. Duplicates collapse.
func ChangeCaveat(prior []string) string {
	values := dedupeValues(prior)
	if len(values) == 0 {
		return ""
	}
	return "(changed from " + strings.Join(values, ", ") + ")"
}

// ConflictCaveat renders the parenthetical for an unresolved conflict with
// no winner to state.
func ConflictCaveat(values []string) string {
	distinct := dedupeValues(values)
	if len(distinct) == 0 {
		return ""
	}
	return "(conflicting records: " + strings.Join(distinct, ", ") + ")"
}

// dedupeValues removes duplicates preserving first-seen order.
func dedupeValues(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
