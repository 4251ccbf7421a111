package service

import (
	"regexp"
	"sort"
	"strings"

	"github.com/verityhq/verity/internal/domain"
)

var (
	spaceRunRe    = regexp.MustCompile(`[ \t]{2,}`)
	spacePunctRe  = regexp.MustCompile(`[ \t]+([.,;!?])`)
	sentenceDelim = ".!?\n;"
)

// Corrector rewrites a failed text so it would pass verification: ungrounded
// values are dropped or replaced with supported ones, and undisclosed
// changes get an explicit caveat.
type Corrector struct {
	extractor *ClaimExtractor
}

func NewCorrector(extractor *ClaimExtractor) *Corrector {
	return &Corrector{extractor: extractor}
}

// textEdit replaces text[start:end) with repl. Edits are collected first and
// applied back to front so spans stay valid.
type textEdit struct {
	start, end int
	repl       string
}

// Correct returns the rewritten text. Hallucinated items are removed from
// lists, substituted on single-valued slots when memory offers a supported
// value, and their whole sentence dropped otherwise. Missing disclosures are
// appended as parentheticals after the claiming phrase. Correcting may empty
// the text entirely.
func (c *Corrector) Correct(text string, facts map[domain.Slot][]MemoryFact, hallucinations []domain.Claim, missing []domain.ContradictionDetail) string {
	if text == "" {
		return ""
	}

	flagged := make(map[string]bool, len(hallucinations))
	for _, h := range hallucinations {
		flagged[h.Key()] = true
	}
	needs := disclosureNeeds(missing)

	if len(flagged) > 0 {
		edits := c.hallucinationEdits(text, flagged, needs, facts)
		text = applyEdits(text, edits)
	}
	if len(needs) > 0 {
		text = c.insertDisclosures(text, needs, facts)
	}
	return tidy(text)
}

// disclosureNeed aggregates every missing detail for one slot so a single
// caveat covers them all.
type disclosureNeed struct {
	winner string
	priors []string
	values []string
}

func disclosureNeeds(missing []domain.ContradictionDetail) map[domain.Slot]*disclosureNeed {
	needs := make(map[domain.Slot]*disclosureNeed)
	for _, detail := range missing {
		need := needs[detail.Slot]
		if need == nil {
			need = &disclosureNeed{}
			needs[detail.Slot] = need
		}
		if detail.WinnerValue != "" {
			need.winner = detail.WinnerValue
		}
		need.priors = append(need.priors, detail.PriorValues...)
		need.values = append(need.values, detail.Values...)
	}
	return needs
}

func (c *Corrector) hallucinationEdits(text string, flagged map[string]bool, needs map[domain.Slot]*disclosureNeed, facts map[domain.Slot][]MemoryFact) []textEdit {
	var edits []textEdit
	for _, phrase := range c.extractor.ExtractPhrases(text) {
		var kept []string
		bad := false
		for _, item := range phrase.Items {
			if flagged[item.Key()] {
				bad = true
			} else {
				kept = append(kept, item.Value)
			}
		}
		if !bad {
			continue
		}

		if phrase.Slot.Traits().Enumerable {
			if len(kept) > 0 {
				edits = append(edits, textEdit{phrase.Span.Start, phrase.Span.End, joinList(kept)})
			} else {
				s, e := sentenceBounds(text, phrase.Span.Start, phrase.Span.End)
				edits = append(edits, textEdit{s, e, ""})
			}
			continue
		}

		prefer := ""
		if need := needs[phrase.Slot]; need != nil {
			prefer = need.winner
		}
		if sub := surfaceFor(facts, phrase.Slot, prefer); sub != "" {
			edits = append(edits, textEdit{phrase.Span.Start, phrase.Span.End, sub})
		} else {
			s, e := sentenceBounds(text, phrase.Span.Start, phrase.Span.End)
			edits = append(edits, textEdit{s, e, ""})
		}
	}
	return edits
}

// insertDisclosures re-extracts the rewritten text and appends the caveat
// after the first phrase claiming each conflicted slot, substituting the
// winning value when the text states a superseded one.
func (c *Corrector) insertDisclosures(text string, needs map[domain.Slot]*disclosureNeed, facts map[domain.Slot][]MemoryFact) string {
	phrases := c.extractor.ExtractPhrases(text)

	var edits []textEdit
	done := make(map[domain.Slot]bool)
	for _, phrase := range phrases {
		need := needs[phrase.Slot]
		if need == nil || done[phrase.Slot] || len(phrase.Items) == 0 {
			continue
		}
		done[phrase.Slot] = true

		stated := phrase.Items[0].Value
		if need.winner != "" && phrase.Items[0].Normalized != need.winner {
			if sub := surfaceFor(facts, phrase.Slot, need.winner); sub != "" {
				stated = sub
			} else {
				stated = need.winner
			}
		}

		caveat := ChangeCaveat(need.priors)
		if need.winner == "" {
			caveat = ConflictCaveat(need.values)
		}
		repl := stated
		if caveat != "" {
			repl += " " + caveat
		}
		edits = append(edits, textEdit{phrase.Span.Start, phrase.Span.End, repl})
	}
	return applyEdits(text, edits)
}

// surfaceFor returns the surface form of the slot's best-supported memory
// value, preferring the given normalized value when memory holds it.
func surfaceFor(facts map[domain.Slot][]MemoryFact, slot domain.Slot, prefer string) string {
	candidates := facts[slot]
	var best *MemoryFact
	for i := range candidates {
		fact := &candidates[i]
		if prefer != "" && fact.Claim.Normalized != prefer {
			continue
		}
		if best == nil || betterSupport(*fact, *best) {
			best = fact
		}
	}
	if best == nil && prefer != "" {
		return surfaceFor(facts, slot, "")
	}
	if best == nil {
		return ""
	}
	return best.Claim.Value
}

// sentenceBounds widens a span to its containing sentence, including the
// closing delimiter and the whitespace leading in. Commas never end a
// sentence.
func sentenceBounds(text string, start, end int) (int, int) {
	s := 0
	for i := start - 1; i >= 0; i-- {
		if strings.ContainsRune(sentenceDelim, rune(text[i])) {
			s = i + 1
			break
		}
	}
	e := len(text)
	for i := end; i < len(text); i++ {
		if strings.ContainsRune(sentenceDelim, rune(text[i])) {
			e = i + 1
			break
		}
	}
	return s, e
}

// applyEdits performs the replacements back to front. Edits nested inside a
// wider one are discarded.
func applyEdits(text string, edits []textEdit) string {
	if len(edits) == 0 {
		return text
	}
	sort.Slice(edits, func(i, j int) bool {
		if edits[i].start != edits[j].start {
			return edits[i].start < edits[j].start
		}
		return edits[i].end > edits[j].end
	})

	kept := make([]textEdit, 0, len(edits))
	kept = append(kept, edits[0])
	for _, e := range edits[1:] {
		last := kept[len(kept)-1]
		if e.start < last.end {
			continue
		}
		kept = append(kept, e)
	}

	for i := len(kept) - 1; i >= 0; i-- {
		e := kept[i]
		text = text[:e.start] + e.repl + text[e.end:]
	}
	return text
}

// joinList renders kept list items back into prose.
func joinList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	}
	return strings.Join(items[:len(items)-1], ", ") + ", and " + items[len(items)-1]
}

// tidy cleans up whitespace artifacts left by removals.
func tidy(text string) string {
	text = spaceRunRe.ReplaceAllString(text, " ")
	text = spacePunctRe.ReplaceAllString(text, "$1")
	return strings.TrimSpace(text)
}
