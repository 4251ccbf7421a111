package service

import (
	"regexp"
	"sort"
	"strings"

	"github.com/verityhq/verity/internal/domain"
)

// slotPattern ties one compiled pattern to the slot it extracts. Group 1 is
// the value phrase.
type slotPattern struct {
	slot domain.Slot
	re   *regexp.Regexp
}

// SlotPhrase is one matched value phrase with the claims extracted from it.
// Enumerable slots may carry several items per phrase.
type SlotPhrase struct {
	Slot  domain.Slot
	Span  domain.Span
	Items []domain.Claim
}

// MemoryFact is a claim extracted from a stored memory, paired with its
// source.
type MemoryFact struct {
	Claim  domain.Claim
	Memory *domain.Memory
}

// ClaimExtractor turns free text into slot/value claims. Extraction is rule
// based and deliberately conservative: text that matches no pattern yields no
// claim. It never fails on malformed input.
type ClaimExtractor struct {
	patterns []slotPattern
}

// clauseBreak ends a value before a coordinated clause. "and" breaks only
// when a pronoun follows, so list items and names like "Ben and Jerry's"
// stay whole.
const clauseBreak = `\s+(?:and|but|so)\s+(?:you|i|we|he|she|it|they|user)\b`

// trailBreak additionally ends a value before a trailing adverbial or
// sentence punctuation. An opening paren counts so appended parentheticals
// never join the value.
const trailBreak = `(?:\s+(?:for|until|since|while|because|where|when|before|after|now)\b|` + clauseBreak + `|[.,;!?\n(]|$)`

// listBreak bounds an enumerable value list: commas stay inside so the list
// can be split afterwards.
const listBreak = `(?:` + clauseBreak + `|[.;!?\n(]|$)`

func NewClaimExtractor() *ClaimExtractor {
	return &ClaimExtractor{patterns: []slotPattern{
		{domain.SlotEmployer, regexp.MustCompile(`(?i)\b(?:works?|working|worked|employed)\s+(?:at|for|by)\s+(.+?)` + trailBreak)},
		{domain.SlotEmployer, regexp.MustCompile(`(?i)\bworks?\s+as\s+[^.,;!?\n(]+?\s+at\s+(.+?)` + trailBreak)},
		{domain.SlotRole, regexp.MustCompile(`(?i)\bworks?\s+as\s+(?:an?\s+)?(.+?)(?:\s+(?:at|for|in)\s|` + clauseBreak + `|[.,;!?\n(]|$)`)},
		{domain.SlotLocation, regexp.MustCompile(`(?i)\b(?:lives?|living|resides?|based|moved|moving)\s+(?:in|to|at)\s+(.+?)` + trailBreak)},
		{domain.SlotAge, regexp.MustCompile(`(?i)\b(?:is|am|are|turned)\s+(\d{1,3})\s*(?:years?\s+old|yo)\b`)},
		{domain.SlotAge, regexp.MustCompile(`(?i)\bage\s+(?:is\s+)?(\d{1,3})\b`)},
		{domain.SlotName, regexp.MustCompile(`(?i)\b(?:name\s+is|named|is\s+called|goes\s+by)\s+(.+?)(?:` + clauseBreak + `|[.,;!?\n(]|$)`)},
		{domain.SlotDiet, regexp.MustCompile(`(?i)\b(?:is|am|are|became|become|went)\s+(?:an?\s+)?(vegetarian|vegan|pescatarian|omnivore|kosher|halal|gluten[- ]free)\b`)},
		{domain.SlotLanguage, regexp.MustCompile(`(?i)\b(?:knows?|learning|uses?|using|writes?|codes?\s+in|programs?\s+in|speaks?)\s+([^.;!?\n]+?)` + listBreak)},
		{domain.SlotHobby, regexp.MustCompile(`(?i)\b(?:enjoys?|likes?|loves?)\s+([^.;!?\n]+?)` + listBreak)},
		{domain.SlotPet, regexp.MustCompile(`(?i)\b(?:has|have|owns?|adopted)\s+([^.;!?\n]+?)` + listBreak)},
	}}
}

// Extract returns every claim found in the text, deduplicated by slot and
// normalized value.
func (e *ClaimExtractor) Extract(text string) []domain.Claim {
	var claims []domain.Claim
	seen := make(map[string]bool)
	for _, phrase := range e.ExtractPhrases(text) {
		for _, c := range phrase.Items {
			if !seen[c.Key()] {
				seen[c.Key()] = true
				claims = append(claims, c)
			}
		}
	}
	return claims
}

// ExtractPhrases returns the matched slot phrases with spans, ordered by
// position in the text. The corrector uses the phrase structure to rewrite
// lists in place.
func (e *ClaimExtractor) ExtractPhrases(text string) []SlotPhrase {
	var phrases []SlotPhrase
	for _, p := range e.patterns {
		for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := m[2], m[3]
			if start < 0 || end <= start {
				continue
			}
			phrase := SlotPhrase{
				Slot: p.slot,
				Span: domain.Span{Start: start, End: end},
			}
			raw := text[start:end]
			if p.slot.Enumerable() {
				for _, item := range splitListItems(raw) {
					phrase.Items = append(phrase.Items, e.buildClaims(p.slot, raw, item, start)...)
				}
			} else {
				phrase.Items = e.buildClaims(p.slot, raw, itemRange{0, len(raw)}, start)
			}
			if len(phrase.Items) > 0 {
				phrases = append(phrases, phrase)
			}
		}
	}
	sort.SliceStable(phrases, func(i, j int) bool {
		return phrases[i].Span.Start < phrases[j].Span.Start
	})
	return phrases
}

// MemoryFacts extracts claims from each active memory and indexes them by
// slot. Deprecated memories contribute nothing.
func (e *ClaimExtractor) MemoryFacts(memories []domain.Memory) map[domain.Slot][]MemoryFact {
	facts := make(map[domain.Slot][]MemoryFact)
	for i := range memories {
		m := &memories[i]
		if !m.Active() {
			continue
		}
		for _, c := range e.Extract(m.Text) {
			facts[c.Slot] = append(facts[c.Slot], MemoryFact{Claim: c, Memory: m})
		}
	}
	return facts
}

func (e *ClaimExtractor) buildClaims(slot domain.Slot, phrase string, item itemRange, phraseStart int) []domain.Claim {
	s, end := trimRange(phrase, item.start, item.end)
	if s >= end {
		return nil
	}
	surface := phrase[s:end]
	normalized, ok := normalizeSlotValue(slot, surface)
	if !ok || normalized == "" {
		return nil
	}
	return []domain.Claim{{
		Slot:       slot,
		Value:      surface,
		Normalized: normalized,
		Span:       &domain.Span{Start: phraseStart + s, End: phraseStart + end},
	}}
}

type itemRange struct {
	start, end int
}

var listSepRe = regexp.MustCompile(`(?i),|;|/|&|\band\b`)

// splitListItems splits a phrase on list separators, returning item offsets
// within the phrase. Oxford commas produce an empty segment between the comma
// and the "and", which is dropped.
func splitListItems(phrase string) []itemRange {
	seps := listSepRe.FindAllStringIndex(phrase, -1)
	var items []itemRange
	cursor := 0
	for _, sep := range seps {
		if sep[0] > cursor {
			items = append(items, itemRange{cursor, sep[0]})
		}
		cursor = sep[1]
	}
	if cursor < len(phrase) {
		items = append(items, itemRange{cursor, len(phrase)})
	}
	var out []itemRange
	for _, it := range items {
		s, end := trimRange(phrase, it.start, it.end)
		if s < end {
			out = append(out, itemRange{s, end})
		}
	}
	return out
}

func trimRange(s string, start, end int) (int, int) {
	for start < end && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	return start, end
}

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	determinersRe = regexp.MustCompile(`^(?:a|an|the|my|his|her|their|our|its|this|that|some)\s+`)
	countWordsRe  = regexp.MustCompile(`^(?:one|two|three|four|five|six|seven|eight|nine|ten|\d+)\s+`)
)

// valueAliases canonicalizes common shorthand so "JS" and "JavaScript"
// compare equal after normalization.
var valueAliases = map[string]string{
	"js":      "javascript",
	"ts":      "typescript",
	"golang":  "go",
	"py":      "python",
	"c sharp": "c#",
	"nyc":     "new york",
	"sf":      "san francisco",
	"la":      "los angeles",
	"uk":      "united kingdom",
	"usa":     "united states",
	"veggie":  "vegetarian",
}

// NormalizeValue lowercases, strips determiners and edge punctuation,
// collapses whitespace, and resolves known aliases. All claim comparisons
// run on normalized values.
func NormalizeValue(raw string) string {
	v := strings.ToLower(strings.TrimSpace(raw))
	v = strings.Trim(v, "\"'` \t")
	v = whitespaceRe.ReplaceAllString(v, " ")
	for {
		next := determinersRe.ReplaceAllString(v, "")
		if next == v {
			break
		}
		v = next
	}
	v = strings.Trim(v, " .,;:!?")
	if canon, ok := valueAliases[v]; ok {
		v = canon
	}
	return v
}

var knownLanguages = map[string]bool{
	"python": true, "javascript": true, "typescript": true, "ruby": true,
	"go": true, "rust": true, "java": true, "kotlin": true, "swift": true,
	"c": true, "c++": true, "c#": true, "php": true, "scala": true,
	"haskell": true, "elixir": true, "erlang": true, "clojure": true,
	"perl": true, "lua": true, "r": true, "julia": true, "dart": true,
	"sql": true, "zig": true, "fortran": true, "cobol": true,
	"english": true, "spanish": true, "french": true, "german": true,
	"italian": true, "portuguese": true, "dutch": true, "russian": true,
	"mandarin": true, "cantonese": true, "japanese": true, "korean": true,
	"hindi": true, "arabic": true, "hebrew": true, "polish": true,
}

var knownPets = map[string]bool{
	"dog": true, "cat": true, "bird": true, "fish": true, "hamster": true,
	"rabbit": true, "parrot": true, "turtle": true, "snake": true,
	"lizard": true, "horse": true, "ferret": true, "gecko": true,
	"guinea pig": true,
}

// normalizeSlotValue applies slot-specific canonicalization on top of the
// generic normalization. Slots with closed vocabularies reject values outside
// them rather than guessing.
func normalizeSlotValue(slot domain.Slot, raw string) (string, bool) {
	v := NormalizeValue(raw)
	if v == "" {
		return "", false
	}

	switch slot {
	case domain.SlotLanguage:
		if knownLanguages[v] {
			return v, true
		}
		// "fluent french" carries one recognizable token; adjectives around
		// a known language are dropped, anything else is not a claim.
		if tok, ok := soleKnownToken(v, knownLanguages); ok {
			return tok, true
		}
		return "", false

	case domain.SlotPet:
		v = countWordsRe.ReplaceAllString(v, "")
		if knownPets[v] {
			return v, true
		}
		if singular := strings.TrimSuffix(v, "s"); knownPets[singular] {
			return singular, true
		}
		if tok, ok := soleKnownToken(v, knownPets); ok {
			return tok, true
		}
		return "", false

	default:
		return v, true
	}
}

func soleKnownToken(v string, vocab map[string]bool) (string, bool) {
	var found string
	for _, tok := range strings.Fields(v) {
		tok = strings.TrimSuffix(tok, "s")
		if vocab[tok] {
			if found != "" {
				return "", false
			}
			found = tok
		}
	}
	return found, found != ""
}
