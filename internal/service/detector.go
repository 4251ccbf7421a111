package service

import (
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verityhq/verity/internal/domain"
)

// DefaultNoiseGapThreshold is the trust gap at or above which a conflict is
// treated as noise drowned out by the stronger memory: it is still detected
// and ledgered, but it does not demand a disclosure in answers.
const DefaultNoiseGapThreshold float32 = 0.5

// trustEpsilon bounds float noise when comparing trust scores for a winner.
const trustEpsilon = 1e-6

// ContradictionDetector finds slots where the consulted memories assert
// mutually exclusive values.
type ContradictionDetector struct {
	noiseGap float32
	logger   *zap.Logger
}

func NewContradictionDetector(logger *zap.Logger) *ContradictionDetector {
	return &ContradictionDetector{
		noiseGap: DefaultNoiseGapThreshold,
		logger:   logger,
	}
}

// SetNoiseGapThreshold overrides the trust gap above which disclosure is
// suppressed.
func (d *ContradictionDetector) SetNoiseGapThreshold(gap float32) {
	if gap > 0 && gap <= 1 {
		d.noiseGap = gap
	}
}

// valueGroup collects the memories asserting one normalized value for a
// slot. The representative is the strongest supporter: highest trust,
// then most recently asserted.
type valueGroup struct {
	value string
	ids   []uuid.UUID
	rep   *domain.Memory
}

// Detect reports every pairwise conflict between distinct values of an
// exclusive slot. Pairs previously resolved as preserve are skipped via the
// preserved set, keyed by domain.PreservedKey. Enumerable slots never
// conflict with themselves.
func (d *ContradictionDetector) Detect(facts map[domain.Slot][]MemoryFact, preserved map[string]bool) []domain.ContradictionDetail {
	var details []domain.ContradictionDetail

	for slot, slotFacts := range facts {
		if !slot.Traits().Exclusive {
			continue
		}
		groups := groupByValue(slotFacts)
		if len(groups) < 2 {
			continue
		}

		for i := 0; i < len(groups); i++ {
			for j := i + 1; j < len(groups); j++ {
				detail, ok := d.pairDetail(slot, groups[i], groups[j], preserved)
				if !ok {
					continue
				}
				details = append(details, detail)
			}
		}
	}

	sort.Slice(details, func(i, j int) bool {
		if details[i].Slot != details[j].Slot {
			return details[i].Slot < details[j].Slot
		}
		return details[i].WinnerValue < details[j].WinnerValue
	})
	return details
}

func (d *ContradictionDetector) pairDetail(slot domain.Slot, old, newer valueGroup, preserved map[string]bool) (domain.ContradictionDetail, bool) {
	ids := make([]uuid.UUID, 0, len(old.ids)+len(newer.ids))
	ids = append(ids, old.ids...)
	ids = append(ids, newer.ids...)

	if preserved[domain.PreservedKey(slot, domain.MemoryKeyFor(ids))] {
		d.logger.Debug("skipping preserved pair",
			zap.String("slot", string(slot)),
			zap.Strings("values", []string{old.value, newer.value}))
		return domain.ContradictionDetail{}, false
	}

	values := make([]string, 0, len(ids))
	for range old.ids {
		values = append(values, old.value)
	}
	for range newer.ids {
		values = append(values, newer.value)
	}

	gap := old.rep.Trust - newer.rep.Trust
	if gap < 0 {
		gap = -gap
	}

	detail := domain.ContradictionDetail{
		Slot:               slot,
		Values:             values,
		MemoryIDs:          ids,
		TrustGap:           gap,
		RequiresDisclosure: gap < d.noiseGap,
	}

	if winner, loser, ok := pickWinner(old, newer); ok {
		id := winner.rep.ID
		detail.WinnerMemoryID = &id
		detail.WinnerValue = winner.value
		detail.PriorValues = []string{loser.value}
	}
	return detail, true
}

// pickWinner prefers the group with the clearly higher trust, falling back
// to the more recently asserted one. With equal trust and no usable
// timestamps there is no winner and the conflict needs a human.
func pickWinner(a, b valueGroup) (winner, loser valueGroup, ok bool) {
	switch {
	case a.rep.Trust-b.rep.Trust > trustEpsilon:
		return a, b, true
	case b.rep.Trust-a.rep.Trust > trustEpsilon:
		return b, a, true
	}

	at, bt := a.rep.AssertedAt(), b.rep.AssertedAt()
	switch {
	case at.IsZero() && bt.IsZero():
		return valueGroup{}, valueGroup{}, false
	case bt.After(at):
		return b, a, true
	case at.After(bt):
		return a, b, true
	}
	return valueGroup{}, valueGroup{}, false
}

// groupByValue folds facts for one slot into per-value groups, ordered from
// the oldest asserted value to the newest.
func groupByValue(facts []MemoryFact) []valueGroup {
	index := make(map[string]int)
	var groups []valueGroup

	for _, fact := range facts {
		i, ok := index[fact.Claim.Normalized]
		if !ok {
			index[fact.Claim.Normalized] = len(groups)
			groups = append(groups, valueGroup{value: fact.Claim.Normalized, rep: fact.Memory})
			i = len(groups) - 1
		}
		groups[i].ids = append(groups[i].ids, fact.Memory.ID)
		if strongerSupport(fact.Memory, groups[i].rep) {
			groups[i].rep = fact.Memory
		}
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].rep.AssertedAt().Before(groups[j].rep.AssertedAt())
	})
	return groups
}

func strongerSupport(a, b *domain.Memory) bool {
	if a.Trust != b.Trust {
		return a.Trust > b.Trust
	}
	return a.AssertedAt().After(b.AssertedAt())
}

// changeContextFor reconstructs what changed for the classifier: the
// earliest asserted memory in the conflict is the old state, the latest the
// new one. Ties fall back to trust order, lower first.
func changeContextFor(detail domain.ContradictionDetail, byID map[uuid.UUID]*domain.Memory) domain.ChangeContext {
	change := domain.ChangeContext{Slot: detail.Slot}

	var oldest, latest *domain.Memory
	var oldVal, newVal string
	for i, id := range detail.MemoryIDs {
		m := byID[id]
		if m == nil || i >= len(detail.Values) {
			continue
		}
		if oldest == nil || assertedBefore(m, oldest) {
			oldest, oldVal = m, detail.Values[i]
		}
		if latest == nil || assertedBefore(latest, m) {
			latest, newVal = m, detail.Values[i]
		}
	}
	if oldest == nil || latest == nil {
		return change
	}

	change.OldValue = oldVal
	change.NewValue = newVal
	change.OldText = oldest.Text
	change.NewText = latest.Text
	if ot, nt := oldest.AssertedAt(), latest.AssertedAt(); !ot.IsZero() && !nt.IsZero() && nt.After(ot) {
		change.Gap = nt.Sub(ot)
	}
	return change
}

func assertedBefore(a, b *domain.Memory) bool {
	at, bt := a.AssertedAt(), b.AssertedAt()
	if !at.Equal(bt) {
		return at.Before(bt)
	}
	return a.Trust < b.Trust
}
