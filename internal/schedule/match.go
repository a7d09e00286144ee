package schedule

import (
	"sort"
	"strings"
)

// matcher resolves one patient's recorded visits against protocol visit
// names: exact match first, then case-insensitive. SIV/Monitor records are
// excluded from patient-level matching (they belong to the site event feed).
// When several records share a name the earliest-dated one matches and the
// rest fall through to the unmatched pass, so no recorded visit disappears.
type matcher struct {
	actuals  []ActualVisit
	exact    map[string]int
	folded   map[string]int
	consumed []bool
}

func newMatcher(actuals []ActualVisit) *matcher {
	m := &matcher{
		actuals:  actuals,
		exact:    make(map[string]int, len(actuals)),
		folded:   make(map[string]int, len(actuals)),
		consumed: make([]bool, len(actuals)),
	}
	// Earliest date claims the name; ties keep input order.
	order := make([]int, len(actuals))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return actuals[order[a]].ActualDate.Before(actuals[order[b]].ActualDate)
	})
	for _, i := range order {
		v := actuals[i]
		if Classify(v.VisitType, v.VisitName).IsSiteEvent() {
			continue
		}
		name := strings.TrimSpace(v.VisitName)
		if _, dup := m.exact[name]; !dup {
			m.exact[name] = i
		}
		low := strings.ToLower(name)
		if _, dup := m.folded[low]; !dup {
			m.folded[low] = i
		}
	}
	return m
}

func (m *matcher) lookup(name string) (int, bool) {
	name = strings.TrimSpace(name)
	if i, ok := m.exact[name]; ok && !m.consumed[i] {
		return i, true
	}
	if i, ok := m.folded[strings.ToLower(name)]; ok && !m.consumed[i] {
		return i, true
	}
	return 0, false
}

// find returns the record for a protocol visit name and consumes it so the
// unmatched pass will not see it again.
func (m *matcher) find(name string) (ActualVisit, bool) {
	i, ok := m.lookup(name)
	if !ok {
		return ActualVisit{}, false
	}
	m.consumed[i] = true
	return m.actuals[i], true
}

// peek is find without consuming, used for baseline resolution before the
// per-visit walk.
func (m *matcher) peek(name string) (ActualVisit, bool) {
	i, ok := m.lookup(name)
	if !ok {
		return ActualVisit{}, false
	}
	return m.actuals[i], true
}

// unmatched returns the remaining patient-level records in input order.
func (m *matcher) unmatched() []ActualVisit {
	var out []ActualVisit
	for i, v := range m.actuals {
		if m.consumed[i] {
			continue
		}
		if Classify(v.VisitType, v.VisitName).IsSiteEvent() {
			continue
		}
		out = append(out, v)
	}
	return out
}

// MatchResult pairs protocol visit names with the recorded visits that
// satisfy them, plus the records no protocol row accounts for.
type MatchResult struct {
	Matched   map[string]ActualVisit
	Unmatched []ActualVisit
}

// MatchActuals resolves a patient's recorded visits against a protocol visit
// list. Matched is keyed by the protocol row's VisitName (canonical casing).
func MatchActuals(protocol []ProtocolVisit, actuals []ActualVisit) MatchResult {
	m := newMatcher(actuals)
	res := MatchResult{Matched: make(map[string]ActualVisit)}
	for _, row := range protocol {
		if a, ok := m.find(row.VisitName); ok {
			res.Matched[row.VisitName] = a
		}
	}
	res.Unmatched = m.unmatched()
	return res
}
