package schedule

import (
	"strings"
	"time"
)

// Classify maps a visit's raw type field, falling back to its name, to a
// canonical VisitType. An explicit type wins (a "_proposed" suffix is a
// booking marker, not a type, and is stripped first). Without one, names
// mentioning site initiation classify as SIV, names mentioning monitoring as
// Monitor, and everything else is a patient visit.
func Classify(rawType, visitName string) VisitType {
	t := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(rawType)), proposedSuffix)
	switch VisitType(t) {
	case VisitPatient, VisitExtra, VisitSIV, VisitMonitor:
		return VisitType(t)
	}
	n := strings.ToLower(visitName)
	switch {
	case strings.Contains(n, "siv"), strings.Contains(n, "site initiation"):
		return VisitSIV
	case strings.Contains(n, "monitor"):
		return VisitMonitor
	default:
		return VisitPatient
	}
}

// IsSiteEvent reports whether a visit type belongs to the site-wide event
// feed rather than to an individual patient's schedule.
func (t VisitType) IsSiteEvent() bool {
	return t == VisitSIV || t == VisitMonitor
}

// IsProposedVisit reports whether a recorded visit is a tentative booking:
// either dated strictly after today, or explicitly typed with a "_proposed"
// suffix regardless of date.
func IsProposedVisit(v ActualVisit, today time.Time) bool {
	if DateOf(v.ActualDate).After(DateOf(today)) {
		return true
	}
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(v.VisitType)), proposedSuffix)
}
