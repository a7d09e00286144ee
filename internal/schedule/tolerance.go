package schedule

import (
	"strings"
	"time"
)

// Interval units a protocol row may schedule by instead of a flat day offset.
const (
	IntervalWeek  = "week"
	IntervalMonth = "month"
)

// VisitWindow is the expected date of a protocol visit and the date range
// within which it still counts as on-protocol.
type VisitWindow struct {
	Expected time.Time
	Earliest time.Time
	Latest   time.Time
	Before   int // tolerance days before Expected
	After    int // tolerance days after Expected
}

// Contains reports whether a date falls inside the window (inclusive).
func (w VisitWindow) Contains(d time.Time) bool {
	d = DateOf(d)
	return !d.Before(w.Earliest) && !d.After(w.Latest)
}

// Window computes a protocol visit's expected date and tolerance window from
// the patient's baseline. Day 1 is the baseline itself, so the flat offset is
// Day−1 days. When the row schedules by interval unit, the expected date is
// baseline plus that many weeks or months instead. Negative tolerances clamp
// to zero; malformed tolerance input never reaches here (see ParseDayCount).
func Window(v ProtocolVisit, baseline time.Time) VisitWindow {
	base := DateOf(baseline)
	unit := normalizeUnit(v.IntervalUnit)
	if v.IntervalValue == 0 {
		unit = ""
	}
	var expected time.Time
	switch unit {
	case IntervalWeek:
		expected = base.AddDate(0, 0, 7*v.IntervalValue)
	case IntervalMonth:
		expected = base.AddDate(0, v.IntervalValue, 0)
	default:
		expected = base.AddDate(0, 0, v.Day-1)
	}
	before := clampDays(v.ToleranceBefore)
	after := clampDays(v.ToleranceAfter)
	return VisitWindow{
		Expected: expected,
		Earliest: expected.AddDate(0, 0, -before),
		Latest:   expected.AddDate(0, 0, after),
		Before:   before,
		After:    after,
	}
}

// normalizeUnit folds case and plural forms; anything unrecognized means the
// row schedules by day offset. An interval unit without a value is ignored.
func normalizeUnit(u string) string {
	u = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(u)), "s")
	if u == IntervalWeek || u == IntervalMonth {
		return u
	}
	return ""
}

func clampDays(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
