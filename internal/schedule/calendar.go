package schedule

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Grid is the dense calendar projection of a reconciliation run: one row per
// date in range, one column per patient, a per-site Events column for
// site-wide visits, and per-study income with a daily total.
type Grid struct {
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	PatientColumns []string  `json:"patient_columns"`
	EventColumns   []string  `json:"event_columns"`
	IncomeColumns  []string  `json:"income_columns"`
	Days           []GridDay `json:"days"`
}

// GridDay is one calendar row.
type GridDay struct {
	Date   time.Time                  `json:"date"`
	Cells  map[string]string          `json:"cells,omitempty"`
	Income map[string]decimal.Decimal `json:"income,omitempty"`
	Total  decimal.Decimal            `json:"total"`
}

// fallbackWindowDays sizes the projected range when there is nothing to
// project yet.
const fallbackWindowDays = 14

// Project expands visit events into the dense calendar grid. The range spans
// [min(dates)−1, max(dates)+1]; with no events it derives from patient start
// dates, and failing that a two-week window from today. Cell conflicts
// resolve by precedence (tolerance < predicted < proposed < actual) except
// that same-day actual visits concatenate. Payment accumulates into the
// per-study income and daily total for every actual and every non-tolerance
// predicted visit; tolerance markers never carry payment.
func Project(events []VisitEvent, studyEvents []StudyEvent, patients []Patient, cfg Config) *Grid {
	cfg = cfg.withDefaults()

	siteEvents := normalizeStudyEvents(studyEvents)
	start, end := projectionRange(events, siteEvents, patients, cfg.Today)

	grid := &Grid{Start: start, End: end}
	n := int(end.Sub(start).Hours()/24) + 1
	grid.Days = make([]GridDay, n)
	for i := range grid.Days {
		grid.Days[i] = GridDay{
			Date:   start.AddDate(0, 0, i),
			Cells:  make(map[string]string),
			Income: make(map[string]decimal.Decimal),
			Total:  decimal.Zero,
		}
	}
	dayIndex := func(d time.Time) (int, bool) {
		i := int(DateOf(d).Sub(start).Hours() / 24)
		return i, i >= 0 && i < n
	}

	columnOf := patientColumns(events)
	grid.PatientColumns = sortedColumnNames(columnOf)

	// rank tracks the winning precedence per cell so a lower-ranked fill
	// never overwrites a higher one.
	type cellRef struct {
		day int
		col string
	}
	rank := make(map[cellRef]int)

	incomeStudies := make(map[string]bool)
	for _, e := range events {
		i, ok := dayIndex(e.Date)
		if !ok {
			continue
		}
		col := columnOf[columnKey(e.Study, e.PatientID, e.PatientOrigin)]
		ref := cellRef{day: i, col: col}
		r := cellRank(e)
		switch cur, filled := grid.Days[i].Cells[col]; {
		case !filled || r > rank[ref]:
			grid.Days[i].Cells[col] = e.Visit
			rank[ref] = r
		case r == rank[ref] && e.IsActual:
			grid.Days[i].Cells[col] = cur + ", " + e.Visit
		}

		if !e.Status.IsToleranceMarker() && !e.Payment.IsZero() {
			grid.Days[i].Income[e.Study] = grid.Days[i].Income[e.Study].Add(e.Payment)
			grid.Days[i].Total = grid.Days[i].Total.Add(e.Payment)
			incomeStudies[e.Study] = true
		}
	}

	eventCols := make(map[string]bool)
	for _, se := range siteEvents {
		i, ok := dayIndex(se.ActualDate)
		if !ok {
			continue
		}
		col := se.SiteForVisit + " Events"
		eventCols[col] = true
		text := se.Study + " " + se.VisitName
		if strings.EqualFold(se.Status, EventProposed) {
			text += " (proposed)"
		}
		if cur, filled := grid.Days[i].Cells[col]; filled {
			text = cur + ", " + text
		}
		grid.Days[i].Cells[col] = text
	}

	grid.EventColumns = sortedSet(eventCols)
	grid.IncomeColumns = sortedSet(incomeStudies)
	return grid
}

// cellRank orders cell precedence: tolerance markers lose to predictions,
// predictions to proposed bookings, proposed bookings to confirmed visits.
func cellRank(e VisitEvent) int {
	switch {
	case e.Status.IsToleranceMarker():
		return 0
	case e.IsActual && !e.IsProposed:
		return 3
	case e.IsProposed:
		return 2
	default:
		return 1
	}
}

// columnKey identifies a patient column before collision handling.
func columnKey(study, patientID, origin string) string {
	return study + "\x00" + patientID + "\x00" + origin
}

// patientColumns names one column per (study, patient). When the same
// study+patient appears under two origins the origin disambiguates both.
func patientColumns(events []VisitEvent) map[string]string {
	origins := make(map[string]map[string]bool)
	for _, e := range events {
		base := e.Study + " " + e.PatientID
		if origins[base] == nil {
			origins[base] = make(map[string]bool)
		}
		origins[base][e.PatientOrigin] = true
	}
	cols := make(map[string]string)
	for _, e := range events {
		base := e.Study + " " + e.PatientID
		name := base
		if len(origins[base]) > 1 {
			name = base + " (" + e.PatientOrigin + ")"
		}
		cols[columnKey(e.Study, e.PatientID, e.PatientOrigin)] = name
	}
	return cols
}

func sortedColumnNames(cols map[string]string) []string {
	set := make(map[string]bool, len(cols))
	for _, name := range cols {
		set[name] = true
	}
	return sortedSet(set)
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// normalizeStudyEvents drops undated, cancelled and unsited records and
// orders the rest deterministically.
func normalizeStudyEvents(events []StudyEvent) []StudyEvent {
	var out []StudyEvent
	for _, se := range events {
		se.Study = strings.TrimSpace(se.Study)
		se.VisitName = strings.TrimSpace(se.VisitName)
		se.SiteForVisit = strings.TrimSpace(se.SiteForVisit)
		se.Status = strings.TrimSpace(se.Status)
		if se.ActualDate.IsZero() || se.SiteForVisit == "" {
			continue
		}
		if strings.EqualFold(se.Status, EventCancelled) {
			continue
		}
		se.ActualDate = DateOf(se.ActualDate)
		out = append(out, se)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.ActualDate.Equal(b.ActualDate) {
			return a.ActualDate.Before(b.ActualDate)
		}
		if a.SiteForVisit != b.SiteForVisit {
			return a.SiteForVisit < b.SiteForVisit
		}
		if a.Study != b.Study {
			return a.Study < b.Study
		}
		return a.VisitName < b.VisitName
	})
	return out
}

// projectionRange spans all projected dates plus one day of margin either
// side.
func projectionRange(events []VisitEvent, siteEvents []StudyEvent, patients []Patient, today time.Time) (time.Time, time.Time) {
	var min, max time.Time
	grow := func(d time.Time) {
		d = DateOf(d)
		if min.IsZero() || d.Before(min) {
			min = d
		}
		if max.IsZero() || d.After(max) {
			max = d
		}
	}
	for _, e := range events {
		grow(e.Date)
	}
	for _, se := range siteEvents {
		grow(se.ActualDate)
	}
	if min.IsZero() {
		for _, p := range patients {
			if !p.StartDate.IsZero() {
				grow(p.StartDate)
			}
		}
	}
	if min.IsZero() {
		grow(today)
		grow(today.AddDate(0, 0, fallbackWindowDays))
	}
	return min.AddDate(0, 0, -1), max.AddDate(0, 0, 1)
}
