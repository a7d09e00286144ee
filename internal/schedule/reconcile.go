package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Configuration errors. These abort a run before any events are produced:
// a protocol without a well-formed baseline cannot be scheduled at all.
var (
	ErrNoBaselineVisit        = errors.New("protocol has no Day 1 visit")
	ErrDuplicateBaselineVisit = errors.New("protocol has more than one Day 1 visit")
)

// protocolGroup is one study+pathway's planned visits, sorted by Day.
type protocolGroup struct {
	study        string
	pathway      string
	rows         []ProtocolVisit
	baselineName string // VisitName of the Day 1 row
}

type protocolPlan struct {
	groups map[string]map[string]*protocolGroup // study → pathway
}

// buildPlan groups and validates the protocol. Rows missing a study or visit
// name are skipped per-record; a missing or duplicated Day 1 row is fatal.
func buildPlan(rows []ProtocolVisit, stats *RunStats) (*protocolPlan, error) {
	plan := &protocolPlan{groups: make(map[string]map[string]*protocolGroup)}
	for _, row := range rows {
		row.Study = strings.TrimSpace(row.Study)
		row.VisitName = strings.TrimSpace(row.VisitName)
		row.Pathway = normalizePathway(row.Pathway)
		if row.Study == "" || row.VisitName == "" {
			stats.ProtocolRowsSkipped++
			stats.skip(row.Study, "", row.VisitName, "protocol row missing study or visit name")
			continue
		}
		byPath, ok := plan.groups[row.Study]
		if !ok {
			byPath = make(map[string]*protocolGroup)
			plan.groups[row.Study] = byPath
		}
		g, ok := byPath[row.Pathway]
		if !ok {
			g = &protocolGroup{study: row.Study, pathway: row.Pathway}
			byPath[row.Pathway] = g
		}
		g.rows = append(g.rows, row)
	}

	for _, study := range sortedKeys(plan.groups) {
		byPath := plan.groups[study]
		for _, pathway := range sortedKeys(byPath) {
			g := byPath[pathway]
			sort.SliceStable(g.rows, func(i, j int) bool {
				if g.rows[i].Day != g.rows[j].Day {
					return g.rows[i].Day < g.rows[j].Day
				}
				return g.rows[i].VisitName < g.rows[j].VisitName
			})
			baselines := 0
			for _, row := range g.rows {
				if row.Day == 1 {
					baselines++
					g.baselineName = row.VisitName
				}
			}
			switch {
			case baselines == 0:
				return nil, fmt.Errorf("%w: study %q pathway %q", ErrNoBaselineVisit, study, pathway)
			case baselines > 1:
				return nil, fmt.Errorf("%w: study %q pathway %q", ErrDuplicateBaselineVisit, study, pathway)
			}
		}
	}
	return plan, nil
}

// rowsFor resolves the protocol for a patient: exact pathway first, then the
// standard pathway, then the study's only pathway if it has just one.
func (p *protocolPlan) rowsFor(study, pathway string) (*protocolGroup, bool) {
	byPath, ok := p.groups[study]
	if !ok {
		return nil, false
	}
	if g, ok := byPath[pathway]; ok {
		return g, true
	}
	if g, ok := byPath[DefaultPathway]; ok {
		return g, true
	}
	if len(byPath) == 1 {
		for _, g := range byPath {
			return g, true
		}
	}
	return nil, false
}

// Reconcile runs the full scheduling pass: for every patient it resolves the
// baseline (re-basing from the recorded Day 1 visit when present), matches
// recorded visits to protocol rows, predicts the rest with proposed-visit
// suppression and stoppage exclusion, and emits tolerance markers around each
// prediction. Output ordering is deterministic for identical inputs.
func Reconcile(in Inputs, cfg Config) (*Result, error) {
	cfg = cfg.withDefaults()
	res := &Result{Events: []VisitEvent{}}

	plan, err := buildPlan(in.Protocol, &res.Stats)
	if err != nil {
		return nil, err
	}

	type key struct{ study, patient string }
	grouped := make(map[key][]ActualVisit)
	for _, a := range in.Actuals {
		a.Study = strings.TrimSpace(a.Study)
		a.PatientID = strings.TrimSpace(a.PatientID)
		a.VisitName = strings.TrimSpace(a.VisitName)
		if a.ActualDate.IsZero() {
			res.Stats.VisitsSkipped++
			res.Stats.skip(a.Study, a.PatientID, a.VisitName, "invalid actual date")
			continue
		}
		k := key{a.Study, a.PatientID}
		grouped[k] = append(grouped[k], a)
	}
	for k := range grouped {
		g := grouped[k]
		sort.SliceStable(g, func(i, j int) bool {
			if !g[i].ActualDate.Equal(g[j].ActualDate) {
				return g[i].ActualDate.Before(g[j].ActualDate)
			}
			return g[i].VisitName < g[j].VisitName
		})
	}

	patients := make([]Patient, len(in.Patients))
	copy(patients, in.Patients)
	sort.SliceStable(patients, func(i, j int) bool {
		if patients[i].Study != patients[j].Study {
			return patients[i].Study < patients[j].Study
		}
		return patients[i].PatientID < patients[j].PatientID
	})

	seen := make(map[key]bool)
	for _, p := range patients {
		p = normalizePatient(p)
		k := key{p.Study, p.PatientID}
		switch {
		case p.PatientID == "" || p.Study == "":
			res.Stats.PatientsSkipped++
			res.Stats.skip(p.Study, p.PatientID, "", "patient missing id or study")
			continue
		case seen[k]:
			res.Stats.PatientsSkipped++
			res.Stats.skip(p.Study, p.PatientID, "", "duplicate patient row")
			continue
		case p.StartDate.IsZero():
			res.Stats.PatientsSkipped++
			res.Stats.skip(p.Study, p.PatientID, "", "invalid start date")
			continue
		case PracticeUnresolved(p.PatientPractice):
			res.Stats.PatientsSkipped++
			res.Stats.skip(p.Study, p.PatientID, "", "recruiting practice unresolved")
			continue
		}
		seen[k] = true

		group, ok := plan.rowsFor(p.Study, p.Pathway)
		if !ok {
			res.Stats.PatientsSkipped++
			res.Stats.skip(p.Study, p.PatientID, "", "no protocol for study/pathway")
			continue
		}

		res.Events = append(res.Events, reconcilePatient(p, group, grouped[k], cfg, &res.Stats)...)
		res.Stats.PatientsProcessed++
	}

	// Recorded visits for patients who are not enrolled cannot be assigned a
	// site, so they are dropped rather than emitted with a placeholder.
	var orphans []key
	for k := range grouped {
		if !seen[k] {
			orphans = append(orphans, k)
		}
	}
	sort.Slice(orphans, func(i, j int) bool {
		if orphans[i].study != orphans[j].study {
			return orphans[i].study < orphans[j].study
		}
		return orphans[i].patient < orphans[j].patient
	})
	for _, k := range orphans {
		for _, a := range grouped[k] {
			res.Stats.VisitsSkipped++
			res.Stats.skip(k.study, k.patient, a.VisitName, "no enrolled patient; visit dropped")
		}
	}

	sortEvents(res.Events)
	return res, nil
}

// reconcilePatient emits all visit events for one patient.
func reconcilePatient(p Patient, g *protocolGroup, actuals []ActualVisit, cfg Config, stats *RunStats) []VisitEvent {
	m := newMatcher(actuals)

	// Baseline: the recorded Day 1 visit date wins over the nominal start.
	baseline := DateOf(p.StartDate)
	if a, ok := m.peek(g.baselineName); ok {
		if d := DateOf(a.ActualDate); !d.Equal(baseline) {
			baseline = d
			stats.PatientsRebased++
		}
	}

	// Survey tentative bookings dated strictly after today. The latest
	// proposed date bounds prediction suppression; a proposed visit near the
	// end of the protocol signals the study is ending early for this patient.
	// A "_proposed" row left stale in the past still renders as proposed but
	// never bounds suppression.
	proposed := make(map[string]time.Time)
	var latestProposed time.Time
	for _, a := range actuals {
		if Classify(a.VisitType, a.VisitName).IsSiteEvent() {
			continue
		}
		d := DateOf(a.ActualDate)
		if !d.After(cfg.Today) {
			continue
		}
		low := strings.ToLower(a.VisitName)
		if cur, ok := proposed[low]; !ok || d.After(cur) {
			proposed[low] = d
		}
		if d.After(latestProposed) {
			latestProposed = d
		}
	}
	terminal := false
	if len(proposed) > 0 {
		start := len(g.rows) - cfg.TerminalVisitWindow
		if start < 0 {
			start = 0
		}
		for _, row := range g.rows[start:] {
			if _, ok := proposed[strings.ToLower(row.VisitName)]; ok {
				terminal = true
				break
			}
		}
	}

	stop, hasStop := StoppageDate(actuals)

	var events []VisitEvent
	for _, row := range g.rows {
		w := Window(row, baseline)

		if a, ok := m.find(row.VisitName); ok {
			d := DateOf(a.ActualDate)
			prop := IsProposedVisit(a, cfg.Today)
			status := actualStatus(d, prop, a.Notes, w, row.Day != 0, stop, hasStop, cfg)
			if status == StatusDataError {
				stats.DataErrors++
			}
			events = append(events, VisitEvent{
				Date:          d,
				PatientID:     p.PatientID,
				Study:         p.Study,
				VisitName:     row.VisitName,
				VisitDay:      row.Day,
				Status:        status,
				Visit:         Label(status, row.VisitName),
				Payment:       row.Payment,
				SiteOfVisit:   p.SiteSeenAt,
				PatientOrigin: p.PatientPractice,
				VisitType:     Classify(string(row.VisitType), row.VisitName),
				IsActual:      true,
				IsProposed:    prop,
			})
			continue
		}

		// Day 0 rows are optional extras: they materialize only from records.
		if row.Day == 0 {
			continue
		}

		// Nothing is scheduled past a stoppage.
		if hasStop && w.Expected.After(stop) {
			continue
		}
		if suppressPrediction(row.VisitName, w.Expected, proposed, latestProposed, terminal, cfg.Today) {
			continue
		}

		events = append(events, VisitEvent{
			Date:          w.Expected,
			PatientID:     p.PatientID,
			Study:         p.Study,
			VisitName:     row.VisitName,
			VisitDay:      row.Day,
			Status:        StatusPredicted,
			Visit:         Label(StatusPredicted, row.VisitName),
			Payment:       row.Payment,
			SiteOfVisit:   p.SiteSeenAt,
			PatientOrigin: p.PatientPractice,
			VisitType:     Classify(string(row.VisitType), row.VisitName),
		})

		for d := w.Earliest; !d.After(w.Latest); d = d.AddDate(0, 0, 1) {
			if d.Equal(w.Expected) {
				continue
			}
			if hasStop && d.After(stop) {
				continue
			}
			st := StatusToleranceBefore
			if d.After(w.Expected) {
				st = StatusToleranceAfter
			}
			events = append(events, VisitEvent{
				Date:          d,
				PatientID:     p.PatientID,
				Study:         p.Study,
				VisitName:     row.VisitName,
				VisitDay:      row.Day,
				Status:        st,
				Visit:         Label(st, row.VisitName),
				Payment:       decimal.Zero,
				SiteOfVisit:   p.SiteSeenAt,
				PatientOrigin: p.PatientPractice,
				VisitType:     Classify(string(row.VisitType), row.VisitName),
			})
		}
	}

	// Records no protocol row accounts for: ad hoc and Day 0 extras. They are
	// kept, flagged, and carry no protocol payment.
	for _, a := range m.unmatched() {
		d := DateOf(a.ActualDate)
		prop := IsProposedVisit(a, cfg.Today)
		status := actualStatus(d, prop, a.Notes, VisitWindow{}, false, stop, hasStop, cfg)
		if status == StatusDataError {
			stats.DataErrors++
		}
		stats.UnmatchedVisits++
		events = append(events, VisitEvent{
			Date:          d,
			PatientID:     p.PatientID,
			Study:         p.Study,
			VisitName:     a.VisitName,
			VisitDay:      0,
			Status:        status,
			Visit:         Label(status, a.VisitName),
			Payment:       decimal.Zero,
			SiteOfVisit:   p.SiteSeenAt,
			PatientOrigin: p.PatientPractice,
			VisitType:     Classify(a.VisitType, a.VisitName),
			IsActual:      true,
			IsProposed:    prop,
			Unscheduled:   true,
		})
	}

	return events
}

// actualStatus resolves the status of a recorded visit. A record dated after
// the patient's stoppage is a data inconsistency, surfaced rather than
// dropped; proposed records are exempt because tentative bookings are entered
// independently of the stoppage workflow.
func actualStatus(d time.Time, proposed bool, notes string, w VisitWindow, applyWindow bool, stop time.Time, hasStop bool, cfg Config) VisitStatus {
	if hasStop && d.After(stop) && !proposed {
		return StatusDataError
	}
	if s, ok := NoteStatus(notes); ok {
		return s
	}
	if proposed {
		return StatusProposed
	}
	if cfg.FlagOutOfProtocol && applyWindow && !w.Contains(d) {
		return StatusOutOfProtocol
	}
	return StatusCompleted
}

// suppressPrediction decides whether a predicted visit is superseded by the
// patient's tentative bookings. A booking with the same name always wins.
// Otherwise, predictions between today and the latest booking are covered by
// it, and when a terminal visit is booked nothing is predicted beyond it.
// Past-dated predictions are never suppressed: they remain visible as
// possibly-happened-but-unrecorded.
func suppressPrediction(name string, expected time.Time, proposed map[string]time.Time, latestProposed time.Time, terminal bool, today time.Time) bool {
	if _, ok := proposed[strings.ToLower(strings.TrimSpace(name))]; ok {
		return true
	}
	if len(proposed) == 0 || expected.Before(today) {
		return false
	}
	if expected.Before(latestProposed) {
		return true
	}
	if terminal && expected.After(latestProposed) {
		return true
	}
	return false
}

func normalizePatient(p Patient) Patient {
	p.PatientID = strings.TrimSpace(p.PatientID)
	p.Study = strings.TrimSpace(p.Study)
	p.Pathway = normalizePathway(p.Pathway)
	p.PatientPractice = strings.TrimSpace(p.PatientPractice)
	p.SiteSeenAt = strings.TrimSpace(p.SiteSeenAt)
	if p.SiteSeenAt == "" {
		p.SiteSeenAt = p.PatientPractice
	}
	return p
}

func normalizePathway(pathway string) string {
	pathway = strings.ToLower(strings.TrimSpace(pathway))
	if pathway == "" {
		return DefaultPathway
	}
	return pathway
}

// PracticeUnresolved reports whether a recruiting practice value is one of
// the placeholder forms that must never be scheduled against. Enrollment
// validation shares this check so bad practices are refused at the door.
func PracticeUnresolved(practice string) bool {
	practice = strings.TrimSpace(practice)
	return practice == "" ||
		strings.EqualFold(practice, "unknown site") ||
		strings.EqualFold(practice, "unknown")
}

func sortEvents(events []VisitEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.Study != b.Study {
			return a.Study < b.Study
		}
		if a.PatientID != b.PatientID {
			return a.PatientID < b.PatientID
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.VisitDay != b.VisitDay {
			return a.VisitDay < b.VisitDay
		}
		if a.VisitName != b.VisitName {
			return a.VisitName < b.VisitName
		}
		return a.Status < b.Status
	})
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
