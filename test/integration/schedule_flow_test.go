package integration

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/trialcal/trialcal/internal/domain/patient"
	"github.com/trialcal/trialcal/internal/domain/protocol"
	"github.com/trialcal/trialcal/internal/domain/scheduling"
	"github.com/trialcal/trialcal/internal/domain/visit"
	"github.com/trialcal/trialcal/internal/schedule"
)

// TestScheduleFlow drives the whole pipeline against the migrated database:
// seed a protocol, patients and visit history through the repositories, then
// build the schedule, the calendar grid and both financial reports from them.
func TestScheduleFlow(t *testing.T) {
	ctx := context.Background()
	study := uniqueStudy("FLOW")
	defer cleanupStudy(t, ctx, study)

	// The service reconciles against the real clock, so every seed date hangs
	// off today: three patients enrolled four weeks ago whose histories
	// exercise re-basing, withdrawal and proposed-visit suppression.
	today := schedule.DateOf(time.Now())
	start := today.AddDate(0, 0, -28)
	rebased := start.AddDate(0, 0, 2) // P-001's recorded Baseline date

	err := withConn(ctx, globalDB.Pool, func(ctx context.Context) error {
		createTestProtocolVisit(t, ctx, study, -13, "Screening", 120, 0, 0)
		createTestProtocolVisit(t, ctx, study, 1, "Baseline", 250, 0, 0)
		createTestProtocolVisit(t, ctx, study, 15, "Week 2", 150, 3, 3)
		createTestProtocolVisit(t, ctx, study, 29, "Week 4", 150, 3, 3)
		createTestProtocolVisit(t, ctx, study, 57, "Week 8", 180, 7, 7)
		createTestProtocolVisit(t, ctx, study, 85, "Final Visit", 300, 7, 7)

		// P-001 follows the protocol but baselined two days late.
		createTestPatient(t, ctx, study, "P-001", start, "St Marys")
		createTestVisit(t, ctx, study, "P-001", "Screening", start.AddDate(0, 0, -14), "", "")
		createTestVisit(t, ctx, study, "P-001", "Baseline", rebased, "", "")
		createTestVisit(t, ctx, study, "P-001", "Week 2", rebased.AddDate(0, 0, 14), "", "")

		// P-002 withdrew at week two.
		createTestPatient(t, ctx, study, "P-002", start, "Riverside")
		createTestVisit(t, ctx, study, "P-002", "Baseline", start, "", "")
		createTestVisit(t, ctx, study, "P-002", "Week 2", start.AddDate(0, 0, 14), "Withdrawn by investigator", "")

		// P-003 has the terminal visit booked ten days out.
		createTestPatient(t, ctx, study, "P-003", start, "St Marys")
		createTestVisit(t, ctx, study, "P-003", "Baseline", start, "", "")
		createTestVisit(t, ctx, study, "P-003", "Final Visit", today.AddDate(0, 0, 10), "", "patient_proposed")

		createTestStudyEvent(t, ctx, study, "Site Initiation Visit", start.AddDate(0, 0, -21), "completed", "St Marys")
		return nil
	})
	if err != nil {
		t.Fatalf("seed study: %v", err)
	}

	svc := scheduling.NewService(
		protocol.NewRepo(globalDB.Pool),
		patient.NewRepo(globalDB.Pool),
		visit.NewRepo(globalDB.Pool),
		scheduling.Options{},
		zerolog.Nop(),
	)

	t.Run("BuildSchedule", func(t *testing.T) {
		res, err := svc.BuildSchedule(ctx, study, "")
		if err != nil {
			t.Fatalf("BuildSchedule: %v", err)
		}

		if res.Stats.PatientsProcessed != 3 {
			t.Errorf("expected 3 patients processed, got %d", res.Stats.PatientsProcessed)
		}
		if res.Stats.PatientsRebased != 1 {
			t.Errorf("expected 1 patient re-based, got %d", res.Stats.PatientsRebased)
		}
		if res.Stats.DataErrors != 0 || res.Stats.UnmatchedVisits != 0 {
			t.Errorf("expected a clean run, got %+v", res.Stats)
		}

		p1 := eventsFor(res.Events, "P-001")
		if _, ok := findEvent(p1, "Baseline", schedule.StatusCompleted); !ok {
			t.Error("P-001: expected a completed Baseline")
		}
		w4, ok := findEvent(p1, "Week 4", schedule.StatusPredicted)
		if !ok {
			t.Fatal("P-001: expected Week 4 to be predicted")
		}
		if want := rebased.AddDate(0, 0, 28); !w4.Date.Equal(want) {
			t.Errorf("P-001: Week 4 predicted on %s, want %s (re-based from the recorded Baseline)",
				w4.Date.Format("2006-01-02"), want.Format("2006-01-02"))
		}
		markers := 0
		for _, e := range p1 {
			if e.VisitName == "Week 4" && e.Status.IsToleranceMarker() {
				markers++
				if !e.Payment.IsZero() {
					t.Error("tolerance markers must not carry payment")
				}
			}
		}
		if markers != 6 {
			t.Errorf("P-001: expected 6 tolerance markers around Week 4, got %d", markers)
		}

		p2 := eventsFor(res.Events, "P-002")
		if _, ok := findEvent(p2, "Week 2", schedule.StatusWithdrawn); !ok {
			t.Error("P-002: expected Week 2 to record the withdrawal")
		}
		stop := start.AddDate(0, 0, 14)
		for _, e := range p2 {
			if e.Date.After(stop) {
				t.Errorf("P-002: event %s on %s scheduled after withdrawal", e.VisitName, e.Date.Format("2006-01-02"))
			}
		}
		// Past-dated predictions stay visible as possibly unrecorded.
		if _, ok := findEvent(p2, "Screening", schedule.StatusPredicted); !ok {
			t.Error("P-002: expected Screening to remain predicted")
		}

		p3 := eventsFor(res.Events, "P-003")
		fin, ok := findEvent(p3, "Final Visit", schedule.StatusProposed)
		if !ok {
			t.Fatal("P-003: expected the proposed Final Visit")
		}
		if !fin.IsActual || !fin.IsProposed {
			t.Errorf("P-003: Final Visit flags IsActual=%t IsProposed=%t, want true/true", fin.IsActual, fin.IsProposed)
		}
		for _, e := range p3 {
			if e.VisitName == "Week 4" || e.VisitName == "Week 8" {
				t.Errorf("P-003: %s should be suppressed by the terminal booking", e.VisitName)
			}
		}
		if _, ok := findEvent(p3, "Week 2", schedule.StatusPredicted); !ok {
			t.Error("P-003: expected the past-dated Week 2 prediction to survive suppression")
		}
	})

	t.Run("FilterByPatient", func(t *testing.T) {
		res, err := svc.BuildSchedule(ctx, study, "P-002")
		if err != nil {
			t.Fatalf("BuildSchedule: %v", err)
		}
		if len(res.Events) != 3 {
			t.Fatalf("expected 3 events for P-002, got %d", len(res.Events))
		}
		for _, e := range res.Events {
			if e.PatientID != "P-002" {
				t.Errorf("expected only P-002 events, got %s", e.PatientID)
			}
		}
		// Stats stay run-wide.
		if res.Stats.PatientsProcessed != 3 {
			t.Errorf("expected run-wide stats, got %d patients", res.Stats.PatientsProcessed)
		}
	})

	t.Run("BuildCalendar", func(t *testing.T) {
		grid, err := svc.BuildCalendar(ctx, study)
		if err != nil {
			t.Fatalf("BuildCalendar: %v", err)
		}

		wantCols := []string{study + " P-001", study + " P-002", study + " P-003"}
		if !reflect.DeepEqual(grid.PatientColumns, wantCols) {
			t.Errorf("patient columns %v, want %v", grid.PatientColumns, wantCols)
		}
		if len(grid.EventColumns) != 1 || grid.EventColumns[0] != "St Marys Events" {
			t.Errorf("event columns %v, want [St Marys Events]", grid.EventColumns)
		}
		if len(grid.IncomeColumns) != 1 || grid.IncomeColumns[0] != study {
			t.Errorf("income columns %v, want [%s]", grid.IncomeColumns, study)
		}

		if want := int(grid.End.Sub(grid.Start).Hours()/24) + 1; len(grid.Days) != want {
			t.Errorf("expected %d contiguous days, got %d", want, len(grid.Days))
		}
		if wantStart := start.AddDate(0, 0, -22); !grid.Start.Equal(wantStart) {
			t.Errorf("grid starts %s, want %s (one day before the site event)",
				grid.Start.Format("2006-01-02"), wantStart.Format("2006-01-02"))
		}

		siv := gridDayOn(t, grid, start.AddDate(0, 0, -21))
		if got := siv.Cells["St Marys Events"]; got != study+" Site Initiation Visit" {
			t.Errorf("site event cell = %q, want %q", got, study+" Site Initiation Visit")
		}

		base := gridDayOn(t, grid, rebased)
		if got := base.Cells[study+" P-001"]; got != "Baseline" {
			t.Errorf("baseline cell = %q, want %q", got, "Baseline")
		}
		if !base.Income[study].Equal(decimal.NewFromInt(250)) {
			t.Errorf("income on the baseline day = %s, want 250", base.Income[study])
		}
		if !base.Total.Equal(decimal.NewFromInt(250)) {
			t.Errorf("total on the baseline day = %s, want 250", base.Total)
		}

		wd := gridDayOn(t, grid, start.AddDate(0, 0, 14))
		if got := wd.Cells[study+" P-002"]; got != "Week 2 (withdrawn)" {
			t.Errorf("withdrawal cell = %q, want %q", got, "Week 2 (withdrawn)")
		}

		prop := gridDayOn(t, grid, today.AddDate(0, 0, 10))
		if got := prop.Cells[study+" P-003"]; got != "Final Visit (proposed)" {
			t.Errorf("proposed cell = %q, want %q", got, "Final Visit (proposed)")
		}
	})

	t.Run("IncomeReport", func(t *testing.T) {
		rep, err := svc.IncomeReport(ctx, study, "", "")
		if err != nil {
			t.Fatalf("IncomeReport: %v", err)
		}
		if rep.Period != schedule.PeriodMonth || rep.GroupBy != schedule.GroupByStudy {
			t.Errorf("defaults = %s/%s, want month/study", rep.Period, rep.GroupBy)
		}
		if len(rep.Lines) == 0 {
			t.Fatal("expected income lines")
		}

		completed, pipeline, scheduled := decimal.Zero, decimal.Zero, decimal.Zero
		for _, ln := range rep.Lines {
			if ln.Group != study {
				t.Errorf("line grouped under %q, want %q", ln.Group, study)
			}
			completed = completed.Add(ln.CompletedIncome)
			pipeline = pipeline.Add(ln.PipelineIncome)
			scheduled = scheduled.Add(ln.ScheduledIncome)
		}
		// Completed: P-001 520, P-002 400 (the withdrawal visit still bills),
		// P-003 250.
		if want := decimal.NewFromInt(1170); !completed.Equal(want) {
			t.Errorf("completed income %s, want %s", completed, want)
		}
		// Pipeline: P-001 630, P-002 120, P-003 270 — everything still predicted.
		if want := decimal.NewFromInt(1020); !pipeline.Equal(want) {
			t.Errorf("pipeline income %s, want %s", pipeline, want)
		}
		// Scheduled adds the proposed Final Visit on top.
		if want := decimal.NewFromInt(2490); !scheduled.Equal(want) {
			t.Errorf("scheduled income %s, want %s", scheduled, want)
		}

		if _, err := svc.IncomeReport(ctx, study, "fortnight", ""); err == nil {
			t.Error("expected an invalid period to be rejected")
		}
	})

	t.Run("IncomeReportBySite", func(t *testing.T) {
		rep, err := svc.IncomeReport(ctx, study, schedule.PeriodQuarter, schedule.GroupBySite)
		if err != nil {
			t.Fatalf("IncomeReport: %v", err)
		}
		perSite := make(map[string]decimal.Decimal)
		for _, ln := range rep.Lines {
			cur, ok := perSite[ln.Group]
			if !ok {
				cur = decimal.Zero
			}
			perSite[ln.Group] = cur.Add(ln.CompletedIncome)
		}
		if !perSite["St Marys"].Equal(decimal.NewFromInt(770)) {
			t.Errorf("completed income at St Marys = %s, want 770", perSite["St Marys"])
		}
		if !perSite["Riverside"].Equal(decimal.NewFromInt(400)) {
			t.Errorf("completed income at Riverside = %s, want 400", perSite["Riverside"])
		}
	})

	t.Run("ProfitShareReport", func(t *testing.T) {
		intp := func(n int) *int { return &n }
		share, err := svc.ProfitShareReport(ctx, scheduling.ProfitShareOverrides{
			SiteA:             "St Marys",
			SiteB:             "Riverside",
			ListSizeA:         intp(9000),
			ListSizeB:         intp(3000),
			ListSizeWeight:    intp(20),
			WorkDoneWeight:    intp(50),
			RecruitmentWeight: intp(30),
		})
		if err != nil {
			t.Fatalf("ProfitShareReport: %v", err)
		}

		if share.VisitsA != 10 || share.VisitsB != 3 {
			t.Errorf("visit counts A=%d B=%d, want 10/3", share.VisitsA, share.VisitsB)
		}
		if share.PatientsA != 2 || share.PatientsB != 1 {
			t.Errorf("recruitment counts A=%d B=%d, want 2/1", share.PatientsA, share.PatientsB)
		}
		if share.ListSizeRatio != 0.75 {
			t.Errorf("list size ratio %f, want 0.75", share.ListSizeRatio)
		}
		if sum := share.ShareA + share.ShareB; math.Abs(sum-1) > 1e-9 {
			t.Errorf("shares sum to %f, want 1", sum)
		}
		if share.ShareA <= 0.5 {
			t.Errorf("share A = %f, want > 0.5 given the larger list and workload", share.ShareA)
		}

		if _, err := svc.ProfitShareReport(ctx, scheduling.ProfitShareOverrides{}); !errors.Is(err, scheduling.ErrProfitShareUnconfigured) {
			t.Errorf("expected ErrProfitShareUnconfigured without sites, got %v", err)
		}
	})
}

// eventsFor filters one patient's events out of a run.
func eventsFor(events []schedule.VisitEvent, patientID string) []schedule.VisitEvent {
	var out []schedule.VisitEvent
	for _, e := range events {
		if e.PatientID == patientID {
			out = append(out, e)
		}
	}
	return out
}

// findEvent returns the first event carrying the given visit name and status.
func findEvent(events []schedule.VisitEvent, name string, status schedule.VisitStatus) (schedule.VisitEvent, bool) {
	for _, e := range events {
		if e.VisitName == name && e.Status == status {
			return e, true
		}
	}
	return schedule.VisitEvent{}, false
}

// gridDayOn returns the grid row for a date, failing the test when the date
// falls outside the projected range.
func gridDayOn(t *testing.T, g *schedule.Grid, date time.Time) schedule.GridDay {
	t.Helper()
	for _, d := range g.Days {
		if d.Date.Equal(date) {
			return d
		}
	}
	t.Fatalf("date %s not in grid range [%s, %s]",
		date.Format("2006-01-02"), g.Start.Format("2006-01-02"), g.End.Format("2006-01-02"))
	return schedule.GridDay{}
}
