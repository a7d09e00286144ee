package schedule

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PeriodKind selects the time bucket for income rollups.
type PeriodKind string

// Supported rollup periods. The financial year is the UK convention,
// April 1 to March 31.
const (
	PeriodMonth         PeriodKind = "month"
	PeriodQuarter       PeriodKind = "quarter"
	PeriodFinancialYear PeriodKind = "financial_year"
)

// GroupBy selects the second rollup dimension.
type GroupBy string

// Supported rollup groupings.
const (
	GroupBySite  GroupBy = "site"
	GroupByStudy GroupBy = "study"
)

// FinancialYearStart returns the starting calendar year of the UK financial
// year containing the date: the date's own year from April onward, the
// previous year before it.
func FinancialYearStart(d time.Time) int {
	if d.Month() >= time.April {
		return d.Year()
	}
	return d.Year() - 1
}

// PeriodKey renders the bucket label for a date: "2024-03", "2024-Q1" or
// "FY2023/24".
func PeriodKey(kind PeriodKind, d time.Time) string {
	switch kind {
	case PeriodQuarter:
		return fmt.Sprintf("%d-Q%d", d.Year(), (int(d.Month())-1)/3+1)
	case PeriodFinancialYear:
		start := FinancialYearStart(d)
		return fmt.Sprintf("FY%d/%02d", start, (start+1)%100)
	default:
		return d.Format("2006-01")
	}
}

// IncomeLine is one period+group row of the income rollup.
type IncomeLine struct {
	Period          string          `json:"period"`
	Group           string          `json:"group"`
	CompletedIncome decimal.Decimal `json:"completed_income"`
	PipelineIncome  decimal.Decimal `json:"pipeline_income"`
	ScheduledIncome decimal.Decimal `json:"scheduled_income"`
	RealizationRate float64         `json:"realization_rate"`
}

// Income rolls visit payments up by period and by site or study. Tolerance
// markers are excluded. Completed income counts confirmed visits up to today;
// pipeline income counts everything still predicted regardless of date;
// scheduled income is the period's whole book of non-marker payments.
func Income(events []VisitEvent, kind PeriodKind, groupBy GroupBy, today time.Time) []IncomeLine {
	today = DateOf(today)
	type bucket struct {
		completed decimal.Decimal
		pipeline  decimal.Decimal
		scheduled decimal.Decimal
	}
	type lineKey struct {
		period string
		group  string
	}
	buckets := make(map[lineKey]*bucket)

	for _, e := range events {
		if e.Status.IsToleranceMarker() {
			continue
		}
		group := e.Study
		if groupBy == GroupBySite {
			group = e.SiteOfVisit
		}
		k := lineKey{period: PeriodKey(kind, DateOf(e.Date)), group: group}
		b, ok := buckets[k]
		if !ok {
			b = &bucket{completed: decimal.Zero, pipeline: decimal.Zero, scheduled: decimal.Zero}
			buckets[k] = b
		}
		b.scheduled = b.scheduled.Add(e.Payment)
		if e.IsActual && !e.IsProposed && !DateOf(e.Date).After(today) {
			b.completed = b.completed.Add(e.Payment)
		}
		if !e.IsActual {
			b.pipeline = b.pipeline.Add(e.Payment)
		}
	}

	lines := make([]IncomeLine, 0, len(buckets))
	for k, b := range buckets {
		lines = append(lines, IncomeLine{
			Period:          k.period,
			Group:           k.group,
			CompletedIncome: b.completed,
			PipelineIncome:  b.pipeline,
			ScheduledIncome: b.scheduled,
			RealizationRate: RealizationRate(b.completed, b.scheduled),
		})
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].Period != lines[j].Period {
			return lines[i].Period < lines[j].Period
		}
		return lines[i].Group < lines[j].Group
	})
	return lines
}

// RealizationRate is completed over scheduled income as a percentage, defined
// as 0 when nothing is scheduled.
func RealizationRate(completed, scheduled decimal.Decimal) float64 {
	if scheduled.IsZero() {
		return 0
	}
	rate, _ := completed.Div(scheduled).Mul(decimal.NewFromInt(100)).Float64()
	return rate
}

// ProfitShareConfig names the two revenue-sharing sites and the weighting of
// the three ratios that blend into their shares. Weights are 0–100 and need
// not sum to 100.
type ProfitShareConfig struct {
	SiteA             string `json:"site_a"`
	SiteB             string `json:"site_b"`
	ListSizeA         int    `json:"list_size_a"`
	ListSizeB         int    `json:"list_size_b"`
	ListSizeWeight    int    `json:"list_size_weight"`
	WorkDoneWeight    int    `json:"work_done_weight"`
	RecruitmentWeight int    `json:"recruitment_weight"`
}

// ProfitShare is the blended revenue split between the two sites. Shares sum
// to 1. Ratios are site A's side of each component.
type ProfitShare struct {
	SiteA            string  `json:"site_a"`
	SiteB            string  `json:"site_b"`
	ShareA           float64 `json:"share_a"`
	ShareB           float64 `json:"share_b"`
	ListSizeRatio    float64 `json:"list_size_ratio"`
	WorkDoneRatio    float64 `json:"work_done_ratio"`
	RecruitmentRatio float64 `json:"recruitment_ratio"`
	VisitsA          int     `json:"visits_a"`
	VisitsB          int     `json:"visits_b"`
	PatientsA        int     `json:"patients_a"`
	PatientsB        int     `json:"patients_b"`
}

// ProfitShares blends three weighted ratios into a two-site revenue split:
// the fixed practice list sizes, work done (visit counts at the two named
// sites only; visits elsewhere are excluded), and recruitment (distinct
// patients by origin practice). Each ratio falls back to an even split when
// it has no signal, as does the blend when all weights are zero.
func ProfitShares(events []VisitEvent, cfg ProfitShareConfig) ProfitShare {
	visitsA, visitsB := 0, 0
	patientsA := make(map[string]bool)
	patientsB := make(map[string]bool)
	for _, e := range events {
		if e.Status.IsToleranceMarker() {
			continue
		}
		switch {
		case strings.EqualFold(e.SiteOfVisit, cfg.SiteA):
			visitsA++
		case strings.EqualFold(e.SiteOfVisit, cfg.SiteB):
			visitsB++
		}
		patientKey := e.Study + "\x00" + e.PatientID
		switch {
		case strings.EqualFold(e.PatientOrigin, cfg.SiteA):
			patientsA[patientKey] = true
		case strings.EqualFold(e.PatientOrigin, cfg.SiteB):
			patientsB[patientKey] = true
		}
	}

	listRatio := sideRatio(float64(cfg.ListSizeA), float64(cfg.ListSizeB))
	workRatio := sideRatio(float64(visitsA), float64(visitsB))
	recruitRatio := sideRatio(float64(len(patientsA)), float64(len(patientsB)))

	weightSum := cfg.ListSizeWeight + cfg.WorkDoneWeight + cfg.RecruitmentWeight
	shareA := 0.5
	if weightSum > 0 {
		shareA = (float64(cfg.ListSizeWeight)*listRatio +
			float64(cfg.WorkDoneWeight)*workRatio +
			float64(cfg.RecruitmentWeight)*recruitRatio) / float64(weightSum)
	}

	return ProfitShare{
		SiteA:            cfg.SiteA,
		SiteB:            cfg.SiteB,
		ShareA:           shareA,
		ShareB:           1 - shareA,
		ListSizeRatio:    listRatio,
		WorkDoneRatio:    workRatio,
		RecruitmentRatio: recruitRatio,
		VisitsA:          visitsA,
		VisitsB:          visitsB,
		PatientsA:        len(patientsA),
		PatientsB:        len(patientsB),
	}
}

// sideRatio is a/(a+b), or an even split when both sides are zero.
func sideRatio(a, b float64) float64 {
	if a+b == 0 {
		return 0.5
	}
	return a / (a + b)
}
