package scheduling

import (
	"github.com/trialcal/trialcal/internal/schedule"
)

// Options carries the engine tuning and report defaults applied to every
// reconciliation run. Values come from app config; zero values fall back to
// the engine defaults.
type Options struct {
	TerminalVisitWindow int
	FlagOutOfProtocol   bool
	ProfitShare         schedule.ProfitShareConfig
}

// ScheduleResponse is the payload of one schedule build: the reconciled
// events plus the run statistics, so callers can judge data quality without
// reading server logs.
type ScheduleResponse struct {
	Events []schedule.VisitEvent `json:"events"`
	Stats  schedule.RunStats     `json:"stats"`
}

// IncomeResponse wraps an income rollup with the dimensions it was built on.
type IncomeResponse struct {
	Period  schedule.PeriodKind   `json:"period"`
	GroupBy schedule.GroupBy      `json:"group_by"`
	Lines   []schedule.IncomeLine `json:"lines"`
}
