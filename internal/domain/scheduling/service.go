package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/trialcal/trialcal/internal/schedule"
)

// ErrProfitShareUnconfigured is returned when a profit-share report is
// requested without both sites named in config or query overrides.
var ErrProfitShareUnconfigured = errors.New("profit share sites are not configured")

// Service builds schedules, calendars and financial reports by feeding the
// persisted protocol, patient and visit records through the reconciliation
// engine. It holds no state of its own: every call reloads the inputs and
// recomputes from scratch.
type Service struct {
	protocols ProtocolSource
	patients  PatientSource
	visits    VisitSource
	opts      Options
	logger    zerolog.Logger

	now func() time.Time // test hook
}

func NewService(protocols ProtocolSource, patients PatientSource, visits VisitSource, opts Options, logger zerolog.Logger) *Service {
	return &Service{
		protocols: protocols,
		patients:  patients,
		visits:    visits,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Service) engineConfig() schedule.Config {
	return schedule.Config{
		Today:               s.now(),
		TerminalVisitWindow: s.opts.TerminalVisitWindow,
		FlagOutOfProtocol:   s.opts.FlagOutOfProtocol,
	}
}

// BuildSchedule reconciles the requested scope and returns the visit events
// with the run statistics. An empty study means all studies; a non-empty
// patientID narrows the returned events to that patient (stats stay
// run-wide).
func (s *Service) BuildSchedule(ctx context.Context, study, patientID string) (*ScheduleResponse, error) {
	in, err := s.loadInputs(ctx, study)
	if err != nil {
		return nil, err
	}
	res, err := schedule.Reconcile(in, s.engineConfig())
	if err != nil {
		return nil, err
	}
	s.logSkips(res.Stats)

	events := res.Events
	if patientID != "" {
		events = nil
		for _, e := range res.Events {
			if e.PatientID == patientID {
				events = append(events, e)
			}
		}
	}
	return &ScheduleResponse{Events: events, Stats: res.Stats}, nil
}

// BuildCalendar reconciles the requested scope and projects the result onto
// the dense calendar grid.
func (s *Service) BuildCalendar(ctx context.Context, study string) (*schedule.Grid, error) {
	in, err := s.loadInputs(ctx, study)
	if err != nil {
		return nil, err
	}
	res, err := schedule.Reconcile(in, s.engineConfig())
	if err != nil {
		return nil, err
	}
	s.logSkips(res.Stats)
	return schedule.Project(res.Events, in.Events, in.Patients, s.engineConfig()), nil
}

var validPeriods = map[schedule.PeriodKind]bool{
	schedule.PeriodMonth:         true,
	schedule.PeriodQuarter:       true,
	schedule.PeriodFinancialYear: true,
}

var validGroups = map[schedule.GroupBy]bool{
	schedule.GroupBySite:  true,
	schedule.GroupByStudy: true,
}

// IncomeReport rolls visit payments up by period and group. Period defaults
// to month, grouping to study.
func (s *Service) IncomeReport(ctx context.Context, study string, period schedule.PeriodKind, groupBy schedule.GroupBy) (*IncomeResponse, error) {
	if period == "" {
		period = schedule.PeriodMonth
	}
	if !validPeriods[period] {
		return nil, fmt.Errorf("invalid period %q", period)
	}
	if groupBy == "" {
		groupBy = schedule.GroupByStudy
	}
	if !validGroups[groupBy] {
		return nil, fmt.Errorf("invalid group_by %q", groupBy)
	}

	in, err := s.loadInputs(ctx, study)
	if err != nil {
		return nil, err
	}
	res, err := schedule.Reconcile(in, s.engineConfig())
	if err != nil {
		return nil, err
	}
	s.logSkips(res.Stats)
	return &IncomeResponse{
		Period:  period,
		GroupBy: groupBy,
		Lines:   schedule.Income(res.Events, period, groupBy, s.now()),
	}, nil
}

// ProfitShareOverrides carries per-call report parameters. Nil (or blank,
// for the sites) fields leave the configured value alone; a present zero
// zeroes it, so a caller can drop a single ratio from a what-if report.
type ProfitShareOverrides struct {
	SiteA             string
	SiteB             string
	ListSizeA         *int
	ListSizeB         *int
	ListSizeWeight    *int
	WorkDoneWeight    *int
	RecruitmentWeight *int
}

// ProfitShareReport splits revenue between the two configured sites, blending
// the list-size, work-done and recruitment ratios. Override fields present on
// the request replace the configured defaults for this call only. The report
// always spans all studies.
func (s *Service) ProfitShareReport(ctx context.Context, overrides ProfitShareOverrides) (*schedule.ProfitShare, error) {
	cfg := mergeProfitShare(s.opts.ProfitShare, overrides)
	if cfg.SiteA == "" || cfg.SiteB == "" {
		return nil, ErrProfitShareUnconfigured
	}

	in, err := s.loadInputs(ctx, "")
	if err != nil {
		return nil, err
	}
	res, err := schedule.Reconcile(in, s.engineConfig())
	if err != nil {
		return nil, err
	}
	s.logSkips(res.Stats)
	share := schedule.ProfitShares(res.Events, cfg)
	return &share, nil
}

func mergeProfitShare(base schedule.ProfitShareConfig, o ProfitShareOverrides) schedule.ProfitShareConfig {
	if o.SiteA != "" {
		base.SiteA = o.SiteA
	}
	if o.SiteB != "" {
		base.SiteB = o.SiteB
	}
	if o.ListSizeA != nil {
		base.ListSizeA = *o.ListSizeA
	}
	if o.ListSizeB != nil {
		base.ListSizeB = *o.ListSizeB
	}
	if o.ListSizeWeight != nil {
		base.ListSizeWeight = *o.ListSizeWeight
	}
	if o.WorkDoneWeight != nil {
		base.WorkDoneWeight = *o.WorkDoneWeight
	}
	if o.RecruitmentWeight != nil {
		base.RecruitmentWeight = *o.RecruitmentWeight
	}
	return base
}

func (s *Service) loadInputs(ctx context.Context, study string) (schedule.Inputs, error) {
	var in schedule.Inputs

	if study != "" {
		rows, err := s.protocols.ListByStudy(ctx, study)
		if err != nil {
			return in, fmt.Errorf("load protocol: %w", err)
		}
		for _, r := range rows {
			in.Protocol = append(in.Protocol, r.ToSchedule())
		}
		pats, err := s.patients.ListByStudy(ctx, study)
		if err != nil {
			return in, fmt.Errorf("load patients: %w", err)
		}
		for _, p := range pats {
			in.Patients = append(in.Patients, p.ToSchedule())
		}
		visits, err := s.visits.ListByStudy(ctx, study)
		if err != nil {
			return in, fmt.Errorf("load visits: %w", err)
		}
		for _, v := range visits {
			in.Actuals = append(in.Actuals, v.ToSchedule())
		}
		events, err := s.visits.ListEventsByStudy(ctx, study)
		if err != nil {
			return in, fmt.Errorf("load study events: %w", err)
		}
		for _, e := range events {
			in.Events = append(in.Events, e.ToSchedule())
		}
		return in, nil
	}

	rows, err := s.protocols.ListAll(ctx)
	if err != nil {
		return in, fmt.Errorf("load protocol: %w", err)
	}
	for _, r := range rows {
		in.Protocol = append(in.Protocol, r.ToSchedule())
	}
	pats, err := s.patients.ListAll(ctx)
	if err != nil {
		return in, fmt.Errorf("load patients: %w", err)
	}
	for _, p := range pats {
		in.Patients = append(in.Patients, p.ToSchedule())
	}
	visits, err := s.visits.ListAll(ctx)
	if err != nil {
		return in, fmt.Errorf("load visits: %w", err)
	}
	for _, v := range visits {
		in.Actuals = append(in.Actuals, v.ToSchedule())
	}
	events, err := s.visits.ListAllEvents(ctx)
	if err != nil {
		return in, fmt.Errorf("load study events: %w", err)
	}
	for _, e := range events {
		in.Events = append(in.Events, e.ToSchedule())
	}
	return in, nil
}

// logSkips surfaces every record the engine refused, one warn line each. The
// engine reports rather than logs so the caller owns the sink.
func (s *Service) logSkips(stats schedule.RunStats) {
	for _, sk := range stats.Skips {
		s.logger.Warn().
			Str("study", sk.Study).
			Str("patient_id", sk.PatientID).
			Str("visit_name", sk.VisitName).
			Str("reason", sk.Reason).
			Msg("reconciliation skipped a record")
	}
}
