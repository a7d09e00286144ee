package protocol

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/trialcal/trialcal/internal/schedule"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Visit types a protocol row may carry. Proposed variants belong to recorded
// visits, not to the plan.
var validVisitTypes = map[string]bool{
	"":        true,
	"patient": true,
	"extra":   true,
	"siv":     true,
	"monitor": true,
}

var validIntervalUnits = map[string]bool{
	"":      true,
	"week":  true,
	"month": true,
}

// normalizeVisit trims and defaults the fields every write path shares.
func normalizeVisit(v *Visit) {
	v.Study = strings.TrimSpace(v.Study)
	v.VisitName = strings.TrimSpace(v.VisitName)
	v.SiteForVisit = strings.TrimSpace(v.SiteForVisit)
	v.Pathway = strings.ToLower(strings.TrimSpace(v.Pathway))
	if v.Pathway == "" {
		v.Pathway = schedule.DefaultPathway
	}
	v.VisitType = strings.ToLower(strings.TrimSpace(v.VisitType))
	v.IntervalUnit = normalizeIntervalUnit(v.IntervalUnit)
}

func normalizeIntervalUnit(unit string) string {
	unit = strings.ToLower(strings.TrimSpace(unit))
	return strings.TrimSuffix(unit, "s")
}

func validateVisit(v *Visit) error {
	if v.Study == "" {
		return fmt.Errorf("study is required")
	}
	if v.VisitName == "" {
		return fmt.Errorf("visit_name is required")
	}
	if v.Payment.IsNegative() {
		return fmt.Errorf("payment must not be negative")
	}
	if v.ToleranceBefore < 0 || v.ToleranceAfter < 0 {
		return fmt.Errorf("tolerances must not be negative")
	}
	if !validVisitTypes[v.VisitType] {
		return fmt.Errorf("invalid visit_type: %s", v.VisitType)
	}
	if !validIntervalUnits[v.IntervalUnit] {
		return fmt.Errorf("invalid interval_unit: %s", v.IntervalUnit)
	}
	return nil
}

func (s *Service) CreateVisit(ctx context.Context, v *Visit) error {
	normalizeVisit(v)
	if err := validateVisit(v); err != nil {
		return err
	}
	return s.repo.Create(ctx, v)
}

func (s *Service) GetVisit(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) UpdateVisit(ctx context.Context, v *Visit) error {
	normalizeVisit(v)
	if err := validateVisit(v); err != nil {
		return err
	}
	return s.repo.Update(ctx, v)
}

func (s *Service) DeleteVisit(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) ListVisits(ctx context.Context, limit, offset int) ([]*Visit, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) ListByStudy(ctx context.Context, study string) ([]*Visit, error) {
	return s.repo.ListByStudy(ctx, study)
}

func (s *Service) Studies(ctx context.Context) ([]string, error) {
	return s.repo.Studies(ctx)
}

// ValidateStudy reports the protocol problems the engine would refuse to run
// with: each (study, pathway) group needs exactly one Day 1 baseline visit.
func (s *Service) ValidateStudy(ctx context.Context, study string) ([]Problem, error) {
	visits, err := s.repo.ListByStudy(ctx, study)
	if err != nil {
		return nil, err
	}
	if len(visits) == 0 {
		return []Problem{{Study: study, Problem: "no protocol rows"}}, nil
	}

	baselines := make(map[string]int)
	pathways := []string{}
	for _, v := range visits {
		if _, seen := baselines[v.Pathway]; !seen {
			pathways = append(pathways, v.Pathway)
			baselines[v.Pathway] = 0
		}
		if v.Day == 1 {
			baselines[v.Pathway]++
		}
	}

	var problems []Problem
	for _, p := range pathways {
		switch n := baselines[p]; {
		case n == 0:
			problems = append(problems, Problem{Study: study, Pathway: p, Problem: "no Day 1 baseline visit"})
		case n > 1:
			problems = append(problems, Problem{Study: study, Pathway: p, Problem: fmt.Sprintf("%d Day 1 baseline visits, want exactly one", n)})
		}
	}
	return problems, nil
}

// Import bulk-creates protocol rows from loosely-typed cells. Unusable
// tolerance, payment and interval values coerce to zero fail-soft; the
// summary makes each default visible. Rows without a study or visit name are
// skipped, never fatal.
func (s *Service) Import(ctx context.Context, rows []ImportRow) (*ImportSummary, error) {
	sum := &ImportSummary{}
	var visits []*Visit
	for _, row := range rows {
		v := &Visit{
			Study:        row.Study,
			Pathway:      row.Pathway,
			Day:          row.Day,
			VisitName:    row.VisitName,
			SiteForVisit: row.SiteForVisit,
			VisitType:    row.VisitType,
			IntervalUnit: row.IntervalUnit,
		}
		normalizeVisit(v)
		if v.Study == "" || v.VisitName == "" {
			sum.Skipped++
			continue
		}
		// Unknown visit types are stored as-is: classification falls back to
		// name heuristics at run time.
		if !validIntervalUnits[v.IntervalUnit] {
			v.IntervalUnit = ""
		}

		before := schedule.ParseDayCount(row.ToleranceBefore)
		after := schedule.ParseDayCount(row.ToleranceAfter)
		v.ToleranceBefore = before.Value
		v.ToleranceAfter = after.Value
		if coercedCell(before, row.ToleranceBefore) {
			sum.DefaultedTolerances++
		}
		if coercedCell(after, row.ToleranceAfter) {
			sum.DefaultedTolerances++
		}

		pay := schedule.ParseAmount(row.Payment)
		v.Payment = pay.Value
		if pay.Defaulted && strings.TrimSpace(row.Payment) != "" {
			sum.DefaultedPayments++
		}

		iv := schedule.ParseDayCount(row.IntervalValue)
		v.IntervalValue = iv.Value
		if coercedCell(iv, row.IntervalValue) {
			sum.DefaultedIntervals++
		}

		visits = append(visits, v)
	}

	if len(visits) > 0 {
		if err := s.repo.CreateBatch(ctx, visits); err != nil {
			return nil, fmt.Errorf("import protocol rows: %w", err)
		}
	}
	sum.Created = len(visits)
	return sum, nil
}

// coercedCell reports whether a non-blank cell was replaced by the fail-soft
// default. Blank cells defaulting to zero are expected, not noteworthy.
func coercedCell(p schedule.ParsedInt, raw string) bool {
	return p.Defaulted && strings.TrimSpace(raw) != ""
}
