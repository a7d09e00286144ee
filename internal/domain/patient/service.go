package patient

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

// Enrollment statuses tracked per patient. The schedule itself derives
// stoppage from visit notes, not from this field; it exists for trial
// coordination worklists.
var validStatuses = map[string]bool{
	"screening":        true,
	"randomized":       true,
	"screen_failed":    true,
	"withdrawn":        true,
	"deceased":         true,
	"completed":        true,
	"lost_to_followup": true,
	"dna_screening":    true,
}

func normalizePatient(p *Patient) {
	p.PatientID = strings.TrimSpace(p.PatientID)
	p.Study = strings.TrimSpace(p.Study)
	p.Pathway = strings.ToLower(strings.TrimSpace(p.Pathway))
	if p.Pathway == "" {
		p.Pathway = schedule.DefaultPathway
	}
	p.PatientPractice = strings.TrimSpace(p.PatientPractice)
	p.SiteSeenAt = strings.TrimSpace(p.SiteSeenAt)
	p.Status = strings.ToLower(strings.TrimSpace(p.Status))
	if p.Status == "" {
		p.Status = "screening"
	}
}

func validatePatient(p *Patient) error {
	if p.PatientID == "" {
		return fmt.Errorf("patient_id is required")
	}
	if p.Study == "" {
		return fmt.Errorf("study is required")
	}
	if p.StartDate.IsZero() {
		return fmt.Errorf("start_date is required")
	}
	if schedule.PracticeUnresolved(p.PatientPractice) {
		return fmt.Errorf("patient_practice must be a resolved recruiting practice")
	}
	if !validStatuses[p.Status] {
		return fmt.Errorf("invalid status: %s", p.Status)
	}
	return nil
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	normalizePatient(p)
	if err := validatePatient(p); err != nil {
		return err
	}
	return s.repo.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	normalizePatient(p)
	if err := validatePatient(p); err != nil {
		return err
	}
	return s.repo.Update(ctx, p)
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) ListByStudy(ctx context.Context, study string) ([]*Patient, error) {
	return s.repo.ListByStudy(ctx, study)
}
