package visit

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

// Visit types accepted on recorded visits. Blank means "classify from the
// name"; a "_proposed" suffix on any of these marks a tentative booking.
// "event" covers site events booked through the visit feed (usually as
// "event_proposed") and classifies from the name, like blank.
var validVisitTypes = map[string]bool{
	"":        true,
	"patient": true,
	"extra":   true,
	"siv":     true,
	"monitor": true,
	"event":   true,
}

var validEventStatuses = map[string]bool{
	"completed": true,
	"proposed":  true,
	"cancelled": true,
}

// CreateVisit records a visit that happened (or is booked to happen).
// Recorded visits are append-only: apart from reclassifying the type, a
// mistaken row is deleted and re-entered rather than edited, so the
// reconciliation engine never sees a half-updated visit.
func (s *Service) CreateVisit(ctx context.Context, v *ActualVisit) error {
	normalizeVisit(v)
	if err := validateVisit(v); err != nil {
		return err
	}
	return s.repo.Create(ctx, v)
}

func (s *Service) GetVisit(ctx context.Context, id uuid.UUID) (*ActualVisit, error) {
	return s.repo.GetByID(ctx, id)
}

// Reclassify changes a recorded visit's type, the one field that is
// legitimately corrected after the fact (a proposed booking confirmed, a
// monitor visit mislabelled as a patient one). All other fields stay as
// entered.
func (s *Service) Reclassify(ctx context.Context, id uuid.UUID, visitType string) (*ActualVisit, error) {
	visitType = strings.ToLower(strings.TrimSpace(visitType))
	if !validVisitTypes[strings.TrimSuffix(visitType, "_proposed")] {
		return nil, fmt.Errorf("invalid visit type %q", visitType)
	}
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateType(ctx, id, visitType); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) DeleteVisit(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) ListVisits(ctx context.Context, limit, offset int) ([]*ActualVisit, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) ListVisitsByStudy(ctx context.Context, study string) ([]*ActualVisit, error) {
	return s.repo.ListByStudy(ctx, study)
}

func (s *Service) ListVisitsByPatient(ctx context.Context, study, patientID string) ([]*ActualVisit, error) {
	return s.repo.ListByPatient(ctx, study, patientID)
}

func normalizeVisit(v *ActualVisit) {
	v.PatientID = strings.TrimSpace(v.PatientID)
	v.Study = strings.TrimSpace(v.Study)
	v.VisitName = strings.TrimSpace(v.VisitName)
	v.VisitType = strings.ToLower(strings.TrimSpace(v.VisitType))
}

func validateVisit(v *ActualVisit) error {
	if v.PatientID == "" {
		return fmt.Errorf("patient_id is required")
	}
	if v.Study == "" {
		return fmt.Errorf("study is required")
	}
	if v.VisitName == "" {
		return fmt.Errorf("visit_name is required")
	}
	if v.ActualDate.IsZero() {
		return fmt.Errorf("actual_date is required")
	}
	if !validVisitTypes[strings.TrimSuffix(v.VisitType, "_proposed")] {
		return fmt.Errorf("invalid visit type %q", v.VisitType)
	}
	return nil
}

// CreateEvent records a site-level event such as an SIV or a monitoring
// visit. Events carry no patient and appear on the calendar under the study's
// SITE Events column.
func (s *Service) CreateEvent(ctx context.Context, e *StudyEvent) error {
	normalizeEvent(e)
	if err := validateEvent(e); err != nil {
		return err
	}
	return s.repo.CreateEvent(ctx, e)
}

func (s *Service) GetEvent(ctx context.Context, id uuid.UUID) (*StudyEvent, error) {
	return s.repo.GetEventByID(ctx, id)
}

func (s *Service) UpdateEvent(ctx context.Context, id uuid.UUID, e *StudyEvent) (*StudyEvent, error) {
	existing, err := s.repo.GetEventByID(ctx, id)
	if err != nil {
		return nil, err
	}
	e.ID = existing.ID
	e.CreatedAt = existing.CreatedAt
	normalizeEvent(e)
	if err := validateEvent(e); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateEvent(ctx, e); err != nil {
		return nil, err
	}
	return s.repo.GetEventByID(ctx, id)
}

func (s *Service) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteEvent(ctx, id)
}

func (s *Service) ListEvents(ctx context.Context, limit, offset int) ([]*StudyEvent, int, error) {
	return s.repo.ListEvents(ctx, limit, offset)
}

func (s *Service) ListEventsByStudy(ctx context.Context, study string) ([]*StudyEvent, error) {
	return s.repo.ListEventsByStudy(ctx, study)
}

func normalizeEvent(e *StudyEvent) {
	e.Study = strings.TrimSpace(e.Study)
	e.VisitName = strings.TrimSpace(e.VisitName)
	e.Status = strings.ToLower(strings.TrimSpace(e.Status))
	e.SiteForVisit = strings.TrimSpace(e.SiteForVisit)
	if e.Status == "" {
		e.Status = "completed"
	}
}

func validateEvent(e *StudyEvent) error {
	if e.Study == "" {
		return fmt.Errorf("study is required")
	}
	if e.VisitName == "" {
		return fmt.Errorf("visit_name is required")
	}
	if e.ActualDate.IsZero() {
		return fmt.Errorf("actual_date is required")
	}
	if e.SiteForVisit == "" {
		return fmt.Errorf("site_for_visit is required")
	}
	if !validEventStatuses[e.Status] {
		return fmt.Errorf("invalid status %q", e.Status)
	}
	if !schedule.Classify("", e.VisitName).IsSiteEvent() {
		return fmt.Errorf("visit name %q does not look like a site event", e.VisitName)
	}
	return nil
}
