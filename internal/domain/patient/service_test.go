package patient

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

// -- Mock Repository --

type mockRepo struct {
	patients []*Patient
}

func newMockRepo() *mockRepo {
	return &mockRepo{}
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = time.Now()
	m.patients = append(m.patients, p)
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	for _, p := range m.patients {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (m *mockRepo) Update(_ context.Context, p *Patient) error {
	for i, cur := range m.patients {
		if cur.ID == p.ID {
			m.patients[i] = p
			return nil
		}
	}
	return fmt.Errorf("not found")
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	for i, p := range m.patients {
		if p.ID == id {
			m.patients = append(m.patients[:i], m.patients[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *mockRepo) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	return m.patients, len(m.patients), nil
}

func (m *mockRepo) ListAll(_ context.Context) ([]*Patient, error) {
	return m.patients, nil
}

func (m *mockRepo) ListByStudy(_ context.Context, study string) ([]*Patient, error) {
	var result []*Patient
	for _, p := range m.patients {
		if p.Study == study {
			result = append(result, p)
		}
	}
	return result, nil
}

// -- Tests --

func newTestService() *Service {
	return NewService(newMockRepo())
}

func validPatient() *Patient {
	return &Patient{
		PatientID:       "P1",
		Study:           "S1",
		StartDate:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		PatientPractice: "Kirkholt Practice",
	}
}

func TestCreatePatient(t *testing.T) {
	svc := newTestService()

	p := validPatient()
	if err := svc.CreatePatient(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if p.Pathway != "standard" {
		t.Errorf("expected default pathway 'standard', got %s", p.Pathway)
	}
	if p.Status != "screening" {
		t.Errorf("expected default status 'screening', got %s", p.Status)
	}
}

func TestCreatePatient_Validation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Patient)
	}{
		{"missing patient_id", func(p *Patient) { p.PatientID = "" }},
		{"missing study", func(p *Patient) { p.Study = "" }},
		{"missing start date", func(p *Patient) { p.StartDate = time.Time{} }},
		{"blank practice", func(p *Patient) { p.PatientPractice = "  " }},
		{"unknown site placeholder", func(p *Patient) { p.PatientPractice = "Unknown Site" }},
		{"unknown placeholder", func(p *Patient) { p.PatientPractice = "UNKNOWN" }},
		{"invalid status", func(p *Patient) { p.Status = "bogus" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestService()
			p := validPatient()
			tc.mutate(p)
			if err := svc.CreatePatient(context.Background(), p); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestCreatePatient_ExplicitStatus(t *testing.T) {
	svc := newTestService()

	p := validPatient()
	p.Status = "Randomized"
	if err := svc.CreatePatient(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Status != "randomized" {
		t.Errorf("expected lowercased 'randomized', got %s", p.Status)
	}
}

func TestUpdatePatient(t *testing.T) {
	svc := newTestService()

	p := validPatient()
	svc.CreatePatient(context.Background(), p)

	p.Status = "withdrawn"
	if err := svc.UpdatePatient(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := svc.GetPatient(context.Background(), p.ID)
	if got.Status != "withdrawn" {
		t.Errorf("expected withdrawn, got %s", got.Status)
	}
}

func TestDeletePatient(t *testing.T) {
	svc := newTestService()

	p := validPatient()
	svc.CreatePatient(context.Background(), p)

	if err := svc.DeletePatient(context.Background(), p.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.GetPatient(context.Background(), p.ID); err == nil {
		t.Error("expected error after deletion")
	}
}

func TestListByStudy(t *testing.T) {
	svc := newTestService()

	svc.CreatePatient(context.Background(), validPatient())
	other := validPatient()
	other.PatientID = "P2"
	other.Study = "S2"
	svc.CreatePatient(context.Background(), other)

	result, err := svc.ListByStudy(context.Background(), "S1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 1 || result[0].Study != "S1" {
		t.Errorf("result = %+v, want the single S1 patient", result)
	}
}

func TestToSchedule(t *testing.T) {
	p := validPatient()
	p.SiteSeenAt = "Spotland Surgery"
	sp := p.ToSchedule()
	if sp.PatientID != "P1" || sp.Study != "S1" {
		t.Errorf("mapped patient = %+v", sp)
	}
	if sp.PatientPractice != "Kirkholt Practice" || sp.SiteSeenAt != "Spotland Surgery" {
		t.Errorf("sites = %q/%q", sp.PatientPractice, sp.SiteSeenAt)
	}
	if !sp.StartDate.Equal(p.StartDate) {
		t.Errorf("start date = %v", sp.StartDate)
	}
}
