package patient

import (
	"time"

	"github.com/google/uuid"

	"github.com/trialcal/trialcal/internal/schedule"
)

// Patient is one enrolled trial participant. Maps to the patients table. The
// same person enrolled on two studies is two rows.
type Patient struct {
	ID              uuid.UUID `db:"id" json:"id"`
	PatientID       string    `db:"patient_id" json:"patient_id"`
	Study           string    `db:"study" json:"study"`
	Pathway         string    `db:"pathway" json:"pathway"`
	StartDate       time.Time `db:"start_date" json:"start_date"`
	PatientPractice string    `db:"patient_practice" json:"patient_practice"`
	SiteSeenAt      string    `db:"site_seen_at" json:"site_seen_at,omitempty"`
	Status          string    `db:"status" json:"status"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// ToSchedule maps the persisted row to the engine's input record.
func (p *Patient) ToSchedule() schedule.Patient {
	return schedule.Patient{
		PatientID:       p.PatientID,
		Study:           p.Study,
		Pathway:         p.Pathway,
		StartDate:       p.StartDate,
		PatientPractice: p.PatientPractice,
		SiteSeenAt:      p.SiteSeenAt,
		Status:          p.Status,
	}
}
