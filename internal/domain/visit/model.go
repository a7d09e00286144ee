package visit

import (
	"time"

	"github.com/google/uuid"

	"github.com/trialcal/trialcal/internal/schedule"
)

// ActualVisit is one recorded or tentatively booked patient visit. Maps to
// the actual_visits table. The record set is append-only: rows are created
// and occasionally reclassified (proposed to confirmed), never rewritten.
type ActualVisit struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PatientID  string    `db:"patient_id" json:"patient_id"`
	Study      string    `db:"study" json:"study"`
	VisitName  string    `db:"visit_name" json:"visit_name"`
	ActualDate time.Time `db:"actual_date" json:"actual_date"`
	Notes      string    `db:"notes" json:"notes,omitempty"`
	VisitType  string    `db:"visit_type" json:"visit_type,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// ToSchedule maps the persisted row to the engine's input record.
func (v *ActualVisit) ToSchedule() schedule.ActualVisit {
	return schedule.ActualVisit{
		PatientID:  v.PatientID,
		Study:      v.Study,
		VisitName:  v.VisitName,
		ActualDate: v.ActualDate,
		Notes:      v.Notes,
		VisitType:  v.VisitType,
	}
}

// StudyEvent is a site-wide event (SIV or monitoring visit). Maps to the
// study_events table.
type StudyEvent struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Study        string    `db:"study" json:"study"`
	VisitName    string    `db:"visit_name" json:"visit_name"`
	ActualDate   time.Time `db:"actual_date" json:"actual_date"`
	Status       string    `db:"status" json:"status"`
	SiteForVisit string    `db:"site_for_visit" json:"site_for_visit"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// ToSchedule maps the persisted row to the engine's input record.
func (e *StudyEvent) ToSchedule() schedule.StudyEvent {
	return schedule.StudyEvent{
		Study:        e.Study,
		VisitName:    e.VisitName,
		ActualDate:   e.ActualDate,
		Status:       e.Status,
		SiteForVisit: e.SiteForVisit,
	}
}
