package protocol

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trialcal/trialcal/internal/schedule"
)

// Visit is one row of a study's planned visit schedule. Maps to the
// protocol_visits table.
type Visit struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	Study           string          `db:"study" json:"study"`
	Pathway         string          `db:"pathway" json:"pathway"`
	Day             int             `db:"day" json:"day"`
	VisitName       string          `db:"visit_name" json:"visit_name"`
	SiteForVisit    string          `db:"site_for_visit" json:"site_for_visit,omitempty"`
	Payment         decimal.Decimal `db:"payment" json:"payment"`
	ToleranceBefore int             `db:"tolerance_before" json:"tolerance_before"`
	ToleranceAfter  int             `db:"tolerance_after" json:"tolerance_after"`
	IntervalUnit    string          `db:"interval_unit" json:"interval_unit,omitempty"`
	IntervalValue   int             `db:"interval_value" json:"interval_value,omitempty"`
	VisitType       string          `db:"visit_type" json:"visit_type,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// ToSchedule maps the persisted row to the engine's input record.
func (v *Visit) ToSchedule() schedule.ProtocolVisit {
	return schedule.ProtocolVisit{
		Study:           v.Study,
		Pathway:         v.Pathway,
		Day:             v.Day,
		VisitName:       v.VisitName,
		SiteForVisit:    v.SiteForVisit,
		Payment:         v.Payment,
		ToleranceBefore: v.ToleranceBefore,
		ToleranceAfter:  v.ToleranceAfter,
		IntervalUnit:    v.IntervalUnit,
		IntervalValue:   v.IntervalValue,
		VisitType:       schedule.VisitType(v.VisitType),
	}
}

// ImportRow is one loosely-typed row of a bulk protocol import. Tolerance,
// payment and interval cells arrive as free text and are coerced fail-soft.
type ImportRow struct {
	Study           string `json:"study"`
	Pathway         string `json:"pathway"`
	Day             int    `json:"day"`
	VisitName       string `json:"visit_name"`
	SiteForVisit    string `json:"site_for_visit"`
	Payment         string `json:"payment"`
	ToleranceBefore string `json:"tolerance_before"`
	ToleranceAfter  string `json:"tolerance_after"`
	IntervalUnit    string `json:"interval_unit"`
	IntervalValue   string `json:"interval_value"`
	VisitType       string `json:"visit_type"`
}

// ImportSummary reports what a bulk import did, making every silent default
// visible to the caller.
type ImportSummary struct {
	Created             int `json:"created"`
	Skipped             int `json:"skipped"`
	DefaultedTolerances int `json:"defaulted_tolerances"`
	DefaultedPayments   int `json:"defaulted_payments"`
	DefaultedIntervals  int `json:"defaulted_intervals"`
}

// Problem is one issue found by protocol validation.
type Problem struct {
	Study   string `json:"study"`
	Pathway string `json:"pathway"`
	Problem string `json:"problem"`
}
