// Package schedule implements the visit scheduling and reconciliation engine:
// given a study protocol, the enrolled patients and their recorded visits, it
// produces the full set of visit events (actual, predicted, proposed and
// tolerance markers), a dense calendar projection and financial rollups.
//
// The engine is pure: it performs no I/O, reads no clock once Config.Today is
// set, and recomputes everything from scratch on every call. Skipped records
// are reported on RunStats rather than logged, so callers own the logging.
package schedule

import (
	"time"

	"github.com/shopspring/decimal"
)

// VisitType classifies a protocol or recorded visit.
type VisitType string

// Canonical visit types. SIV and Monitor visits are site-wide events and are
// never scheduled against individual patients.
const (
	VisitPatient VisitType = "patient"
	VisitExtra   VisitType = "extra"
	VisitSIV     VisitType = "siv"
	VisitMonitor VisitType = "monitor"
)

// proposedSuffix marks tentatively booked visit types such as
// "patient_proposed" and "event_proposed".
const proposedSuffix = "_proposed"

// DefaultPathway is assumed when a protocol row or patient carries no
// enrollment pathway.
const DefaultPathway = "standard"

// ProtocolVisit is one row of a study's planned visit schedule.
type ProtocolVisit struct {
	Study           string
	Pathway         string // enrollment variant, defaults to "standard"
	Day             int    // offset from baseline; 1 = baseline, 0 = optional extra, negative = screening
	VisitName       string
	SiteForVisit    string // contract-holding site
	Payment         decimal.Decimal
	ToleranceBefore int
	ToleranceAfter  int
	IntervalUnit    string // "", "week" or "month"; overrides the day offset when set
	IntervalValue   int
	VisitType       VisitType
}

// Patient is one enrolled trial participant.
type Patient struct {
	PatientID       string
	Study           string
	Pathway         string
	StartDate       time.Time // nominal baseline; the effective baseline may be re-based
	PatientPractice string    // recruiting site
	SiteSeenAt      string    // visit location, defaults to PatientPractice
	Status          string
}

// ActualVisit is one recorded (or tentatively booked) visit. The record set
// is append-only: a proposed visit is superseded by reclassification, never
// by mutation of history.
type ActualVisit struct {
	PatientID  string
	Study      string
	VisitName  string
	ActualDate time.Time
	Notes      string // scanned for ScreenFail / Withdrawn / Died markers
	VisitType  string // may carry a "_proposed" suffix for tentative bookings
}

// StudyEvent is a site-wide event (SIV or Monitor visit) fed separately from
// patient visits and projected into the calendar's per-site Events column.
type StudyEvent struct {
	Study        string
	VisitName    string
	ActualDate   time.Time
	Status       string // completed | proposed | cancelled
	SiteForVisit string
}

// Statuses a StudyEvent may carry.
const (
	EventCompleted = "completed"
	EventProposed  = "proposed"
	EventCancelled = "cancelled"
)

// VisitEvent is one reconciled output row. Events are ephemeral: they are
// recomputed on every reconciliation run and never persisted directly.
type VisitEvent struct {
	Date          time.Time       `json:"date"`
	PatientID     string          `json:"patient_id"`
	Study         string          `json:"study"`
	VisitName     string          `json:"visit_name"`
	VisitDay      int             `json:"visit_day"`
	Status        VisitStatus     `json:"status"`
	Visit         string          `json:"visit"` // rendered display label; logic never reads it back
	Payment       decimal.Decimal `json:"payment"`
	SiteOfVisit   string          `json:"site_of_visit"`
	PatientOrigin string          `json:"patient_origin"`
	VisitType     VisitType       `json:"visit_type"`
	IsActual      bool            `json:"is_actual"`
	IsProposed    bool            `json:"is_proposed"`
	Unscheduled   bool            `json:"unscheduled,omitempty"` // recorded visit with no protocol row
}

// IsScreenFail reports whether the event records a screen failure.
func (e VisitEvent) IsScreenFail() bool { return e.Status == StatusScreenFail }

// IsWithdrawn reports whether the event records a withdrawal.
func (e VisitEvent) IsWithdrawn() bool { return e.Status == StatusWithdrawn }

// IsDied reports whether the event records a death.
func (e VisitEvent) IsDied() bool { return e.Status == StatusDied }

// IsOutOfProtocol reports whether the event fell outside its tolerance window.
func (e VisitEvent) IsOutOfProtocol() bool { return e.Status == StatusOutOfProtocol }

// Inputs carries the tabular records one reconciliation run consumes. The
// engine never mutates them.
type Inputs struct {
	Protocol []ProtocolVisit
	Patients []Patient
	Actuals  []ActualVisit
	Events   []StudyEvent
}

// DefaultTerminalVisitWindow is how many trailing protocol visits (by Day)
// are checked when deciding whether a proposed visit is terminal.
const DefaultTerminalVisitWindow = 5

// Config tunes one reconciliation run. The zero value is usable: Today
// defaults to the current date and TerminalVisitWindow to
// DefaultTerminalVisitWindow.
type Config struct {
	// Today anchors all past/future decisions. Tests pin it for determinism.
	Today time.Time

	// TerminalVisitWindow is the number of trailing protocol visits a
	// proposed visit must fall within to count as terminal.
	TerminalVisitWindow int

	// FlagOutOfProtocol marks matched actual visits dated outside their
	// tolerance window as out-of-protocol instead of completed. Off by
	// default: the shipped rule treats every matched actual as completed.
	FlagOutOfProtocol bool
}

func (c Config) withDefaults() Config {
	if c.Today.IsZero() {
		c.Today = time.Now()
	}
	c.Today = DateOf(c.Today)
	if c.TerminalVisitWindow <= 0 {
		c.TerminalVisitWindow = DefaultTerminalVisitWindow
	}
	return c
}

// Result is the output of one reconciliation run.
type Result struct {
	Events []VisitEvent `json:"events"`
	Stats  RunStats     `json:"stats"`
}

// RunStats aggregates the per-record outcomes of a run so callers can decide
// whether to trust the output or fix the source data first.
type RunStats struct {
	PatientsProcessed   int        `json:"patients_processed"`
	PatientsSkipped     int        `json:"patients_skipped"`
	PatientsRebased     int        `json:"patients_rebased"`
	ProtocolRowsSkipped int        `json:"protocol_rows_skipped"`
	VisitsSkipped       int        `json:"visits_skipped"`
	UnmatchedVisits     int        `json:"unmatched_visits"`
	DataErrors          int        `json:"data_errors"`
	Skips               []SkipNote `json:"skips,omitempty"`
}

// SkipNote records one skipped record with enough context to audit it.
type SkipNote struct {
	Study     string `json:"study"`
	PatientID string `json:"patient_id,omitempty"`
	VisitName string `json:"visit_name,omitempty"`
	Reason    string `json:"reason"`
}

func (s *RunStats) skip(study, patientID, visitName, reason string) {
	s.Skips = append(s.Skips, SkipNote{Study: study, PatientID: patientID, VisitName: visitName, Reason: reason})
}

// DateOf truncates a timestamp to its calendar date in UTC. All engine date
// arithmetic happens on these normalized values.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
