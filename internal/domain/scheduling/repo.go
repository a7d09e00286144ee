package scheduling

import (
	"context"

	"github.com/trialcal/trialcal/internal/domain/patient"
	"github.com/trialcal/trialcal/internal/domain/protocol"
	"github.com/trialcal/trialcal/internal/domain/visit"
)

// The orchestrator reads the three input feeds through these narrow views.
// The concrete repositories satisfy them directly.

type ProtocolSource interface {
	ListAll(ctx context.Context) ([]*protocol.Visit, error)
	ListByStudy(ctx context.Context, study string) ([]*protocol.Visit, error)
}

type PatientSource interface {
	ListAll(ctx context.Context) ([]*patient.Patient, error)
	ListByStudy(ctx context.Context, study string) ([]*patient.Patient, error)
}

type VisitSource interface {
	ListAll(ctx context.Context) ([]*visit.ActualVisit, error)
	ListByStudy(ctx context.Context, study string) ([]*visit.ActualVisit, error)
	ListAllEvents(ctx context.Context) ([]*visit.StudyEvent, error)
	ListEventsByStudy(ctx context.Context, study string) ([]*visit.StudyEvent, error)
}
