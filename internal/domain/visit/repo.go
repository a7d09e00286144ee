package visit

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Actual visits
	Create(ctx context.Context, v *ActualVisit) error
	GetByID(ctx context.Context, id uuid.UUID) (*ActualVisit, error)
	UpdateType(ctx context.Context, id uuid.UUID, visitType string) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*ActualVisit, int, error)
	ListAll(ctx context.Context) ([]*ActualVisit, error)
	ListByStudy(ctx context.Context, study string) ([]*ActualVisit, error)
	ListByPatient(ctx context.Context, study, patientID string) ([]*ActualVisit, error)

	// Study events
	CreateEvent(ctx context.Context, e *StudyEvent) error
	GetEventByID(ctx context.Context, id uuid.UUID) (*StudyEvent, error)
	UpdateEvent(ctx context.Context, e *StudyEvent) error
	DeleteEvent(ctx context.Context, id uuid.UUID) error
	ListEvents(ctx context.Context, limit, offset int) ([]*StudyEvent, int, error)
	ListAllEvents(ctx context.Context) ([]*StudyEvent, error)
	ListEventsByStudy(ctx context.Context, study string) ([]*StudyEvent, error)
}
