package protocol

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, v *Visit) error
	CreateBatch(ctx context.Context, visits []*Visit) error
	GetByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	Update(ctx context.Context, v *Visit) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Visit, int, error)
	ListAll(ctx context.Context) ([]*Visit, error)
	ListByStudy(ctx context.Context, study string) ([]*Visit, error)
	Studies(ctx context.Context) ([]string, error)
}
