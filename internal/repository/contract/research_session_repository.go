package contract

import (
	"context"

	"literas-be/internal/entity"
	"literas-be/internal/repository/specification"

	"github.com/google/uuid"
)

type ResearchSessionRepository interface {
	Create(ctx context.Context, session *entity.ResearchSession) error
	Update(ctx context.Context, session *entity.ResearchSession) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ResearchSession, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ResearchSession, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
