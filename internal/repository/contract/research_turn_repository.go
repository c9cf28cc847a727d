package contract

import (
	"context"

	"literas-be/internal/entity"
	"literas-be/internal/repository/specification"
)

type ResearchTurnRepository interface {
	// Create is idempotent on (session, seq) so redelivered turns are harmless.
	Create(ctx context.Context, turn *entity.ResearchTurn) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ResearchTurn, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
