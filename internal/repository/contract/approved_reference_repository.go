package contract

import (
	"context"

	"literas-be/internal/entity"
	"literas-be/internal/repository/specification"

	"github.com/google/uuid"
)

type ApprovedReferenceRepository interface {
	// ReplaceForSession swaps the whole approved set of a session.
	ReplaceForSession(ctx context.Context, sessionID uuid.UUID, refs []*entity.ApprovedReference) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ApprovedReference, error)
}
