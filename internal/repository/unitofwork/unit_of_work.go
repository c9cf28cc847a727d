package unitofwork

import (
	"context"

	"literas-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	ResearchSessionRepository() contract.ResearchSessionRepository
	ResearchTurnRepository() contract.ResearchTurnRepository
	ApprovedReferenceRepository() contract.ApprovedReferenceRepository
}
