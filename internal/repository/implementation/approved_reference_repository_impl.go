package implementation

import (
	"context"

	"literas-be/internal/entity"
	"literas-be/internal/mapper"
	"literas-be/internal/model"
	"literas-be/internal/repository/contract"
	"literas-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ApprovedReferenceRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ResearchMapper
}

func NewApprovedReferenceRepository(db *gorm.DB) contract.ApprovedReferenceRepository {
	return &ApprovedReferenceRepositoryImpl{
		db:     db,
		mapper: mapper.NewResearchMapper(),
	}
}

func (r *ApprovedReferenceRepositoryImpl) ReplaceForSession(ctx context.Context, sessionID uuid.UUID, refs []*entity.ApprovedReference) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&model.ApprovedReference{}).Error; err != nil {
			return err
		}
		if len(refs) == 0 {
			return nil
		}
		models := make([]*model.ApprovedReference, len(refs))
		for i, ref := range refs {
			ref.SessionId = sessionID
			if ref.Id == uuid.Nil {
				ref.Id = uuid.New()
			}
			models[i] = r.mapper.ReferenceToModel(ref)
		}
		return tx.Create(&models).Error
	})
}

func (r *ApprovedReferenceRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ApprovedReference, error) {
	var models []*model.ApprovedReference
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*entity.ApprovedReference, len(models))
	for i, m := range models {
		out[i] = r.mapper.ReferenceToEntity(m)
	}
	return out, nil
}
