package implementation

import (
	"context"

	"literas-be/internal/entity"
	"literas-be/internal/mapper"
	"literas-be/internal/model"
	"literas-be/internal/repository/contract"
	"literas-be/internal/repository/specification"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ResearchTurnRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ResearchMapper
}

func NewResearchTurnRepository(db *gorm.DB) contract.ResearchTurnRepository {
	return &ResearchTurnRepositoryImpl{
		db:     db,
		mapper: mapper.NewResearchMapper(),
	}
}

func (r *ResearchTurnRepositoryImpl) Create(ctx context.Context, turn *entity.ResearchTurn) error {
	m := r.mapper.TurnToModel(turn)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(m).Error
}

func (r *ResearchTurnRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ResearchTurn, error) {
	var models []*model.ResearchTurn
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.TurnsToEntities(models), nil
}

func (r *ResearchTurnRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := applySpecifications(r.db.WithContext(ctx).Model(&model.ResearchTurn{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
