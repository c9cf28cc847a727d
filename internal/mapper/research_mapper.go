package mapper

import (
	"encoding/json"
	"time"

	"literas-be/internal/entity"
	"literas-be/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ResearchMapper struct{}

func NewResearchMapper() *ResearchMapper {
	return &ResearchMapper{}
}

// Session Mappers

func (m *ResearchMapper) SessionToEntity(s *model.ResearchSession) *entity.ResearchSession {
	if s == nil {
		return nil
	}

	var deletedAt *time.Time
	if s.DeletedAt.Valid {
		t := s.DeletedAt.Time
		deletedAt = &t
	}

	var updatedAt *time.Time
	if !s.UpdatedAt.IsZero() {
		t := s.UpdatedAt
		updatedAt = &t
	}

	var errMsg string
	if s.Error != nil {
		errMsg = *s.Error
	}

	counters := map[string]int{}
	if len(s.Counters) > 0 {
		_ = json.Unmarshal(s.Counters, &counters)
	}

	return &entity.ResearchSession{
		Id:         s.Id,
		UserId:     s.UserId,
		Topic:      s.Topic,
		Status:     s.Status,
		Error:      errMsg,
		TurnCount:  s.TurnCount,
		FinalPhase: s.FinalPhase,
		Counters:   counters,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  updatedAt,
		DeletedAt:  deletedAt,
		IsDeleted:  s.DeletedAt.Valid,
	}
}

func (m *ResearchMapper) SessionToModel(s *entity.ResearchSession) *model.ResearchSession {
	if s == nil {
		return nil
	}

	var deletedAt gorm.DeletedAt
	if s.DeletedAt != nil {
		deletedAt = gorm.DeletedAt{Time: *s.DeletedAt, Valid: true}
	} else if s.IsDeleted {
		deletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	}

	var updatedAt time.Time
	if s.UpdatedAt != nil {
		updatedAt = *s.UpdatedAt
	}

	var errMsg *string
	if s.Error != "" {
		e := s.Error
		errMsg = &e
	}

	var counters datatypes.JSON
	if s.Counters != nil {
		counters, _ = json.Marshal(s.Counters)
	}

	return &model.ResearchSession{
		Id:         s.Id,
		UserId:     s.UserId,
		Topic:      s.Topic,
		Status:     s.Status,
		Error:      errMsg,
		TurnCount:  s.TurnCount,
		FinalPhase: s.FinalPhase,
		Counters:   counters,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  updatedAt,
		DeletedAt:  deletedAt,
	}
}

// Turn Mappers

func (m *ResearchMapper) TurnToEntity(t *model.ResearchTurn) *entity.ResearchTurn {
	if t == nil {
		return nil
	}
	return &entity.ResearchTurn{
		Id:        t.Id,
		SessionId: t.SessionId,
		Seq:       t.Seq,
		ActorId:   t.ActorId,
		Phase:     t.Phase,
		Content:   t.Content,
		CreatedAt: t.CreatedAt,
	}
}

func (m *ResearchMapper) TurnToModel(t *entity.ResearchTurn) *model.ResearchTurn {
	if t == nil {
		return nil
	}
	return &model.ResearchTurn{
		Id:        t.Id,
		SessionId: t.SessionId,
		Seq:       t.Seq,
		ActorId:   t.ActorId,
		Phase:     t.Phase,
		Content:   t.Content,
		CreatedAt: t.CreatedAt,
	}
}

func (m *ResearchMapper) TurnsToEntities(models []*model.ResearchTurn) []*entity.ResearchTurn {
	out := make([]*entity.ResearchTurn, len(models))
	for i, t := range models {
		out[i] = m.TurnToEntity(t)
	}
	return out
}

// Reference Mappers

func (m *ResearchMapper) ReferenceToEntity(r *model.ApprovedReference) *entity.ApprovedReference {
	if r == nil {
		return nil
	}
	var authors []string
	if len(r.Authors) > 0 {
		_ = json.Unmarshal(r.Authors, &authors)
	}
	return &entity.ApprovedReference{
		Id:          r.Id,
		SessionId:   r.SessionId,
		CitationKey: r.CitationKey,
		Title:       r.Title,
		Authors:     authors,
		Year:        r.Year,
		Journal:     r.Journal,
		Doi:         r.Doi,
		TotalScore:  r.TotalScore,
		CreatedAt:   r.CreatedAt,
	}
}

func (m *ResearchMapper) ReferenceToModel(r *entity.ApprovedReference) *model.ApprovedReference {
	if r == nil {
		return nil
	}
	var authors datatypes.JSON
	if r.Authors != nil {
		authors, _ = json.Marshal(r.Authors)
	}
	return &model.ApprovedReference{
		Id:          r.Id,
		SessionId:   r.SessionId,
		CitationKey: r.CitationKey,
		Title:       r.Title,
		Authors:     authors,
		Year:        r.Year,
		Journal:     r.Journal,
		Doi:         r.Doi,
		TotalScore:  r.TotalScore,
		CreatedAt:   r.CreatedAt,
	}
}
