package model

import (
	"time"

	"github.com/google/uuid"
)

type ResearchTurn struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey"`
	SessionId uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_research_turn_seq"`
	Seq       int       `gorm:"not null;uniqueIndex:idx_research_turn_seq"`
	ActorId   string    `gorm:"type:varchar(64);not null"`
	Phase     string    `gorm:"type:varchar(20);not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (ResearchTurn) TableName() string {
	return "research_turns"
}
