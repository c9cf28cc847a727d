package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ResearchSession struct {
	Id         uuid.UUID      `gorm:"type:uuid;primaryKey"`
	UserId     *uuid.UUID     `gorm:"type:uuid;index"`
	Topic      string         `gorm:"type:text;not null"`
	Status     string         `gorm:"type:varchar(20);not null;index"`
	Error      *string        `gorm:"type:text"`
	TurnCount  int            `gorm:"not null;default:0"`
	FinalPhase string         `gorm:"type:varchar(20)"`
	Counters   datatypes.JSON `gorm:"type:jsonb"`
	StartedAt  *time.Time
	FinishedAt *time.Time
	CreatedAt  time.Time      `gorm:"autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime"`
	DeletedAt  gorm.DeletedAt `gorm:"index"`
}

func (ResearchSession) TableName() string {
	return "research_sessions"
}
