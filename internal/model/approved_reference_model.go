package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ApprovedReference struct {
	Id          uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionId   uuid.UUID      `gorm:"type:uuid;not null;index"`
	CitationKey string         `gorm:"type:varchar(128);not null"`
	Title       string         `gorm:"type:text;not null"`
	Authors     datatypes.JSON `gorm:"type:jsonb"`
	Year        string         `gorm:"type:varchar(16)"`
	Journal     string         `gorm:"type:text"`
	Doi         string         `gorm:"type:text"`
	TotalScore  *float64
	CreatedAt   time.Time      `gorm:"autoCreateTime"`
}

func (ApprovedReference) TableName() string {
	return "approved_references"
}
