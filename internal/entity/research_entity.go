package entity

import (
	"time"

	"github.com/google/uuid"
)

type ResearchSession struct {
	Id         uuid.UUID
	UserId     *uuid.UUID
	Topic      string
	Status     string
	Error      string
	TurnCount  int
	FinalPhase string
	Counters   map[string]int
	StartedAt  *time.Time
	FinishedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  *time.Time
	DeletedAt  *time.Time
	IsDeleted  bool
}

type ResearchTurn struct {
	Id        uuid.UUID
	SessionId uuid.UUID
	Seq       int
	ActorId   string
	Phase     string
	Content   string
	CreatedAt time.Time
}

type ApprovedReference struct {
	Id          uuid.UUID
	SessionId   uuid.UUID
	CitationKey string
	Title       string
	Authors     []string
	Year        string
	Journal     string
	Doi         string
	TotalScore  *float64
	CreatedAt   time.Time
}
