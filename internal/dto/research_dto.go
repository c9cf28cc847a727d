package dto

import (
	"time"

	"literas-be/pkg/research/retrieval"
	"literas-be/pkg/research/workflow"

	"github.com/google/uuid"
)

type StartResearchRequest struct {
	Topic string `json:"topic" validate:"required,min=3,max=500"`
}

type StartResearchResponse struct {
	SessionId uuid.UUID `json:"session_id"`
	Status    string    `json:"status"`
}

type ResearchSessionResponse struct {
	Id                 uuid.UUID                    `json:"id"`
	Topic              string                       `json:"topic"`
	Status             string                       `json:"status"`
	Error              string                       `json:"error,omitempty"`
	TurnCount          int                          `json:"turn_count"`
	Phase              string                       `json:"phase,omitempty"`
	Counters           map[string]int               `json:"counters"`
	ApprovedReferences []workflow.ApprovedReference `json:"approved_references,omitempty"`
	StartedAt          *time.Time                   `json:"started_at,omitempty"`
	FinishedAt         *time.Time                   `json:"finished_at,omitempty"`
	Duration           string                       `json:"duration,omitempty"`
	Live               bool                         `json:"live"`
}

type ResearchTurnResponse struct {
	Id        uuid.UUID `json:"id"`
	Seq       int       `json:"seq"`
	Agent     string    `json:"agent"`
	Phase     string    `json:"phase"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type ListResearchRequest struct {
	Page   int    `query:"page" validate:"min=1"`
	Limit  int    `query:"limit" validate:"min=1,max=100"`
	Status string `query:"status" validate:"omitempty,oneof=pending running completed failed canceled"`
	Query  string `query:"q"`
}

type SearchRequest struct {
	Queries    []string `json:"queries" validate:"required,min=1,max=10,dive,required"`
	MaxResults int      `json:"max_results" validate:"omitempty,min=1,max=200"`
}

type SearchResponse struct {
	TotalUnique int                     `json:"total_unique"`
	Papers      []retrieval.Paper       `json:"papers"`
	Queries     []retrieval.QueryReport `json:"queries"`
}

// Transcript bus messages.

const (
	TranscriptStarted  = "started"
	TranscriptTurn     = "turn"
	TranscriptFinished = "finished"
)

type TranscriptMessage struct {
	Kind      string         `json:"kind"`
	SessionId uuid.UUID      `json:"session_id"`
	UserId    *uuid.UUID     `json:"user_id,omitempty"`
	Topic     string         `json:"topic,omitempty"`
	Seq       int            `json:"seq,omitempty"`
	Turn      *workflow.Turn `json:"turn,omitempty"`
	Finish    *FinishSummary `json:"finish,omitempty"`
}

type FinishSummary struct {
	Status     string                `json:"status"`
	Error      string                `json:"error,omitempty"`
	TurnCount  int                   `json:"turn_count"`
	StartedAt  *time.Time            `json:"started_at,omitempty"`
	FinishedAt *time.Time            `json:"finished_at,omitempty"`
	State      workflow.SessionState `json:"state"`
}
