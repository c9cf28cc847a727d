package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	ResearchStarted   = "RESEARCH_STARTED"
	ResearchCompleted = "RESEARCH_COMPLETED"
	ResearchFailed    = "RESEARCH_FAILED"
)

// ResearchLifecycle reports a session changing status.
type ResearchLifecycle struct {
	Type       string
	SessionID  uuid.UUID
	Topic      string
	Status     string
	TurnCount  int
	Error      string
	Counters   map[string]int
	OccurredAt time.Time
}

func (e ResearchLifecycle) EventType() string {
	return e.Type
}

func (e ResearchLifecycle) Payload() map[string]interface{} {
	p := map[string]interface{}{
		"session_id":  e.SessionID.String(),
		"topic":       e.Topic,
		"status":      e.Status,
		"turn_count":  e.TurnCount,
		"occurred_at": e.OccurredAt.Format(time.RFC3339),
	}
	if e.Error != "" {
		p["error"] = e.Error
	}
	if e.Counters != nil {
		p["counters"] = e.Counters
	}
	return p
}

func (e ResearchLifecycle) Timestamp() time.Time {
	return e.OccurredAt
}
