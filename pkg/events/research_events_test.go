package events

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestResearchLifecyclePayload(t *testing.T) {
	id := uuid.New()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		event ResearchLifecycle
		want  map[string]interface{}
	}{
		{
			name:  "started",
			event: ResearchLifecycle{Type: ResearchStarted, SessionID: id, Topic: "t", Status: "running", OccurredAt: at},
			want: map[string]interface{}{
				"session_id": id.String(), "topic": "t", "status": "running", "turn_count": 0,
				"occurred_at": "2024-05-01T10:00:00Z",
			},
		},
		{
			name: "failed",
			event: ResearchLifecycle{
				Type: ResearchFailed, SessionID: id, Topic: "t", Status: "failed", TurnCount: 40,
				Error: "exhausted", Counters: map[string]int{"refine_search_count": 10}, OccurredAt: at,
			},
			want: map[string]interface{}{
				"session_id": id.String(), "topic": "t", "status": "failed", "turn_count": 40,
				"occurred_at": "2024-05-01T10:00:00Z", "error": "exhausted",
				"counters": map[string]int{"refine_search_count": 10},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e Event = tt.event
			assert.Equal(t, tt.want, e.Payload())
			assert.Equal(t, at, e.Timestamp())
		})
	}
}
