package service

import (
	"context"
	"strings"

	"literas-be/internal/pkg/logger"
	"literas-be/pkg/events"

	"github.com/google/uuid"
)

const relayModule = "StatusRelay"

// EventSubscriber is the durable side of the lifecycle bus.
type EventSubscriber interface {
	Subscribe(ctx context.Context, subject, durableName string, handler func(ctx context.Context, event events.Event) error) error
}

// StatusRelay turns lifecycle events from any instance into status frames
// for the session's watchers.
type StatusRelay struct {
	subscriber EventSubscriber
	sink       EventSink
	logger     logger.ILogger
}

func NewStatusRelay(sub EventSubscriber, sink EventSink, log logger.ILogger) *StatusRelay {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &StatusRelay{subscriber: sub, sink: sink, logger: log}
}

func (r *StatusRelay) Start(ctx context.Context) error {
	if err := r.subscriber.Subscribe(ctx, "events.>", "research-status-relay", r.handleEvent); err != nil {
		r.logger.Error(relayModule, "Failed to start lifecycle subscriber", map[string]interface{}{"error": err})
		return err
	}
	return nil
}

func (r *StatusRelay) handleEvent(ctx context.Context, event events.Event) error {
	if !strings.HasPrefix(event.EventType(), "RESEARCH_") {
		return nil
	}
	payload := event.Payload()
	raw, _ := payload["session_id"].(string)
	id, err := uuid.Parse(raw)
	if err != nil {
		r.logger.Warn(relayModule, "Lifecycle event without session id", map[string]interface{}{"type": event.EventType()})
		return nil
	}

	r.sink.Publish(ctx, id, map[string]interface{}{
		"type":   "status",
		"event":  event.EventType(),
		"status": payload["status"],
		"error":  payload["error"],
	})
	return nil
}
