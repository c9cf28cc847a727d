package session

import (
	"errors"
	"fmt"

	"literas-be/pkg/research/workflow"
)

type EventType string

const (
	EventUpdate EventType = "update"
	EventError  EventType = "error"
)

// Event is one item of the session stream.
type Event struct {
	Type    EventType `json:"type"`
	Agent   string    `json:"agent,omitempty"`
	Content string    `json:"content,omitempty"`
	Message string    `json:"message,omitempty"`
}

func updateEvent(t workflow.Turn) Event {
	return Event{Type: EventUpdate, Agent: string(t.ActorID), Content: t.Content}
}

func errorEvent(err error) Event {
	return Event{Type: EventError, Message: err.Error()}
}

var (
	// ErrWorkflowExhausted ends a session that hit the iteration cap.
	ErrWorkflowExhausted = errors.New("workflow exhausted: iteration cap reached without termination")
	// ErrAlreadyStarted is reported when a session's stream is iterated twice.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrCanceled is reported when the caller went away between turns.
	ErrCanceled = errors.New("session canceled")
)

// ActorError is an actor invocation that failed; it ends the session.
type ActorError struct {
	Actor workflow.ActorID
	Err   error
}

func (e *ActorError) Error() string {
	return fmt.Sprintf("actor %s failed: %v", e.Actor, e.Err)
}

func (e *ActorError) Unwrap() error {
	return e.Err
}
