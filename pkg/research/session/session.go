package session

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"literas-be/internal/pkg/logger"
	"literas-be/pkg/research/actor"
	"literas-be/pkg/research/workflow"
)

const logModule = "ResearchSession"

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

const DefaultMaxTurns = 40

type Config struct {
	MaxTurns    int
	TurnTimeout time.Duration
	Gate        workflow.GatePolicy
	TaskBrief   string
}

// Recorder observes a session without being able to influence it.
type Recorder interface {
	RecordTurn(ctx context.Context, sessionID uuid.UUID, turn workflow.Turn)
	RecordFinish(ctx context.Context, info Info)
}

// Info is a point-in-time view of a session.
type Info struct {
	ID         uuid.UUID             `json:"id"`
	Topic      string                `json:"topic"`
	Status     Status                `json:"status"`
	Error      string                `json:"error,omitempty"`
	TurnCount  int                   `json:"turn_count"`
	StartedAt  *time.Time            `json:"started_at,omitempty"`
	FinishedAt *time.Time            `json:"finished_at,omitempty"`
	Duration   string                `json:"duration,omitempty"`
	State      workflow.SessionState `json:"state"`
}

type Option func(*Session)

func WithID(id uuid.UUID) Option {
	return func(s *Session) { s.id = id }
}

func WithRecorder(r Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

func WithLogger(l logger.ILogger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// Session runs one research topic through the actors. Actors run strictly
// one at a time; the controller picks each next speaker.
type Session struct {
	id         uuid.UUID
	topic      string
	cfg        Config
	controller *workflow.Controller
	actors     *actor.Registry
	recorder   Recorder
	logger     logger.ILogger
	tracer     trace.Tracer
	started    atomic.Bool

	mu         sync.RWMutex
	history    workflow.History
	status     Status
	err        error
	startedAt  time.Time
	finishedAt time.Time
}

func New(topic string, actors *actor.Registry, cfg Config, opts ...Option) *Session {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.Gate.MinPapers <= 0 {
		cfg.Gate = workflow.DefaultGatePolicy()
	}
	s := &Session{
		id:     uuid.New(),
		topic:  topic,
		cfg:    cfg,
		actors: actors,
		logger: logger.NewNopLogger(),
		tracer: otel.Tracer("literas-be/session"),
		status: StatusPending,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.controller = workflow.NewController(cfg.Gate, s.logger)
	return s
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) Topic() string { return s.topic }

// History returns a copy of the turns so far.
func (s *Session) History() []workflow.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Turns()
}

func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := Info{
		ID:        s.id,
		Topic:     s.topic,
		Status:    s.status,
		TurnCount: s.history.Len(),
		State:     s.controller.Snapshot(),
	}
	if s.err != nil {
		info.Error = s.err.Error()
	}
	if !s.startedAt.IsZero() {
		started := s.startedAt
		info.StartedAt = &started
		end := time.Now()
		if !s.finishedAt.IsZero() {
			finished := s.finishedAt
			info.FinishedAt = &finished
			end = finished
		}
		info.Duration = end.Sub(started).Round(time.Millisecond).String()
	}
	return info
}

// Events runs the session lazily: each pull advances it by at most one turn.
// The sequence can be ranged over once; a second iteration yields a single
// error event. Cancelling ctx stops the session at the next turn boundary.
func (s *Session) Events(ctx context.Context) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		if !s.started.CompareAndSwap(false, true) {
			yield(errorEvent(ErrAlreadyStarted))
			return
		}
		s.run(ctx, yield)
	}
}

func (s *Session) run(ctx context.Context, yield func(Event) bool) {
	ctx, span := s.tracer.Start(ctx, "session.Run", trace.WithAttributes(
		attribute.String("session.id", s.id.String()),
		attribute.String("session.topic", s.topic),
	))
	defer span.End()

	if missing := s.actors.Missing(); len(missing) > 0 {
		s.fail(ctx, span, yield, fmt.Errorf("%w: %v", actor.ErrUnknownActor, missing))
		return
	}

	s.mu.Lock()
	s.status = StatusRunning
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()
	s.logger.Info(logModule, "Session started", map[string]interface{}{"session_id": s.id, "topic": s.topic})

	boot := workflow.NewTurn(workflow.ActorUser, workflow.PhaseSearch, actor.BootstrapContent(s.topic, s.cfg.TaskBrief))
	s.append(ctx, boot)
	if !yield(updateEvent(boot)) {
		s.finish(ctx, StatusCanceled, ErrCanceled)
		return
	}

	for turns := 0; ; turns++ {
		if err := ctx.Err(); err != nil {
			s.finish(ctx, StatusCanceled, fmt.Errorf("%w: %v", ErrCanceled, err))
			yield(errorEvent(ErrCanceled))
			return
		}

		decision := s.controller.NextActor(s.History())
		if decision.Terminate {
			s.logger.Info(logModule, "Session finished", map[string]interface{}{
				"session_id": s.id,
				"turns":      turns,
				"reason":     decision.Reason,
			})
			s.finish(ctx, StatusCompleted, nil)
			return
		}
		if turns >= s.cfg.MaxTurns {
			s.fail(ctx, span, yield, fmt.Errorf("%w (%d turns)", ErrWorkflowExhausted, s.cfg.MaxTurns))
			return
		}

		next, err := s.actors.Get(decision.Next)
		if err != nil {
			s.fail(ctx, span, yield, err)
			return
		}

		phase := s.controller.Phase()
		content, err := s.invoke(ctx, next)
		if err != nil {
			s.fail(ctx, span, yield, &ActorError{Actor: next.ID(), Err: err})
			return
		}

		t := workflow.NewTurn(next.ID(), phase, content)
		s.append(ctx, t)
		if !yield(updateEvent(t)) {
			s.finish(ctx, StatusCanceled, ErrCanceled)
			return
		}
	}
}

// invoke runs one actor to completion. The caller's cancellation is not
// passed down; only the per-turn timeout can cut an actor short.
func (s *Session) invoke(ctx context.Context, a actor.Actor) (string, error) {
	actx := context.WithoutCancel(ctx)
	if s.cfg.TurnTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(actx, s.cfg.TurnTimeout)
		defer cancel()
	}
	actx, span := s.tracer.Start(actx, "session.Turn", trace.WithAttributes(attribute.String("actor", string(a.ID()))))
	defer span.End()

	start := time.Now()
	content, err := a.Respond(actx, s.History())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	s.logger.Debug(logModule, "Turn completed", map[string]interface{}{
		"session_id": s.id,
		"actor":      a.ID(),
		"duration":   time.Since(start).String(),
	})
	return content, nil
}

func (s *Session) append(ctx context.Context, t workflow.Turn) {
	s.mu.Lock()
	s.history.Append(t)
	s.mu.Unlock()
	if s.recorder != nil {
		s.recorder.RecordTurn(context.WithoutCancel(ctx), s.id, t)
	}
}

func (s *Session) fail(ctx context.Context, span trace.Span, yield func(Event) bool, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.logger.Error(logModule, "Session failed", map[string]interface{}{"session_id": s.id, "error": err})
	s.finish(ctx, StatusFailed, err)
	yield(errorEvent(err))
}

func (s *Session) finish(ctx context.Context, status Status, err error) {
	s.mu.Lock()
	s.status = status
	s.err = err
	s.finishedAt = time.Now().UTC()
	if s.startedAt.IsZero() {
		s.startedAt = s.finishedAt
	}
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.RecordFinish(context.WithoutCancel(ctx), s.Info())
	}
}

// Run drains the stream and returns the terminal error, if any. Useful for
// callers that only care about recorder output.
func (s *Session) Run(ctx context.Context) error {
	var last Event
	for ev := range s.Events(ctx) {
		last = ev
	}
	if last.Type == EventError {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.err != nil {
			return s.err
		}
		return errors.New(last.Message)
	}
	return nil
}
