package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"literas-be/pkg/research/actor"
	"literas-be/pkg/research/workflow"
)

const (
	validatorReply = `{"scored_papers": [
  {"title": "Alpha trial", "doi": "10.1/a", "relevance_score": 5, "recency_score": 4, "methodology_score": 4, "applicability_score": 4, "innovation_score": 4},
  {"title": "Beta cohort", "doi": "10.1/b", "relevance_score": 5, "recency_score": 5, "methodology_score": 4, "applicability_score": 4, "innovation_score": 4},
  {"title": "Gamma review", "doi": "10.1/c", "relevance_score": 4, "recency_score": 4, "methodology_score": 4, "applicability_score": 4, "innovation_score": 4}
]}`
	criticProceed = `PROCEED_TO_SYNTHESIS
{"approved_references": [
  {"title": "Alpha trial", "doi": "10.1/a", "citation_key": "Alpha2023"},
  {"title": "Beta cohort", "doi": "10.1/b", "citation_key": "Beta2022"},
  {"title": "Gamma review", "doi": "10.1/c", "citation_key": "Gamma2024"}
]}`
)

// scripted replays canned replies, repeating the last one.
type scripted struct {
	id      workflow.ActorID
	replies []string
	err     error
	hook    func(ctx context.Context)

	mu    sync.Mutex
	calls int
	seen  []int
}

func (s *scripted) ID() workflow.ActorID { return s.id }

func (s *scripted) Respond(ctx context.Context, history []workflow.Turn) (string, error) {
	s.mu.Lock()
	i := s.calls
	s.calls++
	s.seen = append(s.seen, len(history))
	s.mu.Unlock()

	if s.hook != nil {
		s.hook(ctx)
	}
	if s.err != nil {
		return "", s.err
	}
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	return s.replies[i], nil
}

func (s *scripted) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type cast map[workflow.ActorID]*scripted

func happyCast() cast {
	c := cast{
		workflow.ActorQueryPlanner:     {replies: []string{`{"main_queries": ["statins stroke"]}`}},
		workflow.ActorSearch:           {replies: []string{"found 3 papers"}},
		workflow.ActorValidator:        {replies: []string{validatorReply}},
		workflow.ActorCritic:           {replies: []string{criticProceed}},
		workflow.ActorSynthesis:        {replies: []string{"Statins help [Alpha2023; Beta2022] [Gamma2024]. SYNTHESIS_COMPLETE"}},
		workflow.ActorReferenceChecker: {replies: []string{"PROCEED_TO_FORMATTING"}},
		workflow.ActorFormatter:        {replies: []string{"# Report\nTERMINATE"}},
	}
	for id, a := range c {
		a.id = id
	}
	return c
}

func (c cast) registry() *actor.Registry {
	r := actor.NewRegistry()
	for _, a := range c {
		r.Register(a)
	}
	return r
}

type memoryRecorder struct {
	mu     sync.Mutex
	turns  []workflow.Turn
	finish []Info
}

func (m *memoryRecorder) RecordTurn(ctx context.Context, id uuid.UUID, t workflow.Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, t)
}

func (m *memoryRecorder) RecordFinish(ctx context.Context, info Info) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finish = append(m.finish, info)
}

func collect(ctx context.Context, s *Session) []Event {
	var out []Event
	for ev := range s.Events(ctx) {
		out = append(out, ev)
	}
	return out
}

func agents(events []Event) []string {
	var out []string
	for _, ev := range events {
		out = append(out, ev.Agent)
	}
	return out
}

func TestSession_HappyPath(t *testing.T) {
	rec := &memoryRecorder{}
	s := New("statins after stroke", happyCast().registry(), Config{TaskBrief: "brief"}, WithRecorder(rec))

	events := collect(context.Background(), s)

	assert.Equal(t, []string{
		"user", "QueryPlanner", "SearchAgent", "Validator", "Critic",
		"SynthesisAgent", "ReferenceConsistencyCritic", "FormatterAgent",
	}, agents(events))
	for _, ev := range events {
		assert.Equal(t, EventUpdate, ev.Type)
	}
	assert.True(t, strings.HasPrefix(events[0].Content, "Research topic: statins after stroke"))
	assert.Contains(t, events[len(events)-1].Content, "TERMINATE")

	info := s.Info()
	assert.Equal(t, StatusCompleted, info.Status)
	assert.Equal(t, 8, info.TurnCount)
	assert.Equal(t, workflow.PhaseDone, info.State.Phase)
	assert.Len(t, info.State.ApprovedReferences, 3)
	require.NotNil(t, info.StartedAt)
	require.NotNil(t, info.FinishedAt)
	assert.NotEmpty(t, info.Duration)

	assert.Len(t, rec.turns, 8)
	require.Len(t, rec.finish, 1)
	assert.Equal(t, StatusCompleted, rec.finish[0].Status)

	history := s.History()
	assert.Equal(t, workflow.PhaseSearch, history[4].Phase)
	assert.Equal(t, workflow.PhaseSynthesis, history[5].Phase)
}

func TestSession_EndlessRefineHitsIterationCap(t *testing.T) {
	c := happyCast()
	c[workflow.ActorCritic].replies = []string{"Not enough. REFINE_SEARCH"}
	s := New("topic", c.registry(), Config{MaxTurns: 40})

	done := make(chan []Event)
	go func() { done <- collect(context.Background(), s) }()

	var events []Event
	select {
	case events = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not terminate")
	}

	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Contains(t, last.Message, ErrWorkflowExhausted.Error())
	assert.Len(t, events, 1+40+1)
	assert.Equal(t, StatusFailed, s.Info().Status)
	assert.Equal(t, 10, s.Info().State.Counters.RefineSearchCount)
	assert.Equal(t, 0, c[workflow.ActorSynthesis].callCount())
}

func TestSession_ActorFailureEndsSession(t *testing.T) {
	c := happyCast()
	c[workflow.ActorValidator].err = errors.New("model overloaded")
	s := New("topic", c.registry(), Config{})

	err := s.Run(context.Background())

	var ae *ActorError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, workflow.ActorValidator, ae.Actor)
	assert.Equal(t, 0, c[workflow.ActorCritic].callCount())
	assert.Equal(t, StatusFailed, s.Info().Status)
	assert.Equal(t, 3, s.Info().TurnCount)
}

func TestSession_ErrorIsDeliveredAsEvent(t *testing.T) {
	c := happyCast()
	c[workflow.ActorSearch].err = errors.New("dns failure")
	s := New("topic", c.registry(), Config{})

	events := collect(context.Background(), s)

	require.Len(t, events, 3)
	assert.Equal(t, Event{Type: EventError, Message: "actor SearchAgent failed: dns failure"}, events[2])
}

func TestSession_TurnTimeout(t *testing.T) {
	c := happyCast()
	c[workflow.ActorQueryPlanner].hook = func(ctx context.Context) { <-ctx.Done() }
	c[workflow.ActorQueryPlanner].err = errors.New("gave up")
	s := New("topic", c.registry(), Config{TurnTimeout: 20 * time.Millisecond})

	err := s.Run(context.Background())

	assert.ErrorContains(t, err, "QueryPlanner")
}

func TestSession_CancellationHonoredAtTurnBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := happyCast()
	var ctxErrInsideTurn error
	c[workflow.ActorSearch].hook = func(actx context.Context) {
		cancel()
		ctxErrInsideTurn = actx.Err()
	}
	s := New("topic", c.registry(), Config{})

	events := collect(ctx, s)

	assert.NoError(t, ctxErrInsideTurn)
	assert.Equal(t, []string{"user", "QueryPlanner", "SearchAgent", ""}, agents(events))
	assert.Equal(t, EventError, events[3].Type)
	assert.Equal(t, 0, c[workflow.ActorValidator].callCount())
	assert.Equal(t, StatusCanceled, s.Info().Status)
}

func TestSession_ConsumerStopsEarly(t *testing.T) {
	c := happyCast()
	rec := &memoryRecorder{}
	s := New("topic", c.registry(), Config{}, WithRecorder(rec))

	for ev := range s.Events(context.Background()) {
		if ev.Agent == string(workflow.ActorQueryPlanner) {
			break
		}
	}

	assert.Equal(t, 0, c[workflow.ActorSearch].callCount())
	assert.Equal(t, StatusCanceled, s.Info().Status)
	require.Len(t, rec.finish, 1)
}

func TestSession_StreamIsSingleUse(t *testing.T) {
	s := New("topic", happyCast().registry(), Config{})
	collect(context.Background(), s)

	again := collect(context.Background(), s)

	require.Len(t, again, 1)
	assert.Equal(t, EventError, again[0].Type)
	assert.Equal(t, ErrAlreadyStarted.Error(), again[0].Message)
}

func TestSession_MissingActor(t *testing.T) {
	c := happyCast()
	r := actor.NewRegistry(c[workflow.ActorQueryPlanner])
	s := New("topic", r, Config{})

	events := collect(context.Background(), s)

	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
	assert.Contains(t, events[0].Message, "SearchAgent")
}

func TestSession_ActorsSeeFullHistory(t *testing.T) {
	c := happyCast()
	s := New("topic", c.registry(), Config{}, WithID(uuid.MustParse("00000000-0000-0000-0000-000000000001")))

	collect(context.Background(), s)

	assert.Equal(t, "00000000-0000-0000-0000-000000000001", s.ID().String())
	assert.Equal(t, []int{1}, c[workflow.ActorQueryPlanner].seen)
	assert.Equal(t, []int{7}, c[workflow.ActorFormatter].seen)
}
