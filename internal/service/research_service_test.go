package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"literas-be/internal/dto"
	"literas-be/pkg/events"
	"literas-be/pkg/research/actor"
	"literas-be/pkg/research/retrieval"
	"literas-be/pkg/research/session"
	"literas-be/pkg/research/workflow"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	validatorReply = `{"scored_papers": [
  {"title": "Alpha trial", "doi": "10.1/a", "relevance_score": 5, "recency_score": 4, "methodology_score": 4, "applicability_score": 4, "innovation_score": 4},
  {"title": "Beta cohort", "doi": "10.1/b", "relevance_score": 5, "recency_score": 5, "methodology_score": 4, "applicability_score": 4, "innovation_score": 4},
  {"title": "Gamma review", "doi": "10.1/c", "relevance_score": 4, "recency_score": 4, "methodology_score": 4, "applicability_score": 4, "innovation_score": 4}
]}`
	criticReply = `PROCEED_TO_SYNTHESIS
{"approved_references": [
  {"title": "Alpha trial", "doi": "10.1/a", "citation_key": "Alpha2023", "year": 2023},
  {"title": "Beta cohort", "doi": "10.1/b", "citation_key": "Beta2022"},
  {"title": "Gamma review", "doi": "10.1/c", "citation_key": "Gamma2024"}
]}`
)

type fixedActor struct {
	id    workflow.ActorID
	reply string
	gate  chan struct{}
}

func (a *fixedActor) ID() workflow.ActorID { return a.id }

func (a *fixedActor) Respond(ctx context.Context, history []workflow.Turn) (string, error) {
	if a.gate != nil {
		<-a.gate
	}
	return a.reply, nil
}

func happyRegistry(gate chan struct{}) *actor.Registry {
	return actor.NewRegistry(
		&fixedActor{id: workflow.ActorQueryPlanner, reply: `{"main_queries": ["statins stroke"]}`, gate: gate},
		&fixedActor{id: workflow.ActorSearch, reply: "found 3 papers"},
		&fixedActor{id: workflow.ActorValidator, reply: validatorReply},
		&fixedActor{id: workflow.ActorCritic, reply: criticReply},
		&fixedActor{id: workflow.ActorSynthesis, reply: "Statins help [Alpha2023] [Beta2022] [Gamma2024]. SYNTHESIS_COMPLETE"},
		&fixedActor{id: workflow.ActorReferenceChecker, reply: "PROCEED_TO_FORMATTING"},
		&fixedActor{id: workflow.ActorFormatter, reply: "# Report\nTERMINATE"},
	)
}

type recordingTranscript struct {
	mu   sync.Mutex
	msgs []dto.TranscriptMessage
}

func (r *recordingTranscript) Publish(ctx context.Context, msg dto.TranscriptMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingTranscript) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.msgs {
		out = append(out, m.Kind)
	}
	return out
}

type recordingLifecycle struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingLifecycle) Publish(ctx context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingLifecycle) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.EventType())
	}
	return out
}

type recordingSink struct {
	mu     sync.Mutex
	events map[uuid.UUID][]interface{}
}

func (r *recordingSink) Publish(ctx context.Context, id uuid.UUID, ev interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.events == nil {
		r.events = map[uuid.UUID][]interface{}{}
	}
	r.events[id] = append(r.events[id], ev)
}

func (r *recordingSink) count(id uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events[id])
}

type fakeSearcher struct {
	queries []string
	max     int
}

func (f *fakeSearcher) Run(ctx context.Context, queries []string, max int) (retrieval.Result, error) {
	f.queries, f.max = queries, max
	return retrieval.Result{
		Papers:  []retrieval.Paper{{Title: "Alpha trial", ExternalID: "1"}},
		Queries: []retrieval.QueryReport{{Query: queries[0], Found: 1, Fetched: 1}},
	}, nil
}

type fixture struct {
	svc        IResearchService
	transcript *recordingTranscript
	lifecycle  *recordingLifecycle
	sink       *recordingSink
	searcher   *fakeSearcher
}

func newFixture(gate chan struct{}) fixture {
	f := fixture{
		transcript: &recordingTranscript{},
		lifecycle:  &recordingLifecycle{},
		sink:       &recordingSink{},
		searcher:   &fakeSearcher{},
	}
	f.svc = NewResearchService(ResearchDeps{
		Actors:     happyRegistry(gate),
		Config:     session.Config{MaxTurns: 40},
		Searcher:   f.searcher,
		Transcript: f.transcript,
		Lifecycle:  f.lifecycle,
		Sink:       f.sink,
	})
	return f
}

func waitForStatus(t *testing.T, svc IResearchService, id uuid.UUID, want string) *dto.ResearchSessionResponse {
	t.Helper()
	var res *dto.ResearchSessionResponse
	require.Eventually(t, func() bool {
		var err error
		res, err = svc.Get(context.Background(), id)
		return err == nil && res.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return res
}

func TestResearchService_StartRunsSessionInBackground(t *testing.T) {
	f := newFixture(nil)

	started, err := f.svc.Start(context.Background(), nil, dto.StartResearchRequest{Topic: "statins after stroke"})
	require.NoError(t, err)

	res := waitForStatus(t, f.svc, started.SessionId, "completed")
	assert.True(t, res.Live)
	assert.Equal(t, "statins after stroke", res.Topic)
	assert.Equal(t, 8, res.TurnCount)
	assert.Equal(t, 1, res.Counters["proceed_to_synthesis_count"])
	assert.Len(t, res.ApprovedReferences, 3)
	assert.NotEmpty(t, res.Duration)

	require.Eventually(t, func() bool { return len(f.lifecycle.types()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{events.ResearchStarted, events.ResearchCompleted}, f.lifecycle.types())
	kinds := f.transcript.kinds()
	require.Len(t, kinds, 10)
	assert.Equal(t, dto.TranscriptStarted, kinds[0])
	assert.Equal(t, dto.TranscriptFinished, kinds[9])
	assert.Equal(t, 8, f.sink.count(started.SessionId))

	turns, err := f.svc.Turns(context.Background(), started.SessionId)
	require.NoError(t, err)
	require.Len(t, turns, 8)
	assert.Equal(t, "user", turns[0].Agent)
	assert.Equal(t, string(workflow.ActorFormatter), turns[7].Agent)
	assert.Equal(t, 7, turns[7].Seq)
}

func TestResearchService_TranscriptSequenceNumbers(t *testing.T) {
	f := newFixture(nil)
	sess := f.svc.Open(nil, "topic")

	for range f.svc.Observe(context.Background(), sess) {
	}

	f.transcript.mu.Lock()
	defer f.transcript.mu.Unlock()
	var seqs []int
	for _, m := range f.transcript.msgs {
		if m.Kind == dto.TranscriptTurn {
			seqs = append(seqs, m.Seq)
			assert.Equal(t, sess.ID(), m.SessionId)
		}
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, seqs)
	assert.Equal(t, "topic", f.transcript.msgs[0].Topic)
}

func TestResearchService_Cancel(t *testing.T) {
	gate := make(chan struct{})
	f := newFixture(gate)

	started, err := f.svc.Start(context.Background(), nil, dto.StartResearchRequest{Topic: "slow topic"})
	require.NoError(t, err)
	waitForStatus(t, f.svc, started.SessionId, "running")

	require.NoError(t, f.svc.Cancel(context.Background(), started.SessionId))
	close(gate)

	res := waitForStatus(t, f.svc, started.SessionId, "canceled")
	assert.Contains(t, res.Error, "canceled")
	require.Eventually(t, func() bool { return len(f.lifecycle.types()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, events.ResearchFailed, f.lifecycle.types()[1])

	require.Eventually(t, func() bool {
		return errors.Is(f.svc.Cancel(context.Background(), started.SessionId), ErrSessionNotRunning)
	}, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, f.svc.Cancel(context.Background(), uuid.New()), ErrSessionNotFound)
}

func TestResearchService_UnknownSessionWithoutDatabase(t *testing.T) {
	f := newFixture(nil)

	_, err := f.svc.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.svc.Turns(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestResearchService_ListLiveSessions(t *testing.T) {
	f := newFixture(nil)
	for _, topic := range []string{"aspirin", "statins", "aspirin dosing"} {
		sess := f.svc.Open(nil, topic)
		for range f.svc.Observe(context.Background(), sess) {
		}
	}

	all, err := f.svc.List(context.Background(), dto.ListResearchRequest{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	filtered, err := f.svc.List(context.Background(), dto.ListResearchRequest{Query: "ASPIRIN", Status: "completed"})
	require.NoError(t, err)
	assert.Len(t, filtered, 2)

	paged, err := f.svc.List(context.Background(), dto.ListResearchRequest{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, paged, 1)
}

func TestResearchService_Search(t *testing.T) {
	f := newFixture(nil)

	res, err := f.svc.Search(context.Background(), dto.SearchRequest{Queries: []string{"aspirin"}})

	require.NoError(t, err)
	assert.Equal(t, retrieval.DefaultMaxResults, f.searcher.max)
	assert.Equal(t, 1, res.TotalUnique)
	assert.Equal(t, "aspirin", res.Queries[0].Query)

	_, err = f.svc.Search(context.Background(), dto.SearchRequest{Queries: []string{"x"}, MaxResults: 5})
	require.NoError(t, err)
	assert.Equal(t, 5, f.searcher.max)
}
