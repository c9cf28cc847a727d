package service

import (
	"context"
	"errors"
	"iter"
	"sort"
	"strings"
	"sync"
	"time"

	"literas-be/internal/dto"
	"literas-be/internal/entity"
	"literas-be/internal/pkg/logger"
	"literas-be/internal/repository/memory"
	"literas-be/internal/repository/specification"
	"literas-be/internal/repository/unitofwork"
	"literas-be/pkg/events"
	"literas-be/pkg/research/actor"
	"literas-be/pkg/research/retrieval"
	"literas-be/pkg/research/session"
	"literas-be/pkg/research/workflow"

	"github.com/google/uuid"
)

const researchModule = "ResearchService"

var (
	ErrSessionNotFound   = errors.New("research session not found")
	ErrSessionNotRunning = errors.New("research session is not running")
)

// LifecyclePublisher announces session status changes (NATS in production).
type LifecyclePublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// EventSink receives every stream event of a session (the websocket Hub).
type EventSink interface {
	Publish(ctx context.Context, sessionID uuid.UUID, event interface{})
}

type IResearchService interface {
	// Start runs a session in the background and returns immediately.
	Start(ctx context.Context, userID *uuid.UUID, req dto.StartResearchRequest) (*dto.StartResearchResponse, error)
	// Open creates a session for a caller that consumes the stream itself.
	Open(userID *uuid.UUID, topic string) *session.Session
	// Observe wraps a session's stream with publishing side effects.
	Observe(ctx context.Context, s *session.Session) iter.Seq[session.Event]
	Cancel(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*dto.ResearchSessionResponse, error)
	List(ctx context.Context, req dto.ListResearchRequest) ([]*dto.ResearchSessionResponse, error)
	Turns(ctx context.Context, id uuid.UUID) ([]*dto.ResearchTurnResponse, error)
	Search(ctx context.Context, req dto.SearchRequest) (*dto.SearchResponse, error)
}

type researchService struct {
	actors     *actor.Registry
	cfg        session.Config
	searcher   actor.Searcher
	maxResults int

	sessions   *memory.SessionRepository
	uowFactory unitofwork.RepositoryFactory
	transcript TranscriptPublisher
	lifecycle  LifecyclePublisher
	sink       EventSink
	logger     logger.ILogger

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
}

type ResearchDeps struct {
	Actors     *actor.Registry
	Config     session.Config
	Searcher   actor.Searcher
	MaxResults int
	Sessions   *memory.SessionRepository
	UowFactory unitofwork.RepositoryFactory // nil disables persistence
	Transcript TranscriptPublisher          // nil disables persistence
	Lifecycle  LifecyclePublisher           // optional
	Sink       EventSink                    // optional
	Logger     logger.ILogger
}

func NewResearchService(deps ResearchDeps) IResearchService {
	if deps.Logger == nil {
		deps.Logger = logger.NewNopLogger()
	}
	if deps.Sessions == nil {
		deps.Sessions = memory.NewSessionRepository(time.Hour)
	}
	if deps.MaxResults <= 0 {
		deps.MaxResults = retrieval.DefaultMaxResults
	}
	return &researchService{
		actors:     deps.Actors,
		cfg:        deps.Config,
		searcher:   deps.Searcher,
		maxResults: deps.MaxResults,
		sessions:   deps.Sessions,
		uowFactory: deps.UowFactory,
		transcript: deps.Transcript,
		lifecycle:  deps.Lifecycle,
		sink:       deps.Sink,
		logger:     deps.Logger,
		cancels:    make(map[uuid.UUID]context.CancelFunc),
	}
}

func (s *researchService) Open(userID *uuid.UUID, topic string) *session.Session {
	id := uuid.New()
	rec := &sessionRecorder{svc: s, userID: userID}
	sess := session.New(topic, s.actors, s.cfg,
		session.WithID(id),
		session.WithRecorder(rec),
		session.WithLogger(s.logger),
	)
	s.sessions.Save(sess)
	return sess
}

func (s *researchService) Start(ctx context.Context, userID *uuid.UUID, req dto.StartResearchRequest) (*dto.StartResearchResponse, error) {
	sess := s.Open(userID, req.Topic)

	// The run outlives the request that started it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.cancels[sess.ID()] = cancel
	s.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			s.mu.Lock()
			delete(s.cancels, sess.ID())
			s.mu.Unlock()
		}()
		for range s.Observe(runCtx, sess) {
		}
	}()

	return &dto.StartResearchResponse{SessionId: sess.ID(), Status: string(session.StatusRunning)}, nil
}

func (s *researchService) Observe(ctx context.Context, sess *session.Session) iter.Seq[session.Event] {
	return func(yield func(session.Event) bool) {
		for ev := range sess.Events(ctx) {
			if s.sink != nil {
				s.sink.Publish(ctx, sess.ID(), ev)
			}
			if !yield(ev) {
				return
			}
		}
	}
}

func (s *researchService) Cancel(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()
	if !ok {
		if _, live := s.sessions.Get(id); live {
			return ErrSessionNotRunning
		}
		return ErrSessionNotFound
	}
	cancel()
	s.logger.Info(researchModule, "Cancellation requested", map[string]interface{}{"session_id": id})
	return nil
}

func (s *researchService) Get(ctx context.Context, id uuid.UUID) (*dto.ResearchSessionResponse, error) {
	if sess, ok := s.sessions.Get(id); ok {
		return infoToResponse(sess.Info(), true), nil
	}
	if s.uowFactory == nil {
		return nil, ErrSessionNotFound
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	row, err := uow.ResearchSessionRepository().FindOne(ctx, specification.ByID{ID: id})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrSessionNotFound
	}
	refs, err := uow.ApprovedReferenceRepository().FindAll(ctx, specification.BySessionID{SessionID: id})
	if err != nil {
		return nil, err
	}
	res := entityToResponse(row)
	for _, r := range refs {
		res.ApprovedReferences = append(res.ApprovedReferences, referenceFromEntity(r))
	}
	return res, nil
}

func (s *researchService) List(ctx context.Context, req dto.ListResearchRequest) ([]*dto.ResearchSessionResponse, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit < 1 {
		req.Limit = 20
	}

	if s.uowFactory == nil {
		return s.listLive(req), nil
	}

	specs := []specification.Specification{
		specification.TopicContains{Query: req.Query},
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Pagination{Limit: req.Limit, Offset: (req.Page - 1) * req.Limit},
	}
	if req.Status != "" {
		specs = append(specs, specification.ByStatus{Status: req.Status})
	}
	rows, err := s.uowFactory.NewUnitOfWork(ctx).ResearchSessionRepository().FindAll(ctx, specs...)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.ResearchSessionResponse, 0, len(rows))
	for _, row := range rows {
		if sess, ok := s.sessions.Get(row.Id); ok {
			out = append(out, infoToResponse(sess.Info(), true))
			continue
		}
		out = append(out, entityToResponse(row))
	}
	return out, nil
}

func (s *researchService) listLive(req dto.ListResearchRequest) []*dto.ResearchSessionResponse {
	var all []*dto.ResearchSessionResponse
	for _, sess := range s.sessions.List() {
		info := sess.Info()
		if req.Status != "" && string(info.Status) != req.Status {
			continue
		}
		if req.Query != "" && !strings.Contains(strings.ToLower(info.Topic), strings.ToLower(req.Query)) {
			continue
		}
		all = append(all, infoToResponse(info, true))
	}
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i].StartedAt, all[j].StartedAt
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		return a.After(*b)
	})

	start := (req.Page - 1) * req.Limit
	if start >= len(all) {
		return []*dto.ResearchSessionResponse{}
	}
	end := start + req.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

func (s *researchService) Turns(ctx context.Context, id uuid.UUID) ([]*dto.ResearchTurnResponse, error) {
	if sess, ok := s.sessions.Get(id); ok {
		history := sess.History()
		out := make([]*dto.ResearchTurnResponse, len(history))
		for i, t := range history {
			out[i] = &dto.ResearchTurnResponse{
				Id:        t.ID,
				Seq:       i,
				Agent:     string(t.ActorID),
				Phase:     string(t.Phase),
				Content:   t.Content,
				CreatedAt: t.Timestamp,
			}
		}
		return out, nil
	}
	if s.uowFactory == nil {
		return nil, ErrSessionNotFound
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	exists, err := uow.ResearchSessionRepository().Count(ctx, specification.ByID{ID: id})
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, ErrSessionNotFound
	}
	turns, err := uow.ResearchTurnRepository().FindAll(ctx,
		specification.BySessionID{SessionID: id},
		specification.OrderBy{Field: "seq"},
	)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.ResearchTurnResponse, len(turns))
	for i, t := range turns {
		out[i] = &dto.ResearchTurnResponse{
			Id:        t.Id,
			Seq:       t.Seq,
			Agent:     t.ActorId,
			Phase:     t.Phase,
			Content:   t.Content,
			CreatedAt: t.CreatedAt,
		}
	}
	return out, nil
}

func (s *researchService) Search(ctx context.Context, req dto.SearchRequest) (*dto.SearchResponse, error) {
	limit := req.MaxResults
	if limit <= 0 {
		limit = s.maxResults
	}
	res, err := s.searcher.Run(ctx, req.Queries, limit)
	if err != nil {
		return nil, err
	}
	return &dto.SearchResponse{
		TotalUnique: len(res.Papers),
		Papers:      res.Papers,
		Queries:     res.Queries,
	}, nil
}

func (s *researchService) announce(ctx context.Context, ev events.ResearchLifecycle) {
	if s.lifecycle == nil {
		return
	}
	if err := s.lifecycle.Publish(ctx, ev); err != nil {
		s.logger.Warn(researchModule, "Failed to publish lifecycle event", map[string]interface{}{
			"type":       ev.Type,
			"session_id": ev.SessionID,
			"error":      err,
		})
	}
}

// sessionRecorder forwards one session's turns to the transcript bus and its
// status changes to the lifecycle publisher.
type sessionRecorder struct {
	svc    *researchService
	userID *uuid.UUID

	mu  sync.Mutex
	seq int
}

func (r *sessionRecorder) RecordTurn(ctx context.Context, sessionID uuid.UUID, turn workflow.Turn) {
	r.mu.Lock()
	seq := r.seq
	r.seq++
	r.mu.Unlock()

	if seq == 0 {
		topic := actor.TopicOf([]workflow.Turn{turn})
		r.publish(ctx, dto.TranscriptMessage{Kind: dto.TranscriptStarted, SessionId: sessionID, UserId: r.userID, Topic: topic})
		r.svc.announce(ctx, events.ResearchLifecycle{
			Type:       events.ResearchStarted,
			SessionID:  sessionID,
			Topic:      topic,
			Status:     string(session.StatusRunning),
			OccurredAt: time.Now().UTC(),
		})
	}
	r.publish(ctx, dto.TranscriptMessage{Kind: dto.TranscriptTurn, SessionId: sessionID, Seq: seq, Turn: &turn})
}

func (r *sessionRecorder) RecordFinish(ctx context.Context, info session.Info) {
	r.publish(ctx, dto.TranscriptMessage{
		Kind:      dto.TranscriptFinished,
		SessionId: info.ID,
		UserId:    r.userID,
		Topic:     info.Topic,
		Finish: &dto.FinishSummary{
			Status:     string(info.Status),
			Error:      info.Error,
			TurnCount:  info.TurnCount,
			StartedAt:  info.StartedAt,
			FinishedAt: info.FinishedAt,
			State:      info.State,
		},
	})

	kind := events.ResearchCompleted
	if info.Status != session.StatusCompleted {
		kind = events.ResearchFailed
	}
	r.svc.announce(ctx, events.ResearchLifecycle{
		Type:       kind,
		SessionID:  info.ID,
		Topic:      info.Topic,
		Status:     string(info.Status),
		TurnCount:  info.TurnCount,
		Error:      info.Error,
		Counters:   CountersMap(info.State.Counters),
		OccurredAt: time.Now().UTC(),
	})
}

func (r *sessionRecorder) publish(ctx context.Context, msg dto.TranscriptMessage) {
	if r.svc.transcript == nil {
		return
	}
	if err := r.svc.transcript.Publish(ctx, msg); err != nil {
		r.svc.logger.Warn(researchModule, "Failed to publish transcript message", map[string]interface{}{
			"kind":       msg.Kind,
			"session_id": msg.SessionId,
			"error":      err,
		})
	}
}

// CountersMap flattens the controller counters for JSON columns and events.
func CountersMap(c workflow.Counters) map[string]int {
	return map[string]int{
		"refine_search_count":        c.RefineSearchCount,
		"proceed_to_synthesis_count": c.ProceedToSynthesisCount,
		"reference_validation_count": c.ReferenceValidationCount,
		"total_studies_seen":         c.TotalStudiesSeen,
		"gate_override_count":        c.GateOverrideCount,
		"protocol_violation_count":   c.ProtocolViolationCount,
	}
}

func infoToResponse(info session.Info, live bool) *dto.ResearchSessionResponse {
	return &dto.ResearchSessionResponse{
		Id:                 info.ID,
		Topic:              info.Topic,
		Status:             string(info.Status),
		Error:              info.Error,
		TurnCount:          info.TurnCount,
		Phase:              string(info.State.Phase),
		Counters:           CountersMap(info.State.Counters),
		ApprovedReferences: info.State.ApprovedReferences,
		StartedAt:          info.StartedAt,
		FinishedAt:         info.FinishedAt,
		Duration:           info.Duration,
		Live:               live,
	}
}

func entityToResponse(e *entity.ResearchSession) *dto.ResearchSessionResponse {
	res := &dto.ResearchSessionResponse{
		Id:         e.Id,
		Topic:      e.Topic,
		Status:     e.Status,
		Error:      e.Error,
		TurnCount:  e.TurnCount,
		Phase:      e.FinalPhase,
		Counters:   e.Counters,
		StartedAt:  e.StartedAt,
		FinishedAt: e.FinishedAt,
	}
	if e.StartedAt != nil && e.FinishedAt != nil {
		res.Duration = e.FinishedAt.Sub(*e.StartedAt).Round(time.Millisecond).String()
	}
	return res
}

func referenceFromEntity(r *entity.ApprovedReference) workflow.ApprovedReference {
	return workflow.ApprovedReference{
		Title:       r.Title,
		Authors:     r.Authors,
		Year:        workflow.FlexString(r.Year),
		Journal:     r.Journal,
		DOI:         r.Doi,
		CitationKey: r.CitationKey,
	}
}
