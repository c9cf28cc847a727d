package service

import (
	"context"
	"encoding/json"
	"fmt"

	"literas-be/internal/dto"
	"literas-be/internal/entity"
	"literas-be/internal/pkg/logger"
	"literas-be/internal/repository/specification"
	"literas-be/internal/repository/unitofwork"
	"literas-be/pkg/research/workflow"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const (
	TranscriptTopic = "research.transcript"
	consumerModule  = "TranscriptConsumer"
)

// TranscriptPublisher puts session transcript messages on the in-process bus.
type TranscriptPublisher interface {
	Publish(ctx context.Context, msg dto.TranscriptMessage) error
}

type transcriptPublisher struct {
	pubSub message.Publisher
	topic  string
}

func NewTranscriptPublisher(pubSub message.Publisher, topic string) TranscriptPublisher {
	return &transcriptPublisher{pubSub: pubSub, topic: topic}
}

func (p *transcriptPublisher) Publish(ctx context.Context, msg dto.TranscriptMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal transcript message: %w", err)
	}
	m := message.NewMessage(watermill.NewUUID(), payload)
	m.SetContext(ctx)
	return p.pubSub.Publish(p.topic, m)
}

// NewTranscriptBus returns the gochannel the publisher and consumer share.
// Publish blocks until the consumer acks, which keeps a session's messages in
// order.
func NewTranscriptBus() *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            64,
			BlockPublishUntilSubscriberAck: true,
		},
		watermill.NewStdLogger(false, false),
	)
}

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// transcriptConsumer writes the bus into Postgres. Every message is acked,
// failed writes included, so a broken database cannot stall a session.
type transcriptConsumer struct {
	subscriber message.Subscriber
	topicName  string
	uowFactory unitofwork.RepositoryFactory
	logger     logger.ILogger
}

func NewTranscriptConsumer(subscriber message.Subscriber, topicName string, uowFactory unitofwork.RepositoryFactory, log logger.ILogger) IConsumerService {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &transcriptConsumer{
		subscriber: subscriber,
		topicName:  topicName,
		uowFactory: uowFactory,
		logger:     log,
	}
}

func (c *transcriptConsumer) Consume(ctx context.Context) error {
	messages, err := c.subscriber.Subscribe(ctx, c.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			if err := c.handle(msg.Context(), msg.Payload); err != nil {
				c.logger.Error(consumerModule, "Failed to persist transcript message", map[string]interface{}{
					"message_id": msg.UUID,
					"error":      err,
				})
			}
			msg.Ack()
		}
	}()
	return nil
}

func (c *transcriptConsumer) handle(ctx context.Context, payload []byte) error {
	var msg dto.TranscriptMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	uow := c.uowFactory.NewUnitOfWork(ctx)
	switch msg.Kind {
	case dto.TranscriptStarted:
		return uow.ResearchSessionRepository().Create(ctx, &entity.ResearchSession{
			Id:       msg.SessionId,
			UserId:   msg.UserId,
			Topic:    msg.Topic,
			Status:   "running",
			Counters: map[string]int{},
		})

	case dto.TranscriptTurn:
		if msg.Turn == nil {
			return fmt.Errorf("turn message without turn")
		}
		return uow.ResearchTurnRepository().Create(ctx, &entity.ResearchTurn{
			Id:        msg.Turn.ID,
			SessionId: msg.SessionId,
			Seq:       msg.Seq,
			ActorId:   string(msg.Turn.ActorID),
			Phase:     string(msg.Turn.Phase),
			Content:   msg.Turn.Content,
			CreatedAt: msg.Turn.Timestamp,
		})

	case dto.TranscriptFinished:
		return c.finish(ctx, uow, msg)
	}

	c.logger.Warn(consumerModule, "Unknown transcript message kind", map[string]interface{}{"kind": msg.Kind})
	return nil
}

func (c *transcriptConsumer) finish(ctx context.Context, uow unitofwork.UnitOfWork, msg dto.TranscriptMessage) error {
	if msg.Finish == nil {
		return fmt.Errorf("finish message without summary")
	}
	sum := msg.Finish

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	row, err := uow.ResearchSessionRepository().FindOne(ctx, specification.ByID{ID: msg.SessionId})
	if err != nil {
		_ = uow.Rollback()
		return err
	}
	if row == nil {
		// The session failed before its bootstrap turn.
		row = &entity.ResearchSession{Id: msg.SessionId, UserId: msg.UserId, Topic: msg.Topic}
	}
	row.Status = sum.Status
	row.Error = sum.Error
	row.TurnCount = sum.TurnCount
	row.FinalPhase = string(sum.State.Phase)
	row.Counters = CountersMap(sum.State.Counters)
	row.StartedAt = sum.StartedAt
	row.FinishedAt = sum.FinishedAt

	if err := uow.ResearchSessionRepository().Update(ctx, row); err != nil {
		_ = uow.Rollback()
		return err
	}
	if err := uow.ApprovedReferenceRepository().ReplaceForSession(ctx, msg.SessionId, referencesToEntities(sum.State)); err != nil {
		_ = uow.Rollback()
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	c.logger.Info(consumerModule, "Session transcript closed", map[string]interface{}{
		"session_id": msg.SessionId,
		"status":     sum.Status,
		"turns":      sum.TurnCount,
		"references": len(sum.State.ApprovedReferences),
	})
	return nil
}

func referencesToEntities(state workflow.SessionState) []*entity.ApprovedReference {
	out := make([]*entity.ApprovedReference, 0, len(state.ApprovedReferences))
	for _, ref := range state.ApprovedReferences {
		out = append(out, &entity.ApprovedReference{
			CitationKey: ref.CitationKey,
			Title:       ref.Title,
			Authors:     ref.Authors,
			Year:        ref.Year.String(),
			Journal:     ref.Journal,
			Doi:         ref.DOI,
			TotalScore:  scoreFor(state.Scores, ref),
		})
	}
	return out
}

// scoreFor finds the validator total for an approved reference, matching by
// DOI first and title second.
func scoreFor(scores []workflow.Score, ref workflow.ApprovedReference) *float64 {
	doi := workflow.NormalizeDOI(ref.DOI)
	title := workflow.NormalizeTitle(ref.Title)
	for _, s := range scores {
		if doi != "" && workflow.NormalizeDOI(s.DOI) == doi {
			total := s.Total
			return &total
		}
	}
	for _, s := range scores {
		if title != "" && workflow.NormalizeTitle(s.Title) == title {
			total := s.Total
			return &total
		}
	}
	return nil
}
