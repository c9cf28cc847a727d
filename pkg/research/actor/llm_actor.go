package actor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"literas-be/internal/pkg/logger"
	"literas-be/pkg/llm"
	"literas-be/pkg/research/workflow"
)

const llmModule = "LLMActor"

// LLMActor answers by sending its instruction and the conversation to a
// chat model.
type LLMActor struct {
	id          workflow.ActorID
	provider    llm.LLMProvider
	instruction Instruction
	window      int
	maxTokens   int
	logger      logger.ILogger
}

type LLMOption func(*LLMActor)

// WithHistoryWindow keeps the opening turn plus the last n turns.
func WithHistoryWindow(n int) LLMOption {
	return func(a *LLMActor) { a.window = n }
}

func WithResponseLimit(maxTokens int) LLMOption {
	return func(a *LLMActor) { a.maxTokens = maxTokens }
}

func NewLLMActor(id workflow.ActorID, provider llm.LLMProvider, instruction Instruction, log logger.ILogger, opts ...LLMOption) *LLMActor {
	if log == nil {
		log = logger.NewNopLogger()
	}
	a := &LLMActor{id: id, provider: provider, instruction: instruction, logger: log}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *LLMActor) ID() workflow.ActorID { return a.id }

func (a *LLMActor) Respond(ctx context.Context, history []workflow.Turn) (string, error) {
	messages := a.messages(history)

	var opts []llm.Option
	if a.instruction.Temperature != nil {
		opts = append(opts, llm.WithTemperature(*a.instruction.Temperature))
	}
	if a.maxTokens > 0 {
		opts = append(opts, llm.WithMaxTokens(a.maxTokens))
	}

	start := time.Now()
	out, err := a.provider.Chat(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("%s: chat: %w", a.id, err)
	}
	a.logger.Debug(llmModule, "Actor responded", map[string]interface{}{
		"actor":    a.id,
		"messages": len(messages),
		"chars":    len(out),
		"duration": time.Since(start).String(),
	})
	return strings.TrimSpace(out), nil
}

// messages maps the history onto chat roles: the actor's own turns are
// assistant messages, everything else is a user message tagged with its author.
func (a *LLMActor) messages(history []workflow.Turn) []llm.Message {
	turns := history
	if a.window > 0 && len(turns) > a.window+1 {
		turns = append([]workflow.Turn{turns[0]}, turns[len(turns)-a.window:]...)
	}

	out := make([]llm.Message, 0, len(turns)+1)
	if a.instruction.Text != "" {
		out = append(out, llm.Message{Role: llm.RoleSystem, Content: a.instruction.Text})
	}
	for _, t := range turns {
		switch t.ActorID {
		case a.id:
			out = append(out, llm.Message{Role: llm.RoleAssistant, Content: t.Content})
		case workflow.ActorUser:
			out = append(out, llm.Message{Role: llm.RoleUser, Content: t.Content})
		default:
			out = append(out, llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf("[%s]: %s", t.ActorID, t.Content)})
		}
	}
	return out
}

// NewLLMActors builds every generation-backed actor from the catalog.
func NewLLMActors(provider llm.LLMProvider, catalog Catalog, log logger.ILogger, opts ...LLMOption) []Actor {
	actors := make([]Actor, 0, len(generated))
	for _, id := range generated {
		in, _ := catalog.For(id)
		actors = append(actors, NewLLMActor(id, provider, in, log, opts...))
	}
	return actors
}
