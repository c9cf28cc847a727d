package bootstrap

import (
	"fmt"
	"os"

	"literas-be/internal/config"
	"literas-be/internal/pkg/logger"
	"literas-be/pkg/llm/factory"
	"literas-be/pkg/research/actor"
	"literas-be/pkg/research/retrieval"
	"literas-be/pkg/research/session"
	"literas-be/pkg/research/workflow"
)

// ResearchCore is everything a session needs, without any transport.
type ResearchCore struct {
	Actors   *actor.Registry
	Pipeline *retrieval.Pipeline
	Session  session.Config
}

// NewResearchCore builds the actor cast and the PubMed pipeline from config.
func NewResearchCore(cfg *config.Config, log logger.ILogger) (*ResearchCore, error) {
	catalog, err := loadCatalog(cfg.Ai.InstructionsPath)
	if err != nil {
		return nil, err
	}

	provider, err := factory.NewLLMProvider(factory.Config{
		Provider:    cfg.Ai.LLMProvider,
		Model:       cfg.Ai.LLMModel,
		BaseURL:     cfg.Ai.BaseURL,
		APIKey:      cfg.Ai.APIKey,
		Temperature: cfg.Ai.Temperature,
		Timeout:     cfg.Ai.Timeout,
	})
	if err != nil {
		return nil, err
	}

	client := retrieval.NewPubMedClient(retrieval.PubMedConfig{
		BaseURL: cfg.Retrieval.BaseURL,
		APIKey:  cfg.Retrieval.APIKey,
		DB:      cfg.Retrieval.Database,
		Timeout: cfg.Retrieval.Timeout,
	}, log)
	pipeline := retrieval.NewPipeline(client, retrieval.NewRateLimiter(cfg.Retrieval.RequestInterval), log,
		retrieval.WithBatchSize(cfg.Retrieval.BatchSize),
		retrieval.WithCooldown(cfg.Retrieval.ThrottleCooldown),
		retrieval.WithFetchConcurrency(cfg.Retrieval.FetchConcurrency),
	)

	var opts []actor.LLMOption
	if cfg.Ai.HistoryWindow > 0 {
		opts = append(opts, actor.WithHistoryWindow(cfg.Ai.HistoryWindow))
	}
	if cfg.Ai.MaxTokens > 0 {
		opts = append(opts, actor.WithResponseLimit(cfg.Ai.MaxTokens))
	}
	registry := actor.NewRegistry(actor.NewLLMActors(provider, catalog, log, opts...)...)
	registry.Register(actor.NewSearchActor(pipeline, cfg.Retrieval.MaxResults, log))
	if missing := registry.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("actor registry incomplete: %v", missing)
	}

	log.Info("Bootstrap", "Research core ready", map[string]interface{}{
		"llm_provider": cfg.Ai.LLMProvider,
		"llm_model":    cfg.Ai.LLMModel,
		"interval":     cfg.Retrieval.RequestInterval.String(),
	})

	return &ResearchCore{
		Actors:   registry,
		Pipeline: pipeline,
		Session: session.Config{
			MaxTurns:    cfg.Workflow.MaxTurns,
			TurnTimeout: cfg.Workflow.TurnTimeout,
			Gate: workflow.GatePolicy{
				MinPapers: cfg.Workflow.GateMinPapers,
				MinScore:  cfg.Workflow.GateMinScore,
			},
			TaskBrief: catalog.TaskBrief,
		},
	}, nil
}

func loadCatalog(path string) (actor.Catalog, error) {
	if path == "" {
		return actor.DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return actor.Catalog{}, fmt.Errorf("read actor instructions: %w", err)
	}
	return actor.ParseCatalog(data)
}
