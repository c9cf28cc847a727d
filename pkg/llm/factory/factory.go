package factory

import (
	"fmt"
	"time"

	"literas-be/pkg/llm"
	"literas-be/pkg/llm/ollama"
	"literas-be/pkg/llm/openai"
)

type Config struct {
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float64
	Timeout     time.Duration
}

func NewLLMProvider(cfg Config) (llm.LLMProvider, error) {
	switch cfg.Provider {
	case "ollama":
		return ollama.NewOllamaProvider(cfg.BaseURL, cfg.Model, cfg.Temperature, cfg.Timeout), nil
	case "openai":
		if cfg.APIKey == "" && cfg.BaseURL == "" {
			return nil, fmt.Errorf("openai provider needs AI_API_KEY or a compatible AI_BASE_URL")
		}
		return openai.NewProvider(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Temperature, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
