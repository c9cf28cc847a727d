package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Ai        AIConfig
	Retrieval RetrievalConfig
	Workflow  WorkflowConfig
	Auth      AuthConfig
}

type AppConfig struct {
	Port               string `validate:"required,numeric"`
	Environment        string `validate:"oneof=development production test"`
	LogFilePath        string `validate:"required"`
	WsLogFilePath      string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	HiddenAgents       []string
}

type DatabaseConfig struct {
	Connection string // empty disables persistence
}

type AIConfig struct {
	LLMProvider string  `validate:"oneof=ollama openai"`
	LLMModel    string  `validate:"required"`
	Temperature float64 `validate:"gte=0,lte=2"`
	MaxTokens   int     `validate:"gte=0"`
	// HistoryWindow caps how many recent turns each actor sees; 0 sends everything.
	HistoryWindow int `validate:"gte=0"`
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	// InstructionsPath points at a YAML actor catalog; empty uses the embedded one.
	InstructionsPath string
}

type RetrievalConfig struct {
	BaseURL          string        `validate:"required,url"`
	Database         string        `validate:"required"`
	RequestInterval  time.Duration `validate:"gt=0"`
	BatchSize        int           `validate:"gte=1,lte=200"`
	ThrottleCooldown time.Duration `validate:"gte=0"`
	MaxResults       int           `validate:"gte=1"`
	FetchConcurrency int           `validate:"gte=1"`
	Timeout          time.Duration `validate:"gt=0"`
	APIKey           string
}

type WorkflowConfig struct {
	MaxTurns      int           `validate:"gte=1"`
	TurnTimeout   time.Duration `validate:"gte=0"`
	GateMinPapers int           `validate:"gte=1"`
	GateMinScore  float64       `validate:"gte=0,lte=25"`
}

type AuthConfig struct {
	JWTSecret string // empty disables authentication
}

// DefaultHiddenAgents are the internal actors a chat client does not show.
var DefaultHiddenAgents = []string{
	"QueryPlanner", "SearchAgent", "Validator", "Critic", "ReferenceConsistencyCritic", "FormatterAgent",
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log"),
			WsLogFilePath:      getEnv("WS_LOG_FILE_PATH", "websocket.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
			HiddenAgents:       getEnvAsList("WS_HIDDEN_AGENTS", DefaultHiddenAgents),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Ai: AIConfig{
			LLMProvider:      getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:         getEnv("LLM_MODEL", "qwen2.5:7b"),
			BaseURL:          getEnv("AI_BASE_URL", ""),
			APIKey:           getEnv("AI_API_KEY", ""),
			Temperature:      getEnvAsFloat("AI_TEMPERATURE", 0.3),
			Timeout:          getEnvAsDuration("AI_TIMEOUT", 120*time.Second),
			MaxTokens:        getEnvAsInt("AI_MAX_TOKENS", 0),
			HistoryWindow:    getEnvAsInt("AI_HISTORY_WINDOW", 0),
			InstructionsPath: getEnv("AI_INSTRUCTIONS_PATH", ""),
		},
		Retrieval: RetrievalConfig{
			BaseURL:          getEnv("PUBMED_BASE_URL", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/"),
			APIKey:           getEnv("PUBMED_API_KEY", ""),
			Database:         getEnv("PUBMED_DB", "pubmed"),
			RequestInterval:  getEnvAsDuration("PUBMED_REQUEST_INTERVAL", 340*time.Millisecond),
			BatchSize:        getEnvAsInt("PUBMED_BATCH_SIZE", 50),
			ThrottleCooldown: getEnvAsDuration("PUBMED_THROTTLE_COOLDOWN", 2*time.Second),
			MaxResults:       getEnvAsInt("PUBMED_MAX_RESULTS", 35),
			FetchConcurrency: getEnvAsInt("PUBMED_FETCH_CONCURRENCY", 1),
			Timeout:          getEnvAsDuration("PUBMED_TIMEOUT", 30*time.Second),
		},
		Workflow: WorkflowConfig{
			MaxTurns:      getEnvAsInt("WORKFLOW_MAX_TURNS", 40),
			TurnTimeout:   getEnvAsDuration("WORKFLOW_TURN_TIMEOUT", 5*time.Minute),
			GateMinPapers: getEnvAsInt("GATE_MIN_PAPERS", 3),
			GateMinScore:  getEnvAsFloat("GATE_MIN_SCORE", 20),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET_KEY", ""),
		},
	}
}

var validate = validator.New()

// Validate checks ranges and required values.
func (c *Config) Validate() error {
	for name, section := range map[string]interface{}{
		"app":       c.App,
		"ai":        c.Ai,
		"retrieval": c.Retrieval,
		"workflow":  c.Workflow,
	} {
		if err := validate.Struct(section); err != nil {
			return fmt.Errorf("config %s: %w", name, err)
		}
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("340ms") or plain milliseconds.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := strings.TrimSpace(getEnv(key, ""))
	if strValue == "" {
		return fallback
	}
	if d, err := time.ParseDuration(strValue); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(strValue); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

// getEnvAsList splits a comma separated value. A set but empty variable
// yields an empty list.
func getEnvAsList(key string, fallback []string) []string {
	strValue, exists := os.LookupEnv(key)
	if !exists {
		return append([]string(nil), fallback...)
	}
	var out []string
	for _, part := range strings.Split(strValue, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
