package bootstrap

import (
	"context"
	"log"
	"time"

	"literas-be/internal/config"
	"literas-be/internal/controller"
	"literas-be/internal/handler"
	"literas-be/internal/pkg/logger"
	"literas-be/internal/repository/memory"
	"literas-be/internal/repository/unitofwork"
	"literas-be/internal/service"
	"literas-be/internal/websocket"

	pktNats "literas-be/pkg/nats"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	ResearchController controller.IResearchController
	SystemController   controller.ISystemController

	// WebSockets
	ResearchHandler *handler.ResearchHandler
	WebSocketHub    *websocket.Hub

	// Background services, nil when their infrastructure is not configured.
	ConsumerService service.IConsumerService
	StatusRelay     *service.StatusRelay

	ResearchService service.IResearchService
	Logger          logger.ILogger

	closers []func()
}

// NewContainer wires the application. db may be nil, which keeps sessions in
// memory only.
func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	wsLogger := logger.NewIsolatedLogger(cfg.App.WsLogFilePath)

	core, err := NewResearchCore(cfg, sysLogger)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize research core: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	c := &Container{Logger: sysLogger}

	// 2. Persistence via the transcript bus
	var uowFactory unitofwork.RepositoryFactory
	var transcript service.TranscriptPublisher
	if db != nil {
		uowFactory = unitofwork.NewRepositoryFactory(db)
		bus := service.NewTranscriptBus()
		transcript = service.NewTranscriptPublisher(bus, service.TranscriptTopic)
		c.ConsumerService = service.NewTranscriptConsumer(bus, service.TranscriptTopic, uowFactory, sysLogger)
		c.closers = append(c.closers, func() { _ = bus.Close() })
	} else {
		log.Printf("[WARN] DB_CONNECTION_STRING not set, research sessions are kept in memory only")
	}

	// 3. Infrastructure
	// NATS
	var lifecycle service.LifecyclePublisher
	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL, sysLogger)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		} else {
			lifecycle = natsPub
			c.closers = append(c.closers, natsPub.Close)
		}
	}

	// Redis
	var rdb *redis.Client
	if cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb = redis.NewClient(opt)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v", err)
		}
		cancel()
		c.closers = append(c.closers, func() { _ = rdb.Close() })
	}

	// WebSocket Hub
	c.WebSocketHub = websocket.NewHub(rdb, wsLogger)

	// 4. Services
	c.ResearchService = service.NewResearchService(service.ResearchDeps{
		Actors:     core.Actors,
		Config:     core.Session,
		Searcher:   core.Pipeline,
		MaxResults: cfg.Retrieval.MaxResults,
		Sessions:   memory.NewSessionRepository(2 * time.Hour),
		UowFactory: uowFactory,
		Transcript: transcript,
		Lifecycle:  lifecycle,
		Sink:       c.WebSocketHub,
		Logger:     sysLogger,
	})

	if cfg.App.NatsURL != "" {
		natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL, wsLogger)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
		} else {
			c.StatusRelay = service.NewStatusRelay(natsSub, c.WebSocketHub, wsLogger)
			c.closers = append(c.closers, natsSub.Close)
		}
	}

	// 5. Controllers
	c.ResearchController = controller.NewResearchController(c.ResearchService, cfg.Auth.JWTSecret)
	c.SystemController = controller.NewSystemController(sysLogger, cfg.Auth.JWTSecret)
	c.ResearchHandler = handler.NewResearchHandler(c.ResearchService, c.WebSocketHub, cfg.App.HiddenAgents, cfg.Auth.JWTSecret, wsLogger)

	return c
}

// Start runs the background services until ctx ends.
func (c *Container) Start(ctx context.Context) {
	go c.WebSocketHub.Run(ctx)

	if c.ConsumerService != nil {
		if err := c.ConsumerService.Consume(ctx); err != nil {
			c.Logger.Error("Bootstrap", "Transcript consumer failed to start", map[string]interface{}{"error": err})
		}
	}
	if c.StatusRelay != nil {
		if err := c.StatusRelay.Start(ctx); err != nil {
			c.Logger.Warn("Bootstrap", "Status relay disabled", map[string]interface{}{"error": err})
		}
	}
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	_ = c.Logger.Sync()
}
