package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/autoaid/backend/internal/agent"
	"github.com/autoaid/backend/internal/api/handlers"
	rediscache "github.com/autoaid/backend/internal/cache/redis"
	"github.com/autoaid/backend/internal/chat"
	"github.com/autoaid/backend/internal/embedding"
	"github.com/autoaid/backend/internal/ingestion"
	"github.com/autoaid/backend/internal/llm"
	"github.com/autoaid/backend/internal/metrics"
	"github.com/autoaid/backend/internal/middleware/ratelimit"
	"github.com/autoaid/backend/internal/middleware/security"
	"github.com/autoaid/backend/internal/retrieval"
	"github.com/autoaid/backend/internal/storage/sqlite"
	"github.com/autoaid/backend/internal/vector"
	"github.com/autoaid/backend/internal/vector/milvus"
	"github.com/autoaid/backend/pkg/config"
	appLogger "github.com/autoaid/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting AutoAid Pro API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	// Vector search and the LLM are optional: without them the service runs
	// in keyword-only retrieval with rule-based triage.
	var index vector.Index
	milvusClient, err := milvus.NewClient(
		cfg.Milvus.Endpoint,
		cfg.Milvus.CollectionName,
		cfg.Milvus.VectorDim,
	)
	if err != nil {
		appLogger.Warn("Milvus unavailable, running keyword-only retrieval", zap.Error(err))
	} else {
		defer milvusClient.Close()
		if err := milvusClient.EnsureCollection(context.Background()); err != nil {
			appLogger.Warn("Failed to prepare Milvus collection, running keyword-only retrieval", zap.Error(err))
		} else {
			index = milvusClient
		}
	}

	var embedder embedding.Embedder
	var llmService *llm.Service
	if cfg.OpenAI.APIKey != "" {
		embedder = embedding.NewOpenAIEmbedder(cfg.OpenAI.APIKey, cfg.OpenAI.EmbeddingModel)
		llmService = llm.NewService(openai.NewClient(cfg.OpenAI.APIKey), cfg.OpenAI.Model)
	} else {
		appLogger.Warn("OpenAI API key missing, using keyword retrieval and rule-based triage")
		llmService = llm.NewService(nil, cfg.OpenAI.Model)
	}

	var cache retrieval.EmbeddingCache
	if cfg.Redis.Enabled {
		redisClient, err := rediscache.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, embedding cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			if err := redisClient.SyncEmbeddingModel(context.Background(), cfg.OpenAI.EmbeddingModel); err != nil {
				appLogger.Warn("Failed to sync embedding cache with model", zap.Error(err))
			}
			cache = redisClient
		}
	}

	processor := ingestion.NewProcessor(sqliteClient, embedder, index, cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	engine := retrieval.NewEngine(sqliteClient, embedder, index, cache, cfg.RAG.DefaultTopK)
	caseAgent := agent.New(sqliteClient)
	chatService := chat.NewService(sqliteClient, engine, llmService, caseAgent)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.Security.RateLimitPerMinute,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()

	corsOrigins := "*"
	if len(cfg.Security.AllowedOrigins) > 0 {
		corsOrigins = strings.Join(cfg.Security.AllowedOrigins, ", ")
	}

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Security.AllowedOrigins,
		IsDevelopment:  cfg.Security.Development,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: corsOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(limiter.Middleware())

	documentHandler := handlers.NewDocumentHandler(processor, sqliteClient)
	retrieveHandler := handlers.NewRetrieveHandler(engine, sqliteClient)
	vehicleHandler := handlers.NewVehicleHandler(sqliteClient)
	caseHandler := handlers.NewCaseHandler(sqliteClient, caseAgent)
	chatHandler := handlers.NewChatHandler(chatService)
	wsHandler := handlers.NewWebSocketHandler(chatService)

	api := app.Group("/api/v1")

	api.Post("/rag/documents", documentHandler.UploadDocument)
	api.Get("/rag/documents/:document_id", documentHandler.GetDocument)
	api.Post("/rag/retrieve", retrieveHandler.Retrieve)

	api.Post("/vehicles", vehicleHandler.CreateVehicle)
	api.Get("/vehicles", vehicleHandler.ListVehicles)
	api.Get("/vehicles/:vehicle_id", vehicleHandler.GetVehicle)

	api.Post("/cases", caseHandler.CreateCase)
	api.Get("/cases/:case_id", caseHandler.GetCase)
	api.Post("/cases/:case_id/symptoms", caseHandler.AddSymptom)
	api.Post("/cases/:case_id/agent/run", caseHandler.RunAgent)
	api.Get("/cases/:case_id/actions", caseHandler.ListActions)
	api.Get("/cases/:case_id/notes", caseHandler.ListNotes)

	api.Post("/chat", chatHandler.Chat)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat", websocket.New(wsHandler.HandleConnection))

	app.Get("/metrics", metrics.MetricsHandler())

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "autoaid-pro",
			"time":    time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":        "ready",
			"vector_search": index != nil,
			"llm":           cfg.OpenAI.APIKey != "",
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
