package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fitforge/fitforge/internal/config"
	"github.com/fitforge/fitforge/internal/database"
	"github.com/fitforge/fitforge/internal/logger"
	"github.com/fitforge/fitforge/internal/orchestrator"
	"github.com/fitforge/fitforge/internal/queue"
	"github.com/fitforge/fitforge/internal/semcache"
	"github.com/fitforge/fitforge/internal/services/ai"
	"github.com/fitforge/fitforge/internal/workers"
)

func main() {
	// Parse command-line flags
	debugFlag := flag.Bool("debug", false, "Enable debug mode for LLM API logging")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Override debug mode if flag is set
	debugMode := cfg.WorkerDebugMode || *debugFlag

	// Initialize logger
	zapLogger, err := logger.NewProductionLogger(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		if syncErr := zapLogger.Sync(); syncErr != nil {
			// Ignore sync errors in production
			_ = syncErr
		}
	}()

	zapLogger.Info("Starting worker",
		zap.Bool("debug_mode", debugMode),
		zap.Strings("ai_models", cfg.AIModels),
	)

	// Initialize database connection
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("Failed to close database connection", zap.Error(err))
		}
	}()

	zapLogger.Info("Connected to database")

	// Initialize repositories
	profileRepo := database.NewProfileRepository(db)
	weekRepo := database.NewWeekPlanRepository(db)
	statusRepo := database.NewWeekStatusRepository(db)
	logRepo := database.NewGenerationLogRepository(db)

	// Initialize Redis for the similarity cache
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		zapLogger.Fatal("Invalid Redis URL", zap.Error(err))
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() {
		if err := redisClient.Close(); err != nil {
			zapLogger.Warn("Failed to close Redis connection", zap.Error(err))
		}
	}()

	zapLogger.Info("Connected to Redis")

	// Initialize RabbitMQ queue
	jobQueue, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL)
	if err != nil {
		zapLogger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("Failed to close RabbitMQ connection", zap.Error(err))
		}
	}()

	zapLogger.Info("Connected to RabbitMQ",
		zap.Int("prefetch", cfg.RabbitMQPrefetch),
	)

	// Assemble the generation stack
	cache := semcache.NewStore(redisClient, zapLogger, cfg.Tuning.CacheTTL)
	provider := ai.NewOpenAIProvider(cfg.OpenAIKey, cfg.AIBaseURL, 0, zapLogger, debugMode)
	pipeline := ai.NewPipeline(provider, ai.DefaultPipelineConfig(cfg.AIModels), zapLogger)
	orch := orchestrator.New(cache, pipeline, weekRepo, statusRepo, logRepo, orchestrator.Config{
		Thresholds:     cfg.Tuning.Thresholds,
		DailyBudgetUSD: cfg.Tuning.DailyBudgetUSD,
		AvgAICostUSD:   cfg.Tuning.AvgAICostUSD,
	}, zapLogger)

	scheduler := workers.NewScheduler(jobQueue, cfg.Tuning.InterWeekDelay, zapLogger)
	worker := workers.NewPlanWorker(orch, profileRepo, statusRepo, weekRepo, jobQueue, scheduler, zapLogger)
	reconciler := workers.NewReconciler(statusRepo, scheduler, cfg.Tuning.ReconcileInterval, cfg.Tuning.StaleClaimAge, zapLogger)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start consuming messages
	msgChan, errChan, err := jobQueue.Consume(ctx, cfg.RabbitMQPrefetch)
	if err != nil {
		zapLogger.Fatal("Failed to start consuming messages", zap.Error(err))
	}

	zapLogger.Info("Worker started, consuming messages from queue")

	// Reclaim weeks stuck in generating after a crash
	go func() {
		if err := reconciler.Start(ctx); err != nil && err != context.Canceled {
			zapLogger.Error("Reconciler stopped with error", zap.Error(err))
		}
	}()

	// Expire old dead-letter messages
	dlqGC := queue.NewGarbageCollector(jobQueue, cfg.Tuning.DLQGCInterval, cfg.Tuning.DLQRetention)
	go func() {
		if err := dlqGC.Start(ctx); err != nil && err != context.Canceled {
			zapLogger.Error("DLQ garbage collector stopped with error", zap.Error(err))
		}
	}()

	// Process messages
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgChan:
				if !ok {
					zapLogger.Info("Message channel closed")
					return
				}

				// Process job
				if err := worker.ProcessJob(ctx, msg); err != nil {
					zapLogger.Error("Failed to process job",
						zap.Error(err),
						zap.String("job_id", msg.GetJob().ID.String()),
						zap.String("job_type", string(msg.GetJob().Type)),
					)
				}
			}
		}
	}()

	// Handle errors
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-errChan:
				if !ok {
					return
				}
				zapLogger.Error("Queue error", zap.Error(err))
			}
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	zapLogger.Info("Shutdown signal received, stopping worker...")

	// Cancel context to stop processing
	cancel()

	zapLogger.Info("Worker stopped")
}
