package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/avalon-labs/booking-ai-platform/cmd/mainconfig"
	"github.com/avalon-labs/booking-ai-platform/internal/api/router"
	"github.com/avalon-labs/booking-ai-platform/internal/availability"
	"github.com/avalon-labs/booking-ai-platform/internal/bookings"
	appconfig "github.com/avalon-labs/booking-ai-platform/internal/config"
	"github.com/avalon-labs/booking-ai-platform/internal/conversation"
	"github.com/avalon-labs/booking-ai-platform/internal/entities"
	"github.com/avalon-labs/booking-ai-platform/internal/http/handlers"
	"github.com/avalon-labs/booking-ai-platform/internal/intent"
	"github.com/avalon-labs/booking-ai-platform/internal/llm"
	"github.com/avalon-labs/booking-ai-platform/internal/notify"
	"github.com/avalon-labs/booking-ai-platform/internal/tools"
	"github.com/avalon-labs/booking-ai-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking-ai-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"llm_provider", cfg.LLMProvider,
		"booking_store", cfg.BookingStore,
	)

	ctx := context.Background()

	repo, pool, err := buildRepository(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize booking store", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
	}

	client, err := buildLLMClient(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize LLM client", "error", err)
		os.Exit(1)
	}

	engine := availability.NewEngine(repo, logger, availabilityOptions(cfg)...)

	registry := tools.NewRegistry(logger,
		tools.NewCheckAvailabilityTool(engine, logger),
		tools.NewSuggestTimesTool(engine, logger),
		tools.NewConfirmBookingTool(engine, logger),
	)

	memory, err := buildMemoryStore(cfg)
	if err != nil {
		logger.Error("failed to initialize conversation store", "error", err)
		os.Exit(1)
	}

	notifier, err := buildNotifier(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize notifications", "error", err)
		os.Exit(1)
	}

	conversationEngine := conversation.NewEngine(
		client,
		intent.NewClassifier(client, logger),
		entities.NewExtractor(client, logger),
		registry,
		memory,
		logger,
		conversation.EngineConfig{
			Model:            modelID(cfg),
			MaxToolRounds:    cfg.MaxToolRounds,
			ClarifyThreshold: cfg.ClarifyThreshold,
			Development:      cfg.IsDevelopment(),
		},
		conversation.WithNotifier(notifier),
	)

	queue, err := buildQueue(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize conversation queue", "error", err)
		os.Exit(1)
	}
	dispatcher := conversation.NewDispatcher(conversationEngine, queue, logger,
		conversation.WithWorkerCount(cfg.WorkerCount),
		conversation.WithReceiveWaitSeconds(cfg.ConversationQueueWait),
	)

	r := router.New(&router.Config{
		Logger:              logger,
		ConversationHandler: conversation.NewHandler(dispatcher, logger),
		AdminBookings:       handlers.NewAdminBookingsHandler(repo, engine, logger),
		MetricsHandler:      promhttp.Handler(),
		AdminAuthSecret:     cfg.AdminJWTSecret,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerSecond:  cfg.RateLimitPerSecond,
		RateLimitBurst:      cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Error("dispatcher forced to shutdown", "error", err)
	}

	logger.Info("server stopped")
}

// buildRepository selects the booking store backend. The returned pool is
// non-nil only for the postgres backend and must be closed by the caller.
func buildRepository(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (bookings.Repository, *pgxpool.Pool, error) {
	switch cfg.BookingStore {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("booking store postgres requires DATABASE_URL")
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		return bookings.NewPostgresRepository(pool), pool, nil
	case "dynamodb":
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("load AWS config: %w", err)
		}
		return bookings.NewDynamoRepository(dynamodb.NewFromConfig(awsCfg), cfg.BookingsTable, logger), nil, nil
	case "memory", "":
		return bookings.NewInMemoryRepository(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown booking store %q", cfg.BookingStore)
	}
}

// buildLLMClient selects the completion provider and bounds every call with
// the configured timeout.
func buildLLMClient(ctx context.Context, cfg *appconfig.Config) (llm.Client, error) {
	var (
		client llm.Client
		err    error
	)
	switch cfg.LLMProvider {
	case "gemini":
		client, err = llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
	case "bedrock", "":
		awsCfg, awsErr := mainconfig.LoadAWSConfig(ctx, cfg)
		if awsErr != nil {
			return nil, fmt.Errorf("load AWS config: %w", awsErr)
		}
		client = llm.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg))
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
	return llm.NewTimeoutClient(client, cfg.LLMTimeout), nil
}

func modelID(cfg *appconfig.Config) string {
	if cfg.LLMProvider == "gemini" {
		return cfg.GeminiModelID
	}
	return cfg.BedrockModelID
}

func buildMemoryStore(cfg *appconfig.Config) (conversation.MemoryStore, error) {
	switch cfg.ConversationStore {
	case "redis":
		opts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		return conversation.NewRedisStore(redis.NewClient(opts), cfg.ConversationTTL), nil
	case "memory", "":
		return conversation.NewInMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown conversation store %q", cfg.ConversationStore)
	}
}

// buildNotifier selects the operator email transport. The stub provider logs
// instead of sending, which keeps development environments quiet.
func buildNotifier(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*notify.Service, error) {
	var sender notify.EmailSender
	switch cfg.EmailProvider {
	case "ses":
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		sender = notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.NotifyFromEmail,
			FromName:  cfg.NotifyFromName,
		}, logger)
	case "sendgrid":
		sg := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.NotifyFromEmail,
			FromName:  cfg.NotifyFromName,
		}, logger)
		if sg == nil {
			return nil, fmt.Errorf("sendgrid provider requires SENDGRID_API_KEY")
		}
		sender = sg
	case "stub", "":
		sender = notify.NewStubEmailSender(logger)
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.EmailProvider)
	}
	return notify.NewService(sender, cfg.NotifyOperatorEmail, logger), nil
}

func buildQueue(ctx context.Context, cfg *appconfig.Config) (conversation.Queue, error) {
	if cfg.UseMemoryQueue {
		return conversation.NewMemoryQueue(128), nil
	}
	if cfg.ConversationQueueURL == "" {
		return nil, fmt.Errorf("SQS queue requires CONVERSATION_QUEUE_URL")
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return conversation.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.ConversationQueueURL), nil
}

func availabilityOptions(cfg *appconfig.Config) []availability.EngineOption {
	opts := []availability.EngineOption{
		availability.WithHours(availability.Hours{
			Open:         cfg.BusinessOpen,
			Close:        cfg.BusinessClose,
			SlotDuration: cfg.SlotDuration,
		}),
	}
	if cfg.AvailabilityNoise {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		opts = append(opts, availability.WithNoise(availability.RandomNoise(rng, 0.2)))
	}
	return opts
}
