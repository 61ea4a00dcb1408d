package main

import (
	"context"
	"testing"
	"time"

	appconfig "github.com/avalon-labs/booking-ai-platform/internal/config"
	"github.com/avalon-labs/booking-ai-platform/internal/conversation"
)

func TestBuildRepository_Memory(t *testing.T) {
	cfg := &appconfig.Config{BookingStore: "memory"}

	repo, pool, err := buildRepository(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("buildRepository: %v", err)
	}
	if repo == nil {
		t.Fatal("expected repository, got nil")
	}
	if pool != nil {
		t.Fatal("memory store should not open a postgres pool")
	}
}

func TestBuildRepository_PostgresRequiresURL(t *testing.T) {
	cfg := &appconfig.Config{BookingStore: "postgres"}

	if _, _, err := buildRepository(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for postgres store without DATABASE_URL")
	}
}

func TestBuildRepository_UnknownStore(t *testing.T) {
	cfg := &appconfig.Config{BookingStore: "cassandra"}

	if _, _, err := buildRepository(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for unknown booking store")
	}
}

func TestBuildLLMClient_UnknownProvider(t *testing.T) {
	cfg := &appconfig.Config{LLMProvider: "openai"}

	if _, err := buildLLMClient(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unknown LLM provider")
	}
}

func TestBuildLLMClient_GeminiRequiresKey(t *testing.T) {
	cfg := &appconfig.Config{LLMProvider: "gemini"}

	if _, err := buildLLMClient(context.Background(), cfg); err == nil {
		t.Fatal("expected error for gemini provider without API key")
	}
}

func TestBuildMemoryStore(t *testing.T) {
	store, err := buildMemoryStore(&appconfig.Config{ConversationStore: "memory"})
	if err != nil {
		t.Fatalf("buildMemoryStore: %v", err)
	}
	if _, ok := store.(*conversation.InMemoryStore); !ok {
		t.Fatalf("expected *conversation.InMemoryStore, got %T", store)
	}

	if _, err := buildMemoryStore(&appconfig.Config{ConversationStore: "dynamo"}); err == nil {
		t.Fatal("expected error for unknown conversation store")
	}
}

func TestBuildMemoryStore_RedisTLS(t *testing.T) {
	// Constructing the client does not dial, so no server is needed.
	store, err := buildMemoryStore(&appconfig.Config{
		ConversationStore: "redis",
		RedisAddr:         "localhost:6379",
		RedisTLS:          true,
	})
	if err != nil {
		t.Fatalf("buildMemoryStore: %v", err)
	}
	if _, ok := store.(*conversation.RedisStore); !ok {
		t.Fatalf("expected *conversation.RedisStore, got %T", store)
	}
}

func TestBuildQueue_Memory(t *testing.T) {
	queue, err := buildQueue(context.Background(), &appconfig.Config{UseMemoryQueue: true})
	if err != nil {
		t.Fatalf("buildQueue: %v", err)
	}
	if _, ok := queue.(*conversation.MemoryQueue); !ok {
		t.Fatalf("expected *conversation.MemoryQueue, got %T", queue)
	}
}

func TestBuildQueue_SQSRequiresURL(t *testing.T) {
	cfg := &appconfig.Config{UseMemoryQueue: false}

	if _, err := buildQueue(context.Background(), cfg); err == nil {
		t.Fatal("expected error for SQS queue without queue URL")
	}
}

func TestBuildNotifier(t *testing.T) {
	if svc, err := buildNotifier(context.Background(), &appconfig.Config{EmailProvider: "stub"}, nil); err != nil || svc == nil {
		t.Fatalf("buildNotifier(stub) = %v, %v", svc, err)
	}

	if _, err := buildNotifier(context.Background(), &appconfig.Config{EmailProvider: "sendgrid"}, nil); err == nil {
		t.Fatal("expected error for sendgrid provider without API key")
	}

	if _, err := buildNotifier(context.Background(), &appconfig.Config{EmailProvider: "smtp"}, nil); err == nil {
		t.Fatal("expected error for unknown email provider")
	}
}

func TestModelID(t *testing.T) {
	cfg := &appconfig.Config{
		LLMProvider:    "gemini",
		BedrockModelID: "anthropic.claude-3-haiku-20240307-v1:0",
		GeminiModelID:  "gemini-2.5-flash",
	}
	if got := modelID(cfg); got != "gemini-2.5-flash" {
		t.Fatalf("modelID(gemini) = %q", got)
	}

	cfg.LLMProvider = "bedrock"
	if got := modelID(cfg); got != "anthropic.claude-3-haiku-20240307-v1:0" {
		t.Fatalf("modelID(bedrock) = %q", got)
	}
}

func TestAvailabilityOptions(t *testing.T) {
	cfg := &appconfig.Config{
		BusinessOpen:  "08:00",
		BusinessClose: "17:00",
		SlotDuration:  30 * time.Minute,
	}
	if got := len(availabilityOptions(cfg)); got != 1 {
		t.Fatalf("expected hours option only, got %d options", got)
	}

	cfg.AvailabilityNoise = true
	if got := len(availabilityOptions(cfg)); got != 2 {
		t.Fatalf("expected hours and noise options, got %d options", got)
	}
}
