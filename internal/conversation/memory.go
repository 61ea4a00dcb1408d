package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/avalon-labs/booking-ai-platform/internal/llm"
)

// DefaultConversationTTL bounds how long an idle conversation is retained.
const DefaultConversationTTL = 24 * time.Hour

// MemoryStore persists per-conversation turn history. Loading an unknown key
// returns an empty history, which is indistinguishable from first use.
type MemoryStore interface {
	Load(ctx context.Context, key string) ([]llm.ChatMessage, error)
	Save(ctx context.Context, key string, history []llm.ChatMessage) error
	Clear(ctx context.Context, key string) error
}

// InMemoryStore keeps history in process memory. Entries live until cleared;
// production deployments should prefer the Redis store so idle conversations
// expire.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]llm.ChatMessage
}

// NewInMemoryStore builds an empty in-process store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string][]llm.ChatMessage)}
}

func (s *InMemoryStore) Load(_ context.Context, key string) ([]llm.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history, ok := s.sessions[key]
	if !ok {
		return nil, nil
	}
	out := make([]llm.ChatMessage, len(history))
	copy(out, history)
	return out, nil
}

func (s *InMemoryStore) Save(_ context.Context, key string, history []llm.ChatMessage) error {
	stored := make([]llm.ChatMessage, len(history))
	copy(stored, history)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[key] = stored
	return nil
}

func (s *InMemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
	return nil
}

// RedisStore persists history in Redis with a sliding TTL, so abandoned
// conversations expire instead of accumulating.
type RedisStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewRedisStore wraps the given client. A non-positive ttl falls back to
// DefaultConversationTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultConversationTTL
	}
	return &RedisStore{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("booking.internal.conversation.memory"),
	}
}

func (s *RedisStore) Load(ctx context.Context, key string) ([]llm.ChatMessage, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_history")
	defer span.End()

	data, err := s.redis.Get(ctx, memoryKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load history: %w", err)
	}

	var history []llm.ChatMessage
	if err := json.Unmarshal(data, &history); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to decode history: %w", err)
	}
	return history, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, history []llm.ChatMessage) error {
	ctx, span := s.tracer.Start(ctx, "conversation.save_history")
	defer span.End()

	data, err := json.Marshal(history)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to marshal history: %w", err)
	}
	if err := s.redis.Set(ctx, memoryKey(key), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist history: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, key string) error {
	ctx, span := s.tracer.Start(ctx, "conversation.clear_history")
	defer span.End()

	if err := s.redis.Del(ctx, memoryKey(key)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to clear history: %w", err)
	}
	return nil
}

func memoryKey(key string) string {
	return "conversation:" + key
}
