package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fabfab/estate-agent/llm"
	"github.com/fabfab/estate-agent/resilience"
)

const sessionKeyPrefix = "estate-agent:session:"

// SessionStore keeps bounded conversation history per session id.
type SessionStore interface {
	Load(ctx context.Context, sessionID string) ([]llm.Message, error)
	Append(ctx context.Context, sessionID string, messages ...llm.Message) error
	Reset(ctx context.Context, sessionID string) error
}

type MemorySessions struct {
	mu       sync.Mutex
	capacity int
	sessions map[string]*History
}

func NewMemorySessions(capacity int) *MemorySessions {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &MemorySessions{capacity: capacity, sessions: make(map[string]*History)}
}

func (s *MemorySessions) Load(_ context.Context, sessionID string) ([]llm.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return history.Messages(), nil
}

func (s *MemorySessions) Append(_ context.Context, sessionID string, messages ...llm.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	history, ok := s.sessions[sessionID]
	if !ok {
		history = NewHistory(s.capacity)
		s.sessions[sessionID] = history
	}
	history.Add(messages...)
	return nil
}

func (s *MemorySessions) Reset(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// RedisSessions stores each session as a capped Redis list of JSON messages.
type RedisSessions struct {
	client   *redis.Client
	capacity int
	ttl      time.Duration
}

// NewRedisSessions keeps at most capacity messages per session. A ttl of zero
// keeps sessions until they are reset.
func NewRedisSessions(client *redis.Client, capacity int, ttl time.Duration) *RedisSessions {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &RedisSessions{client: client, capacity: capacity, ttl: ttl}
}

func (s *RedisSessions) Load(ctx context.Context, sessionID string) ([]llm.Message, error) {
	if s.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	raw, err := s.client.LRange(ctx, sessionKeyPrefix+sessionID, 0, -1).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	messages := make([]llm.Message, 0, len(raw))
	for _, item := range raw {
		var msg llm.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *RedisSessions) Append(ctx context.Context, sessionID string, messages ...llm.Message) error {
	if s.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if len(messages) == 0 {
		return nil
	}

	values := make([]any, 0, len(messages))
	for _, msg := range messages {
		encoded, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("encode session message: %w", err)
		}
		values = append(values, encoded)
	}

	key := sessionKeyPrefix + sessionID
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	pipe.LTrim(ctx, key, int64(-s.capacity), -1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append session %s: %w", sessionID, err)
	}
	return nil
}

func (s *RedisSessions) Reset(ctx context.Context, sessionID string) error {
	if s.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := s.client.Del(ctx, sessionKeyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("reset session %s: %w", sessionID, err)
	}
	return nil
}

var (
	_ SessionStore = (*MemorySessions)(nil)
	_ SessionStore = (*RedisSessions)(nil)
)

// GuardedSessions bounds every session store call with a resilience policy.
type GuardedSessions struct {
	store  SessionStore
	policy *resilience.Policy
}

var _ SessionStore = (*GuardedSessions)(nil)

func NewGuardedSessions(store SessionStore, policy *resilience.Policy) *GuardedSessions {
	return &GuardedSessions{store: store, policy: policy}
}

func (g *GuardedSessions) Load(ctx context.Context, sessionID string) ([]llm.Message, error) {
	return resilience.Do(ctx, g.policy, "load session", sessionID, func(ctx context.Context) ([]llm.Message, error) {
		return g.store.Load(ctx, sessionID)
	})
}

func (g *GuardedSessions) Append(ctx context.Context, sessionID string, messages ...llm.Message) error {
	_, err := resilience.Do(ctx, g.policy, "append session", sessionID, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.store.Append(ctx, sessionID, messages...)
	})
	return err
}

func (g *GuardedSessions) Reset(ctx context.Context, sessionID string) error {
	_, err := resilience.Do(ctx, g.policy, "reset session", sessionID, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.store.Reset(ctx, sessionID)
	})
	return err
}
