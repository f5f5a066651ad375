package presencestore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const onlineKey = "presence:online"

// Entry describes one user currently online somewhere on the platform,
// independent of which session rooms they joined.
type Entry struct {
	UserID      int64     `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	Since       time.Time `json:"since"`
}

// Store tracks global online/offline presence. Room membership stays
// in-process; only this coarse view is shared.
type Store interface {
	MarkOnline(ctx context.Context, entry Entry) error
	MarkOffline(ctx context.Context, userID int64) error
	Online(ctx context.Context) ([]Entry, error)
}

// RedisStore keeps presence in a Redis hash so dashboards and sibling
// services can read it without talking to this process.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) MarkOnline(ctx context.Context, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, onlineKey, strconv.FormatInt(entry.UserID, 10), payload).Err(); err != nil {
		return fmt.Errorf("mark online: %w", err)
	}
	return nil
}

func (s *RedisStore) MarkOffline(ctx context.Context, userID int64) error {
	if err := s.client.HDel(ctx, onlineKey, strconv.FormatInt(userID, 10)).Err(); err != nil {
		return fmt.Errorf("mark offline: %w", err)
	}
	return nil
}

func (s *RedisStore) Online(ctx context.Context) ([]Entry, error) {
	values, err := s.client.HGetAll(ctx, onlineKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list online: %w", err)
	}
	entries := make([]Entry, 0, len(values))
	for _, raw := range values {
		var entry Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// MemoryStore is the fallback when Redis is not configured, e.g. local
// development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[int64]Entry
}

// NewMemoryStore builds an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[int64]Entry)}
}

func (s *MemoryStore) MarkOnline(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.UserID] = entry
	return nil
}

func (s *MemoryStore) MarkOffline(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, userID)
	return nil
}

func (s *MemoryStore) Online(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry)
	}
	return entries, nil
}
