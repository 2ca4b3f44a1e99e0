// Package session caches analysis reports between the analyze and import
// steps of an upload.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/KaramelBytes/sheetloom/internal/analysis"
)

// ErrNotFound is returned when no report is cached for an upload.
var ErrNotFound = errors.New("analysis session not found")

// DefaultTTL bounds how long a cached report lives.
const DefaultTTL = time.Hour

// Store caches one report per (owner, file name).
type Store interface {
	Put(ctx context.Context, owner string, rep *analysis.FileReport) error
	Get(ctx context.Context, owner, fileName string) (*analysis.FileReport, error)
	Delete(ctx context.Context, owner, fileName string) error
}

func key(owner, fileName string) string {
	return fmt.Sprintf("sheetloom:analysis:%s:%s", owner, fileName)
}

// RedisStore keeps reports in Redis with a TTL.
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisStore returns a store on client. A non-positive ttl uses DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{redis: client, ttl: ttl}
}

func (s *RedisStore) Put(ctx context.Context, owner string, rep *analysis.FileReport) error {
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := s.redis.Set(ctx, key(owner, rep.FileName), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store report: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, owner, fileName string) (*analysis.FileReport, error) {
	data, err := s.redis.Get(ctx, key(owner, fileName)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load report: %w", err)
	}
	var rep analysis.FileReport
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &rep, nil
}

func (s *RedisStore) Delete(ctx context.Context, owner, fileName string) error {
	return s.redis.Del(ctx, key(owner, fileName)).Err()
}

// MemoryStore is an in-process Store for the CLI and tests.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
	ttl   time.Duration
	now   func() time.Time
}

type memoryItem struct {
	data    []byte
	expires time.Time
}

// NewMemoryStore returns an empty store. A non-positive ttl uses DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{items: map[string]memoryItem{}, ttl: ttl, now: time.Now}
}

// Reports are stored encoded so callers never share mutable state.
func (s *MemoryStore) Put(_ context.Context, owner string, rep *analysis.FileReport) error {
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key(owner, rep.FileName)] = memoryItem{data: data, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, owner, fileName string) (*analysis.FileReport, error) {
	s.mu.Lock()
	it, ok := s.items[key(owner, fileName)]
	if ok && !s.now().Before(it.expires) {
		delete(s.items, key(owner, fileName))
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	var rep analysis.FileReport
	if err := json.Unmarshal(it.data, &rep); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &rep, nil
}

func (s *MemoryStore) Delete(_ context.Context, owner, fileName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key(owner, fileName))
	return nil
}
