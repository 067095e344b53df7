package codes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/redis/go-redis/v9"
)

// Record is the state kept per email address.
type Record struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
	Verified  bool      `json:"verified"`
}

// KV is the storage boundary for verification records. The ttl passed to Put
// bounds how long the backend keeps the entry; record expiry itself is
// decided by Store from ExpiresAt.
type KV interface {
	Get(ctx context.Context, key string) (Record, bool, error)
	Put(ctx context.Context, key string, record Record, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// MemoryKV keeps records in process memory. Entries past their backend ttl
// are reaped by the cache janitor once Start has been called.
type MemoryKV struct {
	cache *ttlcache.Cache[string, Record]
}

func NewMemoryKV() *MemoryKV {
	cache := ttlcache.New[string, Record](
		ttlcache.WithDisableTouchOnHit[string, Record](),
	)
	return &MemoryKV{cache: cache}
}

// Start runs the expiry janitor until Stop is called.
func (m *MemoryKV) Start() {
	go m.cache.Start()
}

func (m *MemoryKV) Stop() {
	m.cache.Stop()
}

func (m *MemoryKV) Get(_ context.Context, key string) (Record, bool, error) {
	item := m.cache.Get(key)
	if item == nil {
		return Record{}, false, nil
	}
	return item.Value(), true, nil
}

func (m *MemoryKV) Put(_ context.Context, key string, record Record, ttl time.Duration) error {
	m.cache.Set(key, record, ttl)
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.cache.Delete(key)
	return nil
}

func (m *MemoryKV) Len() int {
	return m.cache.Len()
}

// RedisKV shares records between processes.
type RedisKV struct {
	client *redis.Client
}

func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

func (r *RedisKV) Get(ctx context.Context, key string) (Record, bool, error) {
	value, err := r.client.Get(ctx, redisKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	var record Record
	if err := json.Unmarshal([]byte(value), &record); err != nil {
		return Record{}, false, err
	}
	return record, true, nil
}

func (r *RedisKV) Put(ctx context.Context, key string, record Record, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisKey(key), data, ttl).Err()
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, redisKey(key)).Err()
}

func redisKey(email string) string {
	return fmt.Sprintf("verification_code:%s", email)
}
