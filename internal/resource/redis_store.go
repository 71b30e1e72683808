package resource

import (
	"context"
	stdjson "encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sagebionetworks/bridgesdk/internal/model"
	"github.com/sagebionetworks/bridgesdk/internal/storage"
)

const redisKeyPrefix = "bridgesdk:resource:"

type redisRecord struct {
	JSON      stdjson.RawMessage `json:"json"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// RedisStore keeps resource rows in Redis so several processes can share one
// cache. It satisfies storage.ResourceStore.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// OpenRedisStore connects using a redis:// URL and pings the server.
func OpenRedisStore(ctx context.Context, rawURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("resource: redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("resource: redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func redisKey(identifier string, typ model.ResourceType) string {
	return redisKeyPrefix + string(typ) + ":" + identifier
}

func (s *RedisStore) GetResource(ctx context.Context, identifier string, typ model.ResourceType) (model.Resource, error) {
	raw, err := s.rdb.Get(ctx, redisKey(identifier, typ)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Resource{}, storage.ErrNotFound
		}
		return model.Resource{}, err
	}
	var rec redisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.Resource{}, fmt.Errorf("resource: corrupt redis entry %s: %w", redisKey(identifier, typ), err)
	}
	return model.Resource{Identifier: identifier, Type: typ, JSON: rec.JSON, UpdatedAt: rec.UpdatedAt}, nil
}

func (s *RedisStore) PutResource(ctx context.Context, in model.Resource) error {
	if err := in.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(redisRecord{JSON: in.JSON, UpdatedAt: in.UpdatedAt.UTC()})
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, redisKey(in.Identifier, in.Type), raw, 0).Err()
}

func (s *RedisStore) DeleteResource(ctx context.Context, identifier string, typ model.ResourceType) error {
	n, err := s.rdb.Del(ctx, redisKey(identifier, typ)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
