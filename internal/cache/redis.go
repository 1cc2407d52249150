package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sensor-anomaly/internal/models"

	"github.com/go-redis/redis/v8"
)

const recentListKey = "readings:recent"

// RedisStore buffers raw readings in Redis: each reading under its own key
// with a TTL, plus a capped list of the most recent keys.
type RedisStore struct {
	client    *redis.Client
	ttl       time.Duration
	maxRecent int64
}

func NewRedisStore(ctx context.Context, addr, password string, db int, ttl time.Duration, maxRecent int64) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     100,
		MinIdleConns: 10,
		MaxRetries:   3,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis at %s: %w", addr, err)
	}

	return &RedisStore{
		client:    client,
		ttl:       ttl,
		maxRecent: maxRecent,
	}, nil
}

func readingKey(r models.Reading) string {
	return fmt.Sprintf("reading:%s:%d", r.EntityID, r.Timestamp.UnixNano())
}

func (s *RedisStore) StoreReading(ctx context.Context, r models.Reading) error {
	key := readingKey(r)

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, s.ttl)
		pipe.LPush(ctx, recentListKey, key)
		pipe.LTrim(ctx, recentListKey, 0, s.maxRecent-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store reading in Redis: %w", err)
	}
	return nil
}

// RecentReadings returns up to count buffered readings, newest first. Keys
// whose value expired or no longer decodes are skipped.
func (s *RedisStore) RecentReadings(ctx context.Context, count int64) ([]models.Reading, error) {
	if count <= 0 || count > s.maxRecent {
		count = s.maxRecent
	}

	keys, err := s.client.LRange(ctx, recentListKey, 0, count-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get recent reading keys: %w", err)
	}
	if len(keys) == 0 {
		return []models.Reading{}, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get recent readings: %w", err)
	}

	readings := make([]models.Reading, 0, len(values))
	for _, v := range values {
		data, ok := v.(string)
		if !ok {
			continue
		}
		var r models.Reading
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			continue
		}
		readings = append(readings, r)
	}
	return readings, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
