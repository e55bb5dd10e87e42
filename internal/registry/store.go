// Package registry keeps live-session presence and hourly usage counters
// in redis, shared across server instances.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/parley-labs/parley/internal/practice"
	"github.com/parley-labs/parley/internal/shared"
)

const (
	presenceTTL = time.Hour
	metricsTTL  = 7 * 24 * time.Hour
)

func presenceKey(sessionID string) string {
	return "practice:live:" + sessionID
}

func metricsKey(scenarioID string, day string, hour int) string {
	return fmt.Sprintf("practice:metrics:%s:%s:%d", scenarioID, day, hour)
}

type Store struct {
	redis redis.UniversalClient
}

func NewStore(redisClient redis.UniversalClient) *Store {
	return &Store{redis: redisClient}
}

// Register publishes a live session. The TTL outlasts the session ceiling,
// so a crashed instance cannot leave presence behind for more than an hour.
func (s *Store) Register(ctx context.Context, snap practice.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	pipe := s.redis.Pipeline()
	pipe.Set(ctx, presenceKey(snap.ID), data, presenceTTL)
	day := time.Now().UTC().Format("2006-01-02")
	key := metricsKey(snap.ScenarioID, day, time.Now().UTC().Hour())
	pipe.HIncrBy(ctx, key, "sessions", 1)
	pipe.Expire(ctx, key, metricsTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) Unregister(ctx context.Context, sessionID string) error {
	return s.redis.Del(ctx, presenceKey(sessionID)).Err()
}

// Touch refreshes presence with the current snapshot.
func (s *Store) Touch(ctx context.Context, snap practice.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, presenceKey(snap.ID), data, presenceTTL).Err()
}

func (s *Store) Get(ctx context.Context, sessionID string) (*practice.Snapshot, error) {
	data, err := s.redis.Get(ctx, presenceKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var snap practice.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// IncrementMinutes adds completed practice minutes to the hourly counter.
func (s *Store) IncrementMinutes(ctx context.Context, scenarioID string, minutes int64) error {
	now := time.Now().UTC()
	key := metricsKey(scenarioID, now.Format("2006-01-02"), now.Hour())
	pipe := s.redis.Pipeline()
	pipe.HIncrBy(ctx, key, "minutes", minutes)
	pipe.Expire(ctx, key, metricsTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// IncrementAbandoned counts walked-away sessions per scenario.
func (s *Store) IncrementAbandoned(ctx context.Context, scenarioID string) error {
	now := time.Now().UTC()
	key := metricsKey(scenarioID, now.Format("2006-01-02"), now.Hour())
	pipe := s.redis.Pipeline()
	pipe.HIncrBy(ctx, key, "abandoned", 1)
	pipe.Expire(ctx, key, metricsTTL)
	_, err := pipe.Exec(ctx)
	return err
}
