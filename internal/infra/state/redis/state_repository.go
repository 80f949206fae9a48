// Package redisstate implements repository.StateRepository on Redis.
package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"collaborative-rooms/internal/domain"
	"collaborative-rooms/internal/repository"
)

// StateRepository stores room and metrics records as JSON values under
// prefixed keys.
type StateRepository struct {
	client    *redis.Client
	keyPrefix string
}

// NewStateRepository creates the adapter. keyPrefix defaults to "cr:".
func NewStateRepository(client *redis.Client, keyPrefix string) *StateRepository {
	if client == nil {
		panic("redis client cannot be nil for StateRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "cr:"
	}
	return &StateRepository{client: client, keyPrefix: keyPrefix}
}

func (r *StateRepository) roomKey(roomID string) string {
	return fmt.Sprintf("%sroom:%s:record", r.keyPrefix, roomID)
}

func (r *StateRepository) metricsKey(roomID string) string {
	return fmt.Sprintf("%sroom:%s:metrics", r.keyPrefix, roomID)
}

func (r *StateRepository) rateLimitKey(key string) string {
	return fmt.Sprintf("%sratelimit:%s", r.keyPrefix, key)
}

// SaveRoom writes the full room record.
func (r *StateRepository) SaveRoom(ctx context.Context, room *domain.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("redis: marshal room %s: %w", room.ID, err)
	}
	if err := r.client.Set(ctx, r.roomKey(room.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("redis: save room %s: %w", room.ID, err)
	}
	return nil
}

// LoadRoom reads a room record, mapping redis.Nil to ErrNotFound.
func (r *StateRepository) LoadRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	data, err := r.client.Get(ctx, r.roomKey(roomID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis: load room %s: %w", roomID, err)
	}
	var room domain.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("redis: unmarshal room %s: %w", roomID, err)
	}
	if room.Participants == nil {
		room.Participants = make(map[string]*domain.Participant)
	}
	if room.Document == nil {
		room.Document = domain.NewDocumentState()
	}
	return &room, nil
}

// SaveMetrics writes the metrics record.
func (r *StateRepository) SaveMetrics(ctx context.Context, metrics *domain.RoomMetrics) error {
	data, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("redis: marshal metrics for room %s: %w", metrics.RoomID, err)
	}
	if err := r.client.Set(ctx, r.metricsKey(metrics.RoomID), data, 0).Err(); err != nil {
		return fmt.Errorf("redis: save metrics for room %s: %w", metrics.RoomID, err)
	}
	return nil
}

// LoadMetrics reads the metrics record, mapping redis.Nil to ErrNotFound.
func (r *StateRepository) LoadMetrics(ctx context.Context, roomID string) (*domain.RoomMetrics, error) {
	data, err := r.client.Get(ctx, r.metricsKey(roomID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis: load metrics for room %s: %w", roomID, err)
	}
	var metrics domain.RoomMetrics
	if err := json.Unmarshal(data, &metrics); err != nil {
		return nil, fmt.Errorf("redis: unmarshal metrics for room %s: %w", roomID, err)
	}
	return &metrics, nil
}

// CheckRateLimit counts requests for key within window using INCR + EXPIRE
// in one pipeline. Returns true once the count exceeds limit.
func (r *StateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	redisKey := r.rateLimitKey(key)
	pipe := r.client.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: rate limit check for %s: %w", key, err)
	}
	return incr.Val() > int64(limit), nil
}
