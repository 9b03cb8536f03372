package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/daygrid/daygrid/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const checkpointKeyPrefix = "checkpoint:"

// RedisCheckpointRepository caches the last pull/push instants per device.
// Purely diagnostic: clients carry their own checkpoint timestamps, so a
// cold cache is never an error.
type RedisCheckpointRepository struct {
	client *redis.Client
}

func NewRedisCheckpointRepository(client *redis.Client) *RedisCheckpointRepository {
	return &RedisCheckpointRepository{client: client}
}

func (r *RedisCheckpointRepository) Save(ctx context.Context, checkpoint *models.SyncCheckpoint) error {
	data, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	if err := r.client.Set(ctx, checkpointKey(checkpoint.DeviceID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set checkpoint: %w", err)
	}
	return nil
}

func (r *RedisCheckpointRepository) Get(ctx context.Context, deviceID uuid.UUID) (*models.SyncCheckpoint, error) {
	data, err := r.client.Get(ctx, checkpointKey(deviceID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	var checkpoint models.SyncCheckpoint
	if err := json.Unmarshal([]byte(data), &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &checkpoint, nil
}

func checkpointKey(deviceID uuid.UUID) string {
	return checkpointKeyPrefix + deviceID.String()
}
