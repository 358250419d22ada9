package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"roadside-monitor/be/models"

	"github.com/go-redis/redis/v8"
)

// ErrStatusMiss is returned by StatusCache.Get when no snapshot is cached.
var ErrStatusMiss = errors.New("status cache miss")

// StatusCache holds the latest hazard snapshot per device.
type StatusCache interface {
	Get(ctx context.Context, deviceID uint) (*models.DeviceStatus, error)
	Set(ctx context.Context, status models.DeviceStatus) error
	Delete(ctx context.Context, deviceID uint) error
}

type RedisStatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStatusCache(client *redis.Client, ttl time.Duration) *RedisStatusCache {
	return &RedisStatusCache{client: client, ttl: ttl}
}

func statusKey(deviceID uint) string {
	return fmt.Sprintf("device:%d:status", deviceID)
}

// setIfNewer stores the snapshot only when no newer one is cached.
// KEYS[1] status hash, ARGV[1] evaluatedAt in microseconds, ARGV[2] JSON,
// ARGV[3] TTL in milliseconds (0 keeps the key forever).
var setIfNewer = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'at')
if current and tonumber(current) > tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'at', ARGV[1], 'status', ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

func (c *RedisStatusCache) Get(ctx context.Context, deviceID uint) (*models.DeviceStatus, error) {
	raw, err := c.client.HGet(ctx, statusKey(deviceID), "status").Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrStatusMiss
		}
		return nil, err
	}

	var status models.DeviceStatus
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		return nil, fmt.Errorf("failed to decode cached status of device %d: %w", deviceID, err)
	}
	return &status, nil
}

// Set caches status unless a snapshot with a later EvaluatedAt is already
// stored. Writers that finish out of order therefore cannot roll the
// snapshot back.
func (c *RedisStatusCache) Set(ctx context.Context, status models.DeviceStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	err = setIfNewer.Run(ctx, c.client,
		[]string{statusKey(status.DeviceID)},
		status.EvaluatedAt.UnixMicro(), string(payload), c.ttl.Milliseconds(),
	).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to cache status of device %d: %w", status.DeviceID, err)
	}
	return nil
}

func (c *RedisStatusCache) Delete(ctx context.Context, deviceID uint) error {
	return c.client.Del(ctx, statusKey(deviceID)).Err()
}

// NopStatusCache is used when Redis is not configured.
type NopStatusCache struct{}

func (NopStatusCache) Get(context.Context, uint) (*models.DeviceStatus, error) {
	return nil, ErrStatusMiss
}

func (NopStatusCache) Set(context.Context, models.DeviceStatus) error { return nil }

func (NopStatusCache) Delete(context.Context, uint) error { return nil }
