package datasource

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Source backed by Redis sets, one per data type, so that the
// selection is shared by every client of the beamline.
type Redis struct {
	client *redis.Client
}

var _ Source = (*Redis)(nil)

// RedisKey returns the key of the set holding a data type.
func RedisKey(t DataType) (string, error) {
	switch t {
	case Detectors:
		return "sophys_detectors", nil
	case Before:
		return "sophys_metadata_read_before", nil
	case During:
		return "sophys_metadata_read_during", nil
	case After:
		return "sophys_metadata_read_after", nil
	case Main:
		return "sophys_main_counter", nil
	}
	return "", fmt.Errorf("no redis key for data type %q", t)
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client) *Redis { return &Redis{client} }

// DialRedis connects to a Redis server and checks that it answers.
func DialRedis(ctx context.Context, addr string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection to %s failed: %w", addr, err)
	}
	logger.Info().Str("addr", addr).Int("db", db).Msg("connected to redis")
	return &Redis{client}, nil
}

// Close closes the underlying client.
func (r *Redis) Close() error { return r.client.Close() }

// Get returns the members of the set, sorted since sets have no order.
func (r *Redis) Get(ctx context.Context, t DataType) ([]string, error) {
	key, err := RedisKey(t)
	if err != nil {
		return nil, err
	}
	members, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers %s: %w", key, err)
	}
	slices.Sort(members)
	return members, nil
}

func (r *Redis) Add(ctx context.Context, t DataType, name string) error {
	key, err := RedisKey(t)
	if err != nil {
		return err
	}
	if err := r.client.SAdd(ctx, key, name).Err(); err != nil {
		return fmt.Errorf("redis sadd %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Remove(ctx context.Context, t DataType, name string) error {
	key, err := RedisKey(t)
	if err != nil {
		return err
	}
	if err := r.client.SRem(ctx, key, name).Err(); err != nil {
		return fmt.Errorf("redis srem %s: %w", key, err)
	}
	return nil
}
