package rendezvous

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a rendezvous Store backed by a Redis server. Await polls GET
// at a bounded interval; Redis keyspace notifications are not enabled by
// default, so polling is the portable choice here.
type RedisStore struct {
	client       *redis.Client
	pollInterval time.Duration
}

// NewRedisStore connects to the given Redis address and verifies that the
// server is reachable. An unreachable store is fatal to the whole run, so the
// error is surfaced immediately rather than on first use.
func NewRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("rendezvous store at %s is unreachable: %w", addr, err)
	}
	return &RedisStore{client: client, pollInterval: DefaultPollInterval}, nil
}

func (s *RedisStore) Publish(ctx context.Context, key string, record Record) error {
	data, err := encodeRecord(record)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, data, RecordTTL).Err(); err != nil {
		return fmt.Errorf("failed to publish rendezvous record %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Await(ctx context.Context, key string) (Record, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		data, err := s.client.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			return decodeRecord(data)
		case errors.Is(err, redis.Nil):
			// not published yet
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			return Record{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		default:
			return Record{}, fmt.Errorf("rendezvous query for %s failed: %w", key, err)
		}
		select {
		case <-ctx.Done():
			return Record{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		case <-ticker.C:
		}
	}
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	// DEL of an absent key is a no-op in Redis, so cleanup is naturally idempotent.
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete rendezvous key %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
