package rendezvous

import (
	"context"
	"fmt"
	"time"

	consul "github.com/hashicorp/consul/api"
)

// maximum server-side wait per blocking query; Consul caps WaitTime at 10
// minutes, and shorter waits keep cancellation responsive.
const consulWaitTime = 10 * time.Second

// ConsulStore is a rendezvous Store backed by the Consul KV API. Unlike the
// Redis backend it does not poll: Await uses Consul blocking queries, which
// suspend on the server until the watched index advances.
type ConsulStore struct {
	client *consul.Client
}

// NewConsulStore connects to the Consul agent at the given address and
// verifies that it is reachable.
func NewConsulStore(addr string) (*ConsulStore, error) {
	config := consul.DefaultConfig()
	if addr != "" {
		config.Address = addr
	}
	client, err := consul.NewClient(config)
	if err != nil {
		return nil, err
	}
	if _, err := client.Status().Leader(); err != nil {
		return nil, fmt.Errorf("rendezvous store at %s is unreachable: %w", config.Address, err)
	}
	return &ConsulStore{client: client}, nil
}

func (s *ConsulStore) Publish(ctx context.Context, key string, record Record) error {
	data, err := encodeRecord(record)
	if err != nil {
		return err
	}
	pair := &consul.KVPair{Key: key, Value: data}
	if _, err := s.client.KV().Put(pair, new(consul.WriteOptions).WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to publish rendezvous record %s: %w", key, err)
	}
	return nil
}

func (s *ConsulStore) Await(ctx context.Context, key string) (Record, error) {
	var waitIndex uint64
	for {
		opts := &consul.QueryOptions{WaitIndex: waitIndex, WaitTime: consulWaitTime}
		pair, meta, err := s.client.KV().Get(key, opts.WithContext(ctx))
		if err != nil {
			if ctx.Err() != nil {
				return Record{}, fmt.Errorf("%w: %s", ErrNotFound, key)
			}
			return Record{}, fmt.Errorf("rendezvous query for %s failed: %w", key, err)
		}
		if pair != nil {
			return decodeRecord(pair.Value)
		}
		if ctx.Err() != nil {
			return Record{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		waitIndex = meta.LastIndex
	}
}

func (s *ConsulStore) Delete(ctx context.Context, key string) error {
	// Consul's KV delete succeeds whether or not the key exists.
	if _, err := s.client.KV().Delete(key, new(consul.WriteOptions).WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to delete rendezvous key %s: %w", key, err)
	}
	return nil
}

func (s *ConsulStore) Close() error { return nil }
