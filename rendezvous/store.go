// Package rendezvous implements the bootstrap-information exchange between a
// listener and a dialer that start independently and share no other channel.
// The listener publishes its listen address and identity under a key derived
// from the test case; the dialer waits for that key to appear. All state lives
// in an external store (Redis or Consul); the harness and the participants are
// clients only.
package rendezvous

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Record is the bootstrap information one participant makes visible to the
// other. It is written exactly once per case and role.
type Record struct {
	CaseID    string    `json:"caseId"`
	Role      string    `json:"role"`
	Multiaddr string    `json:"multiaddr"`
	PeerID    string    `json:"peerId"`
	ReadyAt   time.Time `json:"readyAt"`
}

// Roles used in rendezvous keys.
const (
	RoleListener = "listener"
	RoleDialer   = "dialer"
)

// ErrNotFound is returned by Await when the deadline elapses before the record
// appears.
var ErrNotFound = errors.New("rendezvous record not found")

// DefaultPollInterval bounds how often polling backends re-query the store.
// This is the one deliberate polling loop in the harness; backends that can
// block server-side (Consul) do not use it.
const DefaultPollInterval = 100 * time.Millisecond

// RecordTTL caps how long a published record can outlive its test case, so an
// aborted run cannot leave the key space growing without bound.
const RecordTTL = 10 * time.Minute

// Store is the client contract shared by all rendezvous backends.
//
// Publish stores a record visible to any reader of the same key. Await blocks
// until the record appears or ctx is done, returning ErrNotFound on timeout.
// Delete removes a key; deleting an absent key is a no-op, which makes
// teardown idempotent under concurrent cleanup.
type Store interface {
	Publish(ctx context.Context, key string, record Record) error
	Await(ctx context.Context, key string) (Record, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// Key returns the store key for one case and role. Keys are namespaced by the
// case ID so that concurrently running cases cannot observe each other's
// records.
func Key(caseID, role string) string {
	return fmt.Sprintf("interop:%s:%s", caseID, role)
}

func encodeRecord(record Record) ([]byte, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rendezvous record: %w", err)
	}
	return data, nil
}

func decodeRecord(data []byte) (Record, error) {
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, fmt.Errorf("malformed rendezvous record: %w", err)
	}
	return record, nil
}
