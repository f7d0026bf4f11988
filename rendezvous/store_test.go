package rendezvous

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p2p-interop/harness/framework/helpers"
)

func TestKeyNamespacing(t *testing.T) {
	k1 := Key("goxrust_tcp_noise_yamux", RoleListener)
	k2 := Key("goxrust_tcp_noise_yamux", RoleDialer)
	k3 := Key("goxrust_tcp_tls_yamux", RoleListener)

	assert.Equal(t, "interop:goxrust_tcp_noise_yamux:listener", k1)
	assert.NotEqual(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestRecordRoundTrip(t *testing.T) {
	record := Record{
		CaseID:    "c1",
		Role:      RoleListener,
		Multiaddr: "/ip4/127.0.0.1/tcp/4001",
		PeerID:    "12D3KooWQYV9dGMFoRzNStwpXztXaBUjtPqi6aU76ZgUriHhKust",
		ReadyAt:   time.Now().UTC().Truncate(time.Second),
	}
	data, err := encodeRecord(record)
	require.NoError(t, err)
	decoded, err := decodeRecord(data)
	require.NoError(t, err)
	assert.Equal(t, record, decoded)

	_, err = decodeRecord([]byte("{not json"))
	assert.Error(t, err)
}

func TestMemoryStoreAwaitAfterPublish(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	record := Record{CaseID: "c1", Role: RoleListener, Multiaddr: "/ip4/127.0.0.1/tcp/1"}
	require.NoError(t, store.Publish(ctx, Key("c1", RoleListener), record))

	got, err := store.Await(ctx, Key("c1", RoleListener))
	require.NoError(t, err)
	assert.Equal(t, record, got)
}

func TestMemoryStoreAwaitBlocksUntilPublish(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	record := Record{CaseID: "c1", Role: RoleListener}
	resultCh := make(chan error, 1)
	go func() {
		_, err := store.Await(ctx, Key("c1", RoleListener))
		resultCh <- err
	}()

	time.Sleep(time.Millisecond * 50)
	require.NoError(t, store.Publish(ctx, Key("c1", RoleListener), record))

	result := helpers.TryReceive(resultCh, time.Second)
	require.True(t, result.IsDefined(), "Await did not return after Publish")
	assert.NoError(t, result.Value())
}

func TestMemoryStoreAwaitTimeout(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*50)
	defer cancel()

	_, err := store.Await(ctx, Key("c1", RoleListener))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreDeleteIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	key := Key("c1", RoleListener)
	require.NoError(t, store.Publish(ctx, key, Record{CaseID: "c1"}))
	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key)) // second delete is a no-op
	assert.Empty(t, store.Keys())
}

func TestMemoryStoreKeysIsolatedPerCase(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Publish(ctx, Key("c1", RoleListener), Record{CaseID: "c1"}))
	require.NoError(t, store.Publish(ctx, Key("c2", RoleListener), Record{CaseID: "c2"}))

	got, err := store.Await(ctx, Key("c1", RoleListener))
	require.NoError(t, err)
	assert.Equal(t, "c1", got.CaseID)

	require.NoError(t, store.Delete(ctx, Key("c1", RoleListener)))
	assert.Equal(t, []string{Key("c2", RoleListener)}, store.Keys())
}
