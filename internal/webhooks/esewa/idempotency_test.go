package esewawebhook

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu   sync.Mutex
	keys map[string]time.Duration
	err  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]time.Duration{}}
}

func (m *memoryStore) SetNX(_ context.Context, key string, _ any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = ttl
	return true, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

func (m *memoryStore) CallbackKey(transactionUUID, status string) string {
	return "sf:payment_callback:" + transactionUUID + ":" + status
}

func TestGuardMarksOncePerStatus(t *testing.T) {
	store := newMemoryStore()
	guard, err := NewIdempotencyGuard(store, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	seen, err := guard.CheckAndMark(ctx, "esewa-01", "COMPLETE")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = guard.CheckAndMark(ctx, "esewa-01", " complete ")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = guard.CheckAndMark(ctx, "esewa-01", "CANCELED")
	require.NoError(t, err)
	assert.False(t, seen)

	assert.Equal(t, time.Hour, store.keys["sf:payment_callback:esewa-01:COMPLETE"])
}

func TestGuardDeleteAllowsRedelivery(t *testing.T) {
	guard, err := NewIdempotencyGuard(newMemoryStore(), time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = guard.CheckAndMark(ctx, "esewa-02", "COMPLETE")
	require.NoError(t, err)
	require.NoError(t, guard.Delete(ctx, "esewa-02", "COMPLETE"))

	seen, err := guard.CheckAndMark(ctx, "esewa-02", "COMPLETE")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestGuardErrors(t *testing.T) {
	_, err := NewIdempotencyGuard(nil, time.Minute)
	require.Error(t, err)
	_, err = NewIdempotencyGuard(newMemoryStore(), -time.Second)
	require.Error(t, err)

	store := newMemoryStore()
	guard, err := NewIdempotencyGuard(store, time.Minute)
	require.NoError(t, err)

	_, err = guard.CheckAndMark(context.Background(), " ", "COMPLETE")
	require.Error(t, err)

	store.err = errors.New("redis down")
	_, err = guard.CheckAndMark(context.Background(), "esewa-03", "COMPLETE")
	require.ErrorContains(t, err, "redis down")
}
