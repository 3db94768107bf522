package esewawebhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CallbackStore is the redis surface the guard needs.
type CallbackStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	CallbackKey(transactionUUID, status string) string
}

// IdempotencyGuard short-circuits exact callback replays before they reach
// the database. The key is the transaction uuid plus the reported status.
type IdempotencyGuard struct {
	store CallbackStore
	ttl   time.Duration
}

func NewIdempotencyGuard(store CallbackStore, ttl time.Duration) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("callback store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &IdempotencyGuard{store: store, ttl: ttl}, nil
}

// CheckAndMark reports true when the callback was already seen.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, transactionUUID, status string) (bool, error) {
	key, err := g.key(transactionUUID, status)
	if err != nil {
		return false, err
	}
	set, err := g.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return false, fmt.Errorf("set callback key: %w", err)
	}
	return !set, nil
}

// Delete releases the key so a redelivery is processed again.
func (g *IdempotencyGuard) Delete(ctx context.Context, transactionUUID, status string) error {
	key, err := g.key(transactionUUID, status)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *IdempotencyGuard) key(transactionUUID, status string) (string, error) {
	transactionUUID = strings.TrimSpace(transactionUUID)
	if transactionUUID == "" {
		return "", errors.New("transaction uuid is required")
	}
	return g.store.CallbackKey(transactionUUID, strings.ToUpper(strings.TrimSpace(status))), nil
}
