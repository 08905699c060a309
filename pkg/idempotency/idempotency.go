// Package idempotency remembers which task deliveries a consumer already
// handled. Pub/Sub delivers at least once, so a redelivered task must not run
// its job twice.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/mpsync/pkg/redis"
)

// Manager marks task IDs per consumer with SETNX and a TTL.
// Keys follow the `mps:idempotency:task:<consumer>:<task_id>` pattern.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// CheckAndMark returns true if the task was already claimed and otherwise
// claims it for the configured TTL.
func (m *Manager) CheckAndMark(ctx context.Context, consumer string, taskID uuid.UUID) (bool, error) {
	key, err := m.key(consumer, taskID)
	if err != nil {
		return false, err
	}
	set, err := m.store.SetNX(ctx, key, "1", m.ttl)
	if err != nil {
		return false, err
	}
	return !set, nil
}

// Delete releases a claim so a redelivery runs the task again.
func (m *Manager) Delete(ctx context.Context, consumer string, taskID uuid.UUID) error {
	key, err := m.key(consumer, taskID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer string, taskID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if taskID == uuid.Nil {
		return "", errors.New("task id is required")
	}
	return m.store.IdempotencyKey(fmt.Sprintf("task:%s", consumer), taskID.String()), nil
}
