package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/mpsync/pkg/instance"
)

const defaultLeaderTTL = 10 * time.Minute

// Lock elects the single scheduler instance allowed to run a cycle.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type leaderStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfEqual(ctx context.Context, key, value string) (bool, error)
	LockKey(name string) string
}

// LeaderLock is a SETNX lock whose value names the owning instance.
type LeaderLock struct {
	store leaderStore
	key   string
	ttl   time.Duration
	owner string
}

func NewLeaderLock(store leaderStore, name string, ttl time.Duration) (*LeaderLock, error) {
	if store == nil {
		return nil, errors.New("redis store required for leader lock")
	}
	if name == "" {
		return nil, errors.New("leader lock name is required")
	}
	if ttl <= 0 {
		ttl = defaultLeaderTTL
	}
	return &LeaderLock{store: store, key: store.LockKey(name), ttl: ttl}, nil
}

func (l *LeaderLock) Acquire(ctx context.Context) (bool, error) {
	owner := instance.GetID() + "|" + uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("setnx: %w", err)
	}
	if ok {
		l.owner = owner
	}
	return ok, nil
}

// Release deletes the key only while this instance still owns it.
func (l *LeaderLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	defer func() { l.owner = "" }()
	if _, err := l.store.DelIfEqual(ctx, l.key, l.owner); err != nil {
		return fmt.Errorf("delete leader lock: %w", err)
	}
	return nil
}
