package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/mpsync/pkg/errors"
	"github.com/angelmondragon/mpsync/pkg/redis"
)

const (
	defaultTimeout      = 60 * time.Second
	defaultExpire       = 300 * time.Second
	defaultPollInterval = 100 * time.Millisecond
	valueSeparator      = "|"
)

// ErrLockHeld reports that another owner kept the lock past the timeout.
var ErrLockHeld = errors.New("lock held")

// ContentionRecorder counts failed acquisitions.
type ContentionRecorder interface {
	IncContention(name string)
}

type Options struct {
	Timeout      time.Duration
	Expire       time.Duration
	MinimumLife  time.Duration
	PollInterval time.Duration
	Recorder     ContentionRecorder
}

// State is the externally visible view of a lock.
type State struct {
	IsLocked bool       `json:"is_locked"`
	LockedAt *time.Time `json:"locked_at,omitempty"`
	Custom   string     `json:"custom_state"`
}

// Lock is an advisory lock stored in redis with an expiring key.
type Lock struct {
	store    redis.LockStore
	name     string
	key      string
	stateKey string
	opts     Options

	now   func() time.Time
	sleep func(context.Context, time.Duration) error

	mu         sync.Mutex
	value      string
	acquiredAt time.Time
}

// New builds a lock named name and verifies the store is reachable.
func New(ctx context.Context, store redis.LockStore, name string, opts Options) (*Lock, error) {
	if store == nil {
		return nil, errors.New("lock store required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("lock name required")
	}
	if err := store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("lock store unreachable: %w", err)
	}
	if opts.Timeout < 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Expire <= 0 {
		opts.Expire = defaultExpire
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &Lock{
		store:    store,
		name:     name,
		key:      store.LockKey(name),
		stateKey: store.LockStateKey(name),
		opts:     opts,
		now:      time.Now,
		sleep:    sleepContext,
	}, nil
}

func (l *Lock) Name() string { return l.name }

// Acquire takes the lock with the configured timeout and expiry.
func (l *Lock) Acquire(ctx context.Context) error {
	return l.AcquireFor(ctx, l.opts.Timeout, l.opts.Expire)
}

// AcquireFor polls until the lock is free or timeout elapses. The key
// expires after expire so a crashed holder cannot keep it forever.
func (l *Lock) AcquireFor(ctx context.Context, timeout, expire time.Duration) error {
	if expire <= 0 {
		expire = l.opts.Expire
	}
	owner := uuid.NewString()
	deadline := l.now().Add(timeout)
	for {
		acquiredAt := l.now()
		value := encodeValue(acquiredAt, owner)
		ok, err := l.store.SetNX(ctx, l.key, value, expire)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire lock")
		}
		if ok {
			l.mu.Lock()
			l.value = value
			l.acquiredAt = acquiredAt
			l.mu.Unlock()
			return nil
		}
		if !l.now().Before(deadline) {
			if l.opts.Recorder != nil {
				l.opts.Recorder.IncContention(l.name)
			}
			return pkgerrors.Wrap(pkgerrors.CodeLockHeld, ErrLockHeld, "lock held").
				WithDetails(map[string]any{"lock": l.name})
		}
		if err := l.sleep(ctx, l.opts.PollInterval); err != nil {
			return err
		}
	}
}

// Release frees the lock once the minimum life has passed. It blocks until
// then and leaves the key alone when another owner took it over. The state
// text goes with the lock.
func (l *Lock) Release(ctx context.Context) error {
	l.mu.Lock()
	value, acquiredAt := l.value, l.acquiredAt
	l.mu.Unlock()
	if value == "" {
		return nil
	}

	if wait := l.opts.MinimumLife - l.now().Sub(acquiredAt); wait > 0 {
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}

	deleted, err := l.store.DelIfEqual(ctx, l.key, value)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete lock")
	}
	l.clearOwner()
	if !deleted {
		return nil
	}
	if err := l.store.Del(ctx, l.stateKey); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete lock state")
	}
	return nil
}

// SetState stores free-form status text next to the lock.
func (l *Lock) SetState(ctx context.Context, text string) error {
	if err := l.store.Set(ctx, l.stateKey, text, l.opts.Expire); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "set lock state")
	}
	return nil
}

// State reads the lock and its status text.
func (l *Lock) State(ctx context.Context) (State, error) {
	return ReadState(ctx, l.store, l.name)
}

// ReadState reads the state of any named lock without owning it.
func ReadState(ctx context.Context, store redis.LockStore, name string) (State, error) {
	var state State
	value, err := store.Get(ctx, store.LockKey(name))
	switch {
	case err == nil:
		state.IsLocked = true
		if at, _, ok := decodeValue(value); ok {
			state.LockedAt = &at
		}
	case !redis.IsNil(err):
		return state, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read lock")
	}

	custom, err := store.Get(ctx, store.LockStateKey(name))
	switch {
	case err == nil:
		state.Custom = custom
	case !redis.IsNil(err):
		return state, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read lock state")
	}
	return state, nil
}

func (l *Lock) clearOwner() {
	l.mu.Lock()
	l.value = ""
	l.acquiredAt = time.Time{}
	l.mu.Unlock()
}

func encodeValue(at time.Time, owner string) string {
	return at.UTC().Format(time.RFC3339Nano) + valueSeparator + owner
}

func decodeValue(value string) (time.Time, string, bool) {
	stamp, owner, ok := strings.Cut(value, valueSeparator)
	if !ok {
		return time.Time{}, "", false
	}
	at, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return time.Time{}, "", false
	}
	return at, owner, true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
