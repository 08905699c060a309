package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/mpsync/pkg/errors"
	"github.com/angelmondragon/mpsync/pkg/redis"
)

type fakeStore struct {
	mu      sync.Mutex
	values  map[string]string
	ttls    map[string]time.Duration
	pingErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return "", redis.ErrNil
	}
	return v, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value.(string)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value.(string)
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.values, k)
	}
	return nil
}

func (f *fakeStore) DelIfEqual(_ context.Context, key, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values[key] != value {
		return false, nil
	}
	delete(f.values, key)
	return true, nil
}

func (f *fakeStore) LockKey(name string) string      { return "mps:flag:" + name + ":locked" }
func (f *fakeStore) LockStateKey(name string) string { return "mps:flag:" + name + ":state" }

func (f *fakeStore) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.values[key]
	return ok
}

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func withClock(l *Lock, c *fakeClock) *Lock {
	l.now = c.Now
	l.sleep = c.Sleep
	return l
}

type countingRecorder struct{ n int }

func (r *countingRecorder) IncContention(string) { r.n++ }

func TestReleaseWaitsForMinimumLife(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}

	l, err := New(ctx, store, "cred-1", Options{Timeout: 5 * time.Second, Expire: 60 * time.Second, MinimumLife: 3 * time.Second})
	require.NoError(t, err)
	withClock(l, clock)

	require.NoError(t, l.Acquire(ctx))
	require.Equal(t, 60*time.Second, store.ttls[store.LockKey("cred-1")])

	clock.now = clock.now.Add(500 * time.Millisecond)
	require.NoError(t, l.Release(ctx))
	require.Equal(t, []time.Duration{2500 * time.Millisecond}, clock.sleeps)
	require.False(t, store.has(store.LockKey("cred-1")))
}

func TestAcquireDuringHoldFailsWithLockHeld(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()

	holder, err := New(ctx, store, "cred-1", Options{Expire: time.Minute, MinimumLife: 200 * time.Millisecond, PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	rival, err := New(ctx, store, "cred-1", Options{Expire: time.Minute, PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, holder.Acquire(ctx))

	released := make(chan error, 1)
	go func() { released <- holder.Release(ctx) }()

	err = rival.AcquireFor(ctx, 50*time.Millisecond, time.Minute)
	require.ErrorIs(t, err, ErrLockHeld)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeLockHeld))

	require.NoError(t, <-released)
	require.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
	require.NoError(t, rival.AcquireFor(ctx, 0, time.Minute))
}

func TestAcquirePollsUntilTimeout(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	recorder := &countingRecorder{}

	holder, err := New(ctx, store, "cred-1", Options{})
	require.NoError(t, err)
	require.NoError(t, withClock(holder, clock).Acquire(ctx))

	rival, err := New(ctx, store, "cred-1", Options{Timeout: time.Second, Recorder: recorder})
	require.NoError(t, err)
	err = withClock(rival, clock).Acquire(ctx)

	require.ErrorIs(t, err, ErrLockHeld)
	require.Len(t, clock.sleeps, 10)
	require.Equal(t, 1, recorder.n)
}

func TestReleaseKeepsForeignOwner(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()

	l, err := New(ctx, store, "cred-1", Options{})
	require.NoError(t, err)
	require.NoError(t, l.Acquire(ctx))

	key := store.LockKey("cred-1")
	require.NoError(t, store.Set(ctx, key, encodeValue(time.Now(), "someone-else"), time.Minute))
	require.NoError(t, l.Release(ctx))
	require.True(t, store.has(key))
}

func TestReleaseDropsStateText(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()

	l, err := New(ctx, store, "cred-1", Options{})
	require.NoError(t, err)
	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.SetState(ctx, "running update_orders"))
	require.NoError(t, l.Release(ctx))

	require.False(t, store.has(store.LockKey("cred-1")))
	require.False(t, store.has(store.LockStateKey("cred-1")))
}

func TestStateReportsLockAndCustomText(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()

	l, err := New(ctx, store, "cred-1", Options{Expire: time.Minute})
	require.NoError(t, err)

	state, err := l.State(ctx)
	require.NoError(t, err)
	require.False(t, state.IsLocked)
	require.Nil(t, state.LockedAt)

	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.SetState(ctx, "orders 2/5"))
	require.Equal(t, time.Minute, store.ttls[store.LockStateKey("cred-1")])

	state, err = ReadState(ctx, store, "cred-1")
	require.NoError(t, err)
	require.True(t, state.IsLocked)
	require.NotNil(t, state.LockedAt)
	require.Equal(t, "orders 2/5", state.Custom)
}

func TestNewRequiresReachableStore(t *testing.T) {
	store := newFakeStore()
	store.pingErr = errors.New("connection refused")

	_, err := New(context.Background(), store, "cred-1", Options{})
	require.Error(t, err)

	_, err = New(context.Background(), newFakeStore(), " ", Options{})
	require.Error(t, err)
}
