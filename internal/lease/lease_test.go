package lease

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketbridge/internal/logging"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestAcquireIsExclusive(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)

	a := New(client, "ticketbridge:lease", time.Second, logging.Discard())
	b := New(client, "ticketbridge:lease", time.Second, logging.Discard())

	require.NoError(t, a.Acquire(ctx))
	assert.ErrorIs(t, b.Acquire(ctx), ErrLeaseHeld)

	// b cannot release a's lease.
	require.NoError(t, b.Release(ctx))
	assert.True(t, mr.Exists("ticketbridge:lease"))

	require.NoError(t, a.Release(ctx))
	assert.False(t, mr.Exists("ticketbridge:lease"))
	require.NoError(t, b.Acquire(ctx))
}

func TestRenewExtendsOnlyOwnLease(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)

	a := New(client, "k", 3*time.Second, logging.Discard())
	require.NoError(t, a.Acquire(ctx))
	mr.FastForward(2 * time.Second)

	ok, err := a.Renew(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3*time.Second, mr.TTL("k"))

	mr.FastForward(4 * time.Second)
	ok, err = a.Renew(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunReleasesAfterFn(t *testing.T) {
	mr, client := newRedis(t)
	l := New(client, "k", time.Second, logging.Discard())

	err := l.Run(context.Background(), func(ctx context.Context) error {
		assert.True(t, mr.Exists("k"))
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("k"))
}

func TestRunFailsWhenHeld(t *testing.T) {
	mr, client := newRedis(t)
	require.NoError(t, mr.Set("k", "someone-else"))

	called := false
	err := New(client, "k", time.Second, logging.Discard()).Run(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrLeaseHeld)
	assert.False(t, called)
}

func TestRunCancelsWhenLeaseIsLost(t *testing.T) {
	mr, client := newRedis(t)
	l := New(client, "k", 150*time.Millisecond, logging.Discard())

	err := l.Run(context.Background(), func(ctx context.Context) error {
		// Another instance steals the key.
		mr.Set("k", "intruder")
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, ErrLeaseLost)
	got, _ := mr.Get("k")
	assert.Equal(t, "intruder", got)
}
