// Package lease keeps a single bridge instance running per source table by holding
// a Redis key for as long as the loop runs.
package lease

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLeaseHeld = errors.New("lease: held by another instance")
	ErrLeaseLost = errors.New("lease: lost")
)

// KEYS[1] = lease key, ARGV[1] = owner token, ARGV[2] = ttl in milliseconds.
// Returns 1 when the ttl was extended, 0 when the key belongs to someone else.
var renewScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

// KEYS[1] = lease key, ARGV[1] = owner token.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

type Lease struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	token  string
	logger *slog.Logger
}

func New(client *redis.Client, key string, ttl time.Duration, logger *slog.Logger) *Lease {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Lease{
		client: client,
		key:    key,
		ttl:    ttl,
		token:  uuid.NewString(),
		logger: logger,
	}
}

// Acquire takes the key or returns ErrLeaseHeld.
func (l *Lease) Acquire(ctx context.Context) error {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	if !ok {
		return ErrLeaseHeld
	}
	return nil
}

// Renew extends the ttl. It reports false when the key is no longer ours.
func (l *Lease) Renew(ctx context.Context) (bool, error) {
	n, err := renewScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("renew lease %s: %w", l.key, err)
	}
	return n == 1, nil
}

// Release deletes the key if it is still ours.
func (l *Lease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release lease %s: %w", l.key, err)
	}
	return nil
}

// Run holds the lease while fn runs. The context handed to fn is canceled with
// ErrLeaseLost if a renewal finds the key gone or owned by someone else.
func (l *Lease) Run(ctx context.Context, fn func(context.Context) error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	l.logger.Info("lease acquired", "key", l.key, "ttl", l.ttl)

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.keepAlive(runCtx, cancel)
	}()

	err := fn(runCtx)
	cancel(nil)
	<-done

	relCtx, relCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer relCancel()
	if rerr := l.Release(relCtx); rerr != nil {
		l.logger.Warn("release lease", "err", rerr)
	}

	if cause := context.Cause(runCtx); errors.Is(cause, ErrLeaseLost) {
		return cause
	}
	return err
}

func (l *Lease) keepAlive(ctx context.Context, cancel context.CancelCauseFunc) {
	t := time.NewTicker(l.ttl / 3)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		ok, err := l.Renew(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// A transient Redis error is retried on the next tick; the key
			// survives until its ttl runs out.
			l.logger.Warn("renew lease", "err", err)
			continue
		}
		if !ok {
			l.logger.Error("lease lost", "key", l.key)
			cancel(ErrLeaseLost)
			return
		}
	}
}
