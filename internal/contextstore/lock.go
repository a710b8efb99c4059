package contextstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/google/uuid"
)

const (
	lockPrefix         = "subscriber_lock:"
	defaultLockTTL     = 30 * time.Second
	defaultLockWait    = 10 * time.Second
	defaultLockBackoff = 100 * time.Millisecond
)

// releaseScript deletes the lock only while it still holds our token, so an
// expired lock taken over by another delivery is left alone.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// extendScript pushes the expiry out while the lock still holds our token.
const extendScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`

var errLockHeld = errors.New("contextstore: lock held")

// Gate serializes message handling per subscriber across processes using a
// Redis lock. A held lock is extended every ttl/3 until released, so a slow
// turn keeps it; the lock expires on its own if a holder dies.
type Gate struct {
	rdb     redisAPI
	ttl     time.Duration
	refresh time.Duration
	wait    time.Duration
	backoff time.Duration
	logger  *slog.Logger
}

func NewGate(rdb redisAPI, ttl time.Duration, logger *slog.Logger) (*Gate, error) {
	if rdb == nil {
		return nil, errors.New("contextstore: redis client must not be nil")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		rdb:     rdb,
		ttl:     ttl,
		refresh: ttl / 3,
		wait:    defaultLockWait,
		backoff: defaultLockBackoff,
		logger:  logger,
	}, nil
}

// Acquire blocks until the subscriber's lock is held or the wait budget runs
// out. The returned release func is safe to call once the work is done.
func (g *Gate) Acquire(ctx context.Context, key string) (func(), error) {
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("contextstore: lock key is required")
	}
	lockKey := lockPrefix + key
	token := uuid.NewString()

	attempts := uint(g.wait / g.backoff)
	if attempts == 0 {
		attempts = 1
	}
	err := retry.Do(
		func() error {
			ok, err := g.rdb.SetNX(ctx, lockKey, token, g.ttl).Result()
			if err != nil {
				return retry.Unrecoverable(err)
			}
			if !ok {
				return errLockHeld
			}
			return nil
		},
		retry.Attempts(attempts),
		retry.Delay(g.backoff),
		retry.MaxDelay(g.backoff),
		retry.MaxJitter(g.backoff/2+time.Millisecond),
		retry.Context(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("contextstore: acquire %q: %w", lockKey, err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go g.keepAlive(lockKey, token, stop, done)

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			<-done
			// the caller's context may already be done; release on a fresh one
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := g.rdb.Eval(rctx, releaseScript, []string{lockKey}, token).Err(); err != nil {
				g.logger.Warn("failed to release subscriber lock", "key", lockKey, "err", err)
			}
		})
	}
	return release, nil
}

func (g *Gate) keepAlive(lockKey, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(g.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), g.refresh)
			n, err := g.rdb.Eval(ctx, extendScript, []string{lockKey}, token, g.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil {
				g.logger.Warn("failed to extend subscriber lock", "key", lockKey, "err", err)
				continue
			}
			if n == 0 {
				g.logger.Warn("subscriber lock lost", "key", lockKey)
				return
			}
		}
	}
}
