/*
redislock.go - Redis-backed per-deal lock

PURPOSE:
  The in-process KeyedLocker only serialises recalculations inside one
  commissiond. When several instances share a database, the lock for a deal
  must live somewhere they all see. This package keeps it in Redis:

    SET <prefix><dealID> <token> NX PX <ttl>

  The token is a random UUID owned by the holder. Unlock deletes the key only
  if it still carries that token, so a holder whose key expired cannot free
  somebody else's lock.

EXPIRY:
  While held, a watchdog extends the key every ttl/3. If the process dies the
  key expires after ttl and the deal becomes lockable again.

SEE ALSO:
  - commission/locker.go: DealLocker interface and the in-process locker
  - config/config.go: RedisConfig
*/
package redislock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/warp/commission-engine/commission"
	"github.com/warp/commission-engine/config"
)

const defaultRetryInterval = 25 * time.Millisecond

var (
	// Deletes KEYS[1] only while it holds ARGV[1].
	releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	// Extends KEYS[1] to ARGV[2] milliseconds only while it holds ARGV[1].
	extendScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// NewClient connects to Redis and checks the connection.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is empty")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// Locker is a commission.DealLocker shared by every process using the same
// Redis.
type Locker struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration

	// RetryInterval is the pause between acquisition attempts.
	RetryInterval time.Duration
	Logger        *slog.Logger
}

var _ commission.DealLocker = (*Locker)(nil)

// New returns a Locker storing keys as prefix+dealID with the given ttl.
func New(client goredis.UniversalClient, prefix string, ttl time.Duration) *Locker {
	return &Locker{
		client:        client,
		prefix:        prefix,
		ttl:           ttl,
		RetryInterval: defaultRetryInterval,
		Logger:        slog.Default(),
	}
}

func (l *Locker) key(id commission.DealID) string {
	return l.prefix + string(id)
}

// Lock retries until the key is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, id commission.DealID) (func(), error) {
	key := l.key(id)
	token := uuid.NewString()

	retry := time.NewTicker(l.RetryInterval)
	defer retry.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// The SET may have been applied before the client gave up.
			l.release(key, token)
			return nil, fmt.Errorf("%w: deal %s: %v", commission.ErrLockTimeout, id, err)
		}
		if err != nil {
			return nil, fmt.Errorf("acquire lock for deal %s: %w", id, err)
		}
		if ok {
			break
		}

		select {
		case <-retry.C:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: deal %s: %v", commission.ErrLockTimeout, id, ctx.Err())
		}
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.watch(key, token, stop)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
			l.release(key, token)
		})
	}, nil
}

// watch keeps the key alive until stop is closed.
func (l *Locker) watch(key, token string, stop <-chan struct{}) {
	interval := l.ttl / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			n, err := extendScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				l.Logger.Warn("failed to extend deal lock", slog.String("key", key), slog.String("error", err.Error()))
				continue
			}
			if n == 0 {
				l.Logger.Warn("deal lock lost before release", slog.String("key", key))
				return
			}
		}
	}
}

// release runs on its own context: the caller's may already be cancelled.
func (l *Locker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		l.Logger.Warn("failed to release deal lock", slog.String("key", key), slog.String("error", err.Error()))
	}
}
