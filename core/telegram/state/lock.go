package state

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/filmbot/core/logger"
)

// ErrLockAcquire is returned when a user lock cannot be taken before ctx ends.
var ErrLockAcquire = errors.New("state: failed to acquire user lock")

// KeyedMutex is an in-process Locker with one mutex per user. Entries are
// dropped when no goroutine holds or waits for them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*userLock
}

type userLock struct {
	ch   chan struct{}
	refs int
}

var _ Locker = (*KeyedMutex)(nil)

// NewKeyedMutex returns an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[int64]*userLock)}
}

// Lock blocks until userID is free or ctx is done.
func (k *KeyedMutex) Lock(ctx context.Context, userID int64) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[userID]
	if !ok {
		l = &userLock{ch: make(chan struct{}, 1)}
		k.locks[userID] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(userID, l)
		return nil, fmt.Errorf("%w: %w", ErrLockAcquire, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			k.release(userID, l)
		})
	}, nil
}

func (k *KeyedMutex) release(userID int64, l *userLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, userID)
	}
}

const (
	lockTTL  = 30 * time.Second
	lockPoll = 25 * time.Millisecond
)

// unlockScript deletes the lock only if it still carries our token.
const unlockScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

var _ Locker = (*RedisManager[struct{}])(nil)

// Lock takes a SET NX lock next to the user's session key so replicas sharing
// the Redis server handle one user's updates one at a time. The lock expires
// after lockTTL if its holder dies.
func (r *RedisManager[T]) Lock(ctx context.Context, userID int64) (func(), error) {
	key := r.key(userID) + ":lock"
	token, err := lockToken()
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(lockPoll)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, key, token, lockTTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrLockAcquire, ctx.Err())
			}
			return nil, r.fail(ctx, "session.lock", userID, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrLockAcquire, ctx.Err())
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			if err := r.client.Eval(releaseCtx, unlockScript, []string{key}, token).Err(); err != nil {
				logger.Warn(releaseCtx, "service.sessions", "session.unlock",
					slog.Int64("user_id", userID),
					logger.Err(err),
				)
			}
		})
	}, nil
}

func lockToken() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("lock token: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
