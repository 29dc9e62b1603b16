// Package locking serializes writers of the same item ahead of the database
// row lock, in process or across instances.
package locking

import (
	"context"
	stderrors "errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/rentora/rentora-backend/pkg/errors"
)

// ErrBusy is returned when an item lock could not be obtained in time
var ErrBusy = stderrors.New("item is locked by another operation")

// Locker hands out exclusive per-item locks. The returned unlock func must be
// called exactly once.
type Locker interface {
	Lock(ctx context.Context, itemID string) (func(), error)
}

func busy(itemID string, cause error) error {
	appErr := errors.Wrap(cause, "ITEM_BUSY", "item is busy, try again", http.StatusServiceUnavailable)
	return appErr.WithDetails(map[string]string{"item_id": itemID})
}

// LocalLocker is an in-process keyed mutex. Entries are reference counted and
// dropped once nobody holds or waits for them.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*entry
	wait  time.Duration
}

type entry struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker creates a LocalLocker. A positive wait bounds how long Lock
// blocks when ctx has no earlier deadline.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{locks: make(map[string]*entry), wait: wait}
}

// Lock blocks until the item is free or ctx is done
func (l *LocalLocker) Lock(ctx context.Context, itemID string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[itemID]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[itemID] = e
	}
	e.refs++
	l.mu.Unlock()

	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(itemID, e, false)
		return nil, busy(itemID, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(itemID, e, true) })
	}, nil
}

func (l *LocalLocker) release(itemID string, e *entry, held bool) {
	if held {
		<-e.ch
	}
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, itemID)
	}
	l.mu.Unlock()
}

// RedisLocker locks items across service instances with redislock
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisLocker creates a RedisLocker. ttl bounds how long a crashed holder
// keeps the lock; wait bounds how long Lock retries.
func NewRedisLocker(rdb *redis.Client, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb), ttl: ttl, wait: wait}
}

// Key returns the redis key guarding an item
func Key(itemID string) string {
	return "rentora:item-lock:" + itemID
}

// Lock obtains the item's redis lock, retrying every 50ms until the wait or
// ctx runs out
func (l *RedisLocker) Lock(ctx context.Context, itemID string) (func(), error) {
	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	lock, err := l.client.Obtain(ctx, Key(itemID), l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(50 * time.Millisecond),
	})
	if stderrors.Is(err, redislock.ErrNotObtained) || stderrors.Is(err, context.DeadlineExceeded) {
		return nil, busy(itemID, ErrBusy)
	}
	if err != nil {
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The holder may outlive ctx; release on a fresh context.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = lock.Release(releaseCtx)
		})
	}, nil
}

// NopLocker never blocks. The database row lock still serializes writers.
type NopLocker struct{}

// Lock returns immediately
func (NopLocker) Lock(context.Context, string) (func(), error) {
	return func() {}, nil
}

// MultiLock locks several items in ascending id order so that two callers
// locking overlapping sets cannot deadlock. Duplicates are locked once. On
// failure every lock already taken is released.
func MultiLock(ctx context.Context, locker Locker, itemIDs []string) (func(), error) {
	ids := SortedUnique(itemIDs)
	unlocks := make([]func(), 0, len(ids))
	unlockAll := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}

	for _, id := range ids {
		unlock, err := locker.Lock(ctx, id)
		if err != nil {
			unlockAll()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}
	return unlockAll, nil
}

// SortedUnique returns the distinct ids in ascending order
func SortedUnique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
