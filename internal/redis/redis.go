package redis

import (
	"context"
	"errors"
	"sync"
	"time"

	"TableSync/internal/logger"
)

// ErrLocked is returned by Acquire when another holder owns the key.
var ErrLocked = errors.New("同步任务正在运行")

// Lease is a held lock. It is renewed in the background every ttl/3 until
// Release, so a run longer than ttl keeps the lock. Release is safe to call
// more than once.
type Lease interface {
	Key() string
	Release(ctx context.Context) error
}

// RunLock guarantees that at most one sync run is active per key, whether the
// run came from the scheduler or from an on-demand trigger.
type RunLock interface {
	// Acquire takes the lock for ttl or returns ErrLocked.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
	Close() error
}

// LocalLock is the in-process RunLock used when no Redis server is configured.
type LocalLock struct {
	mu    sync.Mutex
	held  map[string]localHold
	now   func() time.Time
	token uint64
}

type localHold struct {
	token   uint64
	expires time.Time
}

func NewLocalLock() *LocalLock {
	return &LocalLock{held: map[string]localHold{}, now: time.Now}
}

func (l *LocalLock) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if h, ok := l.held[key]; ok && (h.expires.IsZero() || now.Before(h.expires)) {
		return nil, ErrLocked
	}
	l.token++
	hold := localHold{token: l.token}
	if ttl > 0 {
		hold.expires = now.Add(ttl)
	}
	l.held[key] = hold
	lease := &localLease{lock: l, key: key, token: hold.token}
	lease.stop = keepAlive(key, ttl, func(context.Context) (bool, error) {
		return l.renew(key, hold.token, ttl), nil
	})
	return lease, nil
}

// renew pushes the expiry of key forward if token still holds it.
func (l *LocalLock) renew(key string, token uint64, ttl time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.held[key]
	if !ok || h.token != token {
		return false
	}
	h.expires = l.now().Add(ttl)
	l.held[key] = h
	return true
}

func (l *LocalLock) Close() error { return nil }

type localLease struct {
	lock  *LocalLock
	key   string
	token uint64
	stop  func()
}

func (l *localLease) Key() string { return l.key }

// Release drops the lock only if it is still ours; an expired and re-acquired
// key is left alone.
func (l *localLease) Release(context.Context) error {
	l.stop()
	l.lock.mu.Lock()
	defer l.lock.mu.Unlock()
	if h, ok := l.lock.held[l.key]; ok && h.token == l.token {
		delete(l.lock.held, l.key)
	}
	return nil
}

// keepAlive calls renew every ttl/3 until the returned stop function is
// called. The loop ends early once renew reports the lease lost.
func keepAlive(key string, ttl time.Duration, renew func(ctx context.Context) (bool, error)) (stop func()) {
	if ttl <= 0 {
		return func() {}
	}
	interval := ttl / 3
	if interval <= 0 {
		interval = ttl
	}

	done := make(chan struct{})
	var once sync.Once
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			ok, err := renew(ctx)
			cancel()
			switch {
			case err != nil:
				logger.Warnf("续期运行锁 %s 失败：%v", key, err)
			case !ok:
				logger.Warnf("运行锁 %s 已被其他持有者占用，停止续期", key)
				return
			}
		}
	}()
	return func() {
		once.Do(func() { close(done) })
		wg.Wait()
	}
}
