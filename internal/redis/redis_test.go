package redis

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"TableSync/internal/connection"

	"github.com/alicebob/miniredis/v2"
)

func TestLocalLock_Exclusive(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLock()

	lease, err := l.Acquire(ctx, "sync", time.Minute)
	if err != nil {
		t.Fatalf("首次加锁失败：%v", err)
	}
	if _, err := l.Acquire(ctx, "sync", time.Minute); !errors.Is(err, ErrLocked) {
		t.Fatalf("锁被持有时应返回 ErrLocked，实际=%v", err)
	}
	other, err := l.Acquire(ctx, "other", time.Minute)
	if err != nil {
		t.Fatalf("不同 key 不应互斥：%v", err)
	}
	defer other.Release(ctx)

	if err := lease.Release(ctx); err != nil {
		t.Fatalf("释放失败：%v", err)
	}
	again, err := l.Acquire(ctx, "sync", time.Minute)
	if err != nil {
		t.Fatalf("释放后应可重新加锁：%v", err)
	}
	_ = again.Release(ctx)
}

func TestLocalLock_ExpiredLeaseDoesNotReleaseNewHolder(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLocalLock()
	l.now = func() time.Time { return now }

	stale, err := l.Acquire(ctx, "sync", time.Second)
	if err != nil {
		t.Fatalf("加锁失败：%v", err)
	}
	l.mu.Lock()
	now = now.Add(2 * time.Second)
	l.mu.Unlock()
	holder, err := l.Acquire(ctx, "sync", time.Minute)
	if err != nil {
		t.Fatalf("过期后应可重新加锁：%v", err)
	}
	defer holder.Release(ctx)
	_ = stale.Release(ctx)
	if _, err := l.Acquire(ctx, "sync", time.Minute); !errors.Is(err, ErrLocked) {
		t.Fatalf("过期租约的释放不应影响新持有者，实际=%v", err)
	}
}

func TestLocalLock_RenewsWhileHeld(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLock()

	lease, err := l.Acquire(ctx, "sync", 150*time.Millisecond)
	if err != nil {
		t.Fatalf("加锁失败：%v", err)
	}
	time.Sleep(500 * time.Millisecond)
	if _, err := l.Acquire(ctx, "sync", time.Minute); !errors.Is(err, ErrLocked) {
		t.Fatalf("持有期间租约应被续期，超过 TTL 后仍应返回 ErrLocked，实际=%v", err)
	}

	if err := lease.Release(ctx); err != nil {
		t.Fatalf("释放失败：%v", err)
	}
	again, err := l.Acquire(ctx, "sync", time.Minute)
	if err != nil {
		t.Fatalf("释放后应可重新加锁：%v", err)
	}
	_ = again.Release(ctx)
}

func newMiniRedisLock(t *testing.T) (*RedisLock, *miniredis.Miniredis) {
	t.Helper()
	m := miniredis.RunT(t)
	port, err := strconv.Atoi(m.Port())
	if err != nil {
		t.Fatalf("解析 miniredis 端口失败：%v", err)
	}
	l, err := NewRedisLock(connection.ConnectionConfig{Host: m.Host(), Port: port, Timeout: 5}, "tablesync:test:")
	if err != nil {
		t.Fatalf("连接 Redis 失败：%v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l, m
}

func TestRedisLock_ExclusiveAndRelease(t *testing.T) {
	ctx := context.Background()
	l, m := newMiniRedisLock(t)

	lease, err := l.Acquire(ctx, "run", time.Minute)
	if err != nil {
		t.Fatalf("加锁失败：%v", err)
	}
	if !m.Exists("tablesync:test:run") {
		t.Fatalf("加锁后 Redis 中应存在 key")
	}
	if ttl := m.TTL("tablesync:test:run"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("key 的过期时间不正确：%v", ttl)
	}
	if _, err := l.Acquire(ctx, "run", time.Minute); !errors.Is(err, ErrLocked) {
		t.Fatalf("锁被持有时应返回 ErrLocked，实际=%v", err)
	}

	if err := lease.Release(ctx); err != nil {
		t.Fatalf("释放失败：%v", err)
	}
	if m.Exists("tablesync:test:run") {
		t.Fatalf("释放后 key 应被删除")
	}
	again, err := l.Acquire(ctx, "run", time.Minute)
	if err != nil {
		t.Fatalf("释放后应可重新加锁：%v", err)
	}
	_ = again.Release(ctx)
}

func TestRedisLock_ExpiredLeaseDoesNotReleaseNewHolder(t *testing.T) {
	ctx := context.Background()
	l, m := newMiniRedisLock(t)

	stale, err := l.Acquire(ctx, "run", time.Minute)
	if err != nil {
		t.Fatalf("加锁失败：%v", err)
	}
	m.FastForward(2 * time.Minute)
	if m.Exists("tablesync:test:run") {
		t.Fatalf("超过 TTL 后 key 应已过期")
	}

	holder, err := l.Acquire(ctx, "run", time.Minute)
	if err != nil {
		t.Fatalf("过期后应可重新加锁：%v", err)
	}
	defer holder.Release(ctx)

	if err := stale.Release(ctx); err != nil {
		t.Fatalf("释放过期租约不应报错：%v", err)
	}
	if !m.Exists("tablesync:test:run") {
		t.Fatalf("过期租约的释放不应删除新持有者的 key")
	}
	if _, err := l.Acquire(ctx, "run", time.Minute); !errors.Is(err, ErrLocked) {
		t.Fatalf("新持有者仍应持有锁，实际=%v", err)
	}
}

func TestRedisLock_RenewsWhileHeld(t *testing.T) {
	ctx := context.Background()
	l, m := newMiniRedisLock(t)
	const key = "tablesync:test:run"
	ttl := 300 * time.Millisecond

	lease, err := l.Acquire(ctx, "run", ttl)
	if err != nil {
		t.Fatalf("加锁失败：%v", err)
	}
	m.FastForward(200 * time.Millisecond)

	deadline := time.Now().Add(3 * time.Second)
	for m.TTL(key) <= 200*time.Millisecond {
		if time.Now().After(deadline) {
			t.Fatalf("租约未被续期，剩余 TTL=%v", m.TTL(key))
		}
		time.Sleep(10 * time.Millisecond)
	}
	m.FastForward(250 * time.Millisecond)
	if !m.Exists(key) {
		t.Fatalf("续期后 key 不应在原 TTL 到期时消失")
	}

	if err := lease.Release(ctx); err != nil {
		t.Fatalf("释放失败：%v", err)
	}
	if m.Exists(key) {
		t.Fatalf("释放后 key 应被删除")
	}
}
