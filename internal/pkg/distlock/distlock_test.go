package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRedisLock_AcquireRelease(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()
	mgr := NewManager(client, nil)

	l1 := mgr.TenantLock("ws_a", "operator", 5*time.Minute)
	ok, err := l1.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("first acquire = (%v, %v), want (true, nil)", ok, err)
	}

	// A second instance of the same lock cannot acquire while held.
	l2 := mgr.TenantLock("ws_a", "operator", 5*time.Minute)
	ok, err = l2.Acquire(ctx)
	if err != nil {
		t.Fatalf("second acquire error: %v", err)
	}
	if ok {
		t.Fatal("second acquire succeeded while lock held")
	}

	if err := l1.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, _ = l2.Acquire(ctx)
	if !ok {
		t.Fatal("acquire failed after release")
	}
}

func TestRedisLock_TenantsAreIndependent(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()
	mgr := NewManager(client, nil)

	la := mgr.TenantLock("ws_a", "operator", time.Minute)
	lb := mgr.TenantLock("ws_b", "operator", time.Minute)

	if ok, _ := la.Acquire(ctx); !ok {
		t.Fatal("ws_a acquire failed")
	}
	if ok, _ := lb.Acquire(ctx); !ok {
		t.Fatal("ws_b acquire blocked by ws_a lock")
	}
}

func TestRedisLock_ReleaseOnlyIfOwned(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()

	l1 := NewRedisLock(client, "tenant:ws_a:operator", time.Minute)
	if ok, _ := l1.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}

	// A different instance (different ownership value) must not release it.
	l2 := NewRedisLock(client, "tenant:ws_a:operator", time.Minute)
	if err := l2.Release(ctx); err != nil {
		t.Fatalf("foreign release errored: %v", err)
	}
	if !mr.Exists("lock:tenant:ws_a:operator") {
		t.Fatal("foreign Release deleted a lock it did not own")
	}
}

func TestRedisLock_TTLExpiry(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()

	l := NewRedisLock(client, "tenant:ws_a:operator", 30*time.Second)
	if ok, _ := l.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}

	// Simulate a crashed holder: the server-enforced TTL frees the tenant.
	mr.FastForward(31 * time.Second)

	l2 := NewRedisLock(client, "tenant:ws_a:operator", 30*time.Second)
	if ok, _ := l2.Acquire(ctx); !ok {
		t.Fatal("acquire failed after TTL expiry")
	}
}

func TestRedisLock_Extend(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()

	l := NewRedisLock(client, "tenant:ws_a:operator", 10*time.Second)
	if ok, _ := l.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}
	if err := l.Extend(ctx, time.Minute); err != nil {
		t.Fatalf("extend: %v", err)
	}
	mr.FastForward(30 * time.Second)
	if !mr.Exists("lock:tenant:ws_a:operator") {
		t.Fatal("lock expired despite Extend")
	}
}

func TestAcquireWithRetry(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()

	holder := NewRedisLock(client, "tenant:ws_a:operator", time.Minute)
	if ok, _ := holder.Acquire(ctx); !ok {
		t.Fatal("setup acquire failed")
	}

	contender := NewRedisLock(client, "tenant:ws_a:operator", time.Minute)
	ok, err := AcquireWithRetry(ctx, contender, 1)
	if err != nil {
		t.Fatalf("AcquireWithRetry error: %v", err)
	}
	if ok {
		t.Fatal("AcquireWithRetry succeeded against a held lock")
	}

	holder.Release(ctx)
	ok, err = AcquireWithRetry(ctx, contender, 1)
	if err != nil || !ok {
		t.Fatalf("AcquireWithRetry = (%v, %v) after release, want (true, nil)", ok, err)
	}
}
