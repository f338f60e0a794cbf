package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func exerciseMutualExclusion(t *testing.T, l Locker) {
	t.Helper()
	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "contact:hr")
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxSeen)
	}
}

func TestKeyedMutex_MutualExclusion(t *testing.T) {
	k := NewKeyedMutex()
	exerciseMutualExclusion(t, k)
	if k.Len() != 0 {
		t.Errorf("Len = %d after all unlocks, want 0", k.Len())
	}
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	k := NewKeyedMutex()
	unlockA, err := k.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("Lock a: %v", err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := k.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("Lock b should not wait for a: %v", err)
	}
	unlockB()
}

func TestKeyedMutex_ContextCancel(t *testing.T) {
	k := NewKeyedMutex()
	unlock, _ := k.Lock(context.Background(), "fp")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := k.Lock(ctx, "fp"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}

	unlock()
	unlock() // second call is a no-op
	if k.Len() != 0 {
		t.Errorf("Len = %d, want 0", k.Len())
	}
}

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	l := NewRedisLocker(client, "jobrelay:lock:", time.Minute)
	l.poll = 2 * time.Millisecond
	return l, mr
}

func TestRedisLocker_MutualExclusion(t *testing.T) {
	l, _ := newRedisLocker(t)
	exerciseMutualExclusion(t, l)
}

func TestRedisLocker_ReleaseOnlyOwnToken(t *testing.T) {
	l, mr := newRedisLocker(t)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "fp")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	// Simulate expiry and takeover by another process.
	mr.Set("jobrelay:lock:fp", "someone-else")
	unlock()

	got, err := mr.Get("jobrelay:lock:fp")
	if err != nil || got != "someone-else" {
		t.Errorf("foreign lock released: value %q, err %v", got, err)
	}
}

func TestRedisLocker_TTLAndContext(t *testing.T) {
	l, mr := newRedisLocker(t)

	unlock, err := l.Lock(context.Background(), "fp")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if ttl := mr.TTL("jobrelay:lock:fp"); ttl != time.Minute {
		t.Errorf("TTL = %v, want 1m", ttl)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "fp"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}

	unlock()
	if mr.Exists("jobrelay:lock:fp") {
		t.Error("key still present after unlock")
	}
}

func TestRedisLocker_RenewsLeaseWhileHeld(t *testing.T) {
	l, mr := newRedisLocker(t)
	l.ttl = 300 * time.Millisecond
	l.refresh = 50 * time.Millisecond
	const key = "jobrelay:lock:opportunity:fp"

	unlock, err := l.Lock(context.Background(), "opportunity:fp")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	// Past the original TTL in total, with renewals in between.
	mr.FastForward(250 * time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	mr.FastForward(250 * time.Millisecond)

	if !mr.Exists(key) {
		t.Fatal("lease expired while the lock was held")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "opportunity:fp"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("second Lock err = %v, want DeadlineExceeded while held", err)
	}

	unlock()
	if mr.Exists(key) {
		t.Error("key still present after unlock")
	}
	time.Sleep(120 * time.Millisecond)
	if mr.Exists(key) {
		t.Error("key reappeared after unlock")
	}
}

func TestRedisLocker_StopsRenewingForeignKey(t *testing.T) {
	l, mr := newRedisLocker(t)
	l.ttl = 300 * time.Millisecond
	l.refresh = 20 * time.Millisecond
	const key = "jobrelay:lock:fp"

	unlock, err := l.Lock(context.Background(), "fp")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer unlock()

	// Expired and taken by another process, which set no TTL.
	mr.Set(key, "someone-else")
	time.Sleep(100 * time.Millisecond)

	if ttl := mr.TTL(key); ttl != 0 {
		t.Errorf("TTL = %v on a foreign key, want none", ttl)
	}
}
