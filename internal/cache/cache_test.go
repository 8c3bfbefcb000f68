package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryGetSetDelete(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	if _, err := c.Get(ctx, "missing"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}

	if err := c.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	val, err := c.Get(ctx, "k")
	if err != nil || string(val) != "v" {
		t.Fatalf("get: %q, %v", val, err)
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
}

func TestMemoryTTLExpiry(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestMemoryIncrementSetsTTLOnFirstIncrementOnly(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	v, err := c.Increment(ctx, "ctr", 1, 50*time.Millisecond)
	if err != nil || v != 1 {
		t.Fatalf("first increment: %d, %v", v, err)
	}
	v, err = c.Increment(ctx, "ctr", 1, 10*time.Hour)
	if err != nil || v != 2 {
		t.Fatalf("second increment: %d, %v", v, err)
	}

	time.Sleep(60 * time.Millisecond)
	if _, err := c.Get(ctx, "ctr"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected counter to expire per first-increment TTL, got %v", err)
	}
}

func TestMemoryIncrementConcurrentIsAtomic(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	const n = 200
	done := make(chan struct{})
	for i := 0; i < n; i++ {
		go func() {
			_, _ = c.Increment(ctx, "concurrent", 1, 0)
			done <- struct{}{}
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}

	val, err := c.Get(ctx, "concurrent")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if decodeInt(val) != n {
		t.Fatalf("expected %d, got %s", n, val)
	}
}

func TestMemoryCompareAndSwap(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	ok, err := c.CompareAndSwap(ctx, "cas", nil, []byte("1"), 0)
	if err != nil || !ok {
		t.Fatalf("expected swap on absent key, got ok=%v err=%v", ok, err)
	}

	ok, err = c.CompareAndSwap(ctx, "cas", []byte("wrong"), []byte("2"), 0)
	if err != nil || ok {
		t.Fatalf("expected swap to fail on mismatch, got ok=%v err=%v", ok, err)
	}

	ok, err = c.CompareAndSwap(ctx, "cas", []byte("1"), []byte("2"), 0)
	if err != nil || !ok {
		t.Fatalf("expected swap to succeed on match, got ok=%v err=%v", ok, err)
	}
}

func TestMemorySetMembership(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	for _, m := range []string{"a", "b", "c"} {
		if err := c.SetAdd(ctx, "set", m, 0); err != nil {
			t.Fatalf("setadd: %v", err)
		}
	}
	size, err := c.SetSize(ctx, "set")
	if err != nil || size != 3 {
		t.Fatalf("expected size 3, got %d, %v", size, err)
	}

	if err := c.SetRemove(ctx, "set", "b"); err != nil {
		t.Fatalf("setremove: %v", err)
	}
	members, err := c.SetMembers(ctx, "set")
	if err != nil {
		t.Fatalf("setmembers: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %v", members)
	}
}

func TestMemoryDeletePattern(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	_ = c.Set(ctx, "ratelimit:route:a", []byte("1"), 0)
	_ = c.Set(ctx, "ratelimit:route:b", []byte("1"), 0)
	_ = c.Set(ctx, "other:key", []byte("1"), 0)

	if err := c.DeletePattern(ctx, "ratelimit:route:*"); err != nil {
		t.Fatalf("deletepattern: %v", err)
	}
	if _, err := c.Get(ctx, "other:key"); err != nil {
		t.Fatalf("unrelated key should survive: %v", err)
	}
	if _, err := c.Get(ctx, "ratelimit:route:a"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected pattern-matched key to be gone")
	}
}

func TestMemoryPubSubOrderingPerTopic(t *testing.T) {
	c := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, unsub, err := c.Subscribe(ctx, "topic/1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	for i := 0; i < 5; i++ {
		if err := c.Publish(ctx, "topic/1", []byte{byte(i)}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	for i := 0; i < 5; i++ {
		select {
		case m := <-msgs:
			if m[0] != byte(i) {
				t.Fatalf("expected FIFO order, got %d at position %d", m[0], i)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestMemoryPubSubDoesNotCrossTopics(t *testing.T) {
	c := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgsA, unsubA, _ := c.Subscribe(ctx, "topic/a")
	defer unsubA()
	msgsB, unsubB, _ := c.Subscribe(ctx, "topic/b")
	defer unsubB()

	_ = c.Publish(ctx, "topic/a", []byte("for-a"))

	select {
	case m := <-msgsA:
		if string(m) != "for-a" {
			t.Fatalf("unexpected payload: %s", m)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out")
	}

	select {
	case m := <-msgsB:
		t.Fatalf("topic b should not have received anything, got %s", m)
	case <-time.After(20 * time.Millisecond):
	}
}

var _ Cache = (*Memory)(nil)
