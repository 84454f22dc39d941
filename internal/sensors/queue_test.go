package sensors

import (
	"sync"
	"testing"
	"time"
)

func TestQueuePushAndDrainOrder(t *testing.T) {
	q := NewQueue[int](10)
	for i := 1; i <= 3; i++ {
		if !q.Push(i) {
			t.Fatalf("push %d rejected with capacity to spare", i)
		}
	}

	got := q.Drain()
	want := []int{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("drained %d items, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("drain[%d] = %d, want %d", i, got[i], want[i])
		}
	}
	if q.Len() != 0 {
		t.Fatalf("queue not empty after drain, len = %d", q.Len())
	}
}

func TestQueueDropsNewestWhenFull(t *testing.T) {
	q := NewQueue[int](2)
	q.Push(1)
	q.Push(2)

	if q.Push(3) {
		t.Fatal("push accepted on a full queue")
	}

	got := q.Drain()
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("drain = %v, want [1 2]", got)
	}
	if q.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", q.Dropped())
	}
}

func TestQueueProducerNeverBlocks(t *testing.T) {
	q := NewQueue[int](1)
	q.Push(1)

	done := make(chan struct{})
	go func() {
		// No consumer: every push must return immediately.
		for i := 0; i < 1000; i++ {
			q.Push(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producer blocked on a full queue")
	}
}

func TestQueueConcurrentPush(t *testing.T) {
	q := NewQueue[int](100)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				q.Push(i)
			}
		}()
	}
	wg.Wait()

	if got := q.Len(); got != 100 {
		t.Fatalf("len = %d, want 100", got)
	}
	if got := q.Dropped(); got != 300 {
		t.Fatalf("dropped = %d, want 300", got)
	}
}
