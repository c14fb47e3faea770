package keylock

import (
	"sync"
	"testing"
)

func TestTryAcquireAndRelease(t *testing.T) {
	t.Parallel()

	arena := NewArena()

	if !arena.TryAcquire("liquorland") {
		t.Fatalf("fresh key must acquire")
	}
	if arena.TryAcquire("liquorland") {
		t.Fatalf("held key must not acquire twice")
	}
	if !arena.TryAcquire("bottleo") {
		t.Fatalf("different keys are independent")
	}

	arena.Release("liquorland")
	if !arena.TryAcquire("liquorland") {
		t.Fatalf("released key must acquire again")
	}
}

func TestReleaseUnheldIsNoop(t *testing.T) {
	t.Parallel()

	arena := NewArena()
	arena.Release("never-held")
	if arena.Held("never-held") {
		t.Fatalf("unheld key must not be reported held")
	}
}

func TestConcurrentAcquireGrantsOnce(t *testing.T) {
	t.Parallel()

	arena := NewArena()
	const attempts = 64

	var wg sync.WaitGroup
	wins := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if arena.TryAcquire("contested") {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly one winner, got %d", count)
	}
}
