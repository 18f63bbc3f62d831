package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestPoolVisitsEverySliceOnce(t *testing.T) {
	for _, workers := range []int{1, 3, 16} {
		seen := make([]int32, 10)
		err := NewPool(workers).Slices(context.Background(), len(seen), func(s int) error {
			atomic.AddInt32(&seen[s], 1)
			return nil
		})
		if err != nil {
			t.Fatalf("workers=%d: %v", workers, err)
		}
		for s, n := range seen {
			if n != 1 {
				t.Fatalf("workers=%d: slice %d visited %d times", workers, s, n)
			}
		}
	}
}

func TestPoolPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	for _, workers := range []int{1, 4} {
		err := NewPool(workers).Slices(context.Background(), 8, func(s int) error {
			if s == 5 {
				return boom
			}
			return nil
		})
		if !errors.Is(err, boom) {
			t.Fatalf("workers=%d: error = %v, want boom", workers, err)
		}
	}
}

func TestPoolStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := NewPool(2).Slices(ctx, 4, func(int) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("Slices on cancelled ctx: err=%v called=%v", err, called)
	}
}

func TestPoolDefaultsWorkers(t *testing.T) {
	if NewPool(0).Workers() < 1 {
		t.Fatalf("NewPool(0) has no workers")
	}
	var p *Pool
	if p.Workers() != 1 {
		t.Fatalf("nil pool should report one worker")
	}
}
