package concurrent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestMapPreservesOrder(t *testing.T) {
	items := []int{5, 1, 4, 2, 3}
	got, err := Map(context.Background(), items, 2, func(_ context.Context, n int) (int, error) {
		time.Sleep(time.Duration(n) * time.Millisecond)
		return n * n, nil
	})
	if err != nil {
		t.Fatalf("Map returned error: %v", err)
	}
	want := []int{25, 1, 16, 4, 9}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("result %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestMapRespectsLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	items := make([]int, 12)
	_, err := Map(context.Background(), items, 3, func(context.Context, int) (int, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return 0, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if peak.Load() > 3 {
		t.Fatalf("expected at most 3 concurrent calls, saw %d", peak.Load())
	}
}

func TestMapReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Map(context.Background(), []int{1, 2, 3}, 3, func(_ context.Context, n int) (int, error) {
		if n == 2 {
			return 0, boom
		}
		return n, nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestForEachCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ForEach(ctx, []int{1, 2}, 1, func(context.Context, int) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestMapEmpty(t *testing.T) {
	got, err := Map(context.Background(), []string(nil), 1, func(context.Context, string) (int, error) {
		t.Fatal("fn must not be called")
		return 0, nil
	})
	if got != nil || err != nil {
		t.Fatalf("expected nil, nil; got %v, %v", got, err)
	}
}
