package market

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// collectSettles runs a scheduler whose settle func records order ids.
type collectSettles struct {
	mu  sync.Mutex
	ids []int64
	err error
}

func (c *collectSettles) settle(ctx context.Context, orderID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, orderID)
	return c.err
}

func (c *collectSettles) settled() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.ids...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestScheduler_SettlesInDeadlineOrder(t *testing.T) {
	c := &collectSettles{}
	s := newScheduler(c.settle, zap.NewNop().Sugar())

	// All three deadlines are already past, added out of order.
	now := time.Now()
	s.Add(3, now.Add(-time.Second))
	s.Add(1, now.Add(-3*time.Second))
	s.Add(2, now.Add(-2*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	waitFor(t, func() bool { return len(c.settled()) == 3 })
	got := c.settled()
	want := []int64{1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("settled order %v, want %v", got, want)
		}
	}
}

func TestScheduler_SettlesExactlyOnce(t *testing.T) {
	c := &collectSettles{}
	s := newScheduler(c.settle, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Add(7, time.Now().Add(-time.Millisecond))
	waitFor(t, func() bool { return len(c.settled()) == 1 })

	// Give the loop a chance to misfire before checking.
	time.Sleep(50 * time.Millisecond)
	if got := c.settled(); len(got) != 1 || got[0] != 7 {
		t.Fatalf("settled %v, want exactly one settlement of order 7", got)
	}
}

func TestScheduler_WakesForEarlierDeadline(t *testing.T) {
	c := &collectSettles{}
	s := newScheduler(c.settle, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	// The scheduler sleeps towards a far deadline; a nearer one must not wait
	// behind it.
	s.Add(1, time.Now().Add(time.Hour))
	time.Sleep(20 * time.Millisecond)
	s.Add(2, time.Now().Add(10*time.Millisecond))

	waitFor(t, func() bool {
		got := c.settled()
		return len(got) == 1 && got[0] == 2
	})
}

func TestScheduler_FailedSettlementDoesNotStopSweep(t *testing.T) {
	c := &collectSettles{err: errors.New("store unavailable")}
	s := newScheduler(c.settle, zap.NewNop().Sugar())

	now := time.Now()
	s.Add(1, now.Add(-2*time.Second))
	s.Add(2, now.Add(-time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	// Both settlements are attempted despite the first one failing.
	waitFor(t, func() bool { return len(c.settled()) == 2 })
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	c := &collectSettles{}
	s := newScheduler(c.settle, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on context cancel")
	}
}
