package market

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type expiryEntry struct {
	at      time.Time
	orderID int64
}

type expiryHeap []expiryEntry

func (h expiryHeap) Len() int           { return len(h) }
func (h expiryHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h expiryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *expiryHeap) Push(x any) { *h = append(*h, x.(expiryEntry)) }

func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}

// Scheduler tracks order deadlines and settles each exactly once. An entry
// is removed from the schedule before its settlement transaction runs, so a
// failed settlement is logged and never retried automatically.
type Scheduler struct {
	mu   sync.Mutex
	h    expiryHeap
	wake chan struct{}

	settle func(ctx context.Context, orderID int64) error
	log    *zap.SugaredLogger
}

func newScheduler(settle func(ctx context.Context, orderID int64) error, log *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		wake:   make(chan struct{}, 1),
		settle: settle,
		log:    log,
	}
}

// Add schedules an order for settlement at its deadline. Deadlines in the
// past fire on the next pass.
func (s *Scheduler) Add(orderID int64, at time.Time) {
	s.mu.Lock()
	heap.Push(&s.h, expiryEntry{at: at, orderID: orderID})
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run drives settlement until ctx is cancelled. It sleeps until the earliest
// deadline and wakes early when an earlier order is added.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		now := time.Now()

		s.mu.Lock()
		var due []int64
		for len(s.h) > 0 && !s.h[0].at.After(now) {
			due = append(due, heap.Pop(&s.h).(expiryEntry).orderID)
		}
		wait := time.Duration(-1)
		if len(s.h) > 0 {
			wait = time.Until(s.h[0].at)
		}
		s.mu.Unlock()

		// Each order settles in its own transaction; one failure is isolated
		// from the rest of the sweep.
		for _, orderID := range due {
			if err := s.settle(ctx, orderID); err != nil {
				s.log.Errorw("failed to settle expired order, left open for attention",
					"order", orderID, "error", err)
			}
		}

		if wait < 0 {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
			}
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}
