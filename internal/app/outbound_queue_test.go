package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shieldswap/gateway-service/pkg/exchangeclient"
)

func newTestQueue(rps float64, maxAttempts int, retryBase time.Duration) *OutboundQueue {
	q := NewOutboundQueue(OutboundQueueConfig{
		RequestsPerSecond: rps,
		CallTimeout:       time.Second,
		MaxAttempts:       maxAttempts,
		RetryBaseDelay:    retryBase,
	})
	q.Start()
	return q
}

func TestOutboundQueue_DispatchesCall(t *testing.T) {
	q := newTestQueue(100, 1, time.Millisecond)
	defer q.Close()

	value, err := q.Enqueue(context.Background(), OperationCreate, PriorityCreate, func(ctx context.Context) (interface{}, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if value != "ok" {
		t.Fatalf("expected value ok, got %v", value)
	}
}

func TestOutboundQueue_StatusDispatchesBeforeCreate(t *testing.T) {
	// Entries are stacked before the dispatcher starts: the status entry
	// enqueued last must still win the first dispatch slot.
	q := NewOutboundQueue(OutboundQueueConfig{
		RequestsPerSecond: 100,
		CallTimeout:       time.Second,
		MaxAttempts:       1,
		RetryBaseDelay:    time.Millisecond,
	})

	var mu sync.Mutex
	var order []Operation
	record := func(op Operation) UpstreamCall {
		return func(ctx context.Context) (interface{}, error) {
			mu.Lock()
			order = append(order, op)
			mu.Unlock()
			return nil, nil
		}
	}

	var wg sync.WaitGroup
	queued := 0
	enqueue := func(op Operation, priority int) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Enqueue(context.Background(), op, priority, record(op))
		}()
		// Wait for the goroutine to register its entry so seq order is fixed.
		queued++
		for q.Depth() < queued {
			time.Sleep(5 * time.Millisecond)
		}
	}

	enqueue(OperationCreate, PriorityCreate)
	enqueue(OperationCreate, PriorityCreate)
	enqueue(OperationStatus, PriorityStatus)

	q.Start()
	defer q.Close()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 {
		t.Fatalf("expected 3 dispatches, got %d", len(order))
	}
	if order[0] != OperationStatus {
		t.Fatalf("expected status dispatched first, got order %v", order)
	}
}

func TestOutboundQueue_RespectsDispatchRate(t *testing.T) {
	q := newTestQueue(10, 1, time.Millisecond)
	defer q.Close()

	const calls = 5
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Enqueue(context.Background(), OperationCreate, PriorityCreate, func(ctx context.Context) (interface{}, error) {
				return nil, nil
			})
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	// 5 calls at 10/s need at least 4 inter-dispatch gaps of 100ms. Allow
	// generous scheduling slack below the theoretical floor.
	if minimum := 280 * time.Millisecond; elapsed < minimum {
		t.Fatalf("dispatched %d calls in %v, faster than the configured rate allows", calls, elapsed)
	}
}

func TestOutboundQueue_RetriesTransientFailure(t *testing.T) {
	q := newTestQueue(100, 3, time.Millisecond)
	defer q.Close()

	var attempts int32
	value, err := q.Enqueue(context.Background(), OperationCreate, PriorityCreate, func(ctx context.Context) (interface{}, error) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return nil, &exchangeclient.APIError{StatusCode: http.StatusBadGateway}
		}
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if value != "recovered" {
		t.Fatalf("expected recovered value, got %v", value)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestOutboundQueue_DoesNotRetryClientErrors(t *testing.T) {
	q := newTestQueue(100, 3, time.Millisecond)
	defer q.Close()

	var attempts int32
	apiErr := &exchangeclient.APIError{StatusCode: http.StatusUnprocessableEntity, Message: "bad address"}
	_, err := q.Enqueue(context.Background(), OperationCreate, PriorityCreate, func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, apiErr
	})
	if !errors.Is(err, apiErr) {
		t.Fatalf("expected api error surfaced, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("expected exactly 1 attempt for a 4xx, got %d", got)
	}
}

func TestOutboundQueue_ExhaustsRetryBudget(t *testing.T) {
	q := newTestQueue(100, 3, time.Millisecond)
	defer q.Close()

	var attempts int32
	apiErr := &exchangeclient.APIError{StatusCode: http.StatusInternalServerError}
	_, err := q.Enqueue(context.Background(), OperationCreate, PriorityCreate, func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, apiErr
	})
	if !errors.Is(err, apiErr) {
		t.Fatalf("expected terminal api error after exhaustion, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("expected attempts capped at 3, got %d", got)
	}
}

func TestOutboundQueue_CanceledCallerSkipsDispatch(t *testing.T) {
	// 1/s: the first call consumes the initial token, leaving the canceled
	// entry parked long enough to be discarded before it spends rate budget.
	q := newTestQueue(1, 1, time.Millisecond)
	defer q.Close()

	blocker := make(chan struct{})
	go q.Enqueue(context.Background(), OperationCreate, PriorityCreate, func(ctx context.Context) (interface{}, error) {
		<-blocker
		return nil, nil
	})
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	var dispatched int32
	done := make(chan error, 1)
	go func() {
		_, err := q.Enqueue(ctx, OperationCreate, PriorityCreate, func(callCtx context.Context) (interface{}, error) {
			atomic.AddInt32(&dispatched, 1)
			return nil, nil
		})
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	err := <-done
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	close(blocker)
	// Outlast the next dispatch slot at 1/s to prove the canceled entry never runs.
	time.Sleep(1200 * time.Millisecond)
	if atomic.LoadInt32(&dispatched) != 0 {
		t.Fatal("canceled entry must never be dispatched")
	}
	if q.Depth() != 0 {
		t.Fatalf("expected empty queue after cancellation, depth=%d", q.Depth())
	}
}

func TestOutboundQueue_CloseFailsQueuedEntries(t *testing.T) {
	q := newTestQueue(1, 1, time.Millisecond)

	blocker := make(chan struct{})
	go q.Enqueue(context.Background(), OperationCreate, PriorityCreate, func(ctx context.Context) (interface{}, error) {
		<-blocker
		return nil, nil
	})
	time.Sleep(50 * time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := q.Enqueue(context.Background(), OperationCreate, PriorityCreate, func(ctx context.Context) (interface{}, error) {
			return nil, nil
		})
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)

	q.Close()
	close(blocker)

	if err := <-done; !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed for queued entry, got %v", err)
	}

	if _, err := q.Enqueue(context.Background(), OperationCreate, PriorityCreate, func(ctx context.Context) (interface{}, error) {
		return nil, nil
	}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed after Close, got %v", err)
	}
}
