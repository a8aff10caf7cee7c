/**
 * @description
 * This file implements the outbound request queue: the single admission-control
 * point for every call the gateway makes to the upstream exchange API. The
 * exchange enforces a hard global request-per-second ceiling shared by all
 * concurrent users of this process, so centralizing throttling here is the only
 * way to guarantee the limit holds no matter how many handlers are in flight.
 *
 * A single dispatcher goroutine drains the queue. Each dispatch slot is paced
 * by a token bucket (golang.org/x/time/rate) configured below the documented
 * ceiling; within a slot the highest-priority entry wins, FIFO within equal
 * priority. Status checks rank above create calls so users watching a transfer
 * are not starved by new submissions.
 *
 * @dependencies
 * - container-free linear selection over a mutex-guarded slice; queue depth is
 *   bounded by concurrent callers, each of which is suspended awaiting a result.
 * - golang.org/x/time/rate: dispatch cadence.
 * - pkg/exchangeclient: transient/terminal classification of upstream errors.
 */

package app

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/shieldswap/gateway-service/pkg/exchangeclient"
	"golang.org/x/time/rate"
)

// Operations admitted through the queue.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationStatus Operation = "status"
)

// Dispatch priorities. Higher dispatches first.
const (
	PriorityCreate = 10
	PriorityStatus = 20
)

// ErrQueueClosed is returned to callers whose entries were still queued when
// the process began shutting down.
var ErrQueueClosed = errors.New("outbound queue closed")

// UpstreamCall is the unit of work admitted through the queue. The context it
// receives is a detached per-attempt context with a bounded timeout, not the
// caller's: a dispatched create call must not be abandoned just because the
// client disconnected, since the upstream may already have committed a deposit
// address that has to be surfaced eventually.
type UpstreamCall func(ctx context.Context) (interface{}, error)

type callResult struct {
	value interface{}
	err   error
}

type queueEntry struct {
	operation  Operation
	priority   int
	seq        uint64
	callerCtx  context.Context
	call       UpstreamCall
	attempts   int
	notBefore  time.Time
	enqueuedAt time.Time
	result     chan callResult
}

func (e *queueEntry) deliver(value interface{}, err error) {
	// Buffered by one; if the caller already gave up, the result is dropped.
	select {
	case e.result <- callResult{value: value, err: err}:
	default:
	}
}

// OutboundQueueConfig carries the queue's tunables.
type OutboundQueueConfig struct {
	// RequestsPerSecond is the effective dispatch rate for this instance,
	// already reduced below the documented upstream ceiling for headroom and
	// divided across instances.
	RequestsPerSecond float64
	// CallTimeout bounds each individual upstream attempt.
	CallTimeout time.Duration
	// MaxAttempts caps retries of transient failures, initial attempt included.
	MaxAttempts int
	// RetryBaseDelay seeds the exponential backoff between attempts.
	RetryBaseDelay time.Duration
}

// OutboundQueue serializes and throttles all upstream calls. It is process-wide
// singleton state: initialized once at startup, closed once at shutdown.
type OutboundQueue struct {
	cfg     OutboundQueueConfig
	limiter *rate.Limiter

	mu      sync.Mutex
	entries []*queueEntry
	seq     uint64
	closed  bool

	wake chan struct{}
	done chan struct{}
	loop sync.WaitGroup
}

// NewOutboundQueue constructs the queue. Start must be called before Enqueue
// resolves anything.
func NewOutboundQueue(cfg OutboundQueueConfig) *OutboundQueue {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	return &OutboundQueue{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Start launches the dispatcher goroutine.
func (q *OutboundQueue) Start() {
	q.loop.Add(1)
	go q.dispatchLoop()
}

// Close stops the dispatcher and fails every still-queued entry with
// ErrQueueClosed. Calls already dispatched run to completion.
func (q *OutboundQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	abandoned := q.entries
	q.entries = nil
	q.mu.Unlock()

	close(q.done)
	q.loop.Wait()

	for _, entry := range abandoned {
		entry.deliver(nil, ErrQueueClosed)
	}
	if len(abandoned) > 0 {
		log.Printf("level=warn component=outbound_queue msg=\"abandoned queued entries on shutdown\" count=%d", len(abandoned))
	}
}

// Depth reports the number of queued-but-undispatched entries.
func (q *OutboundQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Enqueue admits an upstream call and suspends the caller until it resolves.
// There is no depth limit: callers are never rejected for being too many, they
// simply wait longer. A caller that stops waiting only removes its entry while
// it is still undispatched.
func (q *OutboundQueue) Enqueue(ctx context.Context, op Operation, priority int, call UpstreamCall) (interface{}, error) {
	entry := &queueEntry{
		operation:  op,
		priority:   priority,
		callerCtx:  ctx,
		call:       call,
		enqueuedAt: time.Now(),
		result:     make(chan callResult, 1),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrQueueClosed
	}
	q.seq++
	entry.seq = q.seq
	q.entries = append(q.entries, entry)
	q.mu.Unlock()
	q.signal()

	select {
	case res := <-entry.result:
		return res.value, res.err
	case <-ctx.Done():
		q.remove(entry)
		return nil, ctx.Err()
	}
}

func (q *OutboundQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// remove drops an entry if it is still queued. Dispatched entries are left alone.
func (q *OutboundQueue) remove(target *queueEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, entry := range q.entries {
		if entry == target {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return
		}
	}
}

// next pops the dispatchable entry with the highest priority (FIFO within equal
// priority), discarding entries whose callers have gone away before they spend
// any rate budget. When nothing is ready it returns the wait until the earliest
// backoff gate, or -1 if the queue is empty.
func (q *OutboundQueue) next(now time.Time) (*queueEntry, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.entries[:0]
	for _, entry := range q.entries {
		if entry.callerCtx.Err() != nil {
			entry.deliver(nil, entry.callerCtx.Err())
			continue
		}
		kept = append(kept, entry)
	}
	q.entries = kept

	bestIdx := -1
	wait := time.Duration(-1)
	for i, entry := range q.entries {
		if entry.notBefore.After(now) {
			until := entry.notBefore.Sub(now)
			if wait < 0 || until < wait {
				wait = until
			}
			continue
		}
		if bestIdx < 0 {
			bestIdx = i
			continue
		}
		best := q.entries[bestIdx]
		if entry.priority > best.priority || (entry.priority == best.priority && entry.seq < best.seq) {
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return nil, wait
	}

	entry := q.entries[bestIdx]
	q.entries = append(q.entries[:bestIdx], q.entries[bestIdx+1:]...)
	return entry, 0
}

func (q *OutboundQueue) dispatchLoop() {
	defer q.loop.Done()

	dispatchCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-q.done
		cancel()
	}()

	for {
		entry, wait := q.next(time.Now())
		if entry == nil {
			if wait < 0 {
				select {
				case <-q.done:
					return
				case <-q.wake:
				}
			} else {
				timer := time.NewTimer(wait)
				select {
				case <-q.done:
					timer.Stop()
					return
				case <-q.wake:
					timer.Stop()
				case <-timer.C:
				}
			}
			continue
		}

		// One dispatch slot per 1/rate interval.
		if err := q.limiter.Wait(dispatchCtx); err != nil {
			entry.deliver(nil, ErrQueueClosed)
			return
		}

		go q.execute(entry)
	}
}

// execute runs a single upstream attempt. Transient failures re-enter the queue
// behind an exponential backoff gate until the attempt cap; everything else
// resolves the waiting caller immediately.
func (q *OutboundQueue) execute(entry *queueEntry) {
	// The caller may have gone away while this entry sat in the dispatch slot
	// waiting for a token. Undispatched means undispatched.
	if err := entry.callerCtx.Err(); err != nil {
		entry.deliver(nil, err)
		return
	}

	attemptCtx, cancel := context.WithTimeout(context.Background(), q.cfg.CallTimeout)
	defer cancel()

	value, err := entry.call(attemptCtx)
	entry.attempts++

	if err != nil && exchangeclient.IsRetryable(err) && entry.attempts < q.cfg.MaxAttempts {
		delay := q.cfg.RetryBaseDelay << (entry.attempts - 1)
		entry.notBefore = time.Now().Add(delay)
		log.Printf("level=warn component=outbound_queue op=%s msg=\"transient upstream failure; retrying\" attempt=%d delay_ms=%d err=%v",
			entry.operation, entry.attempts, delay.Milliseconds(), err)

		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			entry.deliver(nil, ErrQueueClosed)
			return
		}
		q.entries = append(q.entries, entry)
		q.mu.Unlock()
		q.signal()
		return
	}

	if err != nil {
		log.Printf("level=warn component=outbound_queue op=%s msg=\"upstream call failed\" attempts=%d queued_ms=%d err=%v",
			entry.operation, entry.attempts, time.Since(entry.enqueuedAt).Milliseconds(), err)
	}
	entry.deliver(value, err)
}
