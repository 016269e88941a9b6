package jobqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/logiface"
)

// Standard errors.
var (
	// ErrQueueClosed is returned when jobs are posted to a closed queue.
	ErrQueueClosed = errors.New("jobqueue: queue is closed")
)

// Job is a zero-argument deferred callback. Jobs are the only mechanism by
// which deferred work ever runs: promise reactions, async generator turn
// advancement, and waitAsync settlement are all delivered as jobs.
type Job func()

// Queue is a FIFO queue of deferred callbacks, owned by a single interpreter
// context. It is created per context and passed by handle into every
// component that needs to defer work; it is never process-global.
//
// Two lanes exist:
//
//   - [Queue.Enqueue] appends from the owner thread. This is the ordinary
//     path for promise reactions and is not safe for concurrent use.
//   - [Queue.Post] appends from any OS thread. This is the sole legitimate
//     bridge from real-thread events (an Atomics wakeup, a timer) into the
//     single-threaded job model. Posted jobs are absorbed into the FIFO at
//     the next [Queue.Drain].
//
// Exactly one goroutine may call Enqueue and Drain; that goroutine is the
// queue's owner for its lifetime.
type Queue struct {
	log *logiface.Logger[logiface.Event]

	// Owner-thread FIFO. head indexes the next job to run; the slice is
	// compacted when it empties.
	jobs []Job
	head int

	// draining guards against nested Drain calls. Owner-thread only, so a
	// plain bool suffices.
	draining bool

	// Cross-thread ingress lane.
	ingressMu sync.Mutex
	ingress   []Job

	// wake is signalled (capacity 1, non-blocking send) whenever a job is
	// posted from a foreign thread, so a host loop blocked in Serve can
	// resume draining.
	wake chan struct{}

	closed atomic.Bool
}

// Option configures a Queue instance.
type Option func(*Queue)

// WithLogger attaches a structured logger used for job panic diagnostics.
// A nil logger is a safe no-op.
func WithLogger(log *logiface.Logger[logiface.Event]) Option {
	return func(q *Queue) {
		q.log = log
	}
}

// New creates an empty job queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		wake: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q
}

// Enqueue appends a job to the tail of the queue. Nil jobs are ignored.
//
// Enqueue must only be called from the owner thread (typically from inside a
// running job, or from the interpreter between drains). Use [Queue.Post] from
// any other thread.
func (q *Queue) Enqueue(job Job) {
	if job == nil {
		return
	}
	q.jobs = append(q.jobs, job)
}

// Post appends a job from any OS thread. The job is absorbed into the FIFO
// at the next Drain, after all jobs already queued at that point.
//
// Returns [ErrQueueClosed] if the queue has been closed; the job is dropped
// in that case.
func (q *Queue) Post(job Job) error {
	if job == nil {
		return nil
	}
	if q.closed.Load() {
		return ErrQueueClosed
	}

	q.ingressMu.Lock()
	q.ingress = append(q.ingress, job)
	q.ingressMu.Unlock()

	// Re-check after the push: a concurrent Close may have raced the first
	// check. The job stays queued either way; Close drains nothing, it only
	// rejects future posts.
	if q.closed.Load() {
		return ErrQueueClosed
	}

	q.signalWake()
	return nil
}

// signalWake performs a non-blocking send on the wake channel.
func (q *Queue) signalWake() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Wakeup returns the channel signalled when cross-thread work arrives.
// Intended for host loop integration; [Queue.Serve] uses it internally.
func (q *Queue) Wakeup() <-chan struct{} {
	return q.wake
}

// absorb moves posted jobs into the owner FIFO, preserving post order.
func (q *Queue) absorb() {
	q.ingressMu.Lock()
	posted := q.ingress
	q.ingress = nil
	q.ingressMu.Unlock()

	q.jobs = append(q.jobs, posted...)
}

// Drain pops and runs jobs until the queue is empty, including jobs newly
// enqueued (or posted) by jobs that ran during this drain: it runs to
// fixpoint. A nested Drain while one is in progress is a no-op; the outer
// drain picks up whatever the nested caller expected to run.
//
// A panic inside one job is isolated to that job, logged, and does not stop
// the queue.
func (q *Queue) Drain() {
	if q.draining {
		return
	}
	q.draining = true
	defer func() { q.draining = false }()

	for {
		q.absorb()
		if q.head >= len(q.jobs) {
			// Fixpoint: nothing queued and nothing posted.
			q.jobs = q.jobs[:0]
			q.head = 0
			return
		}
		job := q.jobs[q.head]
		q.jobs[q.head] = nil
		q.head++
		q.runJob(job)
	}
}

// Len reports the number of jobs currently queued on the owner FIFO plus any
// posted jobs not yet absorbed.
func (q *Queue) Len() int {
	q.ingressMu.Lock()
	posted := len(q.ingress)
	q.ingressMu.Unlock()
	return len(q.jobs) - q.head + posted
}

// Close marks the queue closed. Subsequent Post calls fail with
// [ErrQueueClosed]; jobs already queued remain drainable. Close wakes any
// host loop blocked on the wake channel so it can observe the closure.
func (q *Queue) Close() {
	if q.closed.CompareAndSwap(false, true) {
		q.signalWake()
	}
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	return q.closed.Load()
}

// Serve drains the queue, then blocks until cross-thread work arrives or ctx
// is cancelled, draining again on each wakeup. It returns ctx.Err() on
// cancellation, or nil once the queue is closed and fully drained.
//
// Serve must be called from the owner thread; it is the minimal host loop
// for contexts that have no loop of their own.
func (q *Queue) Serve(ctx context.Context) error {
	for {
		q.Drain()
		if q.closed.Load() {
			// Absorb any post that won the race with Close.
			q.Drain()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.wake:
		}
	}
}

// runJob executes a single job with panic isolation.
func (q *Queue) runJob(job Job) {
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok {
				q.log.Err().Err(err).Log(`jobqueue: job panicked`)
			} else {
				q.log.Err().Any(`recovered`, r).Log(`jobqueue: job panicked`)
			}
		}
	}()
	job()
}
