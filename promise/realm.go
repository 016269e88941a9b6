package promise

import (
	"github.com/joeycumines/logiface"

	"github.com/vireojs/vireo/errs"
	"github.com/vireojs/vireo/jobqueue"
)

// RejectionHandler is a callback invoked when a rejected promise still has
// no rejection handler attached by the time the diagnostics job runs. The
// reason parameter contains the rejection reason/value. This follows the
// JavaScript unhandledrejection event pattern; reporting never aborts the
// job queue.
type RejectionHandler func(reason Result)

// RealmOption configures a [Realm] instance.
type RealmOption func(*Realm)

// WithUnhandledRejection configures a handler invoked for rejected promises
// that have no rejection handler attached after the queued reaction jobs for
// the rejection have been scheduled.
func WithUnhandledRejection(handler RejectionHandler) RealmOption {
	return func(r *Realm) {
		r.onUnhandled = handler
	}
}

// WithLogger attaches a structured logger used for unhandled rejection
// diagnostics. A nil logger is a safe no-op.
func WithLogger(log *logiface.Logger[logiface.Event]) RealmOption {
	return func(r *Realm) {
		r.log = log
	}
}

// Realm owns the promise machinery for one interpreter context: the job
// queue handle every reaction is dispatched through, promise identity, and
// unhandled-rejection tracking.
//
// A Realm and every promise created through it are confined to the owner
// thread of the underlying queue. Settlement from a foreign OS thread must
// cross over via [jobqueue.Queue.Post]; no promise method is safe to call
// concurrently. This is by construction, not by locking: the job queue is
// the only scheduler, so every structure here is touched by exactly one
// thread at a time.
type Realm struct {
	q           *jobqueue.Queue
	log         *logiface.Logger[logiface.Event]
	onUnhandled RejectionHandler

	nextID uint64

	// Rejected promises awaiting the diagnostics check, in rejection order.
	unhandled      []*Promise
	checkScheduled bool
}

// NewRealm creates a promise realm bound to the given job queue.
func NewRealm(q *jobqueue.Queue, opts ...RealmOption) *Realm {
	r := &Realm{q: q}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Queue returns the job queue all reactions in this realm dispatch through.
func (r *Realm) Queue() *jobqueue.Queue {
	return r.q
}

// New creates a new pending promise along with its resolve and reject
// functions.
//
// Only the first call to either function has an effect; subsequent calls
// are ignored. Both functions are owner-thread only, like every other
// promise operation.
func (r *Realm) New() (*Promise, ResolveFunc, RejectFunc) {
	p := r.newPromise()
	return p, p.resolve, p.reject
}

// NewWithExecutor creates a promise and immediately runs executor with its
// resolve and reject capabilities, mirroring `new Promise(executor)`. A
// panic inside the executor rejects the promise (first settlement wins).
func (r *Realm) NewWithExecutor(executor func(resolve ResolveFunc, reject RejectFunc)) *Promise {
	p := r.newPromise()
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				p.reject(recoveredReason(rec))
			}
		}()
		executor(p.resolve, p.reject)
	}()
	return p
}

// Resolve returns a promise resolved with the given value.
//
// If the value is a promise of this realm, it is returned as-is, matching
// Promise.resolve semantics.
func (r *Realm) Resolve(value Result) *Promise {
	if pr, ok := value.(*Promise); ok && pr.realm == r {
		return pr
	}
	p := r.newPromise()
	p.resolve(value)
	return p
}

// Reject returns a promise rejected with the given reason.
func (r *Realm) Reject(reason Result) *Promise {
	p := r.newPromise()
	p.reject(reason)
	return p
}

// Resolvers is the result of [Realm.WithResolvers]: a pending promise
// together with its settlement capabilities, mirroring the ES2024
// Promise.withResolvers() API.
type Resolvers struct {
	// Promise is the pending promise associated with this resolvers object.
	Promise *Promise

	// Resolve fulfills the Promise with a value. Calling it on an
	// already-settled promise has no effect.
	Resolve ResolveFunc

	// Reject rejects the Promise with a reason. Calling it on an
	// already-settled promise has no effect.
	Reject RejectFunc
}

// WithResolvers creates a pending promise along with its resolve and reject
// functions, for scenarios where the executor pattern is awkward.
func (r *Realm) WithResolvers() *Resolvers {
	p, resolve, reject := r.New()
	return &Resolvers{Promise: p, Resolve: resolve, Reject: reject}
}

func (r *Realm) newPromise() *Promise {
	r.nextID++
	return &Promise{realm: r, id: r.nextID}
}

// trackRejection records a freshly rejected promise and schedules the
// diagnostics job, at most one at a time. The job runs after the reaction
// jobs the rejection itself scheduled, so a handler attached in the same
// synchronous run (the common `p.Catch(...)` directly after rejection) is
// observed before any report fires.
func (r *Realm) trackRejection(p *Promise) {
	if r.onUnhandled == nil && r.log == nil {
		return
	}
	r.unhandled = append(r.unhandled, p)
	if r.checkScheduled {
		return
	}
	r.checkScheduled = true
	r.q.Enqueue(r.checkUnhandled)
}

// checkUnhandled reports rejections that still have no handler.
func (r *Realm) checkUnhandled() {
	pending := r.unhandled
	r.unhandled = nil
	r.checkScheduled = false

	for _, p := range pending {
		if p.rejectionHandled {
			continue
		}
		r.log.Warning().Uint64(`promise`, p.id).Any(`reason`, p.result).Log(`promise: unhandled rejection`)
		if r.onUnhandled != nil {
			r.onUnhandled(p.result)
		}
	}
}

// recoveredReason normalizes a recovered panic value into a rejection
// reason, preserving error values as-is.
func recoveredReason(rec any) Result {
	if err, ok := rec.(error); ok {
		return err
	}
	return errs.PanicError{Value: rec}
}
