package generator

import (
	"github.com/vireojs/vireo/coroutine"
	"github.com/vireojs/vireo/promise"
)

// requestKind discriminates the three async generator operations.
type requestKind int

const (
	kindNext requestKind = iota
	kindReturn
	kindThrow
)

// request is one queued async generator operation together with the
// capability to settle its result promise.
type request struct {
	arg     coroutine.Result
	err     error
	resolve promise.ResolveFunc
	reject  promise.RejectFunc
	kind    requestKind
}

// AsyncGenerator composes a [Generator], a promise realm, and an internal
// FIFO request queue. Each of Next/Return/Throw returns a promise of an
// [IterResult]; concurrent calls issued before earlier ones settle are
// queued and resolve strictly in arrival order, regardless of which caller
// won the race to call first.
//
// At most one request is ever in flight against the underlying generator.
// Yielded thenables are awaited through the job queue before the request
// settles; an awaited rejection is thrown back into the frame at the
// suspension point, so body cleanup runs.
//
// Like everything in the promise realm, an AsyncGenerator is confined to
// the owner thread of the realm's job queue.
type AsyncGenerator struct {
	gen   *Generator
	realm *promise.Realm

	// queue holds requests not yet driven; the head is in flight when
	// inFlight is set.
	queue    []request
	inFlight bool

	// done records a terminal outcome; requests arriving afterwards settle
	// without re-entering the frame.
	done bool
}

// NewAsync creates an async generator for body, bound to realm.
func NewAsync(realm *promise.Realm, body coroutine.Body) *AsyncGenerator {
	return &AsyncGenerator{
		gen:   New(body),
		realm: realm,
	}
}

// Next requests the next iteration result, resuming the body with v as the
// pending yield's value. The returned promise fulfills with an
// [IterResult] or rejects with the body's thrown error.
func (ag *AsyncGenerator) Next(v coroutine.Result) *promise.Promise {
	return ag.enqueue(request{kind: kindNext, arg: v})
}

// Return requests completion as if `return v` occurred at the suspension
// point; body cleanup runs before the returned promise settles.
func (ag *AsyncGenerator) Return(v coroutine.Result) *promise.Promise {
	return ag.enqueue(request{kind: kindReturn, arg: v})
}

// Throw injects err at the suspension point. The returned promise rejects
// with err unless the body handles it and yields again.
func (ag *AsyncGenerator) Throw(err error) *promise.Promise {
	return ag.enqueue(request{kind: kindThrow, err: err})
}

// enqueue appends a request with a fresh result promise and starts driving
// the queue if idle.
func (ag *AsyncGenerator) enqueue(req request) *promise.Promise {
	p, resolve, reject := ag.realm.New()
	req.resolve = resolve
	req.reject = reject
	ag.queue = append(ag.queue, req)
	ag.pump()
	return p
}

// pump drives queued requests while none is in flight. It runs on the
// owner thread, either directly from enqueue or from an await job.
func (ag *AsyncGenerator) pump() {
	for !ag.inFlight && len(ag.queue) > 0 {
		req := ag.queue[0]
		ag.queue = ag.queue[1:]

		if ag.done {
			ag.settleCompleted(req)
			continue
		}

		ag.inFlight = true
		ag.step(req)
	}
}

// step invokes the matching generator operation for req and processes the
// outcome. The generator call is synchronous; only awaiting a yielded
// thenable defers.
func (ag *AsyncGenerator) step(req request) {
	var res IterResult
	var err error
	switch req.kind {
	case kindReturn:
		res, err = ag.gen.Return(req.arg)
	case kindThrow:
		res, err = ag.gen.Throw(req.err)
	default:
		res, err = ag.gen.Next(req.arg)
	}
	ag.deliver(req, res, err)
}

// deliver settles req from a generator outcome, awaiting yielded thenables
// and flushing queued requests on a terminal outcome.
func (ag *AsyncGenerator) deliver(req request, res IterResult, err error) {
	if err != nil {
		// Terminal throw: this request rejects; everything queued behind it
		// settles with the terminal outcome, never re-entering the frame.
		ag.finishTerminal(func() { req.reject(err) }, err)
		return
	}

	if res.Done {
		ag.finishTerminal(func() { req.resolve(res) }, nil)
		return
	}

	// A yielded value is awaited before the request settles, matching the
	// implicit await of `yield` in an async generator body. Non-thenable
	// values take the same path, so settlement order is uniformly driven by
	// the job queue.
	awaited := ag.realm.Resolve(res.Value)
	awaited.Then(
		func(v promise.Result) promise.Result {
			req.resolve(IterResult{Value: v, Done: false})
			ag.inFlight = false
			ag.pump()
			return nil
		},
		func(reason promise.Result) promise.Result {
			// The awaited operand rejected: throw it back into the frame at
			// the suspension point so cleanup runs, then settle this same
			// request with whatever the frame does next.
			next, nerr := ag.gen.Throw(asError(reason))
			ag.deliver(req, next, nerr)
			return nil
		},
	)
}

// finishTerminal records the terminal outcome, settles the in-flight
// request via settleHead, and flushes the remaining queue.
func (ag *AsyncGenerator) finishTerminal(settleHead func(), terminalErr error) {
	ag.done = true
	settleHead()

	queued := ag.queue
	ag.queue = nil
	for _, q := range queued {
		if terminalErr != nil {
			q.reject(terminalErr)
		} else {
			ag.settleCompleted(q)
		}
	}

	ag.inFlight = false
}

// settleCompleted settles a request against a generator that has already
// completed normally, mirroring the synchronous completed-generator rules.
func (ag *AsyncGenerator) settleCompleted(req request) {
	switch req.kind {
	case kindReturn:
		req.resolve(IterResult{Value: req.arg, Done: true})
	case kindThrow:
		req.reject(req.err)
	default:
		req.resolve(IterResult{Value: nil, Done: true})
	}
}

// asError normalizes a rejection reason for re-injection into the frame.
func asError(reason promise.Result) error {
	if err, ok := reason.(error); ok {
		return err
	}
	return &promise.ErrorWrapper{Value: reason}
}
