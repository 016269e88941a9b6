// Package promise implements the settle-once completion value of the
// runtime: a state machine over Pending/Fulfilled/Rejected whose reactions
// are always dispatched through the job queue, even when the promise is
// already settled. Execution-order guarantees depend on that deferral.
package promise

import (
	"github.com/vireojs/vireo/errs"
)

// Result represents the value of a fulfilled or rejected promise. For
// fulfilled promises this holds the success value; for rejected promises it
// typically holds an error or rejection reason.
type Result = any

// State represents the lifecycle state of a [Promise]. A promise starts
// Pending and transitions exactly once to Fulfilled or Rejected; the
// transition never reverses and the result never changes afterwards.
type State int32

const (
	// Pending indicates the operation is still in progress.
	Pending State = iota
	// Fulfilled indicates the promise completed successfully with a value.
	Fulfilled
	// Rejected indicates the promise failed with a reason.
	Rejected
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Fulfilled:
		return "Fulfilled"
	case Rejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// ResolveFunc fulfills a promise with a value. Calling it on an
// already-settled promise has no effect.
type ResolveFunc func(Result)

// RejectFunc rejects a promise with a reason. Calling it on an
// already-settled promise has no effect.
type RejectFunc func(Result)

// Handler transforms a settlement value. A nil handler passes the
// settlement through to the derived promise unchanged.
type Handler func(Result) Result

// Thenable is a value exposing a then-capability. Resolving a promise with
// a Thenable chains through it instead of settling immediately: the
// capability is invoked from a job with resolve and reject functions for
// the promise under resolution.
//
// The resolution procedure tolerates a Then implementation that panics
// (the promise rejects, unless a settlement already happened), that invokes
// both callbacks or one of them twice (the second call is a no-op), or that
// never settles (the promise stays pending).
type Thenable interface {
	Then(resolve func(Result), reject func(Result))
}

// reaction is a pending response to settlement: a pair of handlers plus the
// capability to settle the derived promise.
type reaction struct {
	onFulfilled Handler
	onRejected  Handler
	target      *Promise
}

// Promise is a settle-once completion value. All methods are owner-thread
// only; see [Realm] for the confinement rules.
type Promise struct {
	realm  *Realm
	result Result
	// reactions appended by Then/Catch/Finally while pending, consumed at
	// settlement. Each is scheduled exactly once.
	reactions []reaction
	id        uint64
	state     State
	// rejectionHandled records that a rejection handler was attached, for
	// unhandled-rejection diagnostics.
	rejectionHandled bool
}

// State returns the current [State] of this promise.
func (p *Promise) State() State {
	return p.state
}

// Value returns the fulfillment value, or nil if the promise is pending or
// rejected. A fulfilled promise can legitimately hold a nil value.
func (p *Promise) Value() Result {
	if p.state == Fulfilled {
		return p.result
	}
	return nil
}

// Reason returns the rejection reason, or nil if the promise is pending or
// fulfilled.
func (p *Promise) Reason() Result {
	if p.state == Rejected {
		return p.result
	}
	return nil
}

// Then adds reactions to be dispatched when the promise settles, returning
// a new derived promise that settles with the result of the handler that
// ran (or with the pass-through settlement for a nil handler).
//
// Handler invocation is always deferred to the job queue, even when this
// promise is already settled. A handler that panics rejects the derived
// promise with the panic value.
func (p *Promise) Then(onFulfilled, onRejected Handler) *Promise {
	child := p.realm.newPromise()
	p.addReaction(reaction{
		onFulfilled: onFulfilled,
		onRejected:  onRejected,
		target:      child,
	})
	if onRejected != nil {
		p.rejectionHandled = true
	}
	return child
}

// Catch adds a rejection handler, equivalent to Then(nil, onRejected).
func (p *Promise) Catch(onRejected Handler) *Promise {
	return p.Then(nil, onRejected)
}

// Finally adds a callback that runs regardless of how the promise settles,
// then forwards the original outcome to the returned promise.
//
// The callback receives no arguments and its return value is ignored. If it
// panics, the panic is discarded and the original settlement is still
// forwarded: cleanup must not silently swallow the result it was cleaning
// up after.
func (p *Promise) Finally(onFinally func()) *Promise {
	if onFinally == nil {
		onFinally = func() {}
	}

	child := p.realm.newPromise()

	forward := func(res Result, rejected bool) {
		defer func() {
			if rec := recover(); rec != nil {
				if rejected {
					child.reject(res)
				} else {
					child.resolve(res)
				}
			}
		}()
		onFinally()
		if rejected {
			child.reject(res)
		} else {
			child.resolve(res)
		}
	}

	p.addReaction(reaction{
		onFulfilled: func(v Result) Result {
			forward(v, false)
			return nil // child settled manually
		},
		onRejected: func(r Result) Result {
			forward(r, true)
			return nil // child settled manually
		},
	})
	p.rejectionHandled = true
	return child
}

// addReaction attaches a reaction. Already-settled promises schedule it
// immediately; pending promises store it for settlement.
func (p *Promise) addReaction(h reaction) {
	if p.state != Pending {
		p.scheduleReaction(h, p.state, p.result)
		return
	}
	p.reactions = append(p.reactions, h)
}

// scheduleReaction enqueues a reaction for execution on the job queue.
// Each reaction record is scheduled exactly once.
func (p *Promise) scheduleReaction(h reaction, state State, result Result) {
	p.realm.q.Enqueue(func() {
		runReaction(h, state, result)
	})
}

// runReaction runs a single reaction with the source settlement.
func runReaction(h reaction, state State, result Result) {
	var fn Handler
	if state == Fulfilled {
		fn = h.onFulfilled
	} else {
		fn = h.onRejected
	}

	// No handler for this settlement: pass through to the target.
	if fn == nil {
		if h.target == nil {
			return
		}
		if state == Fulfilled {
			h.target.resolve(result)
		} else {
			h.target.reject(result)
		}
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			if h.target != nil {
				h.target.reject(recoveredReason(rec))
			}
		}
	}()

	res := fn(result)
	if h.target != nil {
		h.target.resolve(res)
	}
}

// resolve fulfills the promise with value, or chains through it when value
// is itself a promise or thenable.
func (p *Promise) resolve(value Result) {
	if p.state != Pending {
		return
	}

	// Self-resolution would deadlock the chain; reject with a TypeError.
	if pr, ok := value.(*Promise); ok && pr == p {
		p.reject(errs.NewTypeError("promise: chaining cycle detected for promise #%d", p.id))
		return
	}

	// Adopt the state of another promise.
	if pr, ok := value.(*Promise); ok {
		pr.addReaction(reaction{target: p})
		// Adoption consumes the rejection through this promise's chain.
		pr.rejectionHandled = true
		return
	}

	// Chain through a then-capability, from a job.
	if t, ok := value.(Thenable); ok {
		p.realm.q.Enqueue(func() {
			p.resolveThenable(t)
		})
		return
	}

	p.settle(Fulfilled, value)
}

// resolveThenable invokes a then-capability with single-settlement guards.
func (p *Promise) resolveThenable(t Thenable) {
	var called bool
	resolveOnce := func(v Result) {
		if called {
			return
		}
		called = true
		p.resolve(v)
	}
	rejectOnce := func(r Result) {
		if called {
			return
		}
		called = true
		p.reject(r)
	}

	defer func() {
		if rec := recover(); rec != nil {
			rejectOnce(recoveredReason(rec))
		}
	}()
	t.Then(resolveOnce, rejectOnce)
}

// reject settles the promise as rejected with reason.
func (p *Promise) reject(reason Result) {
	if p.state != Pending {
		return
	}
	p.settle(Rejected, reason)
	p.realm.trackRejection(p)
}

// settle performs the single, irreversible state transition and schedules
// every stored reaction.
func (p *Promise) settle(state State, result Result) {
	reactions := p.reactions
	p.reactions = nil
	p.state = state
	p.result = result

	for _, h := range reactions {
		p.scheduleReaction(h, state, result)
	}
}
