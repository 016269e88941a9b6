// Package generator implements the iteration state machines of the runtime:
// the synchronous [Generator] over a coroutine frame, and the
// [AsyncGenerator] that delivers the same protocol through promises, with
// concurrent calls serialized by an internal request queue.
package generator

import (
	"github.com/vireojs/vireo/coroutine"
	"github.com/vireojs/vireo/errs"
)

// State is the lifecycle state of a [Generator], modeled as an explicit
// tagged variant so operation validity is a transition check, not a
// scattering of sentinel tests.
type State int32

const (
	// SuspendedStart indicates the generator was created but the body has
	// not started.
	SuspendedStart State = iota
	// SuspendedYield indicates the body is paused at a yield.
	SuspendedYield
	// Executing indicates the body is running; every operation is a usage
	// error in this state.
	Executing
	// Completed indicates the body finished; the frame is released and is
	// never re-entered.
	Completed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case SuspendedStart:
		return "SuspendedStart"
	case SuspendedYield:
		return "SuspendedYield"
	case Executing:
		return "Executing"
	case Completed:
		return "Completed"
	default:
		return "Unknown"
	}
}

// IterResult is the {value, done} record produced by every generator
// operation.
type IterResult struct {
	// Value is the yielded or returned value; nil plays the role of
	// `undefined` on a completed generator.
	Value coroutine.Result
	// Done reports whether the generator has completed.
	Done bool
}

// Generator is a synchronous iteration state machine wrapping one coroutine
// frame. It is created suspended; the body does not run until the first
// [Generator.Next].
type Generator struct {
	co *coroutine.Coroutine
	// lastYield holds the most recently yielded value while suspended.
	lastYield coroutine.Result
	state     State
}

// New creates a generator for body in the SuspendedStart state.
func New(body coroutine.Body) *Generator {
	return &Generator{co: coroutine.New(body)}
}

// State returns the current generator state.
func (g *Generator) State() State {
	return g.state
}

// Next resumes the generator with v as the result of the pending yield
// expression (ignored on the first call), running the body until its next
// yield or completion.
//
// On a Completed generator, Next returns {nil, true} without re-entering
// the frame. On an Executing generator it fails with a TypeError.
func (g *Generator) Next(v coroutine.Result) (IterResult, error) {
	if err := g.checkResumable(); err != nil {
		return IterResult{}, err
	}
	if g.state == Completed {
		return IterResult{Value: nil, Done: true}, nil
	}
	return g.drive(func() (coroutine.Outcome, error) {
		return g.co.Resume(v)
	})
}

// Return forces the generator to complete as if `return v` occurred at the
// suspension point. Pending cleanup (deferred blocks) in the body runs
// exactly once; the cleanup may override the returned value via its own
// return or throw.
//
// On a Completed generator, Return settles immediately with {v, true}
// without re-entering the frame.
func (g *Generator) Return(v coroutine.Result) (IterResult, error) {
	if err := g.checkResumable(); err != nil {
		return IterResult{}, err
	}
	if g.state == Completed {
		return IterResult{Value: v, Done: true}, nil
	}
	return g.drive(func() (coroutine.Outcome, error) {
		return g.co.ForceReturn(v)
	})
}

// Throw injects err at the suspension point. The body observes it as the
// error result of its pending yield and may handle it (yielding again) or
// propagate it (completing the generator).
//
// On a Completed generator, Throw re-raises err without entering the frame.
func (g *Generator) Throw(err error) (IterResult, error) {
	if cerr := g.checkResumable(); cerr != nil {
		return IterResult{}, cerr
	}
	if g.state == Completed {
		return IterResult{}, err
	}
	return g.drive(func() (coroutine.Outcome, error) {
		return g.co.ThrowInto(err)
	})
}

// checkResumable rejects operations on an executing generator. Reentrancy
// is illegal, reported synchronously as a usage error.
func (g *Generator) checkResumable() error {
	if g.state == Executing {
		return errs.NewTypeError("generator: generator is already executing")
	}
	return nil
}

// drive performs one resumption via op and applies the resulting state
// transition.
func (g *Generator) drive(op func() (coroutine.Outcome, error)) (IterResult, error) {
	prev := g.state
	g.state = Executing

	out, err := op()
	if err != nil {
		// Usage error from the frame layer; no transition happened.
		g.state = prev
		return IterResult{}, err
	}

	if out.Done {
		g.state = Completed
		if out.Err != nil {
			return IterResult{}, out.Err
		}
		return IterResult{Value: out.Value, Done: true}, nil
	}

	g.state = SuspendedYield
	g.lastYield = out.Value
	return IterResult{Value: out.Value, Done: false}, nil
}
