// Package coroutine implements the suspension engine underneath generators:
// a function body that can pause at defined points and resume with an
// externally supplied value or exception, preserving all locals.
//
// The strategy is a dedicated goroutine per live frame with a strict
// two-token hand-off: the caller and the frame communicate over a pair of
// unbuffered channels, so exactly one of the two is runnable at any instant.
// There is no preemption and no shared mutable state between them; the
// hand-off IS the synchronization.
//
// Reentrant invocation while the frame is mid-run is a usage error reported
// synchronously, never a race.
package coroutine

import (
	"sync/atomic"

	"github.com/vireojs/vireo/errs"
)

// Result represents a value flowing into or out of a coroutine frame.
type Result = any

// Status is the lifecycle state of a coroutine frame.
type Status int32

const (
	// StatusCreated indicates the frame exists but the body has not run.
	StatusCreated Status = iota
	// StatusRunning indicates the body is executing between suspension points.
	StatusRunning
	// StatusSuspended indicates the body is paused at a suspension point.
	StatusSuspended
	// StatusDone indicates the body has completed; the frame is released.
	StatusDone
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "Created"
	case StatusRunning:
		return "Running"
	case StatusSuspended:
		return "Suspended"
	case StatusDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// resume message modes. modeAbandon is deliberately the zero value: a frame
// blocked on its start gate observes it when the input channel is closed.
type resumeMode int

const (
	modeAbandon resumeMode = iota
	modeResume
	modeThrow
	modeForceReturn
)

type resumeMsg struct {
	value Result
	err   error
	mode  resumeMode
}

// Outcome is the result of driving a frame to its next suspension point or
// to completion.
type Outcome struct {
	// Value is the yielded value (Done false) or the final result (Done true).
	Value Result
	// Err is the throw completion, when the body completed abruptly.
	Err error
	// Done reports whether the body ran to completion.
	Done bool
}

// Body is a coroutine function body. It receives a yield capability valid
// for the lifetime of the frame, and completes with either a normal result
// or an error (a throw completion).
type Body func(y *Yielder) (Result, error)

// Coroutine owns one saved resumption state: the goroutine parked either at
// the start gate or inside [Yielder.Yield]. Exactly one live resumption
// capability exists at a time, enforced with an atomic status.
type Coroutine struct {
	in     chan resumeMsg
	out    chan Outcome
	status atomic.Int32
}

// New creates a frame for body, suspended at its start. The body does not
// run until the first [Coroutine.Resume].
func New(body Body) *Coroutine {
	c := &Coroutine{
		in:  make(chan resumeMsg),
		out: make(chan Outcome),
	}
	go c.run(body)
	return c
}

// run is the frame goroutine.
func (c *Coroutine) run(body Body) {
	// Start gate: nothing executes until the first hand-off.
	msg, ok := <-c.in
	if !ok || msg.mode == modeAbandon {
		// Released without ever starting; the body never runs.
		c.status.Store(int32(StatusDone))
		return
	}

	var out Outcome
	switch msg.mode {
	case modeThrow:
		// Injected before the body started: complete abruptly, no cleanup
		// exists yet.
		out = Outcome{Err: msg.err, Done: true}
	case modeForceReturn:
		// Forced return before the body started: complete with the value.
		out = Outcome{Value: msg.value, Done: true}
	default:
		out = c.invoke(body)
	}

	c.status.Store(int32(StatusDone))
	c.out <- out
}

// invoke runs the body with panic handling for forced returns and stray
// panics.
func (c *Coroutine) invoke(body Body) (out Outcome) {
	out.Done = true
	defer func() {
		if r := recover(); r != nil {
			if fr, isForced := r.(forcedReturn); isForced {
				out.Value, out.Err = fr.value, nil
				return
			}
			if err, isErr := r.(error); isErr {
				out.Value, out.Err = nil, err
				return
			}
			out.Value, out.Err = nil, errs.PanicError{Value: r}
		}
	}()
	out.Value, out.Err = body(&Yielder{co: c})
	return
}

// Status returns the current frame status.
func (c *Coroutine) Status() Status {
	return Status(c.status.Load())
}

// Resume runs the frame until its next suspension point or to completion,
// with v as the result of the suspended yield expression (ignored on the
// first resume).
func (c *Coroutine) Resume(v Result) (Outcome, error) {
	return c.dispatch(resumeMsg{mode: modeResume, value: v})
}

// ThrowInto injects err at the suspension point. The body observes it as the
// error result of its pending yield; a frame that has not started completes
// abruptly with err without running the body.
func (c *Coroutine) ThrowInto(err error) (Outcome, error) {
	return c.dispatch(resumeMsg{mode: modeThrow, err: err})
}

// ForceReturn unwinds the frame as if `return v` occurred at the suspension
// point. Deferred cleanup in the body runs; the cleanup may override the
// outcome by panicking (a throw) or by calling [Return] (a return override).
func (c *Coroutine) ForceReturn(v Result) (Outcome, error) {
	return c.dispatch(resumeMsg{mode: modeForceReturn, value: v})
}

// Abandon releases a frame that never started, without running the body.
// It is a no-op on a frame that has already run or completed.
func (c *Coroutine) Abandon() {
	if c.status.CompareAndSwap(int32(StatusCreated), int32(StatusDone)) {
		close(c.in)
	}
}

// dispatch performs one hand-off: caller to frame, then frame back to
// caller. The CAS to StatusRunning serializes callers; a reentrant or
// post-completion call fails synchronously.
func (c *Coroutine) dispatch(msg resumeMsg) (Outcome, error) {
	for {
		current := Status(c.status.Load())
		switch current {
		case StatusRunning:
			return Outcome{}, errs.NewTypeError("coroutine: frame is already executing")
		case StatusDone:
			return Outcome{}, errs.NewTypeError("coroutine: frame has completed")
		}
		if c.status.CompareAndSwap(int32(current), int32(StatusRunning)) {
			break
		}
	}

	c.in <- msg
	out := <-c.out
	return out, nil
}

// forcedReturn is the unwind sentinel for ForceReturn and [Return].
type forcedReturn struct {
	value Result
}

// Return unwinds the calling coroutine body as if it returned v. It may be
// called from cleanup code (deferred functions) to override the value of a
// forced return in flight.
//
// Calling Return outside a coroutine body is a programming error; the panic
// escapes undecorated.
func Return(v Result) {
	panic(forcedReturn{value: v})
}

// Yielder is the suspension capability handed to a [Body]. It is only valid
// on the frame goroutine, for the lifetime of that frame.
type Yielder struct {
	co *Coroutine
}

// Yield suspends the frame, delivering v to the caller, and blocks until the
// frame is driven again:
//
//   - [Coroutine.Resume](u) returns (u, nil);
//   - [Coroutine.ThrowInto](err) returns (nil, err); the body decides
//     whether to handle the injected exception or propagate it by returning;
//   - [Coroutine.ForceReturn](v) does not return: it unwinds the body, so
//     deferred cleanup runs as if `return v` executed here.
func (y *Yielder) Yield(v Result) (Result, error) {
	c := y.co
	c.status.Store(int32(StatusSuspended))
	c.out <- Outcome{Value: v, Done: false}

	msg := <-c.in
	switch msg.mode {
	case modeThrow:
		return nil, msg.err
	case modeForceReturn:
		panic(forcedReturn{value: msg.value})
	default:
		return msg.value, nil
	}
}
