package promise

import (
	"errors"
	"testing"

	"github.com/vireojs/vireo/errs"
	"github.com/vireojs/vireo/jobqueue"
)

func newTestRealm(t *testing.T, opts ...RealmOption) *Realm {
	t.Helper()
	return NewRealm(jobqueue.New(), opts...)
}

func TestState_PendingToFulfilled(t *testing.T) {
	r := newTestRealm(t)
	p, resolve, _ := r.New()

	if s := p.State(); s != Pending {
		t.Fatalf("expected Pending, got %v", s)
	}
	resolve("success")
	if s := p.State(); s != Fulfilled {
		t.Fatalf("expected Fulfilled, got %v", s)
	}
	if v := p.Value(); v != "success" {
		t.Fatalf("expected success, got %v", v)
	}
}

func TestState_SettleOnce(t *testing.T) {
	r := newTestRealm(t)
	p, resolve, reject := r.New()

	resolve("first")
	reject("late rejection")
	resolve("late resolution")

	if s := p.State(); s != Fulfilled {
		t.Fatalf("expected Fulfilled, got %v", s)
	}
	if v := p.Value(); v != "first" {
		t.Fatalf("expected first settlement to win, got %v", v)
	}
}

// TestThen_AlwaysDeferred verifies that a reaction registered on an
// already-settled promise still waits for the queue to drain. A handler
// running inline would log 'a' before 'b'.
func TestThen_AlwaysDeferred(t *testing.T) {
	r := newTestRealm(t)
	var log []string

	p := r.Resolve(1)
	p.Then(func(Result) Result {
		log = append(log, "a")
		return nil
	}, nil)
	log = append(log, "b")

	r.Queue().Drain()
	if len(log) != 2 || log[0] != "b" || log[1] != "a" {
		t.Fatalf("expected [b a], got %v", log)
	}
}

func TestThen_Chaining(t *testing.T) {
	r := newTestRealm(t)
	var got Result

	r.Resolve(1).
		Then(func(v Result) Result { return v.(int) + 1 }, nil).
		Then(func(v Result) Result { return v.(int) * 10 }, nil).
		Then(func(v Result) Result { got = v; return nil }, nil)

	r.Queue().Drain()
	if got != 20 {
		t.Fatalf("expected 20, got %v", got)
	}
}

func TestThen_RejectionSkipsFulfillHandlers(t *testing.T) {
	r := newTestRealm(t)
	boom := errors.New("boom")
	var caught Result

	r.Reject(boom).
		Then(func(v Result) Result {
			t.Error("fulfill handler ran on rejected promise")
			return nil
		}, nil).
		Catch(func(reason Result) Result {
			caught = reason
			return nil
		})

	r.Queue().Drain()
	if caught != boom {
		t.Fatalf("expected boom to propagate, got %v", caught)
	}
}

func TestThen_HandlerPanicRejects(t *testing.T) {
	r := newTestRealm(t)
	var caught Result

	r.Resolve(1).
		Then(func(Result) Result { panic("handler exploded") }, nil).
		Catch(func(reason Result) Result {
			caught = reason
			return nil
		})

	r.Queue().Drain()
	var pe errs.PanicError
	if !errors.As(asErr(t, caught), &pe) || pe.Value != "handler exploded" {
		t.Fatalf("expected PanicError, got %#v", caught)
	}
}

func asErr(t *testing.T, v Result) error {
	t.Helper()
	err, ok := v.(error)
	if !ok {
		t.Fatalf("expected error reason, got %#v", v)
	}
	return err
}

// TestResolve_SelfCycle verifies 2.3.1: resolving a promise with itself
// rejects with a TypeError.
func TestResolve_SelfCycle(t *testing.T) {
	r := newTestRealm(t)
	p, resolve, _ := r.New()
	resolve(p)

	var caught Result
	p.Catch(func(reason Result) Result { caught = reason; return nil })
	r.Queue().Drain()

	var te *errs.TypeError
	if !errors.As(asErr(t, caught), &te) {
		t.Fatalf("expected TypeError for self-resolution, got %#v", caught)
	}
}

// TestResolve_Adoption verifies 2.3.2: resolving with another promise
// defers to that promise's eventual settlement.
func TestResolve_Adoption(t *testing.T) {
	r := newTestRealm(t)
	inner, resolveInner, _ := r.New()
	outer, resolveOuter, _ := r.New()

	resolveOuter(inner)
	r.Queue().Drain()
	if s := outer.State(); s != Pending {
		t.Fatalf("expected outer to stay pending, got %v", s)
	}

	resolveInner(42)
	r.Queue().Drain()
	if outer.State() != Fulfilled || outer.Value() != 42 {
		t.Fatalf("expected adoption of 42, got %v %v", outer.State(), outer.Value())
	}
}

type testThenable struct {
	value Result
}

func (tt *testThenable) Then(resolve func(Result), reject func(Result)) {
	resolve(tt.value)
}

func TestResolve_Thenable(t *testing.T) {
	r := newTestRealm(t)
	p, resolve, _ := r.New()
	resolve(&testThenable{value: "unwrapped"})

	var got Result
	p.Then(func(v Result) Result { got = v; return nil }, nil)
	r.Queue().Drain()
	if got != "unwrapped" {
		t.Fatalf("expected thenable to be unwrapped, got %v", got)
	}
}

type misbehavingThenable struct{}

func (misbehavingThenable) Then(resolve func(Result), reject func(Result)) {
	resolve(1)
	resolve(2)
	reject("late")
}

// TestResolve_ThenableCallsOnce verifies that only the first callback
// invocation by a thenable takes effect.
func TestResolve_ThenableCallsOnce(t *testing.T) {
	r := newTestRealm(t)
	p, resolve, _ := r.New()
	resolve(misbehavingThenable{})

	r.Queue().Drain()
	if p.State() != Fulfilled || p.Value() != 1 {
		t.Fatalf("expected first resolution to win, got %v %v", p.State(), p.Value())
	}
}

type panickyThenable struct{}

func (panickyThenable) Then(resolve func(Result), reject func(Result)) {
	panic("thenable blew up")
}

func TestResolve_ThenablePanicRejects(t *testing.T) {
	r := newTestRealm(t)
	p, resolve, _ := r.New()
	resolve(panickyThenable{})
	p.Catch(func(Result) Result { return nil })

	r.Queue().Drain()
	if p.State() != Rejected {
		t.Fatalf("expected rejection, got %v", p.State())
	}
}

func TestFinally_RunsOnBothOutcomes(t *testing.T) {
	r := newTestRealm(t)
	runs := 0

	r.Resolve(1).Finally(func() { runs++ })
	p := r.Reject(errors.New("boom")).Finally(func() { runs++ })
	p.Catch(func(Result) Result { return nil })

	r.Queue().Drain()
	if runs != 2 {
		t.Fatalf("expected finally to run twice, ran %d times", runs)
	}
}

func TestFinally_PassesThroughValue(t *testing.T) {
	r := newTestRealm(t)
	var got Result

	r.Resolve("kept").
		Finally(func() {}).
		Then(func(v Result) Result { got = v; return nil }, nil)

	r.Queue().Drain()
	if got != "kept" {
		t.Fatalf("expected value to pass through finally, got %v", got)
	}
}

func TestNewWithExecutor_PanicRejects(t *testing.T) {
	r := newTestRealm(t)
	p := r.NewWithExecutor(func(resolve ResolveFunc, reject RejectFunc) {
		panic("executor blew up")
	})
	p.Catch(func(Result) Result { return nil })

	if p.State() != Rejected {
		t.Fatalf("expected rejection, got %v", p.State())
	}
}

func TestUnhandledRejection_Reported(t *testing.T) {
	var reported []Result
	r := newTestRealm(t, WithUnhandledRejection(func(reason Result) {
		reported = append(reported, reason)
	}))

	r.Reject("nobody listens")
	r.Queue().Drain()

	if len(reported) != 1 || reported[0] != "nobody listens" {
		t.Fatalf("expected one unhandled rejection, got %v", reported)
	}
}

func TestUnhandledRejection_HandledInTime(t *testing.T) {
	var reported []Result
	r := newTestRealm(t, WithUnhandledRejection(func(reason Result) {
		reported = append(reported, reason)
	}))

	p := r.Reject("caught below")
	p.Catch(func(Result) Result { return nil })
	r.Queue().Drain()

	if len(reported) != 0 {
		t.Fatalf("expected no unhandled rejections, got %v", reported)
	}
}
