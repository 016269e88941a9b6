package promise

import (
	"errors"
	"testing"
)

func TestAll_ResolvesInOrder(t *testing.T) {
	r := newTestRealm(t)
	p1, resolve1, _ := r.New()
	p2, resolve2, _ := r.New()
	p3 := r.Resolve("c")

	var got Result
	r.All([]*Promise{p1, p2, p3}).Then(func(v Result) Result { got = v; return nil }, nil)

	// Settle out of order; the result must follow input order.
	resolve2("b")
	resolve1("a")
	r.Queue().Drain()

	values, ok := got.([]Result)
	if !ok || len(values) != 3 {
		t.Fatalf("expected 3 values, got %#v", got)
	}
	if values[0] != "a" || values[1] != "b" || values[2] != "c" {
		t.Fatalf("expected input order [a b c], got %v", values)
	}
}

func TestAll_RejectsOnFirstRejection(t *testing.T) {
	r := newTestRealm(t)
	boom := errors.New("boom")
	p1, _, reject1 := r.New()
	p2, resolve2, _ := r.New()

	var caught Result
	r.All([]*Promise{p1, p2}).Catch(func(reason Result) Result { caught = reason; return nil })

	reject1(boom)
	resolve2("too late to matter")
	r.Queue().Drain()

	if caught != boom {
		t.Fatalf("expected boom, got %v", caught)
	}
}

func TestAll_Empty(t *testing.T) {
	r := newTestRealm(t)
	var got Result
	r.All(nil).Then(func(v Result) Result { got = v; return nil }, nil)
	r.Queue().Drain()

	values, ok := got.([]Result)
	if !ok || len(values) != 0 {
		t.Fatalf("expected empty slice, got %#v", got)
	}
}

func TestRace_FirstSettlementWins(t *testing.T) {
	r := newTestRealm(t)
	p1, resolve1, _ := r.New()
	p2, _, reject2 := r.New()

	var got Result
	p := r.Race([]*Promise{p1, p2})
	p.Then(func(v Result) Result { got = v; return nil }, nil)

	resolve1("winner")
	reject2("loser")
	r.Queue().Drain()

	if p.State() != Fulfilled || got != "winner" {
		t.Fatalf("expected winner, got %v (%v)", got, p.State())
	}
}

func TestRace_EmptyStaysPending(t *testing.T) {
	r := newTestRealm(t)
	p := r.Race(nil)
	r.Queue().Drain()
	if s := p.State(); s != Pending {
		t.Fatalf("expected pending, got %v", s)
	}
}

func TestAllSettled_CollectsBothOutcomes(t *testing.T) {
	r := newTestRealm(t)
	boom := errors.New("boom")
	p1 := r.Resolve(1)
	p2 := r.Reject(boom)

	var got Result
	r.AllSettled([]*Promise{p1, p2}).Then(func(v Result) Result { got = v; return nil }, nil)
	r.Queue().Drain()

	outcomes, ok := got.([]Outcome)
	if !ok || len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %#v", got)
	}
	if outcomes[0].Status != "fulfilled" || outcomes[0].Value != 1 {
		t.Fatalf("unexpected first outcome: %+v", outcomes[0])
	}
	if outcomes[1].Status != "rejected" || outcomes[1].Reason != boom {
		t.Fatalf("unexpected second outcome: %+v", outcomes[1])
	}
}

func TestAny_FirstFulfillmentWins(t *testing.T) {
	r := newTestRealm(t)
	p1 := r.Reject(errors.New("nope"))
	p2, resolve2, _ := r.New()

	var got Result
	r.Any([]*Promise{p1, p2}).Then(func(v Result) Result { got = v; return nil }, nil)

	resolve2("eventually")
	r.Queue().Drain()

	if got != "eventually" {
		t.Fatalf("expected eventually, got %v", got)
	}
}

func TestAny_AllRejectedAggregates(t *testing.T) {
	r := newTestRealm(t)
	p1 := r.Reject(errors.New("first"))
	p2 := r.Reject("second")

	var caught Result
	r.Any([]*Promise{p1, p2}).Catch(func(reason Result) Result { caught = reason; return nil })
	r.Queue().Drain()

	agg, ok := caught.(*AggregateError)
	if !ok {
		t.Fatalf("expected AggregateError, got %#v", caught)
	}
	if len(agg.Errors) != 2 {
		t.Fatalf("expected 2 collected errors, got %d", len(agg.Errors))
	}
	if agg.Errors[0].Error() != "first" {
		t.Fatalf("expected rejection order preserved, got %v", agg.Errors)
	}
}
