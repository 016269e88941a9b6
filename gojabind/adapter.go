// Package gojabind binds the vireo concurrency primitives to the Goja
// JavaScript runtime.
//
// After [Adapter.Bind], the following globals are available in JavaScript:
//
//   - SharedArrayBuffer(byteLength) : shared memory constructor
//   - Atomics : load/store/add/sub/and/or/xor/exchange/compareExchange,
//     isLockFree, wait, notify, waitAsync, pause
//   - queueMicrotask(callback) → undefined : defer a callback to the job
//     queue
//
// Atomics operations address shared buffers at 32-bit element granularity:
// Atomics.add(sab, index, value) operates on the index-th little-endian
// int32 of sab.
//
// # Thread Safety
//
// The Goja runtime is not thread-safe. All bindings except Atomics.wait
// must run on the thread that drains the realm's job queue; Atomics.wait
// blocks its calling OS thread and belongs on worker threads with their
// own runtime over the same shared buffer.
package gojabind

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/dop251/goja"

	"github.com/vireojs/vireo/atomics"
	"github.com/vireojs/vireo/jobqueue"
	"github.com/vireojs/vireo/promise"
)

// Adapter bridges a Goja runtime to the vireo job queue, promise realm,
// and atomics packages.
type Adapter struct {
	runtime *goja.Runtime
	realm   *promise.Realm
	queue   *jobqueue.Queue

	// buffers maps SharedArrayBuffer objects to their backing storage and
	// the whole-buffer int32 view the Atomics bindings operate through.
	buffers map[*goja.Object]*sharedEntry
}

type sharedEntry struct {
	buf  *atomics.SharedBuffer
	view *atomics.View
}

// New creates an adapter for the given runtime and realm. The realm's job
// queue carries all deferred work, including waitAsync settlements.
func New(runtime *goja.Runtime, realm *promise.Realm) (*Adapter, error) {
	if runtime == nil {
		return nil, fmt.Errorf("runtime cannot be nil")
	}
	if realm == nil {
		return nil, fmt.Errorf("realm cannot be nil")
	}
	return &Adapter{
		runtime: runtime,
		realm:   realm,
		queue:   realm.Queue(),
		buffers: make(map[*goja.Object]*sharedEntry),
	}, nil
}

// Runtime returns the Goja runtime.
func (a *Adapter) Runtime() *goja.Runtime {
	return a.runtime
}

// Realm returns the promise realm.
func (a *Adapter) Realm() *promise.Realm {
	return a.realm
}

// Bind installs the SharedArrayBuffer, Atomics, and queueMicrotask globals
// into the runtime. It must be called before executing JavaScript that
// uses them.
func (a *Adapter) Bind() error {
	if err := a.runtime.Set("SharedArrayBuffer", a.sharedArrayBufferConstructor); err != nil {
		return fmt.Errorf("failed to bind SharedArrayBuffer: %w", err)
	}
	if err := a.runtime.Set("queueMicrotask", a.queueMicrotask); err != nil {
		return fmt.Errorf("failed to bind queueMicrotask: %w", err)
	}
	return a.bindAtomics()
}

// SharedBufferOf returns the backing buffer of a SharedArrayBuffer object
// created through this adapter, for handing to worker threads on the Go
// side. The second result is false for any other value.
func (a *Adapter) SharedBufferOf(v goja.Value) (*atomics.SharedBuffer, bool) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	entry, ok := a.buffers[obj]
	if !ok {
		return nil, false
	}
	return entry.buf, true
}

// Adopt exposes an existing shared buffer to JavaScript as a
// SharedArrayBuffer object, so a worker runtime can operate on memory
// allocated elsewhere.
func (a *Adapter) Adopt(buf *atomics.SharedBuffer) (goja.Value, error) {
	if buf == nil {
		return nil, fmt.Errorf("buffer cannot be nil")
	}
	view, err := atomics.NewView(buf, atomics.Int32, 0, buf.Len()/4)
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer view: %w", err)
	}
	obj := a.runtime.NewObject()
	_ = obj.Set("byteLength", buf.Len())
	a.buffers[obj] = &sharedEntry{buf: buf, view: view}
	return obj, nil
}

func (a *Adapter) sharedArrayBufferConstructor(call goja.ConstructorCall) *goja.Object {
	size := int(call.Argument(0).ToInteger())
	buf, err := atomics.NewShared(size)
	if err != nil {
		panic(a.runtime.NewGoError(err))
	}
	view, err := atomics.NewView(buf, atomics.Int32, 0, buf.Len()/4)
	if err != nil {
		panic(a.runtime.NewGoError(err))
	}

	obj := call.This
	_ = obj.Set("byteLength", buf.Len())
	a.buffers[obj] = &sharedEntry{buf: buf, view: view}
	return obj
}

// queueMicrotask binding for Goja.
func (a *Adapter) queueMicrotask(call goja.FunctionCall) goja.Value {
	fn := call.Argument(0)
	fnCallable, ok := goja.AssertFunction(fn)
	if !ok {
		panic(a.runtime.NewTypeError("queueMicrotask requires a function as first argument"))
	}

	a.queue.Enqueue(func() {
		_, _ = fnCallable(goja.Undefined())
	})

	return goja.Undefined()
}

// entryFor resolves the first Atomics argument to its registered buffer.
func (a *Adapter) entryFor(v goja.Value) *sharedEntry {
	if obj, ok := v.(*goja.Object); ok {
		if entry, ok := a.buffers[obj]; ok {
			return entry
		}
	}
	panic(a.runtime.NewTypeError("Atomics operations require a SharedArrayBuffer as first argument"))
}

func (a *Adapter) bindAtomics() error {
	obj := a.runtime.NewObject()

	type rmwOp struct {
		name string
		op   func(v *atomics.View, index int, value int64) (int64, error)
	}
	for _, entry := range []rmwOp{
		{"add", (*atomics.View).Add},
		{"sub", (*atomics.View).Sub},
		{"and", (*atomics.View).And},
		{"or", (*atomics.View).Or},
		{"xor", (*atomics.View).Xor},
		{"exchange", (*atomics.View).Exchange},
		{"store", (*atomics.View).Store},
	} {
		op := entry.op
		if err := obj.Set(entry.name, func(call goja.FunctionCall) goja.Value {
			view := a.entryFor(call.Argument(0)).view
			index := int(call.Argument(1).ToInteger())
			value := call.Argument(2).ToInteger()
			old, err := op(view, index, value)
			if err != nil {
				panic(a.runtime.NewGoError(err))
			}
			return a.runtime.ToValue(old)
		}); err != nil {
			return fmt.Errorf("failed to bind Atomics.%s: %w", entry.name, err)
		}
	}

	for name, fn := range map[string]func(goja.FunctionCall) goja.Value{
		"load":            a.atomicsLoad,
		"compareExchange": a.atomicsCompareExchange,
		"isLockFree":      a.atomicsIsLockFree,
		"wait":            a.atomicsWait,
		"notify":          a.atomicsNotify,
		"waitAsync":       a.atomicsWaitAsync,
		"pause":           a.atomicsPause,
	} {
		if err := obj.Set(name, fn); err != nil {
			return fmt.Errorf("failed to bind Atomics.%s: %w", name, err)
		}
	}

	if err := a.runtime.Set("Atomics", obj); err != nil {
		return fmt.Errorf("failed to bind Atomics: %w", err)
	}
	return nil
}

func (a *Adapter) atomicsLoad(call goja.FunctionCall) goja.Value {
	view := a.entryFor(call.Argument(0)).view
	index := int(call.Argument(1).ToInteger())
	value, err := view.Load(index)
	if err != nil {
		panic(a.runtime.NewGoError(err))
	}
	return a.runtime.ToValue(value)
}

func (a *Adapter) atomicsCompareExchange(call goja.FunctionCall) goja.Value {
	view := a.entryFor(call.Argument(0)).view
	index := int(call.Argument(1).ToInteger())
	expected := call.Argument(2).ToInteger()
	replacement := call.Argument(3).ToInteger()
	old, err := view.CompareExchange(index, expected, replacement)
	if err != nil {
		panic(a.runtime.NewGoError(err))
	}
	return a.runtime.ToValue(old)
}

func (a *Adapter) atomicsIsLockFree(call goja.FunctionCall) goja.Value {
	return a.runtime.ToValue(atomics.IsLockFree(int(call.Argument(0).ToInteger())))
}

func (a *Adapter) atomicsPause(call goja.FunctionCall) goja.Value {
	iterations := 1
	if len(call.Arguments) > 0 {
		iterations = int(call.Argument(0).ToInteger())
	}
	if err := atomics.Pause(iterations); err != nil {
		panic(a.runtime.NewGoError(err))
	}
	return goja.Undefined()
}

// waitTimeout converts the optional JavaScript timeout argument,
// milliseconds with Infinity as the default, to a duration.
func waitTimeout(arg goja.Value) time.Duration {
	ms := arg.ToFloat()
	if math.IsNaN(ms) || math.IsInf(ms, 1) {
		return atomics.WaitForever
	}
	if ms < 0 {
		return -1
	}
	return time.Duration(ms * float64(time.Millisecond))
}

func (a *Adapter) atomicsWait(call goja.FunctionCall) goja.Value {
	view := a.entryFor(call.Argument(0)).view
	index := int(call.Argument(1).ToInteger())
	expected := call.Argument(2).ToInteger()
	timeout := waitTimeout(call.Argument(3))

	tag, err := view.Wait(context.Background(), index, expected, timeout)
	if err != nil {
		panic(a.runtime.NewGoError(err))
	}
	return a.runtime.ToValue(tag)
}

func (a *Adapter) atomicsNotify(call goja.FunctionCall) goja.Value {
	view := a.entryFor(call.Argument(0)).view
	index := int(call.Argument(1).ToInteger())
	count := atomics.AllWaiters
	if len(call.Arguments) > 2 && !goja.IsUndefined(call.Argument(2)) {
		count = int(call.Argument(2).ToInteger())
	}

	woken, err := view.Notify(index, count)
	if err != nil {
		panic(a.runtime.NewGoError(err))
	}
	return a.runtime.ToValue(woken)
}

func (a *Adapter) atomicsWaitAsync(call goja.FunctionCall) goja.Value {
	view := a.entryFor(call.Argument(0)).view
	index := int(call.Argument(1).ToInteger())
	expected := call.Argument(2).ToInteger()
	timeout := waitTimeout(call.Argument(3))

	result, err := view.WaitAsync(a.realm, index, expected, timeout)
	if err != nil {
		panic(a.runtime.NewGoError(err))
	}

	obj := a.runtime.NewObject()
	_ = obj.Set("async", result.Async)
	if result.Async {
		_ = obj.Set("value", a.thenableOf(result.Promise))
	} else {
		_ = obj.Set("value", result.Value)
	}
	return obj
}

// thenableOf wraps a realm promise in a JavaScript object with a then
// method, enough for await and manual chaining.
func (a *Adapter) thenableOf(p *promise.Promise) *goja.Object {
	obj := a.runtime.NewObject()
	_ = obj.Set("then", func(call goja.FunctionCall) goja.Value {
		onFulfilled := a.handlerOf(call.Argument(0))
		onRejected := a.handlerOf(call.Argument(1))
		return a.thenableOf(p.Then(onFulfilled, onRejected))
	})
	return obj
}

// handlerOf converts an optional Goja callback to a promise handler. A
// missing or non-function argument yields a nil handler, which the promise
// layer treats as pass-through.
func (a *Adapter) handlerOf(fn goja.Value) promise.Handler {
	fnCallable, ok := goja.AssertFunction(fn)
	if !ok {
		return nil
	}
	return func(result promise.Result) promise.Result {
		out, err := fnCallable(goja.Undefined(), a.runtime.ToValue(result))
		if err != nil {
			panic(err)
		}
		return out.Export()
	}
}
