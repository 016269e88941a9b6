package atomics

import (
	"context"
	"math"
	"sync"
	"time"
	"unsafe"

	"github.com/vireojs/vireo/errs"
)

// Wait result tags. String tags are the only values that cross the thread
// boundary between waiters and notifiers.
const (
	ResultOK       = `ok`
	ResultNotEqual = `not-equal`
	ResultTimedOut = `timed-out`
)

// WaitForever makes [View.Wait] and [View.WaitAsync] wait without a
// timeout.
const WaitForever = time.Duration(math.MaxInt64)

// AllWaiters makes [View.Notify] wake every waiter on the element.
const AllWaiters = math.MaxInt

// waiter is one parked wait on an element address. Sync waiters block on
// ch; async waiters carry a settle callback invoked at most once, under
// the table lock.
type waiter struct {
	ch     chan string
	settle func(tag string)
	timer  *time.Timer
}

// waitTable maps element addresses to FIFO lists of parked waiters. A
// single table serves every buffer in the process; addresses of distinct
// live buffers never collide.
var waitTable = struct {
	mu sync.Mutex
	m  map[uintptr][]*waiter
}{m: make(map[uintptr][]*waiter)}

func enqueueWaiter(key uintptr, w *waiter) {
	waitTable.m[key] = append(waitTable.m[key], w)
}

// removeWaiter unlinks w if still parked. It returns false when a notify
// already claimed w.
func removeWaiter(key uintptr, w *waiter) bool {
	list := waitTable.m[key]
	for i, other := range list {
		if other == w {
			list = append(list[:i], list[i+1:]...)
			if len(list) == 0 {
				delete(waitTable.m, key)
			} else {
				waitTable.m[key] = list
			}
			return true
		}
	}
	return false
}

// checkWaitable validates the wait preconditions shared by Wait and
// WaitAsync and returns the element address.
func (v *View) checkWaitable(index int) (unsafe.Pointer, error) {
	if !v.buf.Shared() {
		return nil, errs.NewTypeError(`atomics: cannot wait on a non-shared buffer`)
	}
	if size := v.kind.Size(); size != 4 && size != 8 {
		return nil, errs.NewTypeError(`atomics: cannot wait on a %s view`, v.kind)
	}
	return v.addr(index)
}

// Wait blocks the calling OS thread until the element at index is notified
// or timeout elapses, provided it still holds expected. It returns one of
// [ResultOK], [ResultNotEqual], or [ResultTimedOut].
//
// The value check and the parking are a single atomic step with respect to
// [View.Notify]: a notify that stores a new value before notifying can
// never be missed. A zero timeout checks the value and gives up without
// parking; pass [WaitForever] to wait indefinitely. Cancelling ctx
// abandons the wait with ctx.Err().
//
// Must not be called from the thread that drains the job queue waiters
// settle through, or from any thread a pending notify depends on.
func (v *View) Wait(ctx context.Context, index int, expected int64, timeout time.Duration) (string, error) {
	p, err := v.checkWaitable(index)
	if err != nil {
		return ``, err
	}
	if timeout < 0 {
		return ``, errs.NewRangeError(`atomics: negative wait timeout %v`, timeout)
	}
	key := uintptr(p)

	waitTable.mu.Lock()
	if v.extend(v.load(p)) != expected {
		waitTable.mu.Unlock()
		return ResultNotEqual, nil
	}
	if timeout == 0 {
		waitTable.mu.Unlock()
		return ResultTimedOut, nil
	}
	w := &waiter{ch: make(chan string, 1)}
	enqueueWaiter(key, w)
	waitTable.mu.Unlock()

	var timeoutC <-chan time.Time
	if timeout != WaitForever {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timeoutC = t.C
	}

	select {
	case tag := <-w.ch:
		return tag, nil
	case <-timeoutC:
		return v.abandonWait(key, w, ResultTimedOut, nil)
	case <-ctx.Done():
		return v.abandonWait(key, w, ``, ctx.Err())
	}
}

// abandonWait resolves the race between a local wake-up reason (timeout or
// cancellation) and a concurrent notify. The notify wins if it already
// unlinked the waiter.
func (v *View) abandonWait(key uintptr, w *waiter, tag string, err error) (string, error) {
	waitTable.mu.Lock()
	removed := removeWaiter(key, w)
	waitTable.mu.Unlock()
	if !removed {
		return <-w.ch, nil
	}
	return tag, err
}

// Notify wakes up to count waiters parked on the element at index, oldest
// first, counting sync and async waiters alike. It returns the number
// woken. Pass [AllWaiters] to wake everyone; notifying an element nobody
// waits on returns 0.
func (v *View) Notify(index int, count int) (int, error) {
	p, err := v.addr(index)
	if err != nil {
		return 0, err
	}
	if size := v.kind.Size(); size != 4 && size != 8 {
		return 0, errs.NewTypeError(`atomics: cannot notify on a %s view`, v.kind)
	}
	if count < 0 {
		return 0, errs.NewRangeError(`atomics: negative notify count %d`, count)
	}
	if !v.buf.Shared() {
		// Nothing can ever wait on a non-shared buffer.
		return 0, nil
	}
	key := uintptr(p)

	waitTable.mu.Lock()
	list := waitTable.m[key]
	n := count
	if n > len(list) {
		n = len(list)
	}
	woken := list[:n]
	if n == len(list) {
		delete(waitTable.m, key)
	} else {
		waitTable.m[key] = list[n:]
	}
	for _, w := range woken {
		if w.timer != nil {
			w.timer.Stop()
		}
		if w.settle != nil {
			w.settle(ResultOK)
		} else {
			w.ch <- ResultOK
		}
	}
	waitTable.mu.Unlock()

	return n, nil
}
