package atomics

import (
	"time"

	"github.com/vireojs/vireo/errs"
	"github.com/vireojs/vireo/promise"
)

// WaitResult is the outcome of [View.WaitAsync]. When the wait could be
// decided immediately, Async is false and Value holds the tag; otherwise
// Promise fulfills later with [ResultOK] or [ResultTimedOut].
type WaitResult struct {
	Promise *promise.Promise
	Value   string
	Async   bool
}

// WaitAsync arranges to be notified of a wake-up on the element at index
// without blocking. It must be called on the owner thread of realm's job
// queue; the notifying thread hands only the result tag across, as a job
// posted to that queue, and the promise settles when the queue drains.
//
// The not-equal and zero-timeout cases resolve synchronously, without a
// promise. Pass [WaitForever] to wait without a timeout.
func (v *View) WaitAsync(realm *promise.Realm, index int, expected int64, timeout time.Duration) (WaitResult, error) {
	if realm == nil {
		return WaitResult{}, errs.NewTypeError(`atomics: nil promise realm`)
	}
	p, err := v.checkWaitable(index)
	if err != nil {
		return WaitResult{}, err
	}
	if timeout < 0 {
		return WaitResult{}, errs.NewRangeError(`atomics: negative wait timeout %v`, timeout)
	}
	key := uintptr(p)

	waitTable.mu.Lock()
	if v.extend(v.load(p)) != expected {
		waitTable.mu.Unlock()
		return WaitResult{Value: ResultNotEqual}, nil
	}
	if timeout == 0 {
		waitTable.mu.Unlock()
		return WaitResult{Value: ResultTimedOut}, nil
	}

	result, resolve, _ := realm.New()
	queue := realm.Queue()
	w := &waiter{}
	w.settle = func(tag string) {
		// Runs under the table lock, on whichever thread won the race.
		// Only the string tag crosses the thread boundary.
		_ = queue.Post(func() { resolve(tag) })
	}
	if timeout != WaitForever {
		w.timer = time.AfterFunc(timeout, func() {
			waitTable.mu.Lock()
			if removeWaiter(key, w) {
				w.settle(ResultTimedOut)
			}
			waitTable.mu.Unlock()
		})
	}
	enqueueWaiter(key, w)
	waitTable.mu.Unlock()

	return WaitResult{Promise: result, Async: true}, nil
}
