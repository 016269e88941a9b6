package promise

import "fmt"

// All returns a promise that fulfills when all input promises fulfill, with
// a slice of values in input order. It rejects as soon as any input
// rejects, with that rejection reason. An empty input fulfills immediately
// with an empty slice.
func (r *Realm) All(promises []*Promise) *Promise {
	result, resolve, reject := r.New()

	if len(promises) == 0 {
		resolve(make([]Result, 0))
		return result
	}

	values := make([]Result, len(promises))
	remaining := len(promises)
	rejected := false

	for i, p := range promises {
		idx := i
		p.Then(
			func(v Result) Result {
				values[idx] = v
				remaining--
				if remaining == 0 && !rejected {
					resolve(values)
				}
				return nil
			},
			func(reason Result) Result {
				if !rejected {
					rejected = true
					reject(reason)
				}
				return nil
			},
		)
	}

	return result
}

// Race returns a promise that settles with the first input promise to
// settle; later settlements are ignored. An empty input never settles.
func (r *Realm) Race(promises []*Promise) *Promise {
	result, resolve, reject := r.New()

	settled := false
	for _, p := range promises {
		p.Then(
			func(v Result) Result {
				if !settled {
					settled = true
					resolve(v)
				}
				return nil
			},
			func(reason Result) Result {
				if !settled {
					settled = true
					reject(reason)
				}
				return nil
			},
		)
	}

	return result
}

// Outcome describes one input promise's settlement for [Realm.AllSettled].
type Outcome struct {
	// Status is "fulfilled" or "rejected".
	Status string
	// Value holds the fulfillment value when Status is "fulfilled".
	Value Result
	// Reason holds the rejection reason when Status is "rejected".
	Reason Result
}

// AllSettled returns a promise that fulfills once every input promise has
// settled, with a slice of [Outcome] records in input order. It never
// rejects. An empty input fulfills immediately with an empty slice.
func (r *Realm) AllSettled(promises []*Promise) *Promise {
	result, resolve, _ := r.New()

	if len(promises) == 0 {
		resolve(make([]Outcome, 0))
		return result
	}

	outcomes := make([]Outcome, len(promises))
	remaining := len(promises)

	for i, p := range promises {
		idx := i
		p.Then(
			func(v Result) Result {
				outcomes[idx] = Outcome{Status: "fulfilled", Value: v}
				remaining--
				if remaining == 0 {
					resolve(outcomes)
				}
				return nil
			},
			func(reason Result) Result {
				outcomes[idx] = Outcome{Status: "rejected", Reason: reason}
				remaining--
				if remaining == 0 {
					resolve(outcomes)
				}
				return nil
			},
		)
	}

	return result
}

// Any returns a promise that fulfills with the first input promise to
// fulfill. It rejects with an [AggregateError] only if every input rejects.
// An empty input rejects immediately with an [AggregateError].
func (r *Realm) Any(promises []*Promise) *Promise {
	result, resolve, reject := r.New()

	if len(promises) == 0 {
		reject(&AggregateError{
			Errors: []error{&ErrNoPromiseResolved{}},
		})
		return result
	}

	rejections := make([]Result, len(promises))
	remaining := len(promises)
	fulfilled := false

	for i, p := range promises {
		idx := i
		p.Then(
			func(v Result) Result {
				if !fulfilled {
					fulfilled = true
					resolve(v)
				}
				return nil
			},
			func(reason Result) Result {
				rejections[idx] = reason
				remaining--
				if remaining == 0 && !fulfilled {
					errors := make([]error, len(rejections))
					for j, reason := range rejections {
						if err, ok := reason.(error); ok {
							errors[j] = err
						} else {
							errors[j] = &ErrorWrapper{Value: reason}
						}
					}
					reject(&AggregateError{
						Errors:  errors,
						Message: "All promises were rejected",
					})
				}
				return nil
			},
		)
	}

	return result
}

// AggregateError represents the rejection of [Realm.Any] when all input
// promises were rejected. Errors preserves the rejection reasons in input
// order.
type AggregateError struct {
	// Message matches the standard JS AggregateError property.
	Message string
	// Errors contains all rejection reasons from failed promises.
	Errors []error
}

// Error implements the error interface.
func (e *AggregateError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "All promises were rejected"
}

// Unwrap returns the errors slice for multi-error unwrapping, enabling
// [errors.Is] and [errors.As] against all contained errors.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// ErrNoPromiseResolved indicates that [Realm.Any] was called with an empty
// input.
type ErrNoPromiseResolved struct{}

// Error implements the error interface.
func (e *ErrNoPromiseResolved) Error() string {
	return "No promises were provided"
}

// ErrorWrapper wraps a non-error rejection reason as an error for
// [AggregateError] compatibility.
type ErrorWrapper struct {
	// Value is the original non-error rejection reason.
	Value Result
}

// Error implements the error interface.
func (e *ErrorWrapper) Error() string {
	return fmt.Sprintf("%v", e.Value)
}
