package worker

import "errors"

// Transient marks a Handler error as retryable up to the pool's configured
// bound (spec §4.3 "Retries"). A Handler that wants its error retried
// wraps it: `return nil, worker.Retryable(err)`. Anything else is treated
// as a final failure after zero retries.
type Transient struct {
	Err error
}

func (t *Transient) Error() string { return t.Err.Error() }
func (t *Transient) Unwrap() error { return t.Err }

// Retryable wraps err so the worker pool retries the invocation.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &Transient{Err: err}
}

// IsRetryable reports whether err (or something it wraps) was marked
// Transient.
func IsRetryable(err error) bool {
	var t *Transient
	return errors.As(err, &t)
}
