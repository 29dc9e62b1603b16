package database

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how often an idempotent read is retried.
type RetryPolicy struct {
	Attempts int
	MaxWait  time.Duration
}

// DefaultRetryPolicy is used when a service is built without engine config.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, MaxWait: 2 * time.Second}

// RetryRead runs fn until it succeeds, returns a non-transient error, or the
// policy is exhausted. Only use it for reads: writes that fail mid-transaction
// roll back and surface the error.
func RetryRead(ctx context.Context, policy RetryPolicy, fn func() error) error {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 25 * time.Millisecond
	eb.MaxInterval = 500 * time.Millisecond
	eb.MaxElapsedTime = policy.MaxWait

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(policy.Attempts-1)), ctx)

	return backoff.Retry(func() error {
		err := fn()
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
