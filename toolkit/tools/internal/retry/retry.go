// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Bounded retries for waiting on kernel and device state.

package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Run calls fn until it succeeds or attempts is exhausted, sleeping a fixed duration between attempts.
func Run(fn func() error, attempts int, sleep time.Duration) error {
	_, err := backoff.Retry(context.Background(), wrap(fn),
		backoff.WithBackOff(backoff.NewConstantBackOff(sleep)),
		backoff.WithMaxTries(uint(attempts)))
	return err
}

// Permanent marks an error as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

func wrap(fn func() error) backoff.Operation[struct{}] {
	return func() (struct{}, error) {
		return struct{}{}, fn()
	}
}
