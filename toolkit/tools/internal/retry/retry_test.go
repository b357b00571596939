// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunStopsOnSuccess(t *testing.T) {
	calls := 0
	err := Run(func() error {
		calls++
		if calls < 3 {
			return errors.New("device not ready")
		}
		return nil
	}, 5, time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRunExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Run(func() error {
		calls++
		return errors.New("device not ready")
	}, 3, time.Millisecond)
	assert.ErrorContains(t, err, "device not ready")
	assert.Equal(t, 3, calls)
}

func TestRunPermanentStopsImmediately(t *testing.T) {
	calls := 0
	err := Run(func() error {
		calls++
		return Permanent(errors.New("no such device"))
	}, 5, time.Millisecond)
	assert.ErrorContains(t, err, "no such device")
	assert.Equal(t, 1, calls)
}
