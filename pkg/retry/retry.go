// Copyright 2024 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package retry provides a small retry policy value applied uniformly to
// remote calls regardless of the protocol behind them.
package retry

import (
	"context"
	"time"
)

// Backoff returns the delay to wait after the given failed attempt.
// Attempts are counted from 1.
type Backoff func(attempt int) time.Duration

// Linear returns a Backoff that waits attempt*step.
func Linear(step time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * step
	}
}

// Constant returns a Backoff that always waits d.
func Constant(d time.Duration) Backoff {
	return func(int) time.Duration {
		return d
	}
}

// Policy describes how many times an operation is attempted, how long to
// wait between attempts and which errors stop the retries immediately.
type Policy struct {
	MaxAttempts int
	Backoff     Backoff
	// Terminal reports errors that must not be retried.
	Terminal func(error) bool
}

// Do calls fn until it succeeds, returns a terminal error, the attempts are
// exhausted or ctx is done. It returns the number of attempts made and the
// last error.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) (attempts int, err error) {
	max := p.MaxAttempts
	if max < 1 {
		max = 1
	}

	for attempts = 1; ; attempts++ {
		err = fn(ctx)
		if err == nil {
			return attempts, nil
		}
		if p.Terminal != nil && p.Terminal(err) {
			return attempts, err
		}
		if attempts >= max {
			return attempts, err
		}
		if ctx.Err() != nil {
			return attempts, err
		}

		var delay time.Duration
		if p.Backoff != nil {
			delay = p.Backoff(attempts)
		}
		if delay <= 0 {
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempts, err
		case <-timer.C:
		}
	}
}
