// Copyright 2022 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package spinlock polls a condition until it holds. It is used by tests
// that wait for background workers.
package spinlock

import (
	"errors"
	"time"
)

var ErrTimedOut = errors.New("timed out waiting for condition")

// Wait blocks until cond returns true or the timeout expires. The
// condition is checked one last time when the timeout fires.
func Wait(timeout time.Duration, cond func() bool) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	check := time.NewTicker(10 * time.Millisecond)
	defer check.Stop()

	for {
		select {
		case <-deadline.C:
			if cond() {
				return nil
			}
			return ErrTimedOut
		case <-check.C:
			if cond() {
				return nil
			}
		}
	}
}
