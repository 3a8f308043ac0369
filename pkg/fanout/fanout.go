// Copyright 2024 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fanout runs a function over a set of items with a bound on the
// number of concurrently running calls.
package fanout

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ForEach calls fn for every index in [0, n) with at most limit calls
// running at the same time. It blocks until all started calls return.
// Once ctx is done no new calls are started and ctx.Err() is returned.
// Errors of fn are the caller's concern and fn must record them itself.
func ForEach(ctx context.Context, limit, n int, fn func(ctx context.Context, i int)) error {
	if n <= 0 {
		return nil
	}
	if limit < 1 {
		limit = 1
	}

	sem := semaphore.NewWeighted(int64(limit))
	var wg sync.WaitGroup
	defer wg.Wait()

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		wg.Add(1)
		go func(i int) {
			defer func() {
				sem.Release(1)
				wg.Done()
			}()
			fn(ctx, i)
		}(i)
	}
	return nil
}
