// Copyright 2024 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fanout_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/atomic"

	"github.com/xandeum/pmon/pkg/fanout"
)

func TestForEach(t *testing.T) {
	t.Parallel()

	const (
		limit = 3
		n     = 20
	)

	var (
		running = atomic.NewInt32(0)
		peak    = atomic.NewInt32(0)
		mu      sync.Mutex
		seen    = make(map[int]bool)
	)

	err := fanout.ForEach(context.Background(), limit, n, func(_ context.Context, i int) {
		cur := running.Inc()
		for {
			p := peak.Load()
			if cur <= p || peak.CAS(p, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Dec()

		mu.Lock()
		seen[i] = true
		mu.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(seen) != n {
		t.Fatalf("got %d calls, want %d", len(seen), n)
	}
	if p := peak.Load(); p > limit {
		t.Fatalf("got %d concurrent calls, want at most %d", p, limit)
	}
}

func TestForEachContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := atomic.NewInt32(0)

	err := fanout.ForEach(ctx, 1, 10, func(_ context.Context, i int) {
		calls.Inc()
		if i == 0 {
			cancel()
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got error %v, want context canceled", err)
	}
	if c := calls.Load(); c >= 10 {
		t.Fatalf("got %d calls after cancellation", c)
	}
}

func TestForEachEmpty(t *testing.T) {
	t.Parallel()

	err := fanout.ForEach(context.Background(), 4, 0, func(context.Context, int) {
		t.Fatal("unexpected call")
	})
	if err != nil {
		t.Fatal(err)
	}
}
