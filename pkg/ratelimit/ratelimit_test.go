// Copyright 2021 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ratelimit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xandeum/pmon/pkg/ratelimit"
)

func TestRateLimit(t *testing.T) {

	var (
		key1  = "test1"
		key2  = "test2"
		rate  = time.Second
		burst = 10
	)

	limiter := ratelimit.New(rate, burst)

	err := limiter.Allow(key1, burst)
	if err != nil {
		t.Fatal(err)
	}

	err = limiter.Allow(key1, burst)
	if !errors.Is(err, ratelimit.ErrRateLimitExceeded) {
		t.Fatalf("want rate limit exceeded error, got %v", err)
	}

	limiter.Clear(key1)

	err = limiter.Allow(key1, burst)
	if err != nil {
		t.Fatal(err)
	}

	err = limiter.Allow(key2, burst)
	if err != nil {
		t.Fatal(err)
	}
}

func TestWait(t *testing.T) {

	const (
		key   = "ip-api.com"
		delay = 50 * time.Millisecond
	)

	limiter := ratelimit.New(delay, 1)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := limiter.Wait(context.Background(), key, 1); err != nil {
			t.Fatal(err)
		}
	}

	// the first event passes at once, each next one waits for a refill
	if elapsed := time.Since(start); elapsed < 2*delay-10*time.Millisecond {
		t.Fatalf("three events passed in %v, want at least %v", elapsed, 2*delay)
	}
}

func TestWaitContextCanceled(t *testing.T) {

	limiter := ratelimit.New(time.Hour, 1)
	if err := limiter.Wait(context.Background(), "key", 1); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx, "key", 1); err == nil {
		t.Fatal("expected error")
	}
}
