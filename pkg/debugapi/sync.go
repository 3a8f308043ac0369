// Copyright 2024 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugapi

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/xandeum/pmon/pkg/jsonhttp"
	"github.com/xandeum/pmon/pkg/ratelimit"
	"github.com/xandeum/pmon/pkg/syncer"
	"github.com/xandeum/pmon/pkg/tracing"
)

type syncStatusResponse struct {
	State      syncer.State        `json:"state"`
	LastResult *syncer.CycleResult `json:"last_result"`
}

func (s *Service) syncStatusHandler(w http.ResponseWriter, _ *http.Request) {
	jsonhttp.OK(w, syncStatusResponse{
		State:      s.syncer.State(),
		LastResult: s.syncer.LastResult(),
	})
}

// syncTriggerHandler runs a sync cycle and responds with its result. The
// cycle is detached from the request so that a client that goes away does
// not abort it.
func (s *Service) syncTriggerHandler(w http.ResponseWriter, r *http.Request) {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if err := s.syncLimiter.Allow(ip, 1); err != nil {
		if errors.Is(err, ratelimit.ErrRateLimitExceeded) {
			jsonhttp.TooManyRequests(w, "sync trigger rate exceeded")
			return
		}
		jsonhttp.InternalServerError(w, err)
		return
	}

	ctx, err := s.tracer.WithContextFromHTTPHeaders(context.Background(), r.Header)
	if err != nil && !errors.Is(err, tracing.ErrContextNotFound) {
		s.logger.Debugf("debug api: sync trigger: tracing context: %v", err)
	}

	result, err := s.syncer.SyncNow(ctx)
	if err != nil {
		if errors.Is(err, syncer.ErrSyncInProgress) {
			jsonhttp.Conflict(w, err)
			return
		}
		if errors.Is(err, syncer.ErrClosed) {
			jsonhttp.ServiceUnavailable(w, err)
			return
		}
		s.logger.Debugf("debug api: sync trigger: %v", err)
		jsonhttp.BadGateway(w, err)
		return
	}
	jsonhttp.OK(w, result)
}
