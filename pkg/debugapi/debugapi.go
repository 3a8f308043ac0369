// Copyright 2020 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package debugapi exposes the operational HTTP API of pmon: liveness and
// readiness probes, prometheus metrics, the sync orchestrator status with a
// manual trigger, and geolocation cache maintenance.
package debugapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xandeum/pmon/pkg/logging"
	"github.com/xandeum/pmon/pkg/ratelimit"
	"github.com/xandeum/pmon/pkg/syncer"
	"github.com/xandeum/pmon/pkg/tracing"
)

const (
	// syncTriggerRate is the minimal time between two manual sync
	// triggers from the same client.
	syncTriggerRate  = 10 * time.Second
	syncTriggerBurst = 1
)

// Syncer is the sync orchestrator as seen by the debug API.
type Syncer interface {
	SyncNow(ctx context.Context) (*syncer.CycleResult, error)
	State() syncer.State
	LastResult() *syncer.CycleResult
	Ready() bool
}

// GeoCache is the geolocation cache as seen by the debug API.
type GeoCache interface {
	CacheSize() int
	ClearCache()
}

// Service implements http.Handler interface to be used in HTTP server.
type Service struct {
	logger             logging.Logger
	tracer             *tracing.Tracer
	corsAllowedOrigins []string
	metricsRegistry    *prometheus.Registry
	syncer             Syncer
	geo                GeoCache
	syncLimiter        *ratelimit.Limiter
	// handler is changed in the Configure method
	handler   http.Handler
	handlerMu sync.RWMutex
}

// New creates a new Debug API Service with only basic routers enabled in order
// to expose /health and metrics endpoints before the sync engine is wired.
func New(logger logging.Logger, tracer *tracing.Tracer, corsAllowedOrigins []string) *Service {
	s := new(Service)
	s.logger = logger
	s.tracer = tracer
	s.corsAllowedOrigins = corsAllowedOrigins
	s.metricsRegistry = newMetricsRegistry()
	s.syncLimiter = ratelimit.New(syncTriggerRate, syncTriggerBurst)

	s.setRouter(s.newBasicRouter())

	return s
}

// Configure injects the sync engine and constructs HTTP routes that depend
// on it. It is intended and safe to call this method only once.
func (s *Service) Configure(syncer Syncer, geo GeoCache) {
	s.syncer = syncer
	s.geo = geo

	s.setRouter(s.newRouter())
}

// ServeHTTP implements http.Handler interface.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// protect handler as it is changed by the Configure method
	s.handlerMu.RLock()
	h := s.handler
	s.handlerMu.RUnlock()

	h.ServeHTTP(w, r)
}
