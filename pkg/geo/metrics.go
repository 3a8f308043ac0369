// Copyright 2024 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package geo

import (
	"github.com/prometheus/client_golang/prometheus"
	m "github.com/xandeum/pmon/pkg/metrics"
)

type metrics struct {
	Lookups        prometheus.Counter
	Batches        prometheus.Counter
	BatchFailures  prometheus.Counter
	BatchDuration  prometheus.Histogram
	CacheHits      prometheus.Counter
	DatabaseHits   prometheus.Counter
	SkippedPrivate prometheus.Counter
	CacheSize      prometheus.Gauge
}

func newMetrics() metrics {
	subsystem := "geo"

	return metrics{
		Lookups: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "lookups_count",
			Help:      "Number of addresses sent to the batch endpoint.",
		}),
		Batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "batches_count",
			Help:      "Number of batch requests.",
		}),
		BatchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "batch_failures_count",
			Help:      "Number of failed batch requests.",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "batch_duration_seconds",
			Help:      "Duration of batch requests.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "cache_hits_count",
			Help:      "Number of addresses served from the cache.",
		}),
		DatabaseHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "database_hits_count",
			Help:      "Number of addresses resolved by the local database.",
		}),
		SkippedPrivate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "skipped_private_count",
			Help:      "Number of addresses skipped as not publicly routable.",
		}),
		CacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "cache_size",
			Help:      "Number of cached addresses.",
		}),
	}
}
