// Copyright 2024 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	m "github.com/xandeum/pmon/pkg/metrics"
)

type metrics struct {
	Cycles        prometheus.Counter
	CycleFailures prometheus.Counter
	CyclesSkipped prometheus.Counter
	CycleDuration prometheus.Histogram
	LastSuccess   prometheus.Gauge
	Discovered    prometheus.Gauge
	Unique        prometheus.Gauge
}

func newMetrics() metrics {
	subsystem := "syncer"

	return metrics{
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "cycles_count",
			Help:      "Number of sync cycles run.",
		}),
		CycleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "cycle_failures_count",
			Help:      "Number of sync cycles aborted by a directory error.",
		}),
		CyclesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "cycles_skipped_count",
			Help:      "Number of sync requests skipped while a cycle was running.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of sync cycles.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 45, 60},
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful sync cycle.",
		}),
		Discovered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "discovered_peers",
			Help:      "Number of pods in the last directory listing.",
		}),
		Unique: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "unique_peers",
			Help:      "Number of unique peers after deduplication.",
		}),
	}
}
