// Copyright 2024 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package prober

import (
	"github.com/prometheus/client_golang/prometheus"
	m "github.com/xandeum/pmon/pkg/metrics"
)

type metrics struct {
	Probes        prometheus.Counter
	Attempts      prometheus.Counter
	Successes     prometheus.Counter
	Failures      prometheus.Counter
	SchemaErrors  prometheus.Counter
	Canceled      prometheus.Counter
	InFlight      prometheus.Gauge
	ProbeDuration prometheus.Histogram
}

func newMetrics() metrics {
	subsystem := "prober"

	return metrics{
		Probes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "probes_count",
			Help:      "Number of peer probes.",
		}),
		Attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "attempts_count",
			Help:      "Number of get-stats calls including retries.",
		}),
		Successes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "successes_count",
			Help:      "Number of probes that returned stats.",
		}),
		Failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "failures_count",
			Help:      "Number of probes of unreachable peers.",
		}),
		SchemaErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "schema_errors_count",
			Help:      "Number of probes answered with unusable stats.",
		}),
		Canceled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "canceled_count",
			Help:      "Number of probes cut short by the sync deadline.",
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "in_flight",
			Help:      "Number of probes currently running.",
		}),
		ProbeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "probe_duration_seconds",
			Help:      "Duration of peer probes including retries.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 7},
		}),
	}
}
