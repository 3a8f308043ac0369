// Copyright 2024 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package directory

import (
	"github.com/prometheus/client_golang/prometheus"
	m "github.com/xandeum/pmon/pkg/metrics"
)

type metrics struct {
	Requests        prometheus.Counter
	Failures        prometheus.Counter
	RequestDuration prometheus.Histogram
	Pods            prometheus.Gauge
}

func newMetrics() metrics {
	subsystem := "directory"

	return metrics{
		Requests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "requests_count",
			Help:      "Number of get-pods requests.",
		}),
		Failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "failures_count",
			Help:      "Number of failed get-pods requests.",
		}),
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "request_duration_seconds",
			Help:      "Duration of get-pods requests.",
		}),
		Pods: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "pods",
			Help:      "Number of pods reported by the last successful request.",
		}),
	}
}
