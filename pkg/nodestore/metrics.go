// Copyright 2024 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nodestore

import (
	"github.com/prometheus/client_golang/prometheus"
	m "github.com/xandeum/pmon/pkg/metrics"
)

type metrics struct {
	Nodes   *prometheus.GaugeVec
	Upserts prometheus.Counter
	Demoted prometheus.Counter
	Removed prometheus.Counter
}

func newMetrics() metrics {
	subsystem := "nodestore"

	return metrics{
		Nodes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "nodes",
			Help:      "Number of nodes by status.",
		}, []string{"status"}),
		Upserts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "upserts_count",
			Help:      "Number of node upserts.",
		}),
		Demoted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "demoted_count",
			Help:      "Number of nodes marked unknown after leaving the directory.",
		}),
		Removed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "removed_count",
			Help:      "Number of stale nodes removed.",
		}),
	}
}
