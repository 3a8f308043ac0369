// Copyright 2020 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metrics_test

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	m "github.com/xandeum/pmon/pkg/metrics"
)

func TestPrometheusCollectorsFromFields(t *testing.T) {
	t.Parallel()

	s := newService()
	collectors := m.PrometheusCollectorsFromFields(s)

	if l := len(collectors); l != 2 {
		t.Fatalf("got %v collectors %+v, want 2", l, collectors)
	}

	m1 := collectors[0].(prometheus.Metric).Desc().String()
	if !strings.Contains(m1, "syncer_cycle_count") {
		t.Errorf("unexpected metric %s", m1)
	}

	m2 := collectors[1].(prometheus.Metric).Desc().String()
	if !strings.Contains(m2, "syncer_cycle_duration_seconds") {
		t.Errorf("unexpected metric %s", m2)
	}
}

func TestNewRegistry(t *testing.T) {
	t.Parallel()

	r := m.NewRegistry("1.0.0-test")
	families, err := r.Gather()
	if err != nil {
		t.Fatal(err)
	}

	var found bool
	for _, f := range families {
		if f.GetName() == m.Namespace+"_info" {
			found = true
		}
	}
	if !found {
		t.Fatalf("info gauge not registered")
	}
}

type service struct {
	// valid metrics
	CycleCount    prometheus.Counter
	CycleDuration prometheus.Histogram
	// invalid metrics
	unexportedCount    prometheus.Counter
	UninitializedCount prometheus.Counter
}

func newService() *service {
	subsystem := "syncer"
	return &service{
		CycleCount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "cycle_count",
			Help:      "Number of sync cycles.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "cycle_duration_seconds",
			Help:      "Histogram of sync cycle durations.",
		}),
		unexportedCount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "unexported_count",
			Help:      "This metrics should not be discoverable by metrics.PrometheusCollectorsFromFields.",
		}),
	}
}
