// Copyright 2020 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugapi

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/xandeum/pmon"
	"github.com/xandeum/pmon/pkg/metrics"
)

func newMetricsRegistry() *prometheus.Registry {
	return metrics.NewRegistry(pmon.Version)
}

func (s *Service) MustRegisterMetrics(cs ...prometheus.Collector) {
	s.metricsRegistry.MustRegister(cs...)
}
