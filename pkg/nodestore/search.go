// Copyright 2024 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nodestore

import (
	"strings"

	"github.com/xandeum/pmon/pkg/health"
	"github.com/xandeum/pmon/pkg/pnode"
)

// Filter selects nodes in Search. Zero values match everything. Range
// bounds are inclusive. A RAM or CPU bound excludes nodes without stats.
type Filter struct {
	// Country matches the country name or code, case insensitive.
	Country   string
	Statuses  []pnode.Status
	MinHealth *int
	MaxHealth *int
	MinRAM    *float64
	MaxRAM    *float64
	MinCPU    *float64
	MaxCPU    *float64
	Version   string
	// City matches case insensitive.
	City     string
	HasStats *bool
}

// Search returns the nodes matching f ordered by IP.
func (s *Store) Search(f Filter) []pnode.Node {
	var out []pnode.Node
	for _, n := range s.snapshot() {
		if f.match(n) {
			out = append(out, clone(n))
		}
	}
	if out == nil {
		out = []pnode.Node{}
	}
	return out
}

func (f Filter) match(n *pnode.Node) bool {
	if f.Country != "" {
		if n.Geo == nil || !(strings.EqualFold(n.Geo.Country, f.Country) || strings.EqualFold(n.Geo.CountryCode, f.Country)) {
			return false
		}
	}
	if f.City != "" {
		if n.Geo == nil || !strings.EqualFold(n.Geo.City, f.City) {
			return false
		}
	}
	if len(f.Statuses) > 0 && !hasStatus(f.Statuses, n.Status) {
		return false
	}
	if f.Version != "" && n.Version != f.Version {
		return false
	}
	if f.HasStats != nil && *f.HasStats != (n.Stats != nil) {
		return false
	}

	score := n.HealthScore()
	if f.MinHealth != nil && score < *f.MinHealth {
		return false
	}
	if f.MaxHealth != nil && score > *f.MaxHealth {
		return false
	}

	if f.MinRAM != nil || f.MaxRAM != nil {
		if n.Stats == nil || !inRange(health.RAMUsagePercent(*n.Stats), f.MinRAM, f.MaxRAM) {
			return false
		}
	}
	if f.MinCPU != nil || f.MaxCPU != nil {
		if n.Stats == nil || !inRange(n.Stats.CPUPercent, f.MinCPU, f.MaxCPU) {
			return false
		}
	}
	return true
}

func hasStatus(statuses []pnode.Status, s pnode.Status) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func inRange(v float64, min, max *float64) bool {
	if min != nil && v < *min {
		return false
	}
	if max != nil && v > *max {
		return false
	}
	return true
}
