// Copyright 2024 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package health derives display metrics and a composite health score from
// the telemetry of a node.
package health

import (
	"fmt"
	"math"

	"github.com/xandeum/pmon/pkg/pnode"
)

// Sub-score weights, they sum to 1.
const (
	weightCPU          = 0.25
	weightRAM          = 0.20
	weightUptime       = 0.25
	weightNetwork      = 0.10
	weightReachability = 0.20
)

type band struct {
	limit float64
	score float64
}

var (
	// cpu and ram bands match values up to and including the limit
	cpuBands = []band{{30, 100}, {50, 85}, {70, 65}, {85, 40}, {95, 20}}
	ramBands = []band{{50, 100}, {70, 80}, {85, 55}, {95, 30}}

	// uptime bands match values from the limit up, in hours
	uptimeBands = []band{{168, 100}, {72, 85}, {24, 65}, {6, 45}, {1, 25}}

	// packetTiers add to the network score for every tier the cumulative
	// packet count is past
	packetTiers = []uint64{1000, 10000, 100000}
)

const (
	cpuFloor    = 5
	ramFloor    = 10
	uptimeFloor = 10
)

// Score computes the derived metrics of a node with the given status. It
// returns nil when there are no stats. Offline and unknown nodes always
// score 0.
func Score(stats *pnode.NodeStats, status pnode.Status) *pnode.DerivedMetrics {
	if stats == nil {
		return nil
	}

	ram := RAMUsagePercent(*stats)
	d := &pnode.DerivedMetrics{
		RAMUsagePercent:    ram,
		Uptime:             FormatUptime(stats.Uptime),
		PacketsPerSecond:   PacketsPerSecond(*stats),
		StorageUtilization: StorageUtilization(*stats),
	}

	var reachability float64
	switch status {
	case pnode.StatusOnline:
		reachability = 100
	case pnode.StatusDegraded:
		reachability = 50
	default:
		d.HealthScore = 0
		d.HealthGrade = pnode.GradeCritical
		return d
	}

	sum := weightCPU*upTo(cpuBands, stats.CPUPercent, cpuFloor) +
		weightRAM*upTo(ramBands, ram, ramFloor) +
		weightUptime*from(uptimeBands, float64(stats.Uptime)/3600, uptimeFloor) +
		weightNetwork*network(*stats) +
		weightReachability*reachability

	d.HealthScore = clamp(int(math.Round(sum)), 0, 100)
	d.HealthGrade = Grade(d.HealthScore)
	return d
}

// Grade maps a health score to its grade.
func Grade(score int) pnode.Grade {
	switch {
	case score >= 80:
		return pnode.GradeExcellent
	case score >= 60:
		return pnode.GradeGood
	case score >= 40:
		return pnode.GradeFair
	case score >= 20:
		return pnode.GradePoor
	}
	return pnode.GradeCritical
}

// RAMUsagePercent is used over total RAM in percent, 0 when the total is
// unknown.
func RAMUsagePercent(s pnode.NodeStats) float64 {
	if s.RAMTotal == 0 {
		return 0
	}
	return float64(s.RAMUsed) / float64(s.RAMTotal) * 100
}

// PacketsPerSecond is the average packet rate over the node uptime.
func PacketsPerSecond(s pnode.NodeStats) float64 {
	if s.Uptime == 0 {
		return 0
	}
	return float64(s.TotalPackets()) / float64(s.Uptime)
}

// StorageUtilization is the share of the storage file holding data, in
// percent and capped at 100. FileSize is the allocated capacity and
// TotalBytes the bytes stored in it. It is 0 when the file size is not
// reported.
func StorageUtilization(s pnode.NodeStats) float64 {
	if s.FileSize == 0 {
		return 0
	}
	return math.Min(float64(s.TotalBytes)/float64(s.FileSize)*100, 100)
}

// FormatUptime renders seconds as "3d 4h 12m". Units above the largest non
// zero one are omitted and uptimes below a minute render as "0m".
func FormatUptime(seconds uint64) string {
	days := seconds / 86400
	hours := seconds % 86400 / 3600
	minutes := seconds % 3600 / 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

func network(s pnode.NodeStats) float64 {
	score := 50.0
	if s.ActiveStreams > 0 {
		score += 20
	}
	total := s.TotalPackets()
	for _, tier := range packetTiers {
		if total > tier {
			score += 10
		}
	}
	return math.Min(score, 100)
}

func upTo(bands []band, v, floor float64) float64 {
	for _, b := range bands {
		if v <= b.limit {
			return b.score
		}
	}
	return floor
}

func from(bands []band, v, floor float64) float64 {
	for _, b := range bands {
		if v >= b.limit {
			return b.score
		}
	}
	return floor
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
