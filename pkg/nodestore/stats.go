// Copyright 2024 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nodestore

import (
	"github.com/xandeum/pmon/pkg/pnode"
)

// Unknown is the distribution key of nodes without a country or version.
const Unknown = "unknown"

// NetworkStats aggregates the whole store. Averages only include nodes that
// have stats.
type NetworkStats struct {
	Summary      Summary      `json:"summary"`
	Performance  Performance  `json:"performance"`
	Storage      Storage      `json:"storage"`
	Traffic      Traffic      `json:"traffic"`
	Distribution Distribution `json:"distribution"`
}

type Summary struct {
	Total         int     `json:"total"`
	Online        int     `json:"online"`
	Offline       int     `json:"offline"`
	Degraded      int     `json:"degraded"`
	Unknown       int     `json:"unknown"`
	AverageHealth float64 `json:"average_health"`
}

type Performance struct {
	AverageCPU        float64             `json:"average_cpu_percent"`
	AverageRAM        float64             `json:"average_ram_percent"`
	AverageUptime     float64             `json:"average_uptime_seconds"`
	GradeDistribution map[pnode.Grade]int `json:"grade_distribution"`
}

type Storage struct {
	TotalBytes         uint64  `json:"total_bytes"`
	TotalPages         uint64  `json:"total_pages"`
	TotalFileSize      uint64  `json:"total_file_size"`
	AverageUtilization float64 `json:"average_utilization_percent"`
}

type Traffic struct {
	PacketsSent      uint64  `json:"packets_sent"`
	PacketsReceived  uint64  `json:"packets_received"`
	ActiveStreams    uint64  `json:"active_streams"`
	PacketsPerSecond float64 `json:"packets_per_second"`
}

type Distribution struct {
	Countries map[string]int `json:"countries"`
	Versions  map[string]int `json:"versions"`
}

// NetworkStats computes aggregates over all nodes.
func (s *Store) NetworkStats() NetworkStats {
	ns := NetworkStats{
		Performance: Performance{
			GradeDistribution: make(map[pnode.Grade]int),
		},
		Distribution: Distribution{
			Countries: make(map[string]int),
			Versions:  make(map[string]int),
		},
	}

	var (
		withStats int
		health    float64
		cpu       float64
		ram       float64
		uptime    float64
		util      float64
	)

	for _, n := range s.snapshot() {
		ns.Summary.Total++
		switch n.Status {
		case pnode.StatusOnline:
			ns.Summary.Online++
		case pnode.StatusOffline:
			ns.Summary.Offline++
		case pnode.StatusDegraded:
			ns.Summary.Degraded++
		default:
			ns.Summary.Unknown++
		}

		country := Unknown
		if n.Geo != nil && n.Geo.Country != "" {
			country = n.Geo.Country
		}
		ns.Distribution.Countries[country]++

		version := Unknown
		if n.Version != "" {
			version = n.Version
		}
		ns.Distribution.Versions[version]++

		if n.Stats == nil || n.Metrics == nil {
			continue
		}
		withStats++
		health += float64(n.Metrics.HealthScore)
		cpu += n.Stats.CPUPercent
		ram += n.Metrics.RAMUsagePercent
		uptime += float64(n.Stats.Uptime)
		util += n.Metrics.StorageUtilization
		ns.Performance.GradeDistribution[n.Metrics.HealthGrade]++

		ns.Storage.TotalBytes += n.Stats.TotalBytes
		ns.Storage.TotalPages += n.Stats.TotalPages
		ns.Storage.TotalFileSize += n.Stats.FileSize

		ns.Traffic.PacketsSent += n.Stats.PacketsSent
		ns.Traffic.PacketsReceived += n.Stats.PacketsReceived
		ns.Traffic.ActiveStreams += n.Stats.ActiveStreams
		ns.Traffic.PacketsPerSecond += n.Metrics.PacketsPerSecond
	}

	if withStats > 0 {
		d := float64(withStats)
		ns.Summary.AverageHealth = health / d
		ns.Performance.AverageCPU = cpu / d
		ns.Performance.AverageRAM = ram / d
		ns.Performance.AverageUptime = uptime / d
		ns.Storage.AverageUtilization = util / d
	}
	return ns
}
