// Copyright 2024 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pnode contains the types shared by every stage of the sync pipeline:
// the wire records returned by the bootstrap node and by peers, and the
// consolidated Node kept by the node store.
package pnode

import (
	"net"
	"strings"
	"time"
)

// Status is the liveness state of a Node.
type Status string

const (
	StatusOnline   Status = "online"
	StatusOffline  Status = "offline"
	StatusDegraded Status = "degraded"
	StatusUnknown  Status = "unknown"
)

// Grade is the health grade derived from a health score.
type Grade string

const (
	GradeExcellent Grade = "excellent"
	GradeGood      Grade = "good"
	GradeFair      Grade = "fair"
	GradePoor      Grade = "poor"
	GradeCritical  Grade = "critical"
)

// Pod is a peer record as returned by the get-pods directory call.
type Pod struct {
	Address           string `json:"address"`
	Version           string `json:"version,omitempty"`
	Pubkey            string `json:"pubkey,omitempty"`
	LastSeenTimestamp int64  `json:"last_seen_timestamp,omitempty"`
	RPCPort           int    `json:"rpc_port,omitempty"`
}

// IP returns the host part of the pod address. Addresses that carry no port
// are returned unchanged, IPv6 brackets are removed.
func (p Pod) IP() string {
	return HostOf(p.Address)
}

// HostOf extracts the host from an "ip:port" network address.
func HostOf(address string) string {
	address = strings.TrimSpace(address)
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return strings.Trim(address, "[]")
	}
	return host
}

// NodeStats is the telemetry reported by a peer through get-stats.
type NodeStats struct {
	CPUPercent      float64 `json:"cpu_percent"`
	RAMUsed         uint64  `json:"ram_used"`
	RAMTotal        uint64  `json:"ram_total"`
	Uptime          uint64  `json:"uptime"`
	PacketsSent     uint64  `json:"packets_sent"`
	PacketsReceived uint64  `json:"packets_received"`
	ActiveStreams   uint64  `json:"active_streams"`
	TotalPages      uint64  `json:"total_pages"`
	TotalBytes      uint64  `json:"total_bytes"`
	FileSize        uint64  `json:"file_size"`
	CurrentIndex    uint64  `json:"current_index"`
	LastUpdated     uint64  `json:"last_updated"`
}

// TotalPackets is the sum of sent and received packets.
func (s NodeStats) TotalPackets() uint64 {
	return s.PacketsSent + s.PacketsReceived
}

// GeoLocation is the resolved geographic location of an IP address.
type GeoLocation struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Country     string  `json:"country"`
	CountryCode string  `json:"country_code"`
	City        string  `json:"city"`
	Region      string  `json:"region,omitempty"`
	Timezone    string  `json:"timezone,omitempty"`
}

// DerivedMetrics are computed from NodeStats and the node status.
type DerivedMetrics struct {
	RAMUsagePercent    float64 `json:"ram_usage_percent"`
	Uptime             string  `json:"uptime"`
	PacketsPerSecond   float64 `json:"packets_per_second"`
	StorageUtilization float64 `json:"storage_utilization_percent"`
	HealthScore        int     `json:"health_score"`
	HealthGrade        Grade   `json:"health_grade"`
}

// Node is the consolidated view of a single peer. Values stored in the node
// store are never mutated after they are published, a new Node replaces the
// old one on every update.
type Node struct {
	IP               string          `json:"ip"`
	Address          string          `json:"address"`
	Pubkey           string          `json:"pubkey,omitempty"`
	Version          string          `json:"version,omitempty"`
	RPCPort          int             `json:"rpc_port,omitempty"`
	Status           Status          `json:"status"`
	FirstSeen        time.Time       `json:"first_seen"`
	LastSeen         time.Time       `json:"last_seen"`
	LastSeenReported time.Time       `json:"last_seen_reported,omitempty"`
	Stats            *NodeStats      `json:"stats"`
	Metrics          *DerivedMetrics `json:"metrics"`
	Geo              *GeoLocation    `json:"geo"`
}

// HealthScore returns the node health score, 0 when no metrics are known.
func (n Node) HealthScore() int {
	if n.Metrics == nil {
		return 0
	}
	return n.Metrics.HealthScore
}
