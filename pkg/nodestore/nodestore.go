// Copyright 2024 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nodestore holds the consolidated in-memory view of the network,
// one Node per IP address.
//
// The store has a single writer, the sync orchestrator, and any number of
// concurrent readers. Every write publishes a whole new Node value, stored
// values are never modified in place, so a reader observes either the
// previous or the next version of a node and never a mix of both.
package nodestore

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/xandeum/pmon/pkg/health"
	"github.com/xandeum/pmon/pkg/logging"
	m "github.com/xandeum/pmon/pkg/metrics"
	"github.com/xandeum/pmon/pkg/pnode"
)

// Update carries the outcome of one cycle for a single IP.
type Update struct {
	Version          string
	Pubkey           string
	RPCPort          int
	LastSeenReported time.Time
	// Stats are the telemetry returned by the probe, nil if the probe
	// failed or the answer was unusable.
	Stats *pnode.NodeStats
	Geo   *pnode.GeoLocation
	// Offline is set when the probe proved the node unreachable.
	Offline bool
}

type Options struct {
	Clock clock.Clock
}

type Store struct {
	mu      sync.RWMutex
	nodes   map[string]*pnode.Node
	clock   clock.Clock
	logger  logging.Logger
	metrics metrics
}

func New(logger logging.Logger, o Options) *Store {
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	s := &Store{
		nodes:   make(map[string]*pnode.Node),
		clock:   o.Clock,
		logger:  logger,
		metrics: newMetrics(),
	}
	for _, st := range []pnode.Status{pnode.StatusOnline, pnode.StatusOffline, pnode.StatusDegraded, pnode.StatusUnknown} {
		s.metrics.Nodes.WithLabelValues(string(st)).Set(0)
	}
	return s
}

// Upsert merges the cycle outcome for ip into the store and returns the
// resulting node. The new status follows from the prior status and the
// outcome:
//
//	stats present                          online
//	explicitly offline                     offline
//	prior online or degraded, no stats     degraded
//	otherwise, no stats                    unknown
//
// Identity fields keep their previous value when the update has none.
// Degraded nodes keep their last known stats, offline and unknown nodes
// carry none.
func (s *Store) Upsert(ip, address string, u Update) pnode.Node {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	prior, exists := s.nodes[ip]

	n := &pnode.Node{
		IP:               ip,
		Address:          address,
		Version:          u.Version,
		Pubkey:           u.Pubkey,
		RPCPort:          u.RPCPort,
		FirstSeen:        now,
		LastSeen:         now,
		LastSeenReported: u.LastSeenReported,
		Geo:              u.Geo,
	}

	var priorStatus pnode.Status
	if exists {
		priorStatus = prior.Status
		n.FirstSeen = prior.FirstSeen
		if n.Address == "" {
			n.Address = prior.Address
		}
		if n.Version == "" {
			n.Version = prior.Version
		}
		if n.Pubkey == "" {
			n.Pubkey = prior.Pubkey
		}
		if n.RPCPort == 0 {
			n.RPCPort = prior.RPCPort
		}
		if n.LastSeenReported.IsZero() {
			n.LastSeenReported = prior.LastSeenReported
		}
		if n.Geo == nil {
			n.Geo = prior.Geo
		}
	}

	switch {
	case u.Stats != nil:
		n.Status = pnode.StatusOnline
		stats := *u.Stats
		n.Stats = &stats
	case u.Offline:
		n.Status = pnode.StatusOffline
	case priorStatus == pnode.StatusOnline || priorStatus == pnode.StatusDegraded:
		n.Status = pnode.StatusDegraded
		n.Stats = prior.Stats
	default:
		n.Status = pnode.StatusUnknown
	}
	n.Metrics = health.Score(n.Stats, n.Status)

	if exists && priorStatus != n.Status {
		s.logger.Debugf("nodestore: %s %s -> %s", ip, priorStatus, n.Status)
	}

	s.nodes[ip] = n
	s.metrics.Upserts.Inc()
	if exists {
		s.metrics.Nodes.WithLabelValues(string(priorStatus)).Dec()
	}
	s.metrics.Nodes.WithLabelValues(string(n.Status)).Inc()
	return clone(n)
}

// MarkAbsentUnknown demotes online and degraded nodes whose IP is not in
// current to unknown and returns the number of demoted nodes.
func (s *Store) MarkAbsentUnknown(current map[string]struct{}) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var demoted int
	for ip, n := range s.nodes {
		if _, ok := current[ip]; ok {
			continue
		}
		if n.Status != pnode.StatusOnline && n.Status != pnode.StatusDegraded {
			continue
		}
		d := *n
		d.Status = pnode.StatusUnknown
		d.Stats = nil
		d.Metrics = nil
		s.nodes[ip] = &d
		s.metrics.Nodes.WithLabelValues(string(n.Status)).Dec()
		s.metrics.Nodes.WithLabelValues(string(d.Status)).Inc()
		demoted++
	}

	if demoted > 0 {
		s.logger.Debugf("nodestore: %d nodes absent from directory marked unknown", demoted)
	}
	s.metrics.Demoted.Add(float64(demoted))
	return demoted
}

// RemoveStale deletes every node that is not online and was last seen
// before now-retention. It returns the number of removed nodes.
func (s *Store) RemoveStale(retention time.Duration) int {
	cutoff := s.clock.Now().Add(-retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int
	for ip, n := range s.nodes {
		if n.Status == pnode.StatusOnline || !n.LastSeen.Before(cutoff) {
			continue
		}
		delete(s.nodes, ip)
		s.metrics.Nodes.WithLabelValues(string(n.Status)).Dec()
		removed++
	}

	if removed > 0 {
		s.logger.Debugf("nodestore: removed %d stale nodes", removed)
	}
	s.metrics.Removed.Add(float64(removed))
	return removed
}

// Get returns the node with the given IP.
func (s *Store) Get(ip string) (pnode.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[ip]
	if !ok {
		return pnode.Node{}, false
	}
	return clone(n), true
}

// GetAll returns every node ordered by IP.
func (s *Store) GetAll() []pnode.Node {
	return s.Search(Filter{})
}

// Len returns the number of nodes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.nodes)
}

func (s *Store) snapshot() []*pnode.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := make([]*pnode.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].IP < nodes[j].IP
	})
	return nodes
}

func (s *Store) Metrics() []prometheus.Collector {
	return m.PrometheusCollectorsFromFields(s.metrics)
}

// clone returns a copy of n that shares no memory with the stored value.
func clone(n *pnode.Node) pnode.Node {
	c := *n
	if n.Stats != nil {
		stats := *n.Stats
		c.Stats = &stats
	}
	if n.Metrics != nil {
		metrics := *n.Metrics
		c.Metrics = &metrics
	}
	if n.Geo != nil {
		geo := *n.Geo
		c.Geo = &geo
	}
	return c
}
