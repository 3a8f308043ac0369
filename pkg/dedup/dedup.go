// Copyright 2024 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dedup reduces the raw peer list to one record per IP address in
// which every public key is claimed by at most one IP.
package dedup

import (
	"github.com/xandeum/pmon/pkg/pnode"
)

// Report summarizes a deduplication run.
type Report struct {
	Input          int
	Unique         int
	DuplicateIPs   int
	ClearedPubkeys int
}

// Pods returns one pod per IP. When several records share an IP the one
// with the strictly greatest last seen timestamp wins and ties keep the
// earlier record. Public keys are then claimed in order of first
// appearance of each IP and a key already claimed by another IP is
// cleared on the later record. The output preserves the order in which
// each IP first appears, so the result is deterministic for a given input.
func Pods(pods []pnode.Pod) ([]pnode.Pod, Report) {
	r := Report{Input: len(pods)}

	order := make([]string, 0, len(pods))
	winners := make(map[string]pnode.Pod, len(pods))

	for _, p := range pods {
		ip := p.IP()
		cur, ok := winners[ip]
		if !ok {
			order = append(order, ip)
			winners[ip] = p
			continue
		}
		r.DuplicateIPs++
		if p.LastSeenTimestamp > cur.LastSeenTimestamp {
			winners[ip] = p
		}
	}

	claims := make(map[string]string, len(order))
	out := make([]pnode.Pod, 0, len(order))
	for _, ip := range order {
		p := winners[ip]
		if p.Pubkey != "" {
			if owner, ok := claims[p.Pubkey]; ok && owner != ip {
				p.Pubkey = ""
				r.ClearedPubkeys++
			} else {
				claims[p.Pubkey] = ip
			}
		}
		out = append(out, p)
	}

	r.Unique = len(out)
	return out, r
}
