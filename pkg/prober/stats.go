// Copyright 2024 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package prober

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xandeum/pmon/pkg/pnode"
)

var errNotNumeric = errors.New("not a number")

// decodeStats converts a get-stats result into NodeStats. Missing and null
// fields are zero, numeric strings are accepted.
func decodeStats(raw map[string]interface{}) (*pnode.NodeStats, error) {
	if raw == nil {
		return nil, &SchemaError{Err: errors.New("result is not an object")}
	}

	var (
		s   pnode.NodeStats
		err error
	)
	field := func(name string, dst *uint64) {
		if err != nil {
			return
		}
		var f float64
		if f, err = number(raw[name]); err != nil {
			err = &SchemaError{Field: name, Err: err}
			return
		}
		if f < 0 {
			err = &SchemaError{Field: name, Err: fmt.Errorf("negative value %v", f)}
			return
		}
		if f >= math.MaxUint64 {
			*dst = math.MaxUint64
			return
		}
		*dst = uint64(f)
	}

	if s.CPUPercent, err = number(raw["cpu_percent"]); err != nil {
		return nil, &SchemaError{Field: "cpu_percent", Err: err}
	}
	field("ram_used", &s.RAMUsed)
	field("ram_total", &s.RAMTotal)
	field("uptime", &s.Uptime)
	field("packets_sent", &s.PacketsSent)
	field("packets_received", &s.PacketsReceived)
	field("active_streams", &s.ActiveStreams)
	field("total_pages", &s.TotalPages)
	field("total_bytes", &s.TotalBytes)
	field("file_size", &s.FileSize)
	field("current_index", &s.CurrentIndex)
	field("last_updated", &s.LastUpdated)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func number(v interface{}) (float64, error) {
	switch v := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case json.Number:
		return v.Float64()
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("%w: %q", errNotNumeric, v)
		}
		return f, nil
	}
	return 0, fmt.Errorf("%w: %T", errNotNumeric, v)
}
