// Copyright 2024 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package directory retrieves the list of known peers from the bootstrap
// node with the get-pods call.
package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xandeum/pmon/pkg/jsonrpc"
	"github.com/xandeum/pmon/pkg/logging"
	m "github.com/xandeum/pmon/pkg/metrics"
	"github.com/xandeum/pmon/pkg/pnode"
	"github.com/xandeum/pmon/pkg/tracing"
)

const methodGetPods = "get-pods"

var (
	errNoPods         = errors.New("no pods in result")
	errEmptyDirectory = errors.New("empty directory")
)

// Error is returned by Pods for every failure. A directory error means that
// the current view of the network is unknown.
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("peer directory %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type podsResult struct {
	Pods       *[]pnode.Pod `json:"pods"`
	TotalCount int          `json:"total_count"`
}

// Client queries the bootstrap node for the peer list.
type Client struct {
	url     string
	rpc     *jsonrpc.Client
	tracer  *tracing.Tracer
	logger  logging.Logger
	metrics metrics
}

// New creates a Client that calls the bootstrap node at url.
func New(url string, rpc *jsonrpc.Client, tracer *tracing.Tracer, logger logging.Logger) *Client {
	return &Client{
		url:     url,
		rpc:     rpc,
		tracer:  tracer,
		logger:  logger,
		metrics: newMetrics(),
	}
}

// Pods returns the pod list exactly as reported by the bootstrap node,
// duplicates included. Every failure is a *Error.
func (c *Client) Pods(ctx context.Context) (pods []pnode.Pod, err error) {
	span, _, ctx := c.tracer.StartSpanFromContext(ctx, "directory-get-pods", c.logger)
	defer span.Finish()

	start := time.Now()
	c.metrics.Requests.Inc()
	defer func() {
		c.metrics.RequestDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			c.metrics.Failures.Inc()
			span.SetTag("error", true)
		}
	}()

	var result podsResult
	if err := c.rpc.Call(ctx, c.url, methodGetPods, nil, &result); err != nil {
		return nil, &Error{URL: c.url, Err: err}
	}
	if result.Pods == nil {
		return nil, &Error{URL: c.url, Err: errNoPods}
	}
	if len(*result.Pods) == 0 {
		return nil, &Error{URL: c.url, Err: errEmptyDirectory}
	}

	pods = *result.Pods
	for i, p := range pods {
		if p.Address == "" {
			return nil, &Error{URL: c.url, Err: fmt.Errorf("pod %d: missing address", i)}
		}
	}

	c.metrics.Pods.Set(float64(len(pods)))
	c.logger.Debugf("directory: %d pods reported by %s", len(pods), c.url)
	return pods, nil
}

func (c *Client) Metrics() []prometheus.Collector {
	return m.PrometheusCollectorsFromFields(c.metrics)
}
