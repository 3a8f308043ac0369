// Copyright 2024 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package prober asks individual peers for their telemetry with the
// get-stats call and classifies the outcome of every probe.
package prober

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/xandeum/pmon/pkg/fanout"
	"github.com/xandeum/pmon/pkg/jsonrpc"
	"github.com/xandeum/pmon/pkg/logging"
	m "github.com/xandeum/pmon/pkg/metrics"
	"github.com/xandeum/pmon/pkg/pnode"
	"github.com/xandeum/pmon/pkg/retry"
	"github.com/xandeum/pmon/pkg/tracing"
)

const (
	DefaultPort        = 6000
	DefaultPath        = "/rpc"
	DefaultTimeout     = 3 * time.Second
	DefaultConcurrency = 32

	methodGetStats = "get-stats"
)

// DefaultRetryPolicy tries twice, waiting attempt*500ms between tries, and
// gives up at once when the peer is proven unreachable or answered with
// content that can not be used.
func DefaultRetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 2,
		Backoff:     retry.Linear(500 * time.Millisecond),
		Terminal:    terminal,
	}
}

func terminal(err error) bool {
	return jsonrpc.IsTerminal(err) || IsSchemaError(err)
}

// Options are optional parameters for the Prober constructor.
type Options struct {
	Port        int
	Path        string
	Timeout     time.Duration
	Concurrency int
	Retry       *retry.Policy
}

// Result is the outcome of probing a single peer.
type Result struct {
	Stats    *pnode.NodeStats
	Err      error
	Attempts int
	Duration time.Duration
	// Canceled is set when the probe was cut short by the caller rather
	// than by the peer.
	Canceled bool
}

// Offline reports whether the peer failed to answer at transport level.
// A peer that answered with unusable content is reachable and not offline.
func (r Result) Offline() bool {
	return r.Err != nil && !r.Canceled && !IsSchemaError(r.Err)
}

// Prober performs get-stats calls against peers.
type Prober struct {
	rpc         *jsonrpc.Client
	tracer      *tracing.Tracer
	logger      logging.Logger
	port        int
	path        string
	timeout     time.Duration
	concurrency int
	policy      retry.Policy
	metrics     metrics
}

func New(rpc *jsonrpc.Client, tracer *tracing.Tracer, logger logging.Logger, o Options) *Prober {
	p := &Prober{
		rpc:         rpc,
		tracer:      tracer,
		logger:      logger,
		port:        o.Port,
		path:        o.Path,
		timeout:     o.Timeout,
		concurrency: o.Concurrency,
		metrics:     newMetrics(),
	}
	if p.port <= 0 {
		p.port = DefaultPort
	}
	if p.path == "" {
		p.path = DefaultPath
	}
	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}
	if p.concurrency <= 0 {
		p.concurrency = DefaultConcurrency
	}
	if o.Retry != nil {
		p.policy = *o.Retry
	} else {
		p.policy = DefaultRetryPolicy()
	}
	return p
}

// Probe fetches the telemetry of the peer at ip.
func (p *Prober) Probe(ctx context.Context, ip string) (*pnode.NodeStats, error) {
	r := p.probe(ctx, ip)
	return r.Stats, r.Err
}

// ProbeAll probes every address with bounded concurrency and returns a
// result for each of them. Addresses not probed before ctx is done get a
// canceled result.
func (p *Prober) ProbeAll(ctx context.Context, ips []string) map[string]Result {
	var (
		mu      sync.Mutex
		results = make(map[string]Result, len(ips))
	)

	err := fanout.ForEach(ctx, p.concurrency, len(ips), func(ctx context.Context, i int) {
		r := p.probe(ctx, ips[i])

		mu.Lock()
		results[ips[i]] = r
		mu.Unlock()
	})
	if err != nil {
		for _, ip := range ips {
			if _, ok := results[ip]; !ok {
				results[ip] = Result{Err: err, Canceled: true}
			}
		}
	}
	return results
}

func (p *Prober) probe(ctx context.Context, ip string) (r Result) {
	span, logger, ctx := p.tracer.StartSpanFromContext(ctx, "probe-get-stats", p.logger, opentracing.Tag{Key: "ip", Value: ip})
	defer span.Finish()

	start := time.Now()
	p.metrics.InFlight.Inc()
	p.metrics.Probes.Inc()
	defer func() {
		p.metrics.InFlight.Dec()
		r.Duration = time.Since(start)
		p.metrics.ProbeDuration.Observe(r.Duration.Seconds())
		p.metrics.Attempts.Add(float64(r.Attempts))
		switch {
		case r.Err == nil:
			p.metrics.Successes.Inc()
		case r.Canceled:
			p.metrics.Canceled.Inc()
		case IsSchemaError(r.Err):
			p.metrics.SchemaErrors.Inc()
			span.SetTag("error", true)
		default:
			p.metrics.Failures.Inc()
			span.SetTag("error", true)
		}
	}()

	url := "http://" + net.JoinHostPort(ip, strconv.Itoa(p.port)) + p.path

	r.Attempts, r.Err = p.policy.Do(ctx, func(ctx context.Context) error {
		actx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		stats, err := p.getStats(actx, url)
		if err != nil {
			return err
		}
		r.Stats = stats
		return nil
	})
	if r.Err != nil {
		r.Stats = nil
		r.Canceled = ctx.Err() != nil
		if IsSchemaError(r.Err) {
			logger.Warningf("prober: %s answered with unusable stats: %v", ip, r.Err)
		} else {
			logger.Debugf("prober: %s unreachable after %d attempts: %v", ip, r.Attempts, r.Err)
		}
	}
	return r
}

func (p *Prober) getStats(ctx context.Context, url string) (*pnode.NodeStats, error) {
	var raw map[string]interface{}
	err := p.rpc.Call(ctx, url, methodGetStats, nil, &raw)
	if err != nil {
		if jsonrpc.IsResponseError(err) {
			return nil, &SchemaError{Err: err}
		}
		return nil, err
	}
	return decodeStats(raw)
}

func (p *Prober) Metrics() []prometheus.Collector {
	return m.PrometheusCollectorsFromFields(p.metrics)
}

// SchemaError is returned when a peer answered but the content of the
// answer can not be used as stats.
type SchemaError struct {
	Field string
	Err   error
}

func (e *SchemaError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("stats field %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("stats: %v", e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// IsSchemaError reports whether err is or wraps a *SchemaError.
func IsSchemaError(err error) bool {
	var e *SchemaError
	return errors.As(err, &e)
}
