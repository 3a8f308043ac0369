// Copyright 2020 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package node defines the concept of a pmon node
// by bootstrapping and injecting all necessary
// dependencies.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/xandeum/pmon/pkg/debugapi"
	"github.com/xandeum/pmon/pkg/directory"
	"github.com/xandeum/pmon/pkg/geo"
	"github.com/xandeum/pmon/pkg/jsonrpc"
	"github.com/xandeum/pmon/pkg/logging"
	"github.com/xandeum/pmon/pkg/metrics"
	"github.com/xandeum/pmon/pkg/nodestore"
	"github.com/xandeum/pmon/pkg/prober"
	"github.com/xandeum/pmon/pkg/syncer"
	"github.com/xandeum/pmon/pkg/tracing"
)

// ErrShutdownInProgress is returned by Shutdown when it was already called.
var ErrShutdownInProgress = errors.New("shutdown in progress")

type Pmon struct {
	debugAPIServer     *http.Server
	errorLogWriter     *io.PipeWriter
	tracerCloser       io.Closer
	geoCloser          io.Closer
	syncerCloser       io.Closer
	store              *nodestore.Store
	syncer             *syncer.Syncer
	debugAPIAddr       net.Addr
	shutdownInProgress bool
	shutdownMutex      sync.Mutex
}

type Options struct {
	BootstrapURL       string
	StatsPort          int
	StatsPath          string
	SyncInterval       time.Duration
	SyncInitialDelay   time.Duration
	SyncTimeout        time.Duration
	StaleRetention     time.Duration
	ProbeConcurrency   int
	ProbeTimeout       time.Duration
	ProbeAttempts      int
	GeoEndpoint        string
	GeoBatchSize       int
	GeoBatchDelay      time.Duration
	GeoIPDBPath        string
	DebugAPIAddr       string
	CORSAllowedOrigins []string
	Logger             logging.Logger
	TracingEnabled     bool
	TracingEndpoint    string
	TracingServiceName string
}

// NewPmon wires the sync engine components and starts the sync worker and,
// if an address is given, the debug API server.
func NewPmon(o Options) (b *Pmon, err error) {
	logger := o.Logger

	tracer, tracerCloser, err := tracing.NewTracer(&tracing.Options{
		Enabled:     o.TracingEnabled,
		Endpoint:    o.TracingEndpoint,
		ServiceName: o.TracingServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("tracer: %w", err)
	}

	b = &Pmon{
		errorLogWriter: logger.WriterLevel(logrus.ErrorLevel),
		tracerCloser:   tracerCloser,
	}

	defer func(b *Pmon) {
		if err != nil {
			logger.Errorf("got error, shutting down: %v", err)
			if err2 := b.Shutdown(context.Background()); err2 != nil {
				logger.Errorf("got error while shutting down: %v", err2)
			}
		}
	}(b)

	var debugAPIService *debugapi.Service
	if o.DebugAPIAddr != "" {
		// set up basic debug api endpoints for health and metrics before
		// the sync engine is constructed
		debugAPIService = debugapi.New(logger, tracer, o.CORSAllowedOrigins)

		debugAPIListener, err := net.Listen("tcp", o.DebugAPIAddr)
		if err != nil {
			return nil, fmt.Errorf("debug api listener: %w", err)
		}

		debugAPIServer := &http.Server{
			IdleTimeout:       30 * time.Second,
			ReadHeaderTimeout: 3 * time.Second,
			Handler:           debugAPIService,
			ErrorLog:          stdlog.New(b.errorLogWriter, "", 0),
		}

		go func() {
			logger.Infof("debug api address: %s", debugAPIListener.Addr())

			if err := debugAPIServer.Serve(debugAPIListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Debugf("debug api server: %v", err)
				logger.Error("unable to serve debug api")
			}
		}()

		b.debugAPIServer = debugAPIServer
		b.debugAPIAddr = debugAPIListener.Addr()
	}

	rpc := jsonrpc.NewClient(jsonrpc.Options{Tracer: tracer})

	directoryClient := directory.New(o.BootstrapURL, rpc, tracer, logger)

	resolver, err := geo.New(geo.Options{
		Endpoint:   o.GeoEndpoint,
		BatchSize:  o.GeoBatchSize,
		BatchDelay: o.GeoBatchDelay,
		DBPath:     o.GeoIPDBPath,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("geo resolver: %w", err)
	}
	b.geoCloser = resolver

	retryPolicy := prober.DefaultRetryPolicy()
	if o.ProbeAttempts > 0 {
		retryPolicy.MaxAttempts = o.ProbeAttempts
	}
	probeService := prober.New(rpc, tracer, logger, prober.Options{
		Port:        o.StatsPort,
		Path:        o.StatsPath,
		Timeout:     o.ProbeTimeout,
		Concurrency: o.ProbeConcurrency,
		Retry:       &retryPolicy,
	})

	store := nodestore.New(logger, nodestore.Options{})
	b.store = store

	syncService := syncer.New(directoryClient, resolver, probeService, store, tracer, logger, syncer.Options{
		Interval:       o.SyncInterval,
		InitialDelay:   o.SyncInitialDelay,
		Timeout:        o.SyncTimeout,
		StaleRetention: o.StaleRetention,
	})
	b.syncer = syncService

	if debugAPIService != nil {
		// register metrics from components
		for _, c := range []metrics.Collector{logger, directoryClient, resolver, probeService, store, syncService} {
			debugAPIService.MustRegisterMetrics(c.Metrics()...)
		}

		// inject dependencies and configure full debug api http path routes
		debugAPIService.Configure(syncService, resolver)
	}

	syncService.Start()
	b.syncerCloser = syncService

	logger.Infof("syncing with bootstrap node %s every %s", o.BootstrapURL, o.SyncInterval)

	return b, nil
}

// Store returns the node store kept up to date by the sync worker.
func (b *Pmon) Store() *nodestore.Store {
	return b.store
}

// Syncer returns the sync orchestrator.
func (b *Pmon) Syncer() *syncer.Syncer {
	return b.syncer
}

// DebugAPIAddr returns the address the debug API listens on, nil when the
// debug API is disabled.
func (b *Pmon) DebugAPIAddr() net.Addr {
	return b.debugAPIAddr
}

// Shutdown stops the debug API server and the sync worker and releases the
// remaining resources. Errors from all components are collected.
func (b *Pmon) Shutdown(ctx context.Context) error {
	var mErr error

	// if a shutdown is already in process, return here
	b.shutdownMutex.Lock()
	if b.shutdownInProgress {
		b.shutdownMutex.Unlock()
		return ErrShutdownInProgress
	}
	b.shutdownInProgress = true
	b.shutdownMutex.Unlock()

	// tryClose is a convenient closure which decrease
	// repetitive io.Closer tryClose procedure.
	tryClose := func(c io.Closer, errMsg string) {
		if c == nil {
			return
		}
		if err := c.Close(); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("%s: %w", errMsg, err))
		}
	}

	var eg errgroup.Group
	if b.debugAPIServer != nil {
		eg.Go(func() error {
			if err := b.debugAPIServer.Shutdown(ctx); err != nil {
				return fmt.Errorf("debug api server: %w", err)
			}
			return nil
		})
	}
	if b.syncerCloser != nil {
		eg.Go(func() error {
			if err := b.syncerCloser.Close(); err != nil {
				return fmt.Errorf("syncer: %w", err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		mErr = multierror.Append(mErr, err)
	}

	tryClose(b.geoCloser, "geo resolver")
	tryClose(b.tracerCloser, "tracer")
	tryClose(b.errorLogWriter, "error log writer")

	return mErr
}
