// Copyright 2024 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package syncer drives the periodic sync cycle that refreshes the node
// store: fetch the peer directory, deduplicate it, resolve locations and
// probe every peer, then apply the outcome to the store.
package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/xandeum/pmon/pkg/dedup"
	"github.com/xandeum/pmon/pkg/logging"
	m "github.com/xandeum/pmon/pkg/metrics"
	"github.com/xandeum/pmon/pkg/nodestore"
	"github.com/xandeum/pmon/pkg/pnode"
	"github.com/xandeum/pmon/pkg/prober"
	"github.com/xandeum/pmon/pkg/tracing"
)

const (
	DefaultInterval       = time.Minute
	DefaultInitialDelay   = 10 * time.Second
	DefaultTimeout        = 50 * time.Second
	DefaultStaleRetention = 7 * 24 * time.Hour
)

var (
	// ErrSyncInProgress is returned by SyncNow when a cycle is already running.
	ErrSyncInProgress = errors.New("sync in progress")
	// ErrClosed is returned by SyncNow after Close was called.
	ErrClosed = errors.New("syncer closed")
)

// State is the state of the orchestrator.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateError   State = "error"
)

// Directory lists the peers of the network.
type Directory interface {
	Pods(ctx context.Context) ([]pnode.Pod, error)
}

// Resolver resolves peer locations.
type Resolver interface {
	Resolve(ctx context.Context, ips []string) (map[string]*pnode.GeoLocation, error)
}

// Prober probes peers for their stats.
type Prober interface {
	ProbeAll(ctx context.Context, ips []string) map[string]prober.Result
}

// Store receives the outcome of every cycle.
type Store interface {
	Upsert(ip, address string, u nodestore.Update) pnode.Node
	MarkAbsentUnknown(current map[string]struct{}) int
	RemoveStale(retention time.Duration) int
}

// CycleResult describes one sync cycle.
type CycleResult struct {
	ID         string        `json:"id,omitempty"`
	Started    time.Time     `json:"started"`
	Finished   time.Time     `json:"finished"`
	Duration   time.Duration `json:"duration"`
	Skipped    bool          `json:"skipped,omitempty"`
	Discovered int           `json:"discovered"`
	Unique     int           `json:"unique"`
	Online     int           `json:"online"`
	Offline    int           `json:"offline"`
	Degraded   int           `json:"degraded"`
	Unknown    int           `json:"unknown"`
	Demoted    int           `json:"demoted"`
	Removed    int           `json:"removed"`
	GeoLocated int           `json:"geo_located"`
	Error      string        `json:"error,omitempty"`
}

type Options struct {
	Interval       time.Duration
	InitialDelay   time.Duration
	Timeout        time.Duration
	StaleRetention time.Duration
	Clock          clock.Clock
}

// Syncer runs sync cycles, at most one at a time.
type Syncer struct {
	directory Directory
	resolver  Resolver
	prober    Prober
	store     Store
	tracer    *tracing.Tracer
	logger    logging.Logger
	metrics   metrics
	clock     clock.Clock

	interval       time.Duration
	initialDelay   time.Duration
	timeout        time.Duration
	staleRetention time.Duration

	running *atomic.Bool
	state   *atomic.String
	ready   *atomic.Bool

	resultMu   sync.Mutex
	lastResult *CycleResult

	// closeMu orders wg.Add in SyncNow before wg.Wait in Close.
	closeMu sync.Mutex
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc
	quit    chan struct{}
	wg      sync.WaitGroup
}

func New(directory Directory, resolver Resolver, prober Prober, store Store, tracer *tracing.Tracer, logger logging.Logger, o Options) *Syncer {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.InitialDelay < 0 {
		o.InitialDelay = 0
	}
	if o.StaleRetention <= 0 {
		o.StaleRetention = DefaultStaleRetention
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Syncer{
		directory:      directory,
		resolver:       resolver,
		prober:         prober,
		store:          store,
		tracer:         tracer,
		logger:         logger,
		metrics:        newMetrics(),
		clock:          o.Clock,
		interval:       o.Interval,
		initialDelay:   o.InitialDelay,
		timeout:        o.Timeout,
		staleRetention: o.StaleRetention,
		running:        atomic.NewBool(false),
		state:          atomic.NewString(string(StateIdle)),
		ready:          atomic.NewBool(false),
		ctx:            ctx,
		cancel:         cancel,
		quit:           make(chan struct{}),
	}
}

// Start runs the first cycle after the initial delay and then one cycle on
// every interval tick until Close is called.
func (s *Syncer) Start() {
	s.wg.Add(1)
	go s.worker()
}

func (s *Syncer) worker() {
	defer s.wg.Done()

	select {
	case <-s.quit:
		return
	case <-s.clock.After(s.initialDelay):
	}

	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.SyncNow(s.ctx); err != nil {
			if errors.Is(err, ErrClosed) {
				return
			}
			if errors.Is(err, ErrSyncInProgress) {
				s.logger.Debug("syncer: scheduled cycle skipped, previous cycle still running")
			} else {
				s.logger.Errorf("syncer: cycle failed: %v", err)
			}
		}

		select {
		case <-s.quit:
			return
		case <-ticker.C:
		}
	}
}

// Close stops the worker, cancels a running cycle, scheduled or manual, and
// waits for it to return. It is safe to call Close more than once.
func (s *Syncer) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	close(s.quit)
	s.cancel()
	s.wg.Wait()
	return nil
}

// State returns the current orchestrator state.
func (s *Syncer) State() State {
	return State(s.state.Load())
}

// Ready reports whether at least one cycle completed without error.
func (s *Syncer) Ready() bool {
	return s.ready.Load()
}

// LastResult returns the result of the last finished cycle, nil before the
// first one.
func (s *Syncer) LastResult() *CycleResult {
	s.resultMu.Lock()
	defer s.resultMu.Unlock()

	if s.lastResult == nil {
		return nil
	}
	r := *s.lastResult
	return &r
}

// SyncNow runs one cycle and returns its result. If a cycle is already
// running it returns at once with a skipped result and ErrSyncInProgress.
// The cycle is canceled when either ctx is done or the syncer is closed.
func (s *Syncer) SyncNow(ctx context.Context) (*CycleResult, error) {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil, ErrClosed
	}
	s.wg.Add(1)
	s.closeMu.Unlock()
	defer s.wg.Done()

	if !s.running.CAS(false, true) {
		s.metrics.CyclesSkipped.Inc()
		return &CycleResult{Skipped: true}, ErrSyncInProgress
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.ctx.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	s.state.Store(string(StateSyncing))

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	r := &CycleResult{
		ID:      uuid.New().String(),
		Started: s.clock.Now(),
	}

	err := s.cycle(ctx, r)

	r.Finished = s.clock.Now()
	r.Duration = r.Finished.Sub(r.Started)
	s.metrics.CycleDuration.Observe(r.Duration.Seconds())
	s.metrics.Cycles.Inc()

	if err != nil {
		r.Error = err.Error()
		s.metrics.CycleFailures.Inc()
		s.state.Store(string(StateError))
	} else {
		s.ready.Store(true)
		s.state.Store(string(StateIdle))
		s.metrics.LastSuccess.Set(float64(r.Finished.Unix()))
	}

	s.resultMu.Lock()
	s.lastResult = r
	s.resultMu.Unlock()

	c := *r
	return &c, err
}

func (s *Syncer) cycle(ctx context.Context, r *CycleResult) error {
	span, logger, ctx := s.tracer.StartSpanFromContext(ctx, "sync-cycle", s.logger, opentracing.Tag{Key: "cycle", Value: r.ID})
	defer span.Finish()

	logger = logger.WithField("cycle", r.ID)
	logger.Debug("syncer: cycle started")

	pods, err := s.directory.Pods(ctx)
	if err != nil {
		span.SetTag("error", true)
		logger.Errorf("syncer: peer directory: %v", err)
		return err
	}
	r.Discovered = len(pods)

	pods, report := dedup.Pods(pods)
	r.Unique = len(pods)
	s.metrics.Discovered.Set(float64(r.Discovered))
	s.metrics.Unique.Set(float64(r.Unique))
	if report.DuplicateIPs > 0 || report.ClearedPubkeys > 0 {
		logger.Debugf("syncer: dropped %d duplicate addresses, cleared %d reused public keys", report.DuplicateIPs, report.ClearedPubkeys)
	}

	ips := make([]string, len(pods))
	for i, p := range pods {
		ips[i] = p.IP()
	}

	var (
		locations map[string]*pnode.GeoLocation
		results   map[string]prober.Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		locations, err = s.resolver.Resolve(gctx, ips)
		if err != nil {
			logger.Warningf("syncer: geolocation: %v", err)
		}
		return nil
	})
	g.Go(func() error {
		results = s.prober.ProbeAll(gctx, ips)
		return nil
	})
	_ = g.Wait()

	current := make(map[string]struct{}, len(pods))
	for _, p := range pods {
		ip := p.IP()
		current[ip] = struct{}{}

		res := results[ip]
		u := nodestore.Update{
			Version: p.Version,
			Pubkey:  p.Pubkey,
			RPCPort: p.RPCPort,
			Stats:   res.Stats,
			Geo:     locations[ip],
			Offline: res.Offline(),
		}
		if p.LastSeenTimestamp > 0 {
			u.LastSeenReported = time.Unix(p.LastSeenTimestamp, 0).UTC()
		}
		if u.Geo != nil {
			r.GeoLocated++
		}

		n := s.store.Upsert(ip, p.Address, u)
		switch n.Status {
		case pnode.StatusOnline:
			r.Online++
		case pnode.StatusOffline:
			r.Offline++
		case pnode.StatusDegraded:
			r.Degraded++
		default:
			r.Unknown++
		}
	}

	r.Demoted = s.store.MarkAbsentUnknown(current)
	r.Removed = s.store.RemoveStale(s.staleRetention)

	if err := ctx.Err(); err != nil {
		logger.Warningf("syncer: cycle cut short: %v", err)
	}
	logger.Infof("syncer: %d peers, %d online, %d degraded, %d offline, %d unknown, %d removed", r.Unique, r.Online, r.Degraded, r.Offline, r.Unknown, r.Removed)
	return nil
}

func (s *Syncer) Metrics() []prometheus.Collector {
	return m.PrometheusCollectorsFromFields(s.metrics)
}
