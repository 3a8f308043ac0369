// Copyright 2024 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package geo resolves IP addresses to geographic locations. Results,
// including misses, are cached for the lifetime of the process. Addresses
// are looked up in an optional local MaxMind database first and then in
// paced batches against an ip-api compatible batch endpoint.
package geo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/oschwald/geoip2-golang"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/xandeum/pmon"
	"github.com/xandeum/pmon/pkg/fanout"
	"github.com/xandeum/pmon/pkg/logging"
	m "github.com/xandeum/pmon/pkg/metrics"
	"github.com/xandeum/pmon/pkg/pnode"
	"github.com/xandeum/pmon/pkg/ratelimit"
)

const (
	DefaultEndpoint    = "http://ip-api.com/batch?fields=status,message,country,countryCode,regionName,city,lat,lon,timezone,query"
	DefaultBatchSize   = 100
	DefaultBatchDelay  = 1200 * time.Millisecond
	DefaultConcurrency = 1

	maxBatchSize    = 100
	maxResponseSize = 4 * 1024 * 1024
	statusSuccess   = "success"
)

// BatchError is reported for every batch that could not be resolved. All
// addresses of a failed batch are cached as not found.
type BatchError struct {
	IPs []string
	Err error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("geo batch of %d addresses: %v", len(e.IPs), e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// Options are optional parameters for the Resolver constructor.
type Options struct {
	Endpoint    string
	BatchSize   int
	BatchDelay  time.Duration
	Concurrency int
	// DBPath is the path of a MaxMind City database. When empty only the
	// batch endpoint is used.
	DBPath     string
	HTTPClient *http.Client
}

// Resolver resolves IP addresses to locations.
type Resolver struct {
	endpoint    string
	limiterKey  string
	batchSize   int
	concurrency int
	httpClient  *http.Client
	db          *geoip2.Reader
	cache       *cache.Cache
	limiter     *ratelimit.Limiter
	logger      logging.Logger
	metrics     metrics
}

// New creates a Resolver. It fails only if a configured database can not
// be opened.
func New(o Options, logger logging.Logger) (*Resolver, error) {
	if o.Endpoint == "" {
		o.Endpoint = DefaultEndpoint
	}
	if o.BatchSize <= 0 || o.BatchSize > maxBatchSize {
		o.BatchSize = DefaultBatchSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.BatchDelay <= 0 {
		o.BatchDelay = DefaultBatchDelay
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}

	u, err := url.Parse(o.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("geo endpoint: %w", err)
	}

	r := &Resolver{
		endpoint:    o.Endpoint,
		limiterKey:  u.Host,
		batchSize:   o.BatchSize,
		concurrency: o.Concurrency,
		httpClient:  o.HTTPClient,
		cache:       cache.New(cache.NoExpiration, 0),
		limiter:     ratelimit.New(o.BatchDelay, 1),
		logger:      logger,
		metrics:     newMetrics(),
	}

	if o.DBPath != "" {
		db, err := geoip2.Open(o.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open geoip database: %w", err)
		}
		r.db = db
	}

	return r, nil
}

// Resolve returns the location of every given address. Addresses that are
// not publicly routable, unknown to the sources or part of a failed batch
// map to nil. The returned error aggregates batch errors and never means
// that the returned map is unusable.
func (r *Resolver) Resolve(ctx context.Context, ips []string) (map[string]*pnode.GeoLocation, error) {
	result := make(map[string]*pnode.GeoLocation, len(ips))

	var pending []string
	seen := make(map[string]struct{}, len(ips))
	for _, ip := range ips {
		if _, ok := seen[ip]; ok {
			continue
		}
		seen[ip] = struct{}{}

		if !Public(ip) {
			result[ip] = nil
			r.metrics.SkippedPrivate.Inc()
			continue
		}
		if loc, ok := r.Cached(ip); ok {
			result[ip] = loc
			r.metrics.CacheHits.Inc()
			continue
		}
		if loc := r.lookupDB(ip); loc != nil {
			r.cache.Set(ip, loc, cache.NoExpiration)
			result[ip] = loc
			r.metrics.DatabaseHits.Inc()
			continue
		}
		pending = append(pending, ip)
	}

	if len(pending) == 0 {
		return result, nil
	}

	batches := split(pending, r.batchSize)

	var (
		mu   sync.Mutex
		merr *multierror.Error
	)
	err := fanout.ForEach(ctx, r.concurrency, len(batches), func(ctx context.Context, i int) {
		batch := batches[i]
		locs, err := r.resolveBatch(ctx, batch)

		mu.Lock()
		defer mu.Unlock()

		if err != nil {
			r.metrics.BatchFailures.Inc()
			merr = multierror.Append(merr, &BatchError{IPs: batch, Err: err})
			// a canceled cycle leaves the addresses uncached for the next one
			if ctx.Err() != nil {
				return
			}
			for _, ip := range batch {
				r.cache.Set(ip, (*pnode.GeoLocation)(nil), cache.NoExpiration)
			}
			return
		}
		for ip, loc := range locs {
			r.cache.Set(ip, loc, cache.NoExpiration)
			result[ip] = loc
		}
	})
	if err != nil {
		merr = multierror.Append(merr, err)
	}
	for _, ip := range pending {
		if _, ok := result[ip]; !ok {
			result[ip] = nil
		}
	}

	r.metrics.CacheSize.Set(float64(r.cache.ItemCount()))
	if err := merr.ErrorOrNil(); err != nil {
		return result, err
	}
	return result, nil
}

type batchQuery struct {
	Query string `json:"query"`
}

type batchEntry struct {
	Status      string  `json:"status"`
	Message     string  `json:"message"`
	Query       string  `json:"query"`
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	RegionName  string  `json:"regionName"`
	City        string  `json:"city"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Timezone    string  `json:"timezone"`
}

// resolveBatch waits for the endpoint pacing and looks up one batch. The
// returned map has an entry, possibly nil, for every address of the batch.
func (r *Resolver) resolveBatch(ctx context.Context, ips []string) (map[string]*pnode.GeoLocation, error) {
	if err := r.limiter.Wait(ctx, r.limiterKey, 1); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		r.metrics.BatchDuration.Observe(time.Since(start).Seconds())
	}()
	r.metrics.Batches.Inc()
	r.metrics.Lookups.Add(float64(len(ips)))

	queries := make([]batchQuery, len(ips))
	for i, ip := range ips {
		queries[i] = batchQuery{Query: ip}
	}
	body, err := json.Marshal(queries)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", pmon.UserAgent())

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("response status %d", resp.StatusCode)
	}

	var entries []batchEntry
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(entries) != len(ips) {
		return nil, fmt.Errorf("got %d entries for %d addresses", len(entries), len(ips))
	}

	locs := make(map[string]*pnode.GeoLocation, len(ips))
	for i, e := range entries {
		ip := ips[i]
		if e.Query != "" && e.Query != ip {
			return nil, fmt.Errorf("entry %d is for %s, want %s", i, e.Query, ip)
		}
		if e.Status != statusSuccess {
			r.logger.Tracef("geo: %s not resolved: %s", ip, e.Message)
			locs[ip] = nil
			continue
		}
		locs[ip] = &pnode.GeoLocation{
			Latitude:    e.Lat,
			Longitude:   e.Lon,
			Country:     e.Country,
			CountryCode: e.CountryCode,
			City:        e.City,
			Region:      e.RegionName,
			Timezone:    e.Timezone,
		}
	}
	return locs, nil
}

func (r *Resolver) lookupDB(ip string) *pnode.GeoLocation {
	if r.db == nil {
		return nil
	}
	rec, err := r.db.City(net.ParseIP(ip))
	if err != nil {
		r.logger.Debugf("geo: database lookup %s: %v", ip, err)
		return nil
	}
	if rec.Country.IsoCode == "" {
		return nil
	}

	loc := &pnode.GeoLocation{
		Latitude:    rec.Location.Latitude,
		Longitude:   rec.Location.Longitude,
		Country:     rec.Country.Names["en"],
		CountryCode: rec.Country.IsoCode,
		City:        rec.City.Names["en"],
		Timezone:    rec.Location.TimeZone,
	}
	if len(rec.Subdivisions) > 0 {
		loc.Region = rec.Subdivisions[0].Names["en"]
	}
	return loc
}

// Cached returns the cached location for ip. The second return value is
// false if ip was never resolved, a cached miss returns nil and true.
func (r *Resolver) Cached(ip string) (*pnode.GeoLocation, bool) {
	v, ok := r.cache.Get(ip)
	if !ok {
		return nil, false
	}
	loc, _ := v.(*pnode.GeoLocation)
	return loc, true
}

// CacheSize returns the number of cached addresses, misses included.
func (r *Resolver) CacheSize() int {
	return r.cache.ItemCount()
}

// ClearCache drops every cached result.
func (r *Resolver) ClearCache() {
	r.cache.Flush()
	r.metrics.CacheSize.Set(0)
	r.logger.Info("geo: cache cleared")
}

func (r *Resolver) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Resolver) Metrics() []prometheus.Collector {
	return m.PrometheusCollectorsFromFields(r.metrics)
}

// Public reports whether ip is a parsable, publicly routable address.
func Public(ip string) bool {
	addr := net.ParseIP(ip)
	if addr == nil {
		return false
	}
	return !(addr.IsPrivate() ||
		addr.IsLoopback() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified())
}

func split(ips []string, size int) [][]string {
	batches := make([][]string, 0, (len(ips)+size-1)/size)
	for len(ips) > size {
		batches = append(batches, ips[:size])
		ips = ips[size:]
	}
	return append(batches, ips)
}
