// Copyright 2020 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"go.uber.org/atomic"
	"resenje.org/web"

	"github.com/xandeum/pmon/pkg/debugapi"
	"github.com/xandeum/pmon/pkg/logging"
	"github.com/xandeum/pmon/pkg/syncer"
)

type testServerOptions struct {
	Syncer             *mockSyncer
	Geo                *mockGeo
	CORSAllowedOrigins []string
	Unconfigured       bool
}

func newTestServer(t *testing.T, o testServerOptions) *http.Client {
	t.Helper()

	if o.Syncer == nil {
		o.Syncer = &mockSyncer{}
	}
	if o.Geo == nil {
		o.Geo = &mockGeo{}
	}

	s := debugapi.New(logging.Noop(), nil, o.CORSAllowedOrigins)
	if !o.Unconfigured {
		s.Configure(o.Syncer, o.Geo)
	}
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)

	return &http.Client{
		Transport: web.RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			u, err := url.Parse(ts.URL + r.URL.String())
			if err != nil {
				return nil, err
			}
			r.URL = u
			return ts.Client().Transport.RoundTrip(r)
		}),
	}
}

type mockSyncer struct {
	syncNow    func(ctx context.Context) (*syncer.CycleResult, error)
	state      syncer.State
	lastResult *syncer.CycleResult
	ready      bool
	calls      atomic.Int32
}

func (m *mockSyncer) SyncNow(ctx context.Context) (*syncer.CycleResult, error) {
	m.calls.Inc()
	if m.syncNow == nil {
		return &syncer.CycleResult{}, nil
	}
	return m.syncNow(ctx)
}

func (m *mockSyncer) State() syncer.State {
	if m.state == "" {
		return syncer.StateIdle
	}
	return m.state
}

func (m *mockSyncer) LastResult() *syncer.CycleResult { return m.lastResult }

func (m *mockSyncer) Ready() bool { return m.ready }

type mockGeo struct {
	size    int
	cleared atomic.Int32
}

func (m *mockGeo) CacheSize() int {
	if m.cleared.Load() > 0 {
		return 0
	}
	return m.size
}

func (m *mockGeo) ClearCache() { m.cleared.Inc() }
