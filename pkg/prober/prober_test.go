// Copyright 2024 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package prober_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/atomic"

	"github.com/xandeum/pmon/pkg/jsonrpc"
	"github.com/xandeum/pmon/pkg/logging"
	"github.com/xandeum/pmon/pkg/pnode"
	"github.com/xandeum/pmon/pkg/prober"
	"github.com/xandeum/pmon/pkg/retry"
)

const statsResult = `{"jsonrpc":"2.0","id":1,"result":{
	"cpu_percent":20.5,"ram_used":"40","ram_total":100,"uptime":700000,
	"packets_sent":2000,"packets_received":2000,"active_streams":1,
	"total_pages":10,"total_bytes":1024,"file_size":4096,"current_index":3,"last_updated":1700000000}}`

var wantStats = &pnode.NodeStats{
	CPUPercent:      20.5,
	RAMUsed:         40,
	RAMTotal:        100,
	Uptime:          700000,
	PacketsSent:     2000,
	PacketsReceived: 2000,
	ActiveStreams:   1,
	TotalPages:      10,
	TotalBytes:      1024,
	FileSize:        4096,
	CurrentIndex:    3,
	LastUpdated:     1700000000,
}

// newPeer starts a fake peer and returns its address and a request counter.
func newPeer(t *testing.T, h http.HandlerFunc) (ip string, port int, requests *atomic.Int32) {
	t.Helper()

	requests = atomic.NewInt32(0)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Inc()
		if r.URL.Path != "/rpc" {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(ts.Close)

	addr := ts.Listener.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port, requests
}

func newProber(port int) *prober.Prober {
	return prober.New(jsonrpc.NewClient(jsonrpc.Options{}), nil, logging.Noop(), prober.Options{
		Port:    port,
		Timeout: 200 * time.Millisecond,
		Retry: &retry.Policy{
			MaxAttempts: 2,
			Backoff:     retry.Linear(time.Millisecond),
			Terminal:    prober.DefaultRetryPolicy().Terminal,
		},
	})
}

func TestProbe(t *testing.T) {
	t.Parallel()

	ip, port, requests := newPeer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, statsResult)
	})

	got, err := newProber(port).Probe(context.Background(), ip)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(wantStats, got); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
	if n := requests.Load(); n != 1 {
		t.Fatalf("got %d requests, want 1", n)
	}
}

func TestProbeFailures(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name         string
		handler      http.HandlerFunc
		wantAttempts int
		wantOffline  bool
		wantSchema   bool
	}{
		{
			name: "schema error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{"cpu_percent":"busy"}}`)
			},
			wantAttempts: 1,
			wantSchema:   true,
		},
		{
			name: "rpc error object",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found"}}`)
			},
			wantAttempts: 1,
			wantSchema:   true,
		},
		{
			name: "result not an object",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":[1,2,3]}`)
			},
			wantAttempts: 1,
			wantSchema:   true,
		},
		{
			name: "server error retried",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			wantAttempts: 2,
			wantOffline:  true,
		},
		{
			name: "not found is terminal",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
			wantAttempts: 1,
			wantOffline:  true,
		},
		{
			name: "timeout retried",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			wantAttempts: 2,
			wantOffline:  true,
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ip, port, requests := newPeer(t, tc.handler)

			results := newProber(port).ProbeAll(context.Background(), []string{ip})
			r, ok := results[ip]
			if !ok {
				t.Fatal("no result")
			}
			if r.Err == nil {
				t.Fatal("expected error")
			}
			if r.Stats != nil {
				t.Errorf("got stats %v, want none", r.Stats)
			}
			if r.Attempts != tc.wantAttempts {
				t.Errorf("got %d attempts, want %d", r.Attempts, tc.wantAttempts)
			}
			if n := int(requests.Load()); n != tc.wantAttempts {
				t.Errorf("got %d requests, want %d", n, tc.wantAttempts)
			}
			if got := r.Offline(); got != tc.wantOffline {
				t.Errorf("got offline %v, want %v (%v)", got, tc.wantOffline, r.Err)
			}
			if got := prober.IsSchemaError(r.Err); got != tc.wantSchema {
				t.Errorf("got schema error %v, want %v (%v)", got, tc.wantSchema, r.Err)
			}
		})
	}
}

func TestProbeConnectionRefused(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.NotFoundHandler())
	addr := ts.Listener.Addr().(*net.TCPAddr)
	ts.Close()

	results := newProber(addr.Port).ProbeAll(context.Background(), []string{addr.IP.String()})
	r := results[addr.IP.String()]
	if !r.Offline() {
		t.Fatalf("want offline, got %v", r.Err)
	}
	if r.Attempts != 1 {
		t.Fatalf("got %d attempts, want 1", r.Attempts)
	}
}

func TestProbeAllCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ips := []string{"192.0.2.1", "192.0.2.2"}
	results := newProber(6000).ProbeAll(ctx, ips)
	if len(results) != len(ips) {
		t.Fatalf("got %d results, want %d", len(results), len(ips))
	}
	for ip, r := range results {
		if !r.Canceled {
			t.Errorf("%s: want canceled result", ip)
		}
		if r.Offline() {
			t.Errorf("%s: canceled probe must not be offline", ip)
		}
		if !errors.Is(r.Err, context.Canceled) {
			t.Errorf("%s: got error %v, want context canceled", ip, r.Err)
		}
	}
}

func TestDecodeStats(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name    string
		in      string
		want    *pnode.NodeStats
		wantErr bool
	}{
		{
			name: "empty object",
			in:   `{}`,
			want: &pnode.NodeStats{},
		},
		{
			name: "numeric strings",
			in:   `{"cpu_percent":"12.5","uptime":" 3600 ","file_size":""}`,
			want: &pnode.NodeStats{CPUPercent: 12.5, Uptime: 3600},
		},
		{
			name: "nulls",
			in:   `{"cpu_percent":null,"ram_used":null}`,
			want: &pnode.NodeStats{},
		},
		{
			name:    "boolean",
			in:      `{"ram_used":true}`,
			wantErr: true,
		},
		{
			name:    "negative",
			in:      `{"packets_sent":-1}`,
			wantErr: true,
		},
		{
			name:    "word",
			in:      `{"uptime":"forever"}`,
			wantErr: true,
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var raw map[string]interface{}
			if err := json.Unmarshal([]byte(tc.in), &raw); err != nil {
				t.Fatal(err)
			}

			got, err := prober.DecodeStats(raw)
			if tc.wantErr {
				if !prober.IsSchemaError(err) {
					t.Fatalf("got error %v, want schema error", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("stats mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
