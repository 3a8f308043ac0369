// Copyright 2024 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugapi_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/xandeum/pmon/pkg/jsonhttp"
	"github.com/xandeum/pmon/pkg/jsonhttp/jsonhttptest"
	"github.com/xandeum/pmon/pkg/syncer"
)

func TestSyncStatus(t *testing.T) {
	t.Run("before first sync", func(t *testing.T) {
		client := newTestServer(t, testServerOptions{})

		var got map[string]interface{}
		jsonhttptest.Request(t, client, http.MethodGet, "/sync", http.StatusOK,
			jsonhttptest.WithUnmarshalJSONResponse(&got),
		)

		want := map[string]interface{}{"state": "idle", "last_result": nil}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("response mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("last result", func(t *testing.T) {
		started := time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC)
		last := &syncer.CycleResult{
			ID:         "a7c3",
			Started:    started,
			Finished:   started.Add(3 * time.Second),
			Duration:   3 * time.Second,
			Discovered: 12,
			Unique:     10,
			Online:     7,
			Offline:    2,
			Degraded:   1,
			GeoLocated: 9,
		}
		client := newTestServer(t, testServerOptions{Syncer: &mockSyncer{
			state:      syncer.StateSyncing,
			lastResult: last,
		}})

		var got struct {
			State      syncer.State        `json:"state"`
			LastResult *syncer.CycleResult `json:"last_result"`
		}
		jsonhttptest.Request(t, client, http.MethodGet, "/sync", http.StatusOK,
			jsonhttptest.WithUnmarshalJSONResponse(&got),
		)

		if got.State != syncer.StateSyncing {
			t.Errorf("got state %q, want %q", got.State, syncer.StateSyncing)
		}
		if diff := cmp.Diff(last, got.LastResult); diff != "" {
			t.Errorf("last result mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestSyncTrigger(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		want := &syncer.CycleResult{ID: "b1", Discovered: 3, Unique: 3, Online: 3}
		client := newTestServer(t, testServerOptions{Syncer: &mockSyncer{
			syncNow: func(context.Context) (*syncer.CycleResult, error) {
				return want, nil
			},
		}})

		var got syncer.CycleResult
		jsonhttptest.Request(t, client, http.MethodPost, "/sync", http.StatusOK,
			jsonhttptest.WithUnmarshalJSONResponse(&got),
		)
		if diff := cmp.Diff(*want, got); diff != "" {
			t.Errorf("result mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("in progress", func(t *testing.T) {
		client := newTestServer(t, testServerOptions{Syncer: &mockSyncer{
			syncNow: func(context.Context) (*syncer.CycleResult, error) {
				return &syncer.CycleResult{Skipped: true}, syncer.ErrSyncInProgress
			},
		}})

		jsonhttptest.Request(t, client, http.MethodPost, "/sync", http.StatusConflict,
			jsonhttptest.WithExpectedJSONResponse(jsonhttp.StatusResponse{
				Message: syncer.ErrSyncInProgress.Error(),
				Code:    http.StatusConflict,
			}),
		)
	})

	t.Run("cycle failed", func(t *testing.T) {
		client := newTestServer(t, testServerOptions{Syncer: &mockSyncer{
			syncNow: func(context.Context) (*syncer.CycleResult, error) {
				return &syncer.CycleResult{Error: "directory unreachable"}, errors.New("directory unreachable")
			},
		}})

		jsonhttptest.Request(t, client, http.MethodPost, "/sync", http.StatusBadGateway,
			jsonhttptest.WithExpectedJSONResponse(jsonhttp.StatusResponse{
				Message: "directory unreachable",
				Code:    http.StatusBadGateway,
			}),
		)
	})

	t.Run("throttled", func(t *testing.T) {
		s := &mockSyncer{}
		client := newTestServer(t, testServerOptions{Syncer: s})

		jsonhttptest.Request(t, client, http.MethodPost, "/sync", http.StatusOK)
		jsonhttptest.Request(t, client, http.MethodPost, "/sync", http.StatusTooManyRequests,
			jsonhttptest.WithExpectedJSONResponse(jsonhttp.StatusResponse{
				Message: "sync trigger rate exceeded",
				Code:    http.StatusTooManyRequests,
			}),
		)

		if got := s.calls.Load(); got != 1 {
			t.Errorf("got %d sync calls, want 1", got)
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		client := newTestServer(t, testServerOptions{})

		jsonhttptest.Request(t, client, http.MethodPut, "/sync", http.StatusMethodNotAllowed,
			jsonhttptest.WithExpectedJSONResponse(jsonhttp.StatusResponse{
				Message: http.StatusText(http.StatusMethodNotAllowed),
				Code:    http.StatusMethodNotAllowed,
			}),
		)
	})
}
