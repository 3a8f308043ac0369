// Copyright 2024 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugapi_test

import (
	"net/http"
	"testing"

	"github.com/xandeum/pmon/pkg/jsonhttp/jsonhttptest"
)

type geoCacheResponse struct {
	Size int `json:"size"`
}

func TestGeoCache(t *testing.T) {
	geo := &mockGeo{size: 42}
	client := newTestServer(t, testServerOptions{Geo: geo})

	jsonhttptest.Request(t, client, http.MethodGet, "/geo/cache", http.StatusOK,
		jsonhttptest.WithExpectedJSONResponse(geoCacheResponse{Size: 42}),
	)

	jsonhttptest.Request(t, client, http.MethodDelete, "/geo/cache", http.StatusOK,
		jsonhttptest.WithExpectedJSONResponse(geoCacheResponse{Size: 0}),
	)

	if got := geo.cleared.Load(); got != 1 {
		t.Errorf("got %d cache clears, want 1", got)
	}
}
