// Copyright 2020 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugapi

import (
	"net/http"

	"github.com/xandeum/pmon"
	"github.com/xandeum/pmon/pkg/jsonhttp"
)

type statusResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func statusHandler(w http.ResponseWriter, _ *http.Request) {
	jsonhttp.OK(w, statusResponse{
		Status:  "ok",
		Version: pmon.Version,
	})
}

// readinessHandler reports ready once a sync cycle has completed and the
// node store holds a view of the network.
func (s *Service) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if !s.syncer.Ready() {
		jsonhttp.ServiceUnavailable(w, statusResponse{
			Status:  "waiting for the first sync",
			Version: pmon.Version,
		})
		return
	}
	statusHandler(w, r)
}
