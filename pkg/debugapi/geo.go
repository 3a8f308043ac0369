// Copyright 2024 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugapi

import (
	"net/http"

	"github.com/xandeum/pmon/pkg/jsonhttp"
)

type geoCacheResponse struct {
	Size int `json:"size"`
}

func (s *Service) geoCacheHandler(w http.ResponseWriter, _ *http.Request) {
	jsonhttp.OK(w, geoCacheResponse{Size: s.geo.CacheSize()})
}

func (s *Service) geoCacheClearHandler(w http.ResponseWriter, _ *http.Request) {
	s.geo.ClearCache()
	jsonhttp.OK(w, geoCacheResponse{Size: s.geo.CacheSize()})
}
