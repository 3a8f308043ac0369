// Copyright 2024 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package httpaccess_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"resenje.org/web"

	"github.com/xandeum/pmon/pkg/logging"
	"github.com/xandeum/pmon/pkg/logging/httpaccess"
)

type wrappedWriter struct {
	http.ResponseWriter
}

// wrap replaces the response writer the way compression middlewares do.
func wrap(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(wrappedWriter{w}, r)
	})
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, logrus.InfoLevel)

	h := web.ChainHandlers(
		httpaccess.NewHTTPAccessLogHandler(logger, logrus.InfoLevel, nil, "test access"),
		wrap,
		web.FinalHandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte("hello"))
		}),
	)

	r := httptest.NewRequest(http.MethodPost, "/sync", nil)
	r.Header.Set("User-Agent", "pmon-test")
	h.ServeHTTP(httptest.NewRecorder(), r)

	got := buf.String()
	for _, want := range []string{
		`msg="test access"`,
		"status=201",
		"size=5",
		"method=POST",
		"uri=/sync",
		"user-agent=pmon-test",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("log line %q does not contain %q", got, want)
		}
	}
}

func TestAccessLogSuppressed(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, logrus.InfoLevel)

	h := web.ChainHandlers(
		httpaccess.NewHTTPAccessLogHandler(logger, logrus.InfoLevel, nil, "test access"),
		wrap,
		httpaccess.SetAccessLogLevelHandler(0),
		web.FinalHandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
	)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	if buf.Len() != 0 {
		t.Errorf("got log output %q, want none", buf.String())
	}
}
