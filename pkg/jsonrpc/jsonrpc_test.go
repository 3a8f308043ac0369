// Copyright 2024 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jsonrpc_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xandeum/pmon/pkg/jsonrpc"
)

type echoResult struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

func TestCall(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("got method %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("got content type %q", ct)
		}
		var req struct {
			JSONRPC string        `json:"jsonrpc"`
			Method  string        `json:"method"`
			Params  []interface{} `json:"params"`
			ID      uint64        `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Error(err)
		}
		if req.JSONRPC != "2.0" {
			t.Errorf("got jsonrpc %q, want 2.0", req.JSONRPC)
		}
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":{"method":%q,"params":[]}}`, req.ID, req.Method)
	}))
	defer ts.Close()

	c := jsonrpc.NewClient(jsonrpc.Options{})

	var got echoResult
	if err := c.Call(context.Background(), ts.URL, "get-pods", nil, &got); err != nil {
		t.Fatal(err)
	}

	want := echoResult{Method: "get-pods", Params: []interface{}{}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestCallErrors(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name         string
		handler      http.HandlerFunc
		wantTerminal bool
		wantResponse bool
		check        func(t *testing.T, err error)
	}{
		{
			name: "rpc error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found"}}`)
			},
			wantResponse: true,
			check: func(t *testing.T, err error) {
				var rpcErr *jsonrpc.Error
				if !errors.As(err, &rpcErr) {
					t.Fatalf("got error %v, want rpc error", err)
				}
				if rpcErr.Code != -32601 {
					t.Errorf("got code %d", rpcErr.Code)
				}
			},
		},
		{
			name: "invalid body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `<html>`)
			},
			wantResponse: true,
		},
		{
			name: "missing result",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"jsonrpc":"2.0","id":1}`)
			},
			wantResponse: true,
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
			wantTerminal: true,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			check: func(t *testing.T, err error) {
				var statusErr *jsonrpc.StatusError
				if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadGateway {
					t.Fatalf("got error %v, want status error 502", err)
				}
			},
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ts := httptest.NewServer(tc.handler)
			defer ts.Close()

			c := jsonrpc.NewClient(jsonrpc.Options{})
			var result json.RawMessage
			err := c.Call(context.Background(), ts.URL, "get-stats", nil, &result)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := jsonrpc.IsTerminal(err); got != tc.wantTerminal {
				t.Errorf("got terminal %v, want %v (%v)", got, tc.wantTerminal, err)
			}
			if got := jsonrpc.IsResponseError(err); got != tc.wantResponse {
				t.Errorf("got response error %v, want %v (%v)", got, tc.wantResponse, err)
			}
			if tc.check != nil {
				tc.check(t, err)
			}
		})
	}
}

func TestCallConnectionRefused(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c := jsonrpc.NewClient(jsonrpc.Options{})
	err := c.Call(context.Background(), url, "get-stats", nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !jsonrpc.IsTerminal(err) {
		t.Fatalf("connection refused should be terminal: %v", err)
	}
}

func TestCallContextCanceled(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := jsonrpc.NewClient(jsonrpc.Options{})
	err := c.Call(ctx, ts.URL, "get-stats", nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got error %v, want context canceled", err)
	}
	if jsonrpc.IsTerminal(err) {
		t.Fatal("canceled call must not be terminal")
	}
}
