// Copyright 2024 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package jsonrpc implements a minimal JSON-RPC 2.0 over HTTP client used to
// talk to the bootstrap node and to individual pNodes.
package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/atomic"

	"github.com/xandeum/pmon"
	"github.com/xandeum/pmon/pkg/tracing"
)

const (
	version = "2.0"

	// maxResponseSize caps the number of bytes read from a response body.
	maxResponseSize = 8 * 1024 * 1024
)

// ErrInvalidResponse is returned when the response body is not a valid
// JSON-RPC 2.0 response or the result does not decode into the target value.
var ErrInvalidResponse = errors.New("invalid json-rpc response")

type request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      uint64      `json:"id"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *Error          `json:"error"`
	ID      uint64          `json:"id"`
}

// Error is the error object of a JSON-RPC 2.0 response.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// StatusError is returned when the HTTP response status is not 2xx.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Options are optional parameters for the Client constructor.
type Options struct {
	HTTPClient *http.Client
	Tracer     *tracing.Tracer
}

// Client performs JSON-RPC 2.0 calls over HTTP POST.
type Client struct {
	httpClient *http.Client
	tracer     *tracing.Tracer
	id         *atomic.Uint64
}

// NewClient creates a new Client. When no http client is given,
// http.DefaultClient is used and timeouts must come from contexts.
func NewClient(o Options) *Client {
	c := &Client{
		httpClient: o.HTTPClient,
		tracer:     o.Tracer,
		id:         atomic.NewUint64(0),
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	return c
}

// Call invokes method on the endpoint at url. Nil params are sent as an empty
// array. If result is not nil, the response result is decoded into it.
func (c *Client) Call(ctx context.Context, url, method string, params, result interface{}) error {
	if params == nil {
		params = []interface{}{}
	}

	body, err := json.Marshal(request{
		JSONRPC: version,
		Method:  method,
		Params:  params,
		ID:      c.id.Inc(),
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", pmon.UserAgent())

	if err := c.tracer.AddContextHTTPHeader(ctx, req.Header); err != nil && !errors.Is(err, tracing.ErrContextNotFound) {
		return fmt.Errorf("tracing header: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: %w", method, url, &StatusError{StatusCode: resp.StatusCode})
	}

	var r response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&r); err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, url, ErrInvalidResponse, err)
	}

	if r.Error != nil {
		return fmt.Errorf("%s %s: %w", method, url, r.Error)
	}

	if result == nil {
		return nil
	}
	if len(r.Result) == 0 || bytes.Equal(r.Result, []byte("null")) {
		return fmt.Errorf("%s %s: %w: missing result", method, url, ErrInvalidResponse)
	}
	if err := json.Unmarshal(r.Result, result); err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, url, ErrInvalidResponse, err)
	}
	return nil
}
