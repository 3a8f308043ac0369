// Copyright 2020 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package jsonhttptest provides a helper for testing JSON HTTP handlers.
package jsonhttptest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/xandeum/pmon/pkg/jsonhttp"
)

// Request is a testing helper function that makes an HTTP request using
// provided client with provided method and url. It performs a validation on
// expected response code and additional options. It returns response headers if
// the request and all validation are successful. In case of any error, testing
// Errorf or Fatal functions will be called.
func Request(t testing.TB, client *http.Client, method, url string, responseCode int, opts ...Option) http.Header {
	t.Helper()

	o := new(options)
	for _, opt := range opts {
		opt(o)
	}

	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	for key, values := range o.requestHeaders {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != responseCode {
		t.Errorf("got response status %s, want %v %s", resp.Status, responseCode, http.StatusText(responseCode))
	}

	for _, key := range o.nonEmptyResponseHeaders {
		if resp.Header.Get(key) == "" {
			t.Errorf("header %q should be set", key)
		}
	}

	switch {
	case o.expectedJSONResponse != nil:
		if v := resp.Header.Get("Content-Type"); v != jsonhttp.DefaultContentTypeHeader {
			t.Errorf("got content type %q, want %q", v, jsonhttp.DefaultContentTypeHeader)
		}
		got, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatal(err)
		}
		want, err := json.Marshal(o.expectedJSONResponse)
		if err != nil {
			t.Fatal(err)
		}
		if got = bytes.TrimSpace(got); !bytes.Equal(got, want) {
			t.Errorf("got json response %s, want %s", got, want)
		}
	case o.unmarshalResponse != nil:
		if err := json.NewDecoder(resp.Body).Decode(o.unmarshalResponse); err != nil {
			t.Fatal(err)
		}
	}
	return resp.Header
}

// Option configures a single Request call.
type Option func(*options)

type options struct {
	requestHeaders          http.Header
	nonEmptyResponseHeaders []string
	expectedJSONResponse    interface{}
	unmarshalResponse       interface{}
}

// WithRequestHeader adds a header to the request. It can be passed more than
// once.
func WithRequestHeader(key, value string) Option {
	return func(o *options) {
		if o.requestHeaders == nil {
			o.requestHeaders = make(http.Header)
		}
		o.requestHeaders.Add(key, value)
	}
}

// WithNonEmptyResponseHeader validates that the response has the header set.
func WithNonEmptyResponseHeader(key string) Option {
	return func(o *options) {
		o.nonEmptyResponseHeaders = append(o.nonEmptyResponseHeaders, key)
	}
}

// WithExpectedJSONResponse validates that the response body is the JSON
// encoding of response.
func WithExpectedJSONResponse(response interface{}) Option {
	return func(o *options) {
		o.expectedJSONResponse = response
	}
}

// WithUnmarshalJSONResponse decodes the response body into response, which
// must be a pointer.
func WithUnmarshalJSONResponse(response interface{}) Option {
	return func(o *options) {
		o.unmarshalResponse = response
	}
}
