// Copyright 2024 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jsonrpc

import (
	"errors"
	"net"
	"net/http"
	"syscall"
)

// IsTerminal reports whether err proves that the remote endpoint is down or
// does not exist, so that repeating the call cannot succeed within a cycle:
// refused connections, unreachable hosts or networks, unknown host names and
// a 404 on the rpc path.
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTDOWN) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return true
	}

	return false
}

// IsResponseError reports whether err was caused by the content of a response
// that was received in full: an error object or an undecodable body. The
// endpoint is reachable in that case.
func IsResponseError(err error) bool {
	if err == nil {
		return false
	}
	var rpcErr *Error
	return errors.As(err, &rpcErr) || errors.Is(err, ErrInvalidResponse)
}
