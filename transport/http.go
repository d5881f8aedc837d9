//
// Tencent is pleased to support the open source community by making trpc-toolmesh-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-toolmesh-go is licensed under the Apache License Version 2.0.
//
//

package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

// HTTPTransport posts JSON-RPC envelopes to a provider endpoint.
type HTTPTransport struct {
	name     string
	endpoint string
	timeout  time.Duration
	headers  map[string]string
	client   *http.Client
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithHTTPTimeout overrides the per-call deadline.
func WithHTTPTimeout(d time.Duration) HTTPOption {
	return func(h *HTTPTransport) {
		h.timeout = d
	}
}

// WithHTTPHeader adds a header to every request.
func WithHTTPHeader(key, value string) HTTPOption {
	return func(h *HTTPTransport) {
		h.headers[key] = value
	}
}

// WithHTTPClient injects a custom HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(h *HTTPTransport) {
		h.client = client
	}
}

// NewHTTPTransport creates an HTTP transport for the given provider name
// and endpoint URL.
func NewHTTPTransport(name, endpoint string, opts ...HTTPOption) *HTTPTransport {
	h := &HTTPTransport{
		name:     name,
		endpoint: endpoint,
		timeout:  DefaultTimeout,
		headers:  make(map[string]string),
		client:   http.DefaultClient,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name implements Transport.
func (h *HTTPTransport) Name() string {
	return h.name
}

// Call implements Transport.
func (h *HTTPTransport) Call(ctx context.Context, method string, params any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = Tagged(TagCritical, "panic during http call to %s: %v", h.name, r)
		}
	}()

	req := NewRequest(method, params)
	payload, encErr := req.Encode()
	if encErr != nil {
		return nil, Tagged(TagError, "%v", encErr)
	}

	tctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	httpReq, reqErr := http.NewRequestWithContext(tctx, http.MethodPost, h.endpoint, bytes.NewReader(payload))
	if reqErr != nil {
		return nil, Tagged(TagError, "build request for %s: %v", h.endpoint, reqErr)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range h.headers {
		httpReq.Header.Set(k, v)
	}

	resp, doErr := h.client.Do(httpReq)
	if doErr != nil {
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return nil, Tagged(TagSubprocess, "timed out after %s", h.timeout)
		}
		return nil, Tagged(TagError, "post to %s: %v", h.endpoint, doErr)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, Tagged(TagError, "read response from %s: %v", h.endpoint, readErr)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, Tagged(TagError, "provider %s returned status %d", h.name, resp.StatusCode)
	}
	return DecodeResponse(body)
}
