package rhttp

import (
	"github.com/google/uuid"
)

// RequestInterceptor transforms a request descriptor before it enters
// the pipeline. Interceptors run strictly in registration order; the
// output of interceptor n is the input to interceptor n+1 (spec §4.5).
// A returned error aborts the chain and becomes the active error,
// subject to the error-interceptor chain.
type RequestInterceptor func(req *Request) (*Request, error)

// ResponseInterceptor transforms a response descriptor after it is
// built, including on cache hits (spec §9 Open Questions — this module
// documents that choice: interceptors see cached responses too, so a
// side-effecting interceptor like logging or metrics still fires).
type ResponseInterceptor func(resp *Response, req *Request) (*Response, error)

// ErrorInterceptor observes or transforms the error the pipeline is
// about to surface to the caller. Per spec §4.5's error-interceptor
// convention: returning a non-nil error replaces the active error;
// returning nil leaves it unchanged; the interceptor may also return a
// different error than the one it received to reclassify it.
type ErrorInterceptor func(err error, req *Request) error

// InterceptorChain holds the three ordered interceptor sequences (spec
// §4.5): request, response, and error. It is the direct generalization
// of the teacher's InterceptorChain (httpclient/interceptor.go), which
// only has request/response stages — the error stage is added here.
type InterceptorChain struct {
	request  []RequestInterceptor
	response []ResponseInterceptor
	onError  []ErrorInterceptor
}

// NewInterceptorChain creates an empty chain.
func NewInterceptorChain() *InterceptorChain {
	return &InterceptorChain{}
}

// AddRequest appends a request interceptor.
func (c *InterceptorChain) AddRequest(i RequestInterceptor) {
	c.request = append(c.request, i)
}

// AddResponse appends a response interceptor.
func (c *InterceptorChain) AddResponse(i ResponseInterceptor) {
	c.response = append(c.response, i)
}

// AddError appends an error interceptor.
func (c *InterceptorChain) AddError(i ErrorInterceptor) {
	c.onError = append(c.onError, i)
}

// applyRequest runs every request interceptor in order, threading the
// (possibly modified) descriptor through each one.
func (c *InterceptorChain) applyRequest(req *Request) (*Request, error) {
	var err error
	for _, i := range c.request {
		req, err = i(req)
		if err != nil {
			return req, err
		}
	}
	return req, nil
}

// applyResponse runs every response interceptor in order.
func (c *InterceptorChain) applyResponse(resp *Response, req *Request) (*Response, error) {
	var err error
	for _, i := range c.response {
		resp, err = i(resp, req)
		if err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// applyError runs the error chain. A returned non-nil error (whether
// the same instance or a new one) replaces the active error; a nil
// return leaves the active error unchanged, the Go counterpart of a
// dynamic language returning undefined. The final error is the active
// error after the last interceptor has run.
func (c *InterceptorChain) applyError(err error, req *Request) error {
	for _, i := range c.onError {
		if next := i(err, req); next != nil {
			err = next
		}
	}
	return err
}

// Common interceptor helpers, mirroring the teacher's
// AuthBearerInterceptor/CorrelationIDInterceptor family
// (httpclient/interceptor.go).

// AuthBearerInterceptor adds a static Bearer token to every request.
func AuthBearerInterceptor(token string) RequestInterceptor {
	return func(req *Request) (*Request, error) {
		req.SetHeader("Authorization", "Bearer "+token)
		return req, nil
	}
}

// AuthBearerFuncInterceptor adds a Bearer token produced by a function,
// useful for dynamic or refreshable tokens.
func AuthBearerFuncInterceptor(tokenFunc func() (string, error)) RequestInterceptor {
	return func(req *Request) (*Request, error) {
		token, err := tokenFunc()
		if err != nil {
			return req, err
		}
		req.SetHeader("Authorization", "Bearer "+token)
		return req, nil
	}
}

// CorrelationIDInterceptor stamps every outgoing request with a fresh
// UUID under the given header name, for tracing a request across
// service boundaries.
func CorrelationIDInterceptor(headerName string) RequestInterceptor {
	if headerName == "" {
		headerName = "X-Correlation-ID"
	}
	return func(req *Request) (*Request, error) {
		if req.Headers.Get(headerName) == "" {
			req.SetHeader(headerName, uuid.NewString())
		}
		return req, nil
	}
}
