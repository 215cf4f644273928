package rhttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// pipeline is the core request-execution orchestration spec §4.7
// describes: interceptors, cache lookup, in-flight dedup, circuit
// breaker, retry, transport dispatch, and response caching, wired
// together in that strict order. Client is a thin facade over one
// pipeline per logical client instance.
type pipeline struct {
	cfg     *Config
	cache   *httpCache
	breaker *circuitBreaker
	chain   *InterceptorChain
	metrics *clientMetrics
}

func newPipeline(cfg *Config, chain *InterceptorChain, metrics *clientMetrics) *pipeline {
	breaker := newCircuitBreaker(cfg, "rhttp")
	if cfg.BreakerStore != nil {
		breaker.withDistributedStore(cfg.BreakerStore)
	}
	return &pipeline{
		cfg:     cfg,
		cache:   newHTTPCache(cfg.CacheMaxSize, cfg.CacheTTL),
		breaker: breaker,
		chain:   chain,
		metrics: metrics,
	}
}

// execute runs one request descriptor through the full pipeline and
// returns the resulting response descriptor or a classified *Error.
func (p *pipeline) execute(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	req, err := p.chain.applyRequest(req)
	if err != nil {
		return nil, p.finish(ctx, req, nil, p.chain.applyError(err, req), start)
	}

	resolvedURL, err := resolveURL(p.cfg.BaseURL, req.URL)
	if err != nil {
		return nil, p.finish(ctx, req, nil, p.chain.applyError(err, req), start)
	}
	resolvedURL, err = applyQueryParams(resolvedURL, req.Params)
	if err != nil {
		return nil, p.finish(ctx, req, nil, p.chain.applyError(err, req), start)
	}

	headers := mergeHeaders(p.cfg.DefaultHeaders, req.Headers)

	cacheable := req.WantsCache() && !p.cfg.CacheDisabled
	var key string
	if cacheable {
		key = p.cache.fingerprint(req, p.cfg.AuthHeaders)
		if cached, ok := p.cache.get(key); ok {
			cached.FromCache = true
			p.metrics.recordCacheHit(ctx, true)
			cached, err = p.chain.applyResponse(cached, req)
			if err != nil {
				return nil, p.finish(ctx, req, cached, p.chain.applyError(err, req), start)
			}
			return cached, p.finish(ctx, req, cached, nil, start)
		}
		p.metrics.recordCacheHit(ctx, false)
	}

	dispatch := func() (*Response, error) {
		return p.dispatchWithRevalidation(ctx, req, resolvedURL, headers, key, cacheable)
	}

	var resp *Response
	if cacheable {
		resp, err = p.cache.dedup(key, dispatch)
	} else {
		resp, err = dispatch()
	}
	if err != nil {
		err = p.chain.applyError(err, req)
		return nil, p.finish(ctx, req, nil, err, start)
	}

	resp, err = p.chain.applyResponse(resp, req)
	if err != nil {
		err = p.chain.applyError(err, req)
		return nil, p.finish(ctx, req, resp, err, start)
	}

	return resp, p.finish(ctx, req, resp, nil, start)
}

// finish records duration/error metrics and debug logging, returning
// err unchanged so callers can write `return resp, p.finish(...)`.
func (p *pipeline) finish(ctx context.Context, req *Request, resp *Response, err error, start time.Time) error {
	duration := time.Since(start)
	p.metrics.recordDuration(ctx, req.operationName, duration, err == nil)
	if p.cfg.Debug {
		if err != nil {
			logPipelineError(req, req.URL, err)
		} else if resp != nil {
			logIncomingResponse(resp, duration)
		}
	}
	return err
}

// dispatchWithRevalidation performs the breaker+retry+transport
// dispatch, adding If-None-Match when an ETag is known for key. A 304
// reply re-stores the previously cached body with a fresh TTL and
// returns it; a successful reply of any other status is cached.
func (p *pipeline) dispatchWithRevalidation(ctx context.Context, req *Request, resolvedURL string, headers http.Header, key string, cacheable bool) (*Response, error) {
	condHeaders := headers.Clone()
	if cacheable {
		if etag, ok := p.cache.etag(key); ok {
			condHeaders.Set("If-None-Match", etag)
		}
	}

	resp, err := p.runBreakerAndRetry(ctx, req, resolvedURL, condHeaders)
	if err != nil {
		return nil, err
	}

	if resp.Status == http.StatusNotModified && cacheable {
		if cached, ok := p.cache.peek(key); ok {
			cached.FromCache = false
			p.cache.refresh(key, cached)
			return cached, nil
		}
	}

	if cacheable && resp.Success {
		p.cache.set(key, resp)
	}
	return resp, nil
}

// runBreakerAndRetry wraps a single transport dispatch in the circuit
// breaker, which in turn wraps the retry loop (spec §4.4's ordering:
// the breaker sees one outcome per call, counting retry-exhaustion as
// a single failure rather than one per attempt).
func (p *pipeline) runBreakerAndRetry(ctx context.Context, req *Request, resolvedURL string, headers http.Header) (*Response, error) {
	resp, err := p.breaker.execute(ctx, func() (*Response, error) {
		lastAttempt := 0
		resp, err := runWithRetry(ctx, p.cfg, func(attemptNum int) (*Response, error) {
			lastAttempt = attemptNum
			if attemptNum > 0 {
				p.metrics.recordRetry(ctx, attemptNum)
			}
			return p.dispatchOnce(ctx, req, resolvedURL, headers)
		})
		if err != nil && lastAttempt == p.cfg.RetryAttempts && p.cfg.RetryCondition(err) {
			p.metrics.recordRetryExhausted(ctx)
		}
		return resp, err
	})
	if errors.Is(err, ErrBreakerOpen) {
		p.metrics.recordBreakerRejection(ctx)
	}
	return resp, err
}

// dispatchOnce builds and sends exactly one wire-level request,
// classifying the outcome into the four-kind error taxonomy (spec
// §4.2) or a decoded Response.
func (p *pipeline) dispatchOnce(ctx context.Context, req *Request, resolvedURL string, headers http.Header) (*Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = p.cfg.Timeout
	}

	callCtx := ctx
	if req.Cancel != nil {
		var cancel context.CancelFunc
		callCtx, cancel = mergeContexts(ctx, req.Cancel)
		defer cancel()
	}
	var cancelTimeout context.CancelFunc
	callCtx, cancelTimeout = context.WithTimeout(callCtx, timeout)
	defer cancelTimeout()

	encoded, err := encodeRequestBody(req.Body)
	if err != nil {
		return nil, err
	}
	if encoded.size > 0 && encoded.size > p.cfg.MaxRequestSize {
		return nil, fmt.Errorf("rhttp: request body size %d exceeds MaxRequestSize %d", encoded.size, p.cfg.MaxRequestSize)
	}
	if encoded.contentType != "" {
		if encoded.forceContentType || headers.Get("Content-Type") == "" || headers.Get("Content-Type") == p.cfg.DefaultHeaders.Get("Content-Type") {
			headers.Set("Content-Type", encoded.contentType)
		}
	}

	transportReq := &TransportRequest{
		Method:   req.Method,
		URL:      resolvedURL,
		Headers:  headers,
		Body:     encoded.reader,
		Priority: req.Priority,
	}

	if p.cfg.Debug {
		var bodyBytes []byte
		if br, ok := encoded.reader.(*bytes.Reader); ok {
			bodyBytes = make([]byte, br.Len())
			br.ReadAt(bodyBytes, 0)
		}
		logOutgoingRequest(transportReq, bodyBytes)
	}

	transport := p.cfg.Transport
	transportResp, err := transport.RoundTrip(callCtx, transportReq)
	if err != nil {
		return nil, classifyTransportError(resolvedURL, timeout, ctx, callCtx, req, err)
	}
	defer transportResp.Body.Close()

	if cl := transportResp.Headers.Get("Content-Length"); cl != "" {
		if n, perr := strconv.ParseInt(cl, 10, 64); perr == nil && n > p.cfg.MaxResponseSize {
			return nil, fmt.Errorf("rhttp: response body size %d exceeds MaxResponseSize %d", n, p.cfg.MaxResponseSize)
		}
	}

	body, err := io.ReadAll(io.LimitReader(transportResp.Body, p.cfg.MaxResponseSize+1))
	if err != nil {
		return nil, classifyTransportError(resolvedURL, timeout, ctx, callCtx, req, err)
	}
	if int64(len(body)) > p.cfg.MaxResponseSize {
		return nil, fmt.Errorf("rhttp: response body exceeds MaxResponseSize %d", p.cfg.MaxResponseSize)
	}

	if p.cfg.HintSink != nil {
		scanLinkHeader(transportResp.Headers.Get("Link"), p.cfg.HintSink)
	}

	resp, err := newResponse(transportResp.URL, transportResp.StatusCode, transportResp.Status, transportResp.Headers, body, req.ResponseType)
	if err != nil {
		return resp, NewNetworkError(resolvedURL, err)
	}

	if !resp.Success && resp.Status != http.StatusNotModified {
		return resp, NewHTTPError(resp)
	}
	return resp, nil
}

// classifyTransportError implements spec §4.2's discrimination rule:
// the caller's own context/token ends the request -> CancellationError;
// the internal timeout governor ends it -> TimeoutError; anything else
// -> NetworkError. callerCtx is the request's own ambient context
// (unaffected by the pipeline's internal timeout); callCtx is the
// timeout-bound context actually passed to the transport.
func classifyTransportError(url string, timeoutBudget time.Duration, callerCtx, callCtx context.Context, req *Request, err error) error {
	if errors.Is(callerCtx.Err(), context.Canceled) {
		return NewCancellationError(url, callerCtx.Err())
	}
	if req.Cancel != nil && errors.Is(req.Cancel.Err(), context.Canceled) {
		return NewCancellationError(url, req.Cancel.Err())
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return NewTimeoutError(url, int(timeoutBudget.Milliseconds()))
	}
	return NewNetworkError(url, err)
}

// mergeContexts returns a context cancelled when either parent or
// extra is cancelled/done, without importing an external "merged
// context" helper — two parents is a narrow enough case to do by hand
// with a single watcher goroutine.
func mergeContexts(parent, extra context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := make(chan struct{})
	go func() {
		select {
		case <-extra.Done():
			cancel()
		case <-stop:
		}
	}()
	return ctx, func() {
		close(stop)
		cancel()
	}
}
