package rhttp

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
)

// Client is the public facade spec.md §3 describes: a resilient HTTP
// client combining interceptors, caching, deduplication, a circuit
// breaker, and retry with backoff behind a small request surface.
// Build one with New.
type Client struct {
	cfg      *Config
	chain    *InterceptorChain
	pipeline *pipeline
}

// New creates a Client with the given options applied over spec
// §4.1's defaults. Misconfigured options are clamped rather than
// rejected (see Config.normalize); New never returns an error.
func New(opts ...Option) *Client {
	cfg := NewConfig(opts...)
	if cfg.Transport == nil {
		cfg.Transport = DefaultTransport()
	}

	chain := NewInterceptorChain()
	for _, i := range cfg.RequestInterceptors {
		chain.AddRequest(i)
	}
	for _, i := range cfg.ResponseInterceptors {
		chain.AddResponse(i)
	}
	for _, i := range cfg.ErrorInterceptors {
		chain.AddError(i)
	}

	metrics, err := newClientMetrics(otel.GetMeterProvider().Meter("rhttp"))
	if err != nil {
		metrics = nil
	}

	return &Client{
		cfg:      cfg,
		chain:    chain,
		pipeline: newPipeline(cfg, chain, metrics),
	}
}

// Use registers an interceptor. Accepts a RequestInterceptor,
// ResponseInterceptor, or ErrorInterceptor; any other type is ignored.
func (c *Client) Use(interceptor any) {
	switch i := interceptor.(type) {
	case RequestInterceptor:
		c.chain.AddRequest(i)
	case ResponseInterceptor:
		c.chain.AddResponse(i)
	case ErrorInterceptor:
		c.chain.AddError(i)
	}
}

// Do executes an arbitrary request descriptor through the pipeline.
// The verb helpers below (Get, Post, ...) are convenience wrappers
// over Do for the common cases.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	return c.pipeline.execute(ctx, req)
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	return c.Do(ctx, NewRequest(http.MethodGet, url))
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, url string) (*Response, error) {
	return c.Do(ctx, NewRequest(http.MethodDelete, url))
}

// Head issues a HEAD request.
func (c *Client) Head(ctx context.Context, url string) (*Response, error) {
	return c.Do(ctx, NewRequest(http.MethodHead, url))
}

// Options issues an OPTIONS request.
func (c *Client) Options(ctx context.Context, url string) (*Response, error) {
	return c.Do(ctx, NewRequest(http.MethodOptions, url))
}

// Post issues a POST request with body.
func (c *Client) Post(ctx context.Context, url string, body any) (*Response, error) {
	req := NewRequest(http.MethodPost, url)
	req.Body = body
	return c.Do(ctx, req)
}

// Put issues a PUT request with body.
func (c *Client) Put(ctx context.Context, url string, body any) (*Response, error) {
	req := NewRequest(http.MethodPut, url)
	req.Body = body
	return c.Do(ctx, req)
}

// Patch issues a PATCH request with body.
func (c *Client) Patch(ctx context.Context, url string, body any) (*Response, error) {
	req := NewRequest(http.MethodPatch, url)
	req.Body = body
	return c.Do(ctx, req)
}

// JSON is a convenience wrapper that issues req and decodes the JSON
// response body into v.
func (c *Client) JSON(ctx context.Context, req *Request, v any) (*Response, error) {
	req.ResponseType = ResponseJSON
	resp, err := c.Do(ctx, req)
	if err != nil {
		return resp, err
	}
	if v != nil {
		if err := resp.DecodeInto(v); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// Form issues a request with a multipart/form-data body (spec §4.8).
// data is either a *MultipartForm, used as-is, or a map[string]any,
// promoted into one field-by-field with nil/absent values omitted —
// the same promotion rule §4.6 applies to query params. Either way the
// pipeline's body encoding (spec §4.6) takes care not to clobber the
// multipart boundary with a caller- or default-supplied Content-Type.
func (c *Client) Form(ctx context.Context, method, url string, data any) (*Response, error) {
	req := NewRequest(method, url)
	switch v := data.(type) {
	case *MultipartForm:
		req.Body = v
	case map[string]any:
		req.Body = promoteToMultipartForm(v)
	default:
		req.Body = data
	}
	return c.Do(ctx, req)
}

// promoteToMultipartForm converts a loosely-typed field map into a
// MultipartForm, stringifying scalar values and omitting nil ones.
func promoteToMultipartForm(data map[string]any) *MultipartForm {
	form := &MultipartForm{Fields: make(map[string]string, len(data))}
	for k, v := range data {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			form.Fields[k] = s
			continue
		}
		form.Fields[k] = fmt.Sprintf("%v", v)
	}
	return form
}

// ClearCache empties the response cache entirely.
func (c *Client) ClearCache() {
	c.pipeline.cache.clear()
}

// InvalidateCache removes every cache entry whose fingerprint matches
// pattern, a regular expression matched against the raw
// method|url|params|auth-headers fingerprint string (spec §4.3, §4.8,
// §6), and returns the number of entries removed. The match is
// unanchored, so a pattern with no regex metacharacters — e.g. a
// literal path — removes every entry whose fingerprint contains it,
// since fingerprints embed the request URL verbatim.
func (c *Client) InvalidateCache(pattern string) int {
	return c.pipeline.cache.invalidate(pattern)
}

// GetCacheStats reports current cache occupancy and hit/miss counts.
func (c *Client) GetCacheStats() CacheStats {
	return c.pipeline.cache.stats()
}

// GetCircuitBreakerStats reports the breaker's current state and
// request counters.
func (c *Client) GetCircuitBreakerStats() BreakerStats {
	return c.pipeline.breaker.stats()
}

// ResetCircuitBreaker forces the breaker back to a fresh closed state.
func (c *Client) ResetCircuitBreaker() {
	c.pipeline.breaker.reset()
}

// IsHealthy reports whether the circuit breaker is currently closed.
func (c *Client) IsHealthy() bool {
	return c.pipeline.breaker.isHealthy()
}

// Create returns a new Client that inherits this client's
// configuration, deep-copied so neither instance's later mutations
// (interceptors, cache, breaker state) affect the other, then applies
// opts on top (spec §3 "create() yields a fresh instance with its own
// owned state").
func (c *Client) Create(opts ...Option) *Client {
	cfg := c.cfg.clone()
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.normalize()
	if cfg.Transport == nil {
		cfg.Transport = DefaultTransport()
	}

	chain := NewInterceptorChain()
	for _, i := range cfg.RequestInterceptors {
		chain.AddRequest(i)
	}
	for _, i := range cfg.ResponseInterceptors {
		chain.AddResponse(i)
	}
	for _, i := range cfg.ErrorInterceptors {
		chain.AddError(i)
	}

	metrics, err := newClientMetrics(otel.GetMeterProvider().Meter("rhttp"))
	if err != nil {
		metrics = nil
	}

	return &Client{
		cfg:      cfg,
		chain:    chain,
		pipeline: newPipeline(cfg, chain, metrics),
	}
}
