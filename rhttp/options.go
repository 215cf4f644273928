package rhttp

import (
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// WithTimeout sets the per-request timeout. Clamped to [100ms, 5m]:
// values outside that range are moved to the nearest bound rather than
// being rejected, and a non-positive value falls back to the 30s
// default (spec §4.1).
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithBaseURL sets the base URL requests are resolved against. Only
// kept if it parses as an absolute http(s) URL; a trailing slash is
// stripped.
func WithBaseURL(base string) Option {
	return func(c *Config) { c.BaseURL = base }
}

// WithDefaultHeader adds a default header merged into every request
// (caller-supplied headers on an individual request win).
func WithDefaultHeader(key, value string) Option {
	return func(c *Config) { c.DefaultHeaders.Set(key, value) }
}

// WithDefaultHeaders replaces the default header set wholesale.
func WithDefaultHeaders(h http.Header) Option {
	return func(c *Config) { c.DefaultHeaders = h.Clone() }
}

// WithCacheTTL sets the default cache entry lifetime. Clamped to
// [1s, 24h].
func WithCacheTTL(d time.Duration) Option {
	return func(c *Config) { c.CacheTTL = d }
}

// WithCacheMaxSize sets the maximum number of entries the LRU cache
// holds. Clamped to [1, 10000].
func WithCacheMaxSize(n int) Option {
	return func(c *Config) { c.CacheMaxSize = n }
}

// WithCacheDisabled disables the cacheable path entirely, including for
// GET requests (setting a request's Cache field to false still works
// without this).
func WithCacheDisabled() Option {
	return func(c *Config) { c.CacheDisabled = true }
}

// WithAuthHeaders overrides the set of header names treated as
// auth-relevant for cache fingerprint isolation (spec §4.3). Header
// names are matched case-insensitively.
func WithAuthHeaders(headers ...string) Option {
	return func(c *Config) { c.AuthHeaders = headers }
}

// WithRetryAttempts sets the maximum retry attempt count. Clamped to
// [0, 10]; 0 means the request is dispatched exactly once.
func WithRetryAttempts(n int) Option {
	return func(c *Config) { c.RetryAttempts = n }
}

// WithRetryDelay overrides the backoff delay function used between
// retry attempts. See DefaultRetryDelay for the default behavior.
func WithRetryDelay(f RetryDelayFunc) Option {
	return func(c *Config) { c.RetryDelay = f }
}

// WithConstantRetryDelay is a convenience wrapper for a fixed delay
// between every retry attempt.
func WithConstantRetryDelay(d time.Duration) Option {
	return func(c *Config) {
		c.RetryDelay = func(int) time.Duration { return d }
	}
}

// WithRetryCondition overrides which errors are eligible for retry. See
// DefaultRetryCondition for the default rule set.
func WithRetryCondition(cond RetryCondition) Option {
	return func(c *Config) { c.RetryCondition = cond }
}

// WithRespectRetryAfter controls whether a 429 response's Retry-After
// header overrides the computed backoff delay (spec §4.7). Default on.
func WithRespectRetryAfter(enabled bool) Option {
	return func(c *Config) { c.RespectRetryAfter = enabled }
}

// WithCircuitBreaker configures the client's circuit breaker (one
// breaker per client, shared by requests to every host): the
// number of consecutive failures that trips it open, and how long it
// stays open before allowing a half-open probe.
func WithCircuitBreaker(failureThreshold int, resetTimeout time.Duration) Option {
	return func(c *Config) {
		c.FailureThreshold = failureThreshold
		c.ResetTimeout = resetTimeout
	}
}

// WithBreakerFallback installs a fallback invoked instead of ErrBreakerOpen
// when the breaker rejects a call.
func WithBreakerFallback(fn FallbackFunc) Option {
	return func(c *Config) { c.BreakerFallback = fn }
}

// WithDistributedBreaker shares this client's circuit breaker state
// through store, so multiple process instances agree on open/closed
// state (spec §4.4). Build store with NewRedisBreakerStore.
func WithDistributedBreaker(store gobreaker.SharedDataStore) Option {
	return func(c *Config) { c.BreakerStore = store }
}

// WithTransport overrides the pluggable wire-level Transport (spec §6).
// Use this to swap in a test double or a custom RoundTripper-backed
// implementation.
func WithTransport(t Transport) Option {
	return func(c *Config) { c.Transport = t }
}

// WithDebug enables zerolog request/response logging and cURL command
// generation for every request issued by the client.
func WithDebug(enabled bool) Option {
	return func(c *Config) { c.Debug = enabled }
}

// WithHintSink installs a preload/prefetch hint sink (spec §6). Only
// meaningful in a host environment that can act on such hints; the
// default is a no-op.
func WithHintSink(sink HintSink) Option {
	return func(c *Config) { c.HintSink = sink }
}

// WithMaxRequestSize caps the size of an outgoing request body before
// dispatch (spec §4.6). Default 10 MiB.
func WithMaxRequestSize(n int64) Option {
	return func(c *Config) { c.MaxRequestSize = n }
}

// WithMaxResponseSize caps the declared Content-Length of an incoming
// response before it is decoded (spec §4.7). Default 50 MiB.
func WithMaxResponseSize(n int64) Option {
	return func(c *Config) { c.MaxResponseSize = n }
}

// WithRequestInterceptor registers a request interceptor at
// construction time (spec §4.5). Equivalent to calling Use after the
// client is built.
func WithRequestInterceptor(i RequestInterceptor) Option {
	return func(c *Config) { c.RequestInterceptors = append(c.RequestInterceptors, i) }
}

// WithResponseInterceptor registers a response interceptor at
// construction time.
func WithResponseInterceptor(i ResponseInterceptor) Option {
	return func(c *Config) { c.ResponseInterceptors = append(c.ResponseInterceptors, i) }
}

// WithErrorInterceptor registers an error interceptor at construction
// time.
func WithErrorInterceptor(i ErrorInterceptor) Option {
	return func(c *Config) { c.ErrorInterceptors = append(c.ErrorInterceptors, i) }
}
