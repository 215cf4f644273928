package rhttp

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// Timeout, cache, retry, and breaker bounds the config normalizer clamps
// user input into (spec §4.1). A client must tolerate misconfiguration
// without crashing at call time; clamping prevents adversarial or
// accidental denial of service (e.g. a billion-millisecond timeout
// pinning a request forever).
const (
	minTimeout     = 100 * time.Millisecond
	maxTimeout     = 300_000 * time.Millisecond
	defaultTimeout = 30_000 * time.Millisecond

	minCacheTTL     = 1000 * time.Millisecond
	maxCacheTTL     = 86_400_000 * time.Millisecond
	defaultCacheTTL = 300_000 * time.Millisecond

	minCacheSize     = 1
	maxCacheSize     = 10_000
	defaultCacheSize = 100

	minRetryAttempts     = 0
	maxRetryAttempts     = 10
	defaultRetryAttempts = 3

	minFailureThreshold     = 1
	maxFailureThreshold     = 100
	defaultFailureThreshold = 5

	minResetTimeout     = 1000 * time.Millisecond
	maxResetTimeout     = 3_600_000 * time.Millisecond
	defaultResetTimeout = 60_000 * time.Millisecond

	defaultMaxRequestSize  = 10 << 20 // 10 MiB
	defaultMaxResponseSize = 50 << 20 // 50 MiB
)

// defaultAuthHeaders is the default set of headers treated as
// auth-relevant for cache fingerprinting (spec §4.3).
func defaultAuthHeaders() []string {
	return []string{"authorization", "x-api-key", "cookie"}
}

// RetryDelayFunc computes the backoff delay before attempt n (1-indexed,
// the attempt about to be retried). See DefaultRetryDelay.
type RetryDelayFunc func(attempt int) time.Duration

// RetryCondition decides whether a failed request should be retried.
type RetryCondition func(err error) bool

// FallbackFunc is invoked by the circuit breaker when it rejects a call
// while open or while a half-open probe is already in flight.
type FallbackFunc func() (*Response, error)

// Config is the canonical, already-normalized client configuration.
// Build one with NewConfig; every field has already been clamped to a
// safe range or replaced with its default.
type Config struct {
	Timeout time.Duration

	CacheTTL      time.Duration
	CacheMaxSize  int
	AuthHeaders   []string
	CacheDisabled bool

	RetryAttempts      int
	RetryDelay         RetryDelayFunc
	RetryCondition     RetryCondition
	RespectRetryAfter  bool
	RetryAfterCapDelay time.Duration

	FailureThreshold int
	ResetTimeout     time.Duration
	BreakerFallback  FallbackFunc

	// BreakerStore, if set, shares circuit breaker state across process
	// instances (spec §4.4 "optional distributed mode"), typically built
	// with NewRedisBreakerStore.
	BreakerStore gobreaker.SharedDataStore

	BaseURL        string
	DefaultHeaders http.Header

	MaxRequestSize  int64
	MaxResponseSize int64

	// Transport is the pluggable wire-level collaborator (spec §6). If
	// nil, New builds the default OpenTelemetry-instrumented one.
	Transport Transport

	// Debug turns on zerolog request/response/cURL logging.
	Debug bool

	// HintSink receives preload/prefetch hints scanned from response
	// Link headers (spec §6, opt-in, best-effort). Defaults to a no-op.
	HintSink HintSink

	// RequestInterceptors, ResponseInterceptors, ErrorInterceptors seed
	// the client's interceptor chain (spec §4.5) at construction time;
	// Client.Use adds to the built chain and leaves these unchanged.
	RequestInterceptors  []RequestInterceptor
	ResponseInterceptors []ResponseInterceptor
	ErrorInterceptors    []ErrorInterceptor
}

// Option configures a Client (and, transitively, its Config) using the
// functional-options pattern the teacher uses throughout options.go.
type Option func(*Config)

// NewConfig builds a canonical Config from options, normalizing every
// field independently. Invalid values fall back to defaults rather than
// raising — permissive-constructor behavior per spec §9.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		Timeout: defaultTimeout,

		CacheTTL:     defaultCacheTTL,
		CacheMaxSize: defaultCacheSize,
		AuthHeaders:  defaultAuthHeaders(),

		RetryAttempts:      defaultRetryAttempts,
		RetryDelay:         DefaultRetryDelay,
		RetryCondition:     DefaultRetryCondition,
		RespectRetryAfter:  true,
		RetryAfterCapDelay: 30 * time.Second,

		FailureThreshold: defaultFailureThreshold,
		ResetTimeout:     defaultResetTimeout,

		DefaultHeaders: make(http.Header),

		MaxRequestSize:  defaultMaxRequestSize,
		MaxResponseSize: defaultMaxResponseSize,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	cfg.normalize()
	return cfg
}

// normalize clamps every field to its documented range, independent of
// the others, and fills in defaults for anything left zero-valued.
func (c *Config) normalize() {
	c.Timeout = clampDuration(c.Timeout, minTimeout, maxTimeout, defaultTimeout)

	c.CacheTTL = clampDuration(c.CacheTTL, minCacheTTL, maxCacheTTL, defaultCacheTTL)
	c.CacheMaxSize = clampInt(c.CacheMaxSize, minCacheSize, maxCacheSize, defaultCacheSize)
	if len(c.AuthHeaders) == 0 {
		c.AuthHeaders = defaultAuthHeaders()
	}
	lowered := make([]string, len(c.AuthHeaders))
	for i, h := range c.AuthHeaders {
		lowered[i] = strings.ToLower(h)
	}
	c.AuthHeaders = lowered

	c.RetryAttempts = clampOnly(c.RetryAttempts, minRetryAttempts, maxRetryAttempts)
	if c.RetryDelay == nil {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.RetryCondition == nil {
		c.RetryCondition = DefaultRetryCondition
	}
	if c.RetryAfterCapDelay <= 0 {
		c.RetryAfterCapDelay = 30 * time.Second
	}

	c.FailureThreshold = clampInt(c.FailureThreshold, minFailureThreshold, maxFailureThreshold, defaultFailureThreshold)
	c.ResetTimeout = clampDuration(c.ResetTimeout, minResetTimeout, maxResetTimeout, defaultResetTimeout)

	if c.BaseURL != "" {
		if u, err := url.Parse(c.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			c.BaseURL = ""
		} else {
			c.BaseURL = strings.TrimRight(c.BaseURL, "/")
		}
	}

	if c.DefaultHeaders == nil {
		c.DefaultHeaders = make(http.Header)
	}
	if c.DefaultHeaders.Get("Content-Type") == "" {
		c.DefaultHeaders.Set("Content-Type", "application/json")
	}

	if c.MaxRequestSize <= 0 {
		c.MaxRequestSize = defaultMaxRequestSize
	}
	if c.MaxResponseSize <= 0 {
		c.MaxResponseSize = defaultMaxResponseSize
	}
}

// clone produces an independent copy suitable for Client.Create, so the
// child can override fields without mutating the parent (spec §3
// "create() yields a fresh instance with its own owned state").
func (c *Config) clone() *Config {
	cp := *c
	cp.AuthHeaders = append([]string(nil), c.AuthHeaders...)
	cp.DefaultHeaders = c.DefaultHeaders.Clone()
	cp.RequestInterceptors = append([]RequestInterceptor(nil), c.RequestInterceptors...)
	cp.ResponseInterceptors = append([]ResponseInterceptor(nil), c.ResponseInterceptors...)
	cp.ErrorInterceptors = append([]ErrorInterceptor(nil), c.ErrorInterceptors...)
	return &cp
}

func clampDuration(v, lo, hi, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// clampOnly clamps v into [lo, hi] without treating the zero value as
// "unset" — used for fields (like retry attempts) where 0 is itself a
// meaningful, distinct setting from "not configured".
func clampOnly(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi, def int) int {
	if v == 0 {
		return def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
