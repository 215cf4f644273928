// Package rhttp provides a resilient HTTP client: interceptors, a
// bounded response cache with ETag revalidation, in-flight request
// deduplication, a circuit breaker, and retry with exponential backoff
// — composed into one request pipeline behind a small public surface.
//
// # Quick start
//
//	client := rhttp.New(
//	    rhttp.WithBaseURL("https://api.example.com"),
//	    rhttp.WithRetryAttempts(3),
//	    rhttp.WithCircuitBreaker(5, 60*time.Second),
//	)
//
//	resp, err := client.Get(ctx, "/users")
//
//	var user User
//	resp, err = client.JSON(ctx, rhttp.NewRequest("POST", "/users").
//	    SetHeader("X-Request-Id", id), &user)
//
// # Resilience ordering
//
// A cacheable request checks the cache first, then joins any identical
// in-flight request rather than dispatching a duplicate. A dispatch
// that does go to the wire passes through the circuit breaker, which
// wraps the retry loop, which wraps a single call to the configured
// Transport. Interceptors run around the whole pipeline: request
// interceptors before URL resolution, response interceptors after a
// result is available (including on a cache hit), error interceptors
// before an error is returned to the caller.
//
// # Observability
//
// WithDebug(true) logs every request/response through zerolog.
// Duration, cache, retry, and breaker counters are recorded through
// whatever OpenTelemetry MeterProvider the host process has installed
// via otel.SetMeterProvider; without one, recording is a no-op.
package rhttp
