package rhttp

import (
	"context"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	backoff "github.com/cenkalti/backoff/v5"
)

// DefaultRetryDelay implements spec §4.7's default backoff curve:
// min(1000 * 2^(attempt-1), 30000) milliseconds, jittered by ±10%,
// floored at 100ms. attempt is 1-indexed (the attempt about to run).
func DefaultRetryDelay(attempt int) time.Duration {
	base := float64(1000) * pow2(attempt-1)
	if base > 30000 {
		base = 30000
	}
	jitter := base * 0.10
	delayMS := base + (rand.Float64()*2-1)*jitter
	if delayMS < 100 {
		delayMS = 100
	}
	return time.Duration(delayMS) * time.Millisecond
}

func pow2(n int) float64 {
	if n <= 0 {
		return 1
	}
	result := 1.0
	for i := 0; i < n; i++ {
		result *= 2
	}
	return result
}

// DefaultRetryCondition implements spec §4.7's default eligibility
// rule: network errors, timeouts, and HTTP 408/429/5xx (including bare
// 500, unlike the teacher's DefaultClassifier which excludes 500 as
// "a server bug unlikely to resolve with retry" — spec.md makes no
// such distinction, so every 5xx is eligible here).
func DefaultRetryCondition(err error) bool {
	if err == nil {
		return false
	}
	if IsNetworkError(err) || IsTimeoutError(err) {
		return true
	}
	if IsCancellationError(err) {
		return false
	}
	if IsHTTPError(err) {
		status := statusCodeOf(err)
		return status == http.StatusRequestTimeout ||
			status == http.StatusTooManyRequests ||
			status >= 500
	}
	return false
}

// retryAfterDelay parses a Retry-After header (seconds, or an
// HTTP-date) on a 429 response and caps it at cap, per spec §4.7.
// Returns ok=false when the header is absent or unparseable, so the
// caller falls back to the computed backoff delay.
func retryAfterDelay(headers http.Header, cap time.Duration) (time.Duration, bool) {
	raw := headers.Get("Retry-After")
	if raw == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		d := time.Duration(secs) * time.Second
		if d > cap {
			d = cap
		}
		if d < 0 {
			d = 0
		}
		return d, true
	}
	if when, err := http.ParseTime(raw); err == nil {
		d := time.Until(when)
		if d < 0 {
			d = 0
		}
		if d > cap {
			d = cap
		}
		return d, true
	}
	return 0, false
}

// runWithRetry executes attempt() up to cfg.RetryAttempts additional
// times beyond the initial call, using cfg.RetryDelay (or a
// Retry-After override for 429s when cfg.RespectRetryAfter is set) as
// the inter-attempt delay. It is built on cenkalti/backoff/v5's Retry
// helper — grounded on the teacher's retry_transport.go — but operates
// at the *Response/error level rather than wrapping an
// http.RoundTripper, since retry runs inside the breaker in the
// pipeline (the breaker wraps the whole retry loop, see
// pipeline.runBreakerAndRetry) and both need to observe the same
// decoded *Error taxonomy.
func runWithRetry(ctx context.Context, cfg *Config, attempt func(attemptNum int) (*Response, error)) (*Response, error) {
	attemptNum := 0

	b := &delegatingBackOff{
		next: func(n int) time.Duration {
			return cfg.RetryDelay(n)
		},
	}

	result, err := backoff.Retry(ctx, func() (*Response, error) {
		attemptNum++
		resp, callErr := attempt(attemptNum - 1)
		if callErr == nil {
			return resp, nil
		}
		if !cfg.RetryCondition(callErr) {
			return nil, backoff.Permanent(callErr)
		}
		if cfg.RespectRetryAfter && IsHTTPError(callErr) && statusCodeOf(callErr) == http.StatusTooManyRequests {
			var herr *Error
			if e, ok := callErr.(*Error); ok {
				herr = e
			}
			if herr != nil && herr.Response != nil {
				if d, ok := retryAfterDelay(herr.Response.Headers, cfg.RetryAfterCapDelay); ok {
					b.override = &d
				}
			}
		}
		return nil, callErr
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(cfg.RetryAttempts)+1),
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// delegatingBackOff adapts a RetryDelayFunc to backoff.BackOff, with a
// one-shot override slot so a Retry-After delay can supersede the
// computed delay for exactly the next interval.
type delegatingBackOff struct {
	next     func(attempt int) time.Duration
	attempt  int
	override *time.Duration
}

func (d *delegatingBackOff) NextBackOff() time.Duration {
	d.attempt++
	if d.override != nil {
		v := *d.override
		d.override = nil
		return v
	}
	return d.next(d.attempt)
}

func (d *delegatingBackOff) Reset() {
	d.attempt = 0
	d.override = nil
}
