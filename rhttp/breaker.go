package rhttp

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"
	gobreakerredis "github.com/sony/gobreaker/v2/redis"
)

// BreakerState mirrors the three states spec §4.4 defines, re-exported
// so callers of Client.GetCircuitBreakerStats don't need to import
// gobreaker directly.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

func fromGobreakerState(s gobreaker.State) BreakerState {
	switch s {
	case gobreaker.StateOpen:
		return BreakerOpen
	case gobreaker.StateHalfOpen:
		return BreakerHalfOpen
	default:
		return BreakerClosed
	}
}

// BreakerStats reports the circuit breaker's current state and
// request counters (spec §4.4, §7 "observability").
type BreakerStats struct {
	State               BreakerState
	Requests            uint32
	TotalFailures       uint32
	ConsecutiveFailures uint32
	Successes           uint32
}

// NewRedisBreakerStore builds a gobreaker.SharedDataStore backed by
// Redis so multiple process instances share one circuit breaker's
// state, grounded on teacher breaker.go's NewRedisStore.
func NewRedisBreakerStore(client redis.UniversalClient) gobreaker.SharedDataStore {
	return gobreakerredis.NewStoreFromClient(client)
}

// circuitBreaker wraps github.com/sony/gobreaker/v2 with the exact
// state machine spec §4.4 calls for: a pure consecutive-failure trip
// rule (no request-volume floor, no failure-ratio rule — both of which
// the teacher's breaker.go also supports but spec.md does not ask
// for), and a single half-open probe slot.
type circuitBreaker struct {
	mu               sync.Mutex
	cb               *gobreaker.CircuitBreaker[*Response]
	failureThreshold uint32
	resetTimeout     time.Duration
	store            gobreaker.SharedDataStore
	name             string
	fallback         FallbackFunc

	rejections atomic.Int64
}

func newCircuitBreaker(cfg *Config, name string) *circuitBreaker {
	b := &circuitBreaker{
		failureThreshold: uint32(cfg.FailureThreshold),
		resetTimeout:     cfg.ResetTimeout,
		name:             name,
		fallback:         cfg.BreakerFallback,
	}
	b.cb = b.build()
	return b
}

func (b *circuitBreaker) build() *gobreaker.CircuitBreaker[*Response] {
	threshold := b.failureThreshold
	settings := gobreaker.Settings{
		Name:        b.name,
		MaxRequests: 1,
		Timeout:     b.resetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}
	if b.store != nil {
		if dcb, err := gobreaker.NewDistributedCircuitBreaker[*Response](b.store, settings); err == nil {
			return dcb
		}
	}
	return gobreaker.NewCircuitBreaker[*Response](settings)
}

// withDistributedStore rebuilds the breaker to share state through
// store (spec §4.4's optional distributed mode); called once at
// construction time when WithDistributedBreaker is set.
func (b *circuitBreaker) withDistributedStore(store gobreaker.SharedDataStore) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.store = store
	b.cb = b.build()
}

// execute runs fn through the breaker. gobreaker counts any non-nil
// error returned from the wrapped function as a failure by default,
// but spec §4.4 only wants network/timeout errors and 5xx responses to
// count — a 4xx is the caller's fault, not the callee's health, and
// must not trip the breaker. isBreakerFailure makes that distinction;
// when fn's error isn't breaker-relevant, execute reports a clean
// outcome to gobreaker while still stashing and returning the real
// error to its own caller (the generalization of the teacher's
// errSyntheticFailure trick, run in the opposite direction: here we
// mask an error FROM the breaker rather than synthesize one FOR it).
func (b *circuitBreaker) execute(ctx context.Context, fn func() (*Response, error)) (*Response, error) {
	b.mu.Lock()
	cb := b.cb
	b.mu.Unlock()

	var maskedErr error
	resp, err := cb.Execute(func() (*Response, error) {
		r, callErr := fn()
		if callErr != nil && !isBreakerFailure(r, callErr) {
			maskedErr = callErr
			return r, nil
		}
		return r, callErr
	})

	if maskedErr != nil {
		return resp, maskedErr
	}

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			b.rejections.Add(1)
			if b.fallback != nil {
				return b.fallback()
			}
			return nil, ErrBreakerOpen
		}
		return nil, err
	}
	return resp, nil
}

// isBreakerFailure classifies a pipeline outcome as breaker-relevant,
// the generalization of the teacher's DefaultBreakerClassifier to
// rhttp's *Error taxonomy: network and timeout errors always count;
// HTTP errors count only at 5xx, since 4xx reflects the caller's
// request rather than the callee's health.
func isBreakerFailure(resp *Response, err error) bool {
	if err != nil {
		if IsNetworkError(err) || IsTimeoutError(err) {
			return true
		}
		if IsHTTPError(err) {
			return statusCodeOf(err) >= 500
		}
		return false
	}
	if resp != nil && resp.Status >= 500 {
		return true
	}
	return false
}

// stats snapshots the breaker's current state and counters.
func (b *circuitBreaker) stats() BreakerStats {
	b.mu.Lock()
	cb := b.cb
	b.mu.Unlock()
	counts := cb.Counts()
	return BreakerStats{
		State:               fromGobreakerState(cb.State()),
		Requests:            counts.Requests,
		TotalFailures:       counts.TotalFailures,
		ConsecutiveFailures: counts.ConsecutiveFailures,
		Successes:           counts.ConsecutiveSuccesses,
	}
}

// isHealthy reports whether the breaker is currently closed.
func (b *circuitBreaker) isHealthy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cb.State() == gobreaker.StateClosed
}

// reset forces the breaker back to a fresh closed state. gobreaker/v2
// does not expose a Reset method, so this rebuilds the underlying
// breaker in place.
func (b *circuitBreaker) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cb = b.build()
}
