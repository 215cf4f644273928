package rhttp

import (
	"errors"
	"fmt"
)

// Kind discriminates the four error variants the client can return.
// Consumers should branch on Kind rather than on the concrete Go type,
// since CancellationError is sometimes folded into TimeoutError when
// the two are indistinguishable at the call site (spec §4.2).
type Kind int

const (
	// KindHTTP means the server replied with a status outside 2xx
	// (a 304 Not Modified is not an error).
	KindHTTP Kind = iota
	// KindNetwork means the transport failed before a complete response
	// was received (DNS failure, connection reset, TLS failure, body
	// read failure).
	KindNetwork
	// KindTimeout means the request exceeded its budget and was
	// cancelled by the internal timeout governor.
	KindTimeout
	// KindCancellation means the caller's own context/token aborted the
	// request.
	KindCancellation
)

func (k Kind) String() string {
	switch k {
	case KindHTTP:
		return "http"
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindCancellation:
		return "cancellation"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by the client. It carries the
// structured context spec.md §4.2 lists for each kind; callers
// discriminate with Kind() rather than type assertions.
type Error struct {
	kind Kind

	// URL is the final resolved URL of the request that failed.
	URL string

	// Status and StatusText are populated for KindHTTP.
	Status     int
	StatusText string

	// Response carries the raw response handle for KindHTTP, so callers
	// can still inspect headers/body on failure.
	Response *Response

	// Timeout is populated for KindTimeout — the budget that was
	// exceeded.
	Timeout int

	// cause is the underlying error, if any (network failures, context
	// cancellation).
	cause error
}

// Kind reports which of the four taxonomy variants this error is.
func (e *Error) Kind() Kind { return e.kind }

// Unwrap exposes the underlying cause for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }

// Error implements the error interface with a human-readable message.
func (e *Error) Error() string {
	switch e.kind {
	case KindHTTP:
		return fmt.Sprintf("rhttp: http error: %d %s for %s", e.Status, e.StatusText, e.URL)
	case KindNetwork:
		if e.cause != nil {
			return fmt.Sprintf("rhttp: network error for %s: %v", e.URL, e.cause)
		}
		return fmt.Sprintf("rhttp: network error for %s", e.URL)
	case KindTimeout:
		return fmt.Sprintf("rhttp: timeout after %dms for %s", e.Timeout, e.URL)
	case KindCancellation:
		return fmt.Sprintf("rhttp: request cancelled for %s", e.URL)
	default:
		return "rhttp: unknown error"
	}
}

// NewHTTPError builds a KindHTTP error from a completed response.
func NewHTTPError(resp *Response) *Error {
	return &Error{
		kind:       KindHTTP,
		URL:        resp.URL,
		Status:     resp.Status,
		StatusText: resp.StatusText,
		Response:   resp,
	}
}

// NewNetworkError builds a KindNetwork error wrapping the transport
// failure that prevented a complete response from being received.
func NewNetworkError(url string, cause error) *Error {
	return &Error{kind: KindNetwork, URL: url, cause: cause}
}

// NewTimeoutError builds a KindTimeout error for a request cancelled by
// the internal timeout governor.
func NewTimeoutError(url string, timeoutMS int) *Error {
	return &Error{kind: KindTimeout, URL: url, Timeout: timeoutMS}
}

// NewCancellationError builds a KindCancellation error for a request
// aborted by the caller-supplied cancellation token/context.
func NewCancellationError(url string, cause error) *Error {
	return &Error{kind: KindCancellation, URL: url, cause: cause}
}

// IsHTTPError reports whether err is a KindHTTP *Error.
func IsHTTPError(err error) bool { return hasKind(err, KindHTTP) }

// IsNetworkError reports whether err is a KindNetwork *Error.
func IsNetworkError(err error) bool { return hasKind(err, KindNetwork) }

// IsTimeoutError reports whether err is a KindTimeout *Error.
func IsTimeoutError(err error) bool { return hasKind(err, KindTimeout) }

// IsCancellationError reports whether err is a KindCancellation *Error.
func IsCancellationError(err error) bool { return hasKind(err, KindCancellation) }

func hasKind(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.kind == k
	}
	return false
}

// ErrBreakerOpen is returned by the pipeline when the circuit breaker
// rejects a call and no fallback is configured (spec §4.4, §7).
var ErrBreakerOpen = errors.New("rhttp: circuit breaker open: service unavailable")

// statusCodeOf extracts an HTTP status code from an error produced by
// the pipeline, or 0 if err does not carry one.
func statusCodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) && e.kind == KindHTTP {
		return e.Status
	}
	return 0
}
