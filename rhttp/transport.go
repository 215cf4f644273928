package rhttp

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TransportRequest is the wire-level request handed to a Transport
// (spec §6): method, URL, headers, body, and a priority hint.
// Cancellation travels via the context passed to RoundTrip rather than
// as a field, which is the idiomatic Go analogue of spec.md's
// "cancellation token" option.
type TransportRequest struct {
	Method   string
	URL      string
	Headers  http.Header
	Body     io.Reader
	Priority Priority
}

// TransportResponse is the wire-level response handle spec.md §6
// describes: status, headers, final URL (after redirects), and a raw
// body reader. rhttp decodes JSON/text/blob from Body itself (spec
// §4.7), so the handle only needs to expose the stream once.
type TransportResponse struct {
	StatusCode int
	Status     string
	Headers    http.Header
	URL        string
	Body       io.ReadCloser
}

// Transport is the one collaborator the pipeline consumes for
// wire-level HTTP (spec §1 "Out of scope (external collaborators)").
// Any http.RoundTripper can be adapted into a Transport with
// NewRoundTripperTransport; DefaultTransport returns the
// production-ready, OpenTelemetry-instrumented implementation the
// teacher's transport.go builds.
type Transport interface {
	RoundTrip(ctx context.Context, req *TransportRequest) (*TransportResponse, error)
}

// roundTripperTransport adapts a standard http.RoundTripper to the
// Transport contract.
type roundTripperTransport struct {
	rt http.RoundTripper
}

// NewRoundTripperTransport adapts any http.RoundTripper (including
// http.DefaultTransport or a test double) to the Transport contract.
func NewRoundTripperTransport(rt http.RoundTripper) Transport {
	return &roundTripperTransport{rt: rt}
}

func (t *roundTripperTransport) RoundTrip(ctx context.Context, req *TransportRequest) (*TransportResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, req.Body)
	if err != nil {
		return nil, err
	}
	httpReq.Header = req.Headers

	httpResp, err := t.rt.RoundTrip(httpReq)
	if err != nil {
		return nil, err
	}

	return &TransportResponse{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Headers:    httpResp.Header,
		URL:        httpResp.Request.URL.String(),
		Body:       httpResp.Body,
	}, nil
}

// DefaultTransport returns the production-ready Transport: a
// *http.Transport tuned for typical microservice communication,
// instrumented with OpenTelemetry tracing exactly the way the teacher's
// transport.go wraps every outbound call in a client span. Grounded on
// teacher httpclient/options.go's buildTransport + httpclient/transport.go's
// otelTransport.
func DefaultTransport() Transport {
	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	base := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		MaxConnsPerHost:       100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return NewRoundTripperTransport(newOtelRoundTripper(base))
}

// otelRoundTripper wraps a base http.RoundTripper with an
// OpenTelemetry client span per request, the same shape as the
// teacher's otelTransport (httpclient/transport.go), generalized away
// from the teacher's internalConfig-specific filters/formatters since
// retry/breaker/cache live in the pipeline, not the transport. The span
// carries method, URL and status; no retry/breaker/cache outcome is
// recorded on it.
type otelRoundTripper struct {
	base       http.RoundTripper
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

func newOtelRoundTripper(base http.RoundTripper) http.RoundTripper {
	return &otelRoundTripper{
		base:   base,
		tracer: otel.Tracer("rhttp"),
		propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{}, propagation.Baggage{},
		),
	}
}

func (t *otelRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, span := t.tracer.Start(req.Context(), "HTTP "+req.Method, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.url", req.URL.String()),
		),
	)
	defer span.End()

	t.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))
	req = req.WithContext(ctx)

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, resp.Status)
	}
	return resp, nil
}
