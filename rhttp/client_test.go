package rhttp

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientGetCachesResponse(t *testing.T) {
	mock := NewMockTransport()
	var hits atomic.Int64
	mock.On(http.MethodGet, "/users", func(req *TransportRequest) (*TransportResponse, error) {
		hits.Add(1)
		return &TransportResponse{
			StatusCode: 200, Status: "200 OK",
			Headers: http.Header{"Content-Type": []string{"application/json"}},
			URL:     req.URL,
			Body:    io.NopCloser(strings.NewReader(`{"ok":true}`)),
		}, nil
	})

	client := New(WithTransport(mock), WithBaseURL("https://api.example.com"))

	resp1, err := client.Get(context.Background(), "/users")
	require.NoError(t, err)
	assert.False(t, resp1.FromCache)

	resp2, err := client.Get(context.Background(), "/users")
	require.NoError(t, err)
	assert.True(t, resp2.FromCache)

	assert.Equal(t, int64(1), hits.Load(), "second request must be served from cache, not dispatched")
}

func TestClientHeadAndOptionsDispatchCorrectMethod(t *testing.T) {
	mock := NewMockTransport()
	mock.On(http.MethodHead, "/users", func(req *TransportRequest) (*TransportResponse, error) {
		return &TransportResponse{StatusCode: 200, Status: "200 OK", Headers: http.Header{}, URL: req.URL, Body: io.NopCloser(strings.NewReader(""))}, nil
	})
	mock.On(http.MethodOptions, "/users", func(req *TransportRequest) (*TransportResponse, error) {
		return &TransportResponse{StatusCode: 204, Status: "204 No Content", Headers: http.Header{}, URL: req.URL, Body: io.NopCloser(strings.NewReader(""))}, nil
	})
	client := New(WithTransport(mock), WithBaseURL("https://api.example.com"))

	head, err := client.Head(context.Background(), "/users")
	require.NoError(t, err)
	assert.True(t, head.Success)

	opts, err := client.Options(context.Background(), "/users")
	require.NoError(t, err)
	assert.True(t, opts.Success)
}

func TestClientAuthIsolatesCacheEntries(t *testing.T) {
	mock := NewMockTransport()
	mock.On(http.MethodGet, "/me", func(req *TransportRequest) (*TransportResponse, error) {
		return &TransportResponse{
			StatusCode: 200, Status: "200 OK",
			Headers: http.Header{"Content-Type": []string{"application/json"}},
			URL:     req.URL,
			Body:    io.NopCloser(strings.NewReader(`{"user":"` + req.Headers.Get("Authorization") + `"}`)),
		}, nil
	})
	client := New(WithTransport(mock), WithBaseURL("https://api.example.com"))

	alice := NewRequest(http.MethodGet, "/me")
	alice.SetHeader("Authorization", "Bearer alice")
	respAlice, err := client.Do(context.Background(), alice)
	require.NoError(t, err)

	bob := NewRequest(http.MethodGet, "/me")
	bob.SetHeader("Authorization", "Bearer bob")
	respBob, err := client.Do(context.Background(), bob)
	require.NoError(t, err)

	assert.False(t, respBob.FromCache, "different credentials must not share a cache entry")
	assert.NotEqual(t, respAlice.Body, respBob.Body)

	respAliceAgain, err := client.Do(context.Background(), alice.clone())
	require.NoError(t, err)
	assert.True(t, respAliceAgain.FromCache)
}

func TestClientDedupsConcurrentIdenticalRequests(t *testing.T) {
	mock := NewMockTransport()
	var dispatches atomic.Int64
	mock.On(http.MethodGet, "/slow", func(req *TransportRequest) (*TransportResponse, error) {
		dispatches.Add(1)
		time.Sleep(20 * time.Millisecond)
		return &TransportResponse{
			StatusCode: 200, Status: "200 OK",
			Headers: http.Header{"Content-Type": []string{"application/json"}},
			URL:     req.URL,
			Body:    io.NopCloser(strings.NewReader(`{"ok":true}`)),
		}, nil
	})
	client := New(WithTransport(mock), WithBaseURL("https://api.example.com"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Get(context.Background(), "/slow")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), dispatches.Load())
}

func TestClientRetriesWithRetryAfterThenSucceeds(t *testing.T) {
	mock := NewMockTransport()
	var attempts atomic.Int64
	mock.On(http.MethodGet, "/flaky", func(req *TransportRequest) (*TransportResponse, error) {
		n := attempts.Add(1)
		if n == 1 {
			return &TransportResponse{
				StatusCode: 429, Status: "429 Too Many Requests",
				Headers: http.Header{"Retry-After": []string{"0"}},
				URL:     req.URL,
				Body:    io.NopCloser(strings.NewReader("")),
			}, nil
		}
		return &TransportResponse{
			StatusCode: 200, Status: "200 OK",
			Headers: http.Header{"Content-Type": []string{"application/json"}},
			URL:     req.URL,
			Body:    io.NopCloser(strings.NewReader(`{"ok":true}`)),
		}, nil
	})
	client := New(WithTransport(mock), WithBaseURL("https://api.example.com"), WithCacheDisabled(), WithRetryAttempts(3))

	resp, err := client.Get(context.Background(), "/flaky")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, int64(2), attempts.Load())
}

func TestClientCircuitOpensAfterConsecutive5xx(t *testing.T) {
	mock := NewMockTransport()
	mock.On(http.MethodGet, "/down", func(req *TransportRequest) (*TransportResponse, error) {
		return &TransportResponse{
			StatusCode: 500, Status: "500 Internal Server Error",
			Headers: http.Header{},
			URL:     req.URL,
			Body:    io.NopCloser(strings.NewReader("")),
		}, nil
	})
	client := New(
		WithTransport(mock),
		WithBaseURL("https://api.example.com"),
		WithCacheDisabled(),
		WithRetryAttempts(0),
		WithCircuitBreaker(2, time.Hour),
	)

	for i := 0; i < 2; i++ {
		_, err := client.Get(context.Background(), "/down")
		assert.Error(t, err)
	}
	assert.False(t, client.IsHealthy())

	_, err := client.Get(context.Background(), "/down")
	assert.ErrorIs(t, err, ErrBreakerOpen)
}

func TestClient4xxNeverOpensCircuit(t *testing.T) {
	mock := NewMockTransport()
	mock.On(http.MethodGet, "/missing", func(req *TransportRequest) (*TransportResponse, error) {
		return &TransportResponse{
			StatusCode: 404, Status: "404 Not Found",
			Headers: http.Header{},
			URL:     req.URL,
			Body:    io.NopCloser(strings.NewReader("")),
		}, nil
	})
	client := New(
		WithTransport(mock),
		WithBaseURL("https://api.example.com"),
		WithCacheDisabled(),
		WithRetryAttempts(0),
		WithCircuitBreaker(2, time.Hour),
	)

	for i := 0; i < 10; i++ {
		_, err := client.Get(context.Background(), "/missing")
		require.Error(t, err)
		assert.True(t, IsHTTPError(err))
	}
	assert.True(t, client.IsHealthy(), "repeated 404s must never open the breaker")
}

// ctxAwareTransport blocks until ctx is cancelled, unlike MockTransport
// (which ignores ctx entirely), so it can exercise the pipeline's
// cancellation-vs-timeout classification.
type ctxAwareTransport struct{}

func (ctxAwareTransport) RoundTrip(ctx context.Context, req *TransportRequest) (*TransportResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestClientCancellationYieldsCancellationError(t *testing.T) {
	client := New(WithTransport(ctxAwareTransport{}), WithBaseURL("https://api.example.com"), WithCacheDisabled())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := client.Get(ctx, "/slow")
	require.Error(t, err)
	assert.True(t, IsCancellationError(err))
}

func TestClientTimeoutYieldsTimeoutError(t *testing.T) {
	client := New(
		WithTransport(ctxAwareTransport{}),
		WithBaseURL("https://api.example.com"),
		WithCacheDisabled(),
		WithRetryAttempts(0),
		WithTimeout(100*time.Millisecond),
	)

	req := NewRequest(http.MethodGet, "/slow")
	req.Timeout = 10 * time.Millisecond
	_, err := client.Do(context.Background(), req)
	require.Error(t, err)
	assert.True(t, IsTimeoutError(err))
}

func TestClientCreateIsolatesState(t *testing.T) {
	mock := NewMockTransport()
	mock.OnJSON(http.MethodGet, "/ping", 200, `{"ok":true}`)
	parent := New(WithTransport(mock), WithBaseURL("https://api.example.com"))

	_, err := parent.Get(context.Background(), "/ping")
	require.NoError(t, err)
	assert.Equal(t, 1, parent.GetCacheStats().Size)

	child := parent.Create()
	assert.Equal(t, 0, child.GetCacheStats().Size, "a child client must start with its own empty cache")
}

func TestClientFormPromotesMapAndSetsBoundaryContentType(t *testing.T) {
	mock := NewMockTransport()
	var gotContentType string
	mock.On(http.MethodPost, "/upload", func(req *TransportRequest) (*TransportResponse, error) {
		gotContentType = req.Headers.Get("Content-Type")
		return &TransportResponse{
			StatusCode: 200, Status: "200 OK",
			Headers: http.Header{"Content-Type": []string{"application/json"}},
			URL:     req.URL,
			Body:    io.NopCloser(strings.NewReader(`{"ok":true}`)),
		}, nil
	})
	client := New(WithTransport(mock), WithBaseURL("https://api.example.com"))

	resp, err := client.Form(context.Background(), http.MethodPost, "/upload", map[string]any{
		"name":    "go",
		"skipped": nil,
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Contains(t, gotContentType, "multipart/form-data")
	assert.Contains(t, gotContentType, "boundary=")
}
