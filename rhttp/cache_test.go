package rhttp

import (
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheFingerprintIsolatesByAuthHeader(t *testing.T) {
	c := newHTTPCache(10, time.Minute)

	req1 := NewRequest(http.MethodGet, "/users")
	req1.SetHeader("Authorization", "Bearer alice")
	req2 := NewRequest(http.MethodGet, "/users")
	req2.SetHeader("Authorization", "Bearer bob")

	fp1 := c.fingerprint(req1, []string{"authorization"})
	fp2 := c.fingerprint(req2, []string{"authorization"})
	assert.NotEqual(t, fp1, fp2, "different credentials must map to different cache entries")

	// Same credentials -> same fingerprint, regardless of instance.
	req3 := NewRequest(http.MethodGet, "/users")
	req3.SetHeader("Authorization", "Bearer alice")
	assert.Equal(t, fp1, c.fingerprint(req3, []string{"authorization"}))
}

func TestCacheFingerprintIgnoresParamOrder(t *testing.T) {
	c := newHTTPCache(10, time.Minute)

	req1 := NewRequest(http.MethodGet, "/search")
	req1.Params = map[string]any{"q": "go", "page": 2}
	req2 := NewRequest(http.MethodGet, "/search")
	req2.Params = map[string]any{"page": 2, "q": "go"}

	assert.Equal(t, c.fingerprint(req1, nil), c.fingerprint(req2, nil))
}

func TestCacheSetGetRoundTrip(t *testing.T) {
	c := newHTTPCache(10, time.Minute)
	resp := &Response{Status: 200, Body: []byte(`{"ok":true}`)}

	c.set("key-1", resp)
	got, ok := c.get("key-1")
	require.True(t, ok)
	assert.Equal(t, resp.Body, got.Body)

	// The returned value is an independent clone.
	got.Body[0] = 'X'
	got2, _ := c.get("key-1")
	assert.Equal(t, byte('{'), got2.Body[0])
}

func TestCacheRespectsMaxSize(t *testing.T) {
	c := newHTTPCache(2, time.Minute)
	c.set("a", &Response{Status: 200, Body: []byte("a")})
	c.set("b", &Response{Status: 200, Body: []byte("b")})
	c.set("c", &Response{Status: 200, Body: []byte("c")})

	stats := c.stats()
	assert.LessOrEqual(t, stats.Size, 2)

	_, ok := c.get("a")
	assert.False(t, ok, "oldest entry should have been evicted")
	_, ok = c.get("c")
	assert.True(t, ok)
}

func TestCacheInvalidate(t *testing.T) {
	c := newHTTPCache(10, time.Minute)
	c.set("key-1", &Response{Status: 200})
	n := c.invalidate("key-1")
	assert.Equal(t, 1, n)
	_, ok := c.get("key-1")
	assert.False(t, ok)
}

func TestCacheInvalidateByPatternRemovesAllMatches(t *testing.T) {
	c := newHTTPCache(10, time.Minute)
	fp1 := c.fingerprint(NewRequest(http.MethodGet, "/users/1"), nil)
	fp2 := c.fingerprint(NewRequest(http.MethodGet, "/users/2"), nil)
	fp3 := c.fingerprint(NewRequest(http.MethodGet, "/orders/1"), nil)
	c.set(fp1, &Response{Status: 200})
	c.set(fp2, &Response{Status: 200})
	c.set(fp3, &Response{Status: 200})

	n := c.invalidate(`/users/\d+`)
	assert.Equal(t, 2, n)

	_, ok := c.get(fp1)
	assert.False(t, ok)
	_, ok = c.get(fp2)
	assert.False(t, ok)
	_, ok = c.get(fp3)
	assert.True(t, ok, "non-matching entry must survive")
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	c := newHTTPCache(10, time.Millisecond)
	c.set("key-1", &Response{Status: 200})
	time.Sleep(5 * time.Millisecond)
	_, ok := c.get("key-1")
	assert.False(t, ok)
}

func TestCacheDedupCollapsesConcurrentCallers(t *testing.T) {
	c := newHTTPCache(10, time.Minute)
	var calls atomic.Int64

	var wg sync.WaitGroup
	results := make([]*Response, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			resp, err := c.dedup("shared-key", func() (*Response, error) {
				calls.Add(1)
				time.Sleep(10 * time.Millisecond)
				return &Response{Status: 200, Body: []byte("payload")}, nil
			})
			require.NoError(t, err)
			results[idx] = resp
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load(), "concurrent identical requests must be coalesced into one dispatch")
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, "payload", string(r.Body))
	}
}

func TestCacheStatsReportsSizeTTLInFlightAndETagCount(t *testing.T) {
	c := newHTTPCache(10, 5*time.Minute)
	c.set("key-1", &Response{Status: 200, ETag: `"a"`})
	c.set("key-2", &Response{Status: 200})
	c.get("key-1")
	c.get("missing")

	stats := c.stats()
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, 10, stats.MaxSize)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 5*time.Minute, stats.DefaultTTL)
	assert.Equal(t, int64(0), stats.InFlight)
	assert.Equal(t, 1, stats.ETagCount)
}

func TestCacheStatsReportsInFlightWhileDedupRunning(t *testing.T) {
	c := newHTTPCache(10, time.Minute)
	started := make(chan struct{})
	release := make(chan struct{})

	go c.dedup("shared-key", func() (*Response, error) {
		close(started)
		<-release
		return &Response{Status: 200}, nil
	})

	<-started
	assert.Equal(t, int64(1), c.stats().InFlight)
	close(release)
}
