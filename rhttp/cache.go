package rhttp

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"
)

// cacheEntry holds one cached response plus its expiry, keyed by
// fingerprint (spec §4.3).
type cacheEntry struct {
	response *Response
	expires  time.Time
}

// CacheStats reports cache occupancy and hit/miss counters, surfaced
// through Client.GetCacheStats (spec §4.3: "current size, maxSize,
// default TTL, in-flight count, ETag count").
type CacheStats struct {
	Size       int
	MaxSize    int
	Hits       int64
	Misses     int64
	DefaultTTL time.Duration
	InFlight   int64
	ETagCount  int
}

// httpCache is the bounded LRU response cache (spec §4.3): fingerprint
// -> entry, an ETag index for conditional revalidation, and a bounded
// FIFO memo of extracted auth-header fingerprints. No library in the
// retrieved corpus offers a bounded-LRU primitive, so this is the one
// component built directly on container/list+map rather than a
// third-party dependency (see DESIGN.md).
type httpCache struct {
	mu       sync.Mutex
	ll       *list.List // front = most recently used
	items    map[string]*list.Element
	etags    map[string]string // fingerprint -> last known ETag
	maxSize  int
	ttl      time.Duration
	hits     int64
	misses   int64
	lastSwep time.Time

	group    singleflight.Group
	inFlight int64

	authMemoMu sync.Mutex
	authMemo   map[string]string // headers-signature -> extracted auth fingerprint piece
	authMemoQ  []string          // FIFO eviction order
}

type cacheListEntry struct {
	key   string
	entry cacheEntry
}

func newHTTPCache(maxSize int, ttl time.Duration) *httpCache {
	return &httpCache{
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		etags:    make(map[string]string),
		maxSize:  maxSize,
		ttl:      ttl,
		authMemo: make(map[string]string),
	}
}

// fingerprint builds the cache key spec §4.3/§6 defines:
// method | url | params-json-or-empty | auth-headers-digest-or-empty,
// U+0000-separated so no component can collide with another by
// concatenation. Params are sorted by key so map iteration order never
// affects the fingerprint; the auth fragment is produced by
// authFingerprint so two requests differing only in Bearer token value
// land in different cache slots. The fingerprint is kept as this raw,
// readable string rather than a digest of it, since invalidate(pattern)
// (spec §4.3) matches a regular expression against the fingerprint
// directly — hashing it would make URL-shaped patterns unmatchable.
func (c *httpCache) fingerprint(req *Request, authHeaders []string) string {
	const sep = "\x00"
	var b strings.Builder
	b.WriteString(req.Method)
	b.WriteString(sep)
	b.WriteString(req.URL)
	b.WriteString(sep)
	b.WriteString(paramsJSON(req.Params))
	b.WriteString(sep)
	b.WriteString(c.authFingerprint(req.Headers, authHeaders))
	return b.String()
}

func paramsJSON(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		if params[k] == nil {
			continue
		}
		ordered = append(ordered, k, params[k])
	}
	b, err := json.Marshal(ordered)
	if err != nil {
		return ""
	}
	return string(b)
}

// authFingerprint extracts the values of the configured auth-relevant
// headers and memoizes the signature->fingerprint mapping in a
// bounded, FIFO-evicted map of at most 100 entries, so repeated
// requests carrying the same credentials don't re-marshal on every
// call (spec §4.3 "isolates cache entries by authentication identity").
func (c *httpCache) authFingerprint(headers map[string][]string, authHeaders []string) string {
	if len(authHeaders) == 0 || len(headers) == 0 {
		return ""
	}

	values := make([]string, 0, len(authHeaders))
	for _, name := range authHeaders {
		values = append(values, headers[http1CanonicalHeaderKey(name)]...)
	}
	if len(values) == 0 {
		return ""
	}
	signature := strings.Join(values, "\x01")

	c.authMemoMu.Lock()
	defer c.authMemoMu.Unlock()
	if fp, ok := c.authMemo[signature]; ok {
		return fp
	}

	sum := sha256.Sum256([]byte(signature))
	fp := hex.EncodeToString(sum[:])

	if len(c.authMemoQ) >= 100 {
		oldest := c.authMemoQ[0]
		c.authMemoQ = c.authMemoQ[1:]
		delete(c.authMemo, oldest)
	}
	c.authMemo[signature] = fp
	c.authMemoQ = append(c.authMemoQ, signature)
	return fp
}

// get returns the cached response for key if present and unexpired.
// An expired entry is reported as a miss but left in place (cleanup is
// maybeSweep's job) so a subsequent ETag revalidation can still recover
// its body via peek after a 304 (spec §4.7).
func (c *httpCache) get(key string) (*Response, bool) {
	c.maybeSweep()

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	ent := el.Value.(*cacheListEntry)
	if time.Now().After(ent.entry.expires) {
		c.misses++
		return nil, false
	}
	c.ll.MoveToFront(el)
	c.hits++
	return ent.entry.response.clone(), true
}

// peek returns the stored response for key regardless of expiry,
// without affecting hit/miss counters or LRU order. Used after a 304
// response to recover the body being revalidated, since get() treats
// an expired entry as a miss.
func (c *httpCache) peek(key string) (*Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	ent := el.Value.(*cacheListEntry)
	return ent.entry.response.clone(), true
}

// set stores resp under key with the cache's configured TTL, evicting
// the least-recently-used entry if the cache is at capacity.
func (c *httpCache) set(key string, resp *Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := time.Now().Add(c.ttl)
	if el, ok := c.items[key]; ok {
		ent := el.Value.(*cacheListEntry)
		ent.entry = cacheEntry{response: resp.clone(), expires: expires}
		c.ll.MoveToFront(el)
	} else {
		el := c.ll.PushFront(&cacheListEntry{key: key, entry: cacheEntry{response: resp.clone(), expires: expires}})
		c.items[key] = el
		for c.ll.Len() > c.maxSize {
			c.evictOldest()
		}
	}
	if resp.ETag != "" {
		c.etags[key] = resp.ETag
	}
}

func (c *httpCache) evictOldest() {
	el := c.ll.Back()
	if el == nil {
		return
	}
	ent := el.Value.(*cacheListEntry)
	c.ll.Remove(el)
	delete(c.items, ent.key)
	delete(c.etags, ent.key)
}

// etag returns the last-known ETag for key, for building an
// If-None-Match revalidation header (spec §4.7).
func (c *httpCache) etag(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.etags[key]
	return v, ok
}

// refresh extends a cache entry's TTL and updates its stored response
// after a successful 304 revalidation, without disturbing LRU order
// beyond the normal move-to-front.
func (c *httpCache) refresh(key string, resp *Response) {
	c.set(key, resp)
}

// invalidate removes every entry whose fingerprint matches pattern,
// treated as a regular expression (spec §4.3), and reports how many
// entries were removed. A pattern that fails to compile as a regex
// falls back to exact-match against the fingerprint. A pattern that
// does compile is matched unanchored, so a literal key removes every
// fingerprint that contains it, not only the identical one.
func (c *httpCache) invalidate(pattern string) int {
	re, compileErr := regexp.Compile(pattern)

	c.mu.Lock()
	defer c.mu.Unlock()

	var toRemove []*list.Element
	for key, el := range c.items {
		matched := key == pattern
		if compileErr == nil {
			matched = re.MatchString(key)
		}
		if matched {
			toRemove = append(toRemove, el)
		}
	}
	for _, el := range toRemove {
		ent := el.Value.(*cacheListEntry)
		c.ll.Remove(el)
		delete(c.items, ent.key)
		delete(c.etags, ent.key)
	}
	return len(toRemove)
}

// clear empties the cache entirely.
func (c *httpCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll = list.New()
	c.items = make(map[string]*list.Element)
	c.etags = make(map[string]string)
}

// stats snapshots current occupancy, hit/miss counters, the configured
// default TTL, the number of requests currently coalesced through
// dedup, and the number of fingerprints carrying a live ETag.
func (c *httpCache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Size:       c.ll.Len(),
		MaxSize:    c.maxSize,
		Hits:       c.hits,
		Misses:     c.misses,
		DefaultTTL: c.ttl,
		InFlight:   atomic.LoadInt64(&c.inFlight),
		ETagCount:  len(c.etags),
	}
}

// maybeSweep lazily drops expired entries at most once every 60
// seconds, so a long-idle cache doesn't hold stale entries indefinitely
// without requiring a background goroutine (spec §4.3 "lazy
// expiration").
func (c *httpCache) maybeSweep() {
	c.mu.Lock()
	if time.Since(c.lastSwep) < 60*time.Second {
		c.mu.Unlock()
		return
	}
	c.lastSwep = time.Now()
	now := time.Now()
	var expired []*list.Element
	for el := c.ll.Back(); el != nil; el = el.Prev() {
		ent := el.Value.(*cacheListEntry)
		if now.After(ent.entry.expires) {
			expired = append(expired, el)
		}
	}
	for _, el := range expired {
		ent := el.Value.(*cacheListEntry)
		c.ll.Remove(el)
		delete(c.items, ent.key)
		delete(c.etags, ent.key)
	}
	c.mu.Unlock()
}

// dedup coalesces concurrent identical in-flight requests into a
// single call to fn, grounded on the teacher's coalesce.go use of
// golang.org/x/sync/singleflight (spec §4.4 "Request deduplication").
// Every caller sharing key gets its own clone of the settled response
// so none can mutate another's view of it.
func (c *httpCache) dedup(key string, fn func() (*Response, error)) (*Response, error) {
	atomic.AddInt64(&c.inFlight, 1)
	defer atomic.AddInt64(&c.inFlight, -1)
	v, err, _ := c.group.Do(key, func() (any, error) {
		return fn()
	})
	if err != nil {
		return nil, err
	}
	resp := v.(*Response)
	return resp.clone(), nil
}

// http1CanonicalHeaderKey mirrors http.CanonicalHeaderKey without
// importing net/http into this file's header-lookup hot path; header
// names configured via WithAuthHeaders are lowercase (normalized in
// Config.normalize), so this just title-cases each dash-separated
// segment the way net/http's header maps expect.
func http1CanonicalHeaderKey(name string) string {
	parts := strings.Split(name, "-")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
	}
	return strings.Join(parts, "-")
}
