package rhttp

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
)

// MockTransport is a test double implementing Transport, grounded on
// the teacher's mock_transport.go. Register handlers per method+path
// with On, or fall back to Default for anything unmatched.
type MockTransport struct {
	mu       sync.Mutex
	handlers map[string]func(*TransportRequest) (*TransportResponse, error)
	fallback func(*TransportRequest) (*TransportResponse, error)
	calls    []*TransportRequest
}

// NewMockTransport creates an empty MockTransport; every request
// reaching it without a matching handler returns a 404 unless Default
// is set.
func NewMockTransport() *MockTransport {
	return &MockTransport{handlers: make(map[string]func(*TransportRequest) (*TransportResponse, error))}
}

// On registers a handler for method+path (path is matched against the
// URL's path component, ignoring query string and host).
func (m *MockTransport) On(method, path string, handler func(*TransportRequest) (*TransportResponse, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[mockKey(method, path)] = handler
}

// OnJSON registers a handler that always returns a fixed status and
// JSON body for method+path.
func (m *MockTransport) OnJSON(method, path string, status int, body string) {
	m.On(method, path, func(req *TransportRequest) (*TransportResponse, error) {
		return &TransportResponse{
			StatusCode: status,
			Status:     http.StatusText(status),
			Headers:    http.Header{"Content-Type": []string{"application/json"}},
			URL:        req.URL,
			Body:       io.NopCloser(strings.NewReader(body)),
		}, nil
	})
}

// Default sets the fallback handler used when no registered handler
// matches.
func (m *MockTransport) Default(handler func(*TransportRequest) (*TransportResponse, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = handler
}

// Calls returns every request the mock has observed, in order.
func (m *MockTransport) Calls() []*TransportRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*TransportRequest(nil), m.calls...)
}

// RoundTrip implements Transport.
func (m *MockTransport) RoundTrip(ctx context.Context, req *TransportRequest) (*TransportResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	handler, ok := m.handlers[mockKey(req.Method, mockPath(req.URL))]
	fallback := m.fallback
	m.mu.Unlock()

	if ok {
		return handler(req)
	}
	if fallback != nil {
		return fallback(req)
	}
	return &TransportResponse{
		StatusCode: http.StatusNotFound,
		Status:     "404 Not Found",
		Headers:    http.Header{},
		URL:        req.URL,
		Body:       io.NopCloser(strings.NewReader("")),
	}, nil
}

func mockKey(method, path string) string {
	return strings.ToUpper(method) + " " + path
}

func mockPath(rawURL string) string {
	idx := strings.IndexAny(rawURL, "?#")
	path := rawURL
	if idx >= 0 {
		path = rawURL[:idx]
	}
	if i := strings.Index(path, "://"); i >= 0 {
		rest := path[i+3:]
		if slash := strings.Index(rest, "/"); slash >= 0 {
			return rest[slash:]
		}
		return "/"
	}
	return path
}
