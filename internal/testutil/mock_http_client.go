package testutil

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/flexprice/billing/internal/httpclient"
)

// MockHTTPClient implements httpclient.Client with canned responses per URL
// suffix and records every request it receives
type MockHTTPClient struct {
	mu       sync.RWMutex
	routes   map[string]MockResponse
	requests []*httpclient.Request
}

// MockResponse represents a mock HTTP response. Err, when set, is returned
// instead of a response, simulating a network failure.
type MockResponse struct {
	StatusCode int
	Body       []byte
	Headers    map[string]string
	Err        error
}

func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{
		routes: make(map[string]MockResponse),
	}
}

// RegisterResponse registers a mock response for a given URL
func (m *MockHTTPClient) RegisterResponse(url string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[url] = resp
}

// Send mirrors httpclient.DefaultClient: statuses >= 400 come back as an
// *httpclient.Error
func (m *MockHTTPClient) Send(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	var matched *MockResponse
	for route, resp := range m.routes {
		if strings.HasSuffix(req.URL, route) {
			r := resp
			matched = &r
			break
		}
	}
	m.mu.Unlock()

	if matched == nil {
		return nil, httpclient.NewError(http.StatusNotFound, []byte("Not Found"))
	}
	if matched.Err != nil {
		return nil, matched.Err
	}
	if matched.StatusCode >= 400 {
		return nil, httpclient.NewError(matched.StatusCode, matched.Body)
	}
	return &httpclient.Response{
		StatusCode: matched.StatusCode,
		Body:       matched.Body,
		Headers:    matched.Headers,
	}, nil
}

// Requests returns the requests received so far
func (m *MockHTTPClient) Requests() []*httpclient.Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*httpclient.Request(nil), m.requests...)
}

// Clear removes all registered responses and recorded requests
func (m *MockHTTPClient) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = make(map[string]MockResponse)
	m.requests = nil
}
