package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// MockTransport provides a mock implementation for testing.
type MockTransport struct {
	mu sync.Mutex

	// Response configuration, keyed by "METHOD path"
	Responses map[string]interface{}

	// Error injection. Err applies to every request; PathErrors to one route.
	Err        error
	PathErrors map[string]error

	// Request tracking
	Requests []Request

	// State
	token  string
	closed bool
}

// Request records one call made through the mock.
type Request struct {
	Method  string
	Path    string
	Payload interface{}
	Token   string
}

// NewMockTransport creates a mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		Responses:  make(map[string]interface{}),
		PathErrors: make(map[string]error),
		Requests:   []Request{},
	}
}

func routeKey(method, path string) string {
	return method + " " + path
}

// GetJSON mocks HTTP GET.
func (m *MockTransport) GetJSON(ctx context.Context, path string, payload interface{}) (map[string]interface{}, error) {
	return m.handle(ctx, http.MethodGet, path, payload)
}

// PostJSON mocks HTTP POST.
func (m *MockTransport) PostJSON(ctx context.Context, path string, payload interface{}) (map[string]interface{}, error) {
	return m.handle(ctx, http.MethodPost, path, payload)
}

// PutJSON mocks HTTP PUT.
func (m *MockTransport) PutJSON(ctx context.Context, path string, payload interface{}) (map[string]interface{}, error) {
	return m.handle(ctx, http.MethodPut, path, payload)
}

// DeleteJSON mocks HTTP DELETE.
func (m *MockTransport) DeleteJSON(ctx context.Context, path string, payload interface{}) (map[string]interface{}, error) {
	return m.handle(ctx, http.MethodDelete, path, payload)
}

func (m *MockTransport) handle(ctx context.Context, method, path string, payload interface{}) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, Request{
		Method:  method,
		Path:    path,
		Payload: payload,
		Token:   m.token,
	})

	if m.Err != nil {
		return nil, m.Err
	}

	key := routeKey(method, path)
	if err, ok := m.PathErrors[key]; ok {
		return nil, err
	}

	resp, ok := m.Responses[key]
	if !ok {
		return nil, fmt.Errorf("no mock response for %s", key)
	}

	if mapResp, ok := resp.(map[string]interface{}); ok {
		return mapResp, nil
	}

	// Convert to map if needed
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("marshal mock response: %w", err)
	}
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("mock response for %s is not an object: %w", key, err)
	}
	return result, nil
}

// SetToken mocks token setting.
func (m *MockTransport) SetToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}

// GetToken returns the current token.
func (m *MockTransport) GetToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Close mocks connection closing.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Helper methods for test setup

// AddResponse sets the response for a route.
func (m *MockTransport) AddResponse(method, path string, response interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses[routeKey(method, path)] = response
}

// AddPostResponse sets the response for a POST route.
func (m *MockTransport) AddPostResponse(path string, response interface{}) {
	m.AddResponse(http.MethodPost, path, response)
}

// AddError makes one route fail with err.
func (m *MockTransport) AddError(method, path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PathErrors[routeKey(method, path)] = err
}

// Calls counts requests made to a route.
func (m *MockTransport) Calls(method, path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, r := range m.Requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// LastRequest returns the most recent request, if any.
func (m *MockTransport) LastRequest() (Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.Requests) == 0 {
		return Request{}, false
	}
	return m.Requests[len(m.Requests)-1], true
}

var _ Transport = (*MockTransport)(nil)
var _ Transport = (*HTTPClient)(nil)
var _ Transport = (*DefaultTransport)(nil)
