package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/http2"

	"github.com/castleatlas/atlas/internal/config"
	"github.com/castleatlas/atlas/internal/events"
	"github.com/castleatlas/atlas/internal/models"
)

// DefaultErrorMessage is used when a failed response carries no message.
const DefaultErrorMessage = "API request failed"

// RequestIDHeader carries the ID that ties client and server log lines
// together.
const RequestIDHeader = "X-Request-ID"

// HTTPClient handles HTTP communication with the API.
type HTTPClient struct {
	client    *http.Client
	baseURL   string
	userAgent string
	logger    *events.Logger

	mu    sync.RWMutex
	token string

	// Retry configuration
	maxRetries int
	retryDelay time.Duration
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithRetryDelay sets the first backoff delay. Later delays double.
func WithRetryDelay(d time.Duration) Option {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates an HTTP client.
func NewHTTPClient(cfg *config.APIConfig, logger *events.Logger, opts ...Option) *HTTPClient {
	// Create transport with HTTP/2 support
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
			NextProtos: []string{"h2", "http/1.1"},
		},
	}

	if err := http2.ConfigureTransport(transport); err != nil {
		logger.WithError(err).Warn("Failed to configure HTTP/2")
	}

	c := &HTTPClient{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		maxRetries: cfg.MaxRetries,
		retryDelay: time.Second,
		logger:     logger.WithField("component", "http_client"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// SetToken sets the authentication token.
func (c *HTTPClient) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// GetToken returns the current authentication token.
func (c *HTTPClient) GetToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// BaseURL returns the API root every path is joined to.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// GetJSON sends a GET request. payload is ignored when nil.
func (c *HTTPClient) GetJSON(ctx context.Context, path string, payload interface{}) (map[string]interface{}, error) {
	return c.do(ctx, http.MethodGet, path, payload)
}

// PostJSON sends a JSON POST request.
func (c *HTTPClient) PostJSON(ctx context.Context, path string, payload interface{}) (map[string]interface{}, error) {
	return c.do(ctx, http.MethodPost, path, payload)
}

// PutJSON sends a JSON PUT request.
func (c *HTTPClient) PutJSON(ctx context.Context, path string, payload interface{}) (map[string]interface{}, error) {
	return c.do(ctx, http.MethodPut, path, payload)
}

// DeleteJSON sends a DELETE request.
func (c *HTTPClient) DeleteJSON(ctx context.Context, path string, payload interface{}) (map[string]interface{}, error) {
	return c.do(ctx, http.MethodDelete, path, payload)
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload interface{}) (map[string]interface{}, error) {
	url := c.baseURL + path

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
	}

	// Every attempt carries the same request ID.
	ctx = events.WithRequestID(events.WithLogger(ctx, c.logger), events.GetRequestID(ctx))
	requestID := events.GetRequestID(ctx)
	logger := events.FromContext(ctx)

	logger.WithFields(map[string]interface{}{
		"method": method,
		"url":    url,
		"size":   len(body),
	}).Debug("Sending request")

	var (
		status   int
		respBody []byte
	)
	err := c.retry(ctx, func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set(RequestIDHeader, requestID)
		for k, v := range c.authHeaders() {
			req.Header.Set(k, v)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("execute request: %w: %w", models.ErrConnectionLost, err)
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w: %w", models.ErrConnectionLost, err)
		}
		status = resp.StatusCode

		if c.isRetryable(status) {
			return withRequestID(decodeAPIError(status, respBody), requestID)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"status": status,
		"size":   len(respBody),
	}).Debug("Received response")

	if status < 200 || status > 299 {
		return nil, withRequestID(decodeAPIError(status, respBody), requestID)
	}

	result := map[string]interface{}{}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return result, nil
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	return result, nil
}

// authHeaders returns the bearer header for the current token, if any.
func (c *HTTPClient) authHeaders() map[string]string {
	token := c.GetToken()
	if token == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

// decodeAPIError builds an APIError from a failed response. The body's
// message field wins; otherwise DefaultErrorMessage.
func decodeAPIError(status int, body []byte) *models.APIError {
	apiErr := &models.APIError{
		StatusCode: status,
		Code:       models.CodeForStatus(status),
		Message:    DefaultErrorMessage,
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return apiErr
	}

	if msg, ok := parsed["message"].(string); ok && msg != "" {
		apiErr.Message = msg
	}
	if code, ok := parsed["code"].(string); ok && code != "" {
		apiErr.Code = code
	}
	if id, ok := parsed["request_id"].(string); ok {
		apiErr.RequestID = id
	}

	return apiErr
}

// withRequestID fills in the ID the request was sent with when the server
// did not echo one.
func withRequestID(apiErr *models.APIError, id string) *models.APIError {
	if apiErr.RequestID == "" {
		apiErr.RequestID = id
	}
	return apiErr
}

// retry executes a function with exponential backoff.
func (c *HTTPClient) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := c.retryDelay

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.WithFields(map[string]interface{}{
				"attempt": attempt,
				"delay":   delay,
			}).Debug("Retrying request")

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
				delay *= 2
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}

		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if !c.isRetryableError(err) {
			return err
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// isRetryable checks if an HTTP status code is retryable.
func (c *HTTPClient) isRetryable(status int) bool {
	return status == http.StatusTooManyRequests ||
		(status >= 500 && status < 600)
}

// isRetryableError checks if an error is retryable. Network errors are;
// cancellation and client errors are not.
func (c *HTTPClient) isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *models.APIError
	if errors.As(err, &apiErr) {
		return c.isRetryable(apiErr.StatusCode)
	}

	return true
}
