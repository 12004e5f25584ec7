// Package httputil provides the shared HTTP client used by every provider
// integration plus small JSON response helpers for the pipeline API.
package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/wanderwoll/mockup-pipeline/internal/metrics"
	"github.com/wanderwoll/mockup-pipeline/pkg/logger"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	defaultBackoff    = time.Second
	defaultCacheTTL   = 7 * 24 * time.Hour
	maxResponseBytes  = 8 << 20
)

// AuthFunc decorates an outgoing request with provider credentials.
type AuthFunc func(req *http.Request)

// APIKeyHeader sets a static API key header.
func APIKeyHeader(header, key string) AuthFunc {
	return func(req *http.Request) {
		req.Header.Set(header, key)
	}
}

// BearerToken sets an Authorization: Bearer header.
func BearerToken(token string) AuthFunc {
	return func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// ShopifyAccessToken sets the Shopify admin API access token header.
func ShopifyAccessToken(token string) AuthFunc {
	return APIKeyHeader("X-Shopify-Access-Token", token)
}

// APIError is returned for non-2xx provider responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API Error (%d): %s", e.StatusCode, e.Message)
}

// IsClientError reports whether err is a 4xx provider response.
func IsClientError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}

// ClientConfig configures a provider client.
type ClientConfig struct {
	Provider     string
	BaseURL      string
	Auth         AuthFunc
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	CacheEnabled bool
	CacheTTL     time.Duration
	RateLimit    float64 // requests per second; 0 disables limiting
	Burst        int
	HTTPClient   *http.Client
	Logger       *logger.Logger
}

// Client performs JSON requests against one provider API with retries,
// exponential backoff and a GET response cache.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	provider     string
	auth         AuthFunc
	maxRetries   int
	backoff      time.Duration
	cacheEnabled bool
	cacheTTL     time.Duration
	limiter      *rate.Limiter
	log          *logger.Logger
	sleep        func(ctx context.Context, d time.Duration) error
	now          func() time.Time

	mu    sync.Mutex
	cache map[string]cachedResponse
}

type cachedResponse struct {
	body     []byte
	storedAt time.Time
}

// NewClient creates a provider client applying defaults for unset fields.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault(cfg.Provider + "-client")
	}

	return &Client{
		httpClient:   httpClient,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		provider:     cfg.Provider,
		auth:         cfg.Auth,
		maxRetries:   maxRetries,
		backoff:      backoff,
		cacheEnabled: cfg.CacheEnabled,
		cacheTTL:     ttl,
		limiter:      limiter,
		log:          log,
		sleep:        sleepContext,
		now:          time.Now,
		cache:        make(map[string]cachedResponse),
	}
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string { return c.baseURL }

// Get performs a GET request and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, endpoint string, out interface{}) error {
	return c.Do(ctx, http.MethodGet, endpoint, nil, out)
}

// GetFresh performs a GET request that neither reads nor fills the response
// cache. Job status endpoints that change between calls use it.
func (c *Client) GetFresh(ctx context.Context, endpoint string, out interface{}) error {
	return c.do(ctx, http.MethodGet, endpoint, nil, out, false)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, endpoint string, body, out interface{}) error {
	return c.Do(ctx, http.MethodPost, endpoint, body, out)
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, endpoint string, body, out interface{}) error {
	return c.Do(ctx, http.MethodPut, endpoint, body, out)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, endpoint string, out interface{}) error {
	return c.Do(ctx, http.MethodDelete, endpoint, nil, out)
}

// Do executes a request. Non-4xx failures are retried up to MaxRetries
// attempts, waiting RetryBackoff*2^attempt between them. Successful GET
// responses are cached under method:url:body.
func (c *Client) Do(ctx context.Context, method, endpoint string, body, out interface{}) error {
	return c.do(ctx, method, endpoint, body, out, true)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out interface{}, useCache bool) error {
	url := c.baseURL + endpoint

	var payload []byte
	if body != nil && method != http.MethodGet {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		payload = encoded
	}

	key := method + ":" + url + ":" + string(payload)
	cacheable := useCache && method == http.MethodGet && c.cacheEnabled
	if cacheable {
		if data, ok := c.cached(key); ok {
			return decode(data, out)
		}
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		data, err := c.send(ctx, method, url, payload)
		if err == nil {
			if cacheable {
				c.store(key, data)
			}
			return decode(data, out)
		}
		lastErr = err

		if IsClientError(err) || ctx.Err() != nil {
			break
		}
		if attempt < c.maxRetries-1 {
			wait := c.backoff * time.Duration(1<<attempt)
			c.log.WithError(err).
				WithField("provider", c.provider).
				WithField("attempt", attempt+1).
				Debugf("retrying %s %s in %s", method, endpoint, wait)
			if err := c.sleep(ctx, wait); err != nil {
				return fmt.Errorf("%s %s: %w", method, endpoint, err)
			}
		}
	}

	if lastErr == nil {
		lastErr = errors.New("API request failed after multiple retries")
	}
	return lastErr
}

// ClearCache drops every cached GET response.
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cache = make(map[string]cachedResponse)
	c.mu.Unlock()
}

func (c *Client) send(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth != nil {
		c.auth(req)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordProviderRequest(c.provider, method, 0, time.Since(start))
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	metrics.RecordProviderRequest(c.provider, method, resp.StatusCode, time.Since(start))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp, data)}
	}
	return data, nil
}

func (c *Client) cached(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cache[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) > c.cacheTTL {
		delete(c.cache, key)
		return nil, false
	}
	return entry.body, true
}

func (c *Client) store(key string, data []byte) {
	c.mu.Lock()
	c.cache[key] = cachedResponse{body: data, storedAt: c.now()}
	c.mu.Unlock()
}

func decode(data []byte, out interface{}) error {
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage pulls a human readable message out of an error body. Providers
// disagree on the field: message, error, or Shopify's errors.
func errorMessage(resp *http.Response, body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"message", "error.message", "error", "errors"} {
			if v := gjson.GetBytes(body, path); v.Exists() && v.String() != "" {
				return v.String()
			}
		}
	}
	if text := strings.TrimSpace(resp.Status); text != "" {
		return text
	}
	return "Unknown error"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
