// Package virtualthreads is a REST client for the VirtualThreads mockup API.
package virtualthreads

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/wanderwoll/mockup-pipeline/internal/httputil"
	"github.com/wanderwoll/mockup-pipeline/pkg/logger"
)

const DefaultBaseURL = "https://api.virtualthreads.io/v1"

// Mockup job states reported by the API.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// GenerateRequest is the input of a mockup generation job.
type GenerateRequest struct {
	DesignURL     string                 `json:"design_url"`
	TemplateID    string                 `json:"template_id"`
	ProductID     string                 `json:"product_id,omitempty"`
	Color         string                 `json:"color,omitempty"`
	RenderOptions map[string]interface{} `json:"options"`
}

// Mockup is a generation job as returned by the API.
type Mockup struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	URL    string `json:"url,omitempty"`
	Error  string `json:"error,omitempty"`
}

type Template struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	ProductType string `json:"product_type,omitempty"`
}

// PollOptions bounds PollMockupCompletion.
type PollOptions struct {
	MaxAttempts int
	Interval    time.Duration
	Timeout     time.Duration
}

// DefaultPollOptions allows 20 checks one second apart within a minute.
func DefaultPollOptions() PollOptions {
	return PollOptions{MaxAttempts: 20, Interval: time.Second, Timeout: 60 * time.Second}
}

// Config configures the client.
type Config struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	Timeout      time.Duration
	RateLimit    float64
	CacheEnabled bool
	CacheTTL     time.Duration
	Poll         PollOptions
}

// Client talks to the VirtualThreads API.
type Client struct {
	http *httputil.Client
	poll PollOptions
	log  *logger.Logger
}

// New creates a client authenticated with X-API-Key.
func New(cfg Config, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewDefault("virtualthreads")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	poll := cfg.Poll
	if poll.MaxAttempts == 0 {
		poll = DefaultPollOptions()
	}
	return &Client{
		http: httputil.NewClient(httputil.ClientConfig{
			Provider:     "virtualthreads",
			BaseURL:      baseURL,
			Auth:         httputil.APIKeyHeader("X-API-Key", cfg.APIKey),
			Timeout:      cfg.Timeout,
			MaxRetries:   cfg.MaxRetries,
			RateLimit:    cfg.RateLimit,
			CacheEnabled: cfg.CacheEnabled,
			CacheTTL:     cfg.CacheTTL,
			Logger:       log,
		}),
		poll: poll,
		log:  log,
	}
}

// GenerateMockup starts a mockup job. DesignURL and TemplateID are required.
func (c *Client) GenerateMockup(ctx context.Context, req GenerateRequest) (*Mockup, error) {
	if req.DesignURL == "" {
		return nil, errors.New("missing required field: designUrl")
	}
	if req.TemplateID == "" {
		return nil, errors.New("missing required field: templateId")
	}
	if req.RenderOptions == nil {
		req.RenderOptions = map[string]interface{}{}
	}

	var mockup Mockup
	if err := c.http.Post(ctx, "/mockups/generate", req, &mockup); err != nil {
		return nil, err
	}
	return &mockup, nil
}

// GetMockup returns the current state of a job.
func (c *Client) GetMockup(ctx context.Context, mockupID string) (*Mockup, error) {
	if mockupID == "" {
		return nil, errors.New("mockup ID is required")
	}
	var mockup Mockup
	if err := c.http.GetFresh(ctx, "/mockups/"+url.PathEscape(mockupID), &mockup); err != nil {
		return nil, err
	}
	return &mockup, nil
}

// PollMockupCompletion polls a job until it completes, fails, or the attempt
// or time budget runs out.
func (c *Client) PollMockupCompletion(ctx context.Context, mockupID string) (*Mockup, error) {
	return pollCompletion(ctx, c.poll, func(ctx context.Context) (*Mockup, error) {
		return c.GetMockup(ctx, mockupID)
	})
}

// GetTemplates lists templates, optionally filtered by query parameters.
func (c *Client) GetTemplates(ctx context.Context, filters map[string]string) ([]Template, error) {
	endpoint := "/templates"
	if len(filters) > 0 {
		endpoint += "?" + encodeFilters(filters)
	}
	var out struct {
		Templates []Template `json:"templates"`
	}
	if err := c.http.Get(ctx, endpoint, &out); err != nil {
		return nil, err
	}
	return out.Templates, nil
}

func (c *Client) GetTemplate(ctx context.Context, templateID string) (*Template, error) {
	if templateID == "" {
		return nil, errors.New("template ID is required")
	}
	var tmpl Template
	if err := c.http.Get(ctx, "/templates/"+url.PathEscape(templateID), &tmpl); err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// ClearCache drops cached GET responses.
func (c *Client) ClearCache() { c.http.ClearCache() }

func encodeFilters(filters map[string]string) string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := url.Values{}
	for _, k := range keys {
		values.Set(k, filters[k])
	}
	return values.Encode()
}

func pollCompletion(ctx context.Context, opts PollOptions, get func(context.Context) (*Mockup, error)) (*Mockup, error) {
	deadline := time.Now().Add(opts.Timeout)

	for attempt := 0; attempt < opts.MaxAttempts && time.Now().Before(deadline); attempt++ {
		mockup, err := get(ctx)
		if err != nil {
			return nil, err
		}
		switch mockup.Status {
		case StatusCompleted:
			return mockup, nil
		case StatusFailed:
			msg := mockup.Error
			if msg == "" {
				msg = "Unknown error"
			}
			return nil, fmt.Errorf("mockup generation failed: %s", msg)
		}

		timer := time.NewTimer(opts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, errors.New("mockup generation timed out")
}
