// Package mockey is a REST client for the Mockey.ai mockup API.
package mockey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"github.com/wanderwoll/mockup-pipeline/internal/httputil"
	"github.com/wanderwoll/mockup-pipeline/pkg/logger"
)

const DefaultBaseURL = "https://api.mockey.ai/v1"

// Config configures the client.
type Config struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	Timeout      time.Duration
	RateLimit    float64
	CacheEnabled bool
	CacheTTL     time.Duration
	PollAttempts int
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// Job is a Mockey mockup job. Mockey has renamed fields between API revisions
// so it is read from the raw body rather than a fixed struct.
type Job struct {
	ID     string
	Status string
	URL    string
	Error  string
}

type Template struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Client talks to the Mockey.ai API with a bearer token.
type Client struct {
	http         *httputil.Client
	pollAttempts int
	pollInterval time.Duration
	pollTimeout  time.Duration
	log          *logger.Logger
}

func New(cfg Config, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewDefault("mockey")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		http: httputil.NewClient(httputil.ClientConfig{
			Provider:     "mockey",
			BaseURL:      baseURL,
			Auth:         httputil.BearerToken(cfg.APIKey),
			Timeout:      cfg.Timeout,
			MaxRetries:   cfg.MaxRetries,
			RateLimit:    cfg.RateLimit,
			CacheEnabled: cfg.CacheEnabled,
			CacheTTL:     cfg.CacheTTL,
			Logger:       log,
		}),
		pollAttempts: cfg.PollAttempts,
		pollInterval: cfg.PollInterval,
		pollTimeout:  cfg.PollTimeout,
		log:          log,
	}
	if c.pollAttempts <= 0 {
		c.pollAttempts = 20
	}
	if c.pollInterval <= 0 {
		c.pollInterval = time.Second
	}
	if c.pollTimeout <= 0 {
		c.pollTimeout = 60 * time.Second
	}
	return c
}

// GenerateMockup submits a design against a template and returns the new job.
func (c *Client) GenerateMockup(ctx context.Context, designURL, templateID string) (*Job, error) {
	if designURL == "" {
		return nil, errors.New("missing required field: designUrl")
	}
	if templateID == "" {
		return nil, errors.New("missing required field: templateId")
	}

	var raw json.RawMessage
	body := map[string]string{"design_url": designURL, "template_id": templateID}
	if err := c.http.Post(ctx, "/mockups/generate", body, &raw); err != nil {
		return nil, err
	}
	return parseJob(raw), nil
}

func (c *Client) GetMockup(ctx context.Context, mockupID string) (*Job, error) {
	if mockupID == "" {
		return nil, errors.New("mockup ID is required")
	}
	var raw json.RawMessage
	if err := c.http.GetFresh(ctx, "/mockups/"+url.PathEscape(mockupID), &raw); err != nil {
		return nil, err
	}
	return parseJob(raw), nil
}

// PollMockupCompletion waits for a job to finish and returns its mockup URL.
func (c *Client) PollMockupCompletion(ctx context.Context, mockupID string) (string, error) {
	deadline := time.Now().Add(c.pollTimeout)

	for attempt := 0; attempt < c.pollAttempts && time.Now().Before(deadline); attempt++ {
		job, err := c.GetMockup(ctx, mockupID)
		if err != nil {
			return "", err
		}
		switch job.Status {
		case "completed":
			return job.URL, nil
		case "failed":
			msg := job.Error
			if msg == "" {
				msg = "Unknown error"
			}
			return "", fmt.Errorf("mockup generation failed: %s", msg)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
	return "", errors.New("mockup generation timed out")
}

func (c *Client) GetTemplates(ctx context.Context) ([]Template, error) {
	var raw json.RawMessage
	if err := c.http.Get(ctx, "/templates", &raw); err != nil {
		return nil, err
	}

	list := gjson.GetBytes(raw, "templates")
	if !list.Exists() {
		list = gjson.ParseBytes(raw)
	}
	var templates []Template
	if list.IsArray() {
		if err := json.Unmarshal([]byte(list.Raw), &templates); err != nil {
			return nil, fmt.Errorf("decode templates: %w", err)
		}
	}
	return templates, nil
}

func (c *Client) ClearCache() { c.http.ClearCache() }

func parseJob(raw []byte) *Job {
	fields := gjson.GetManyBytes(raw, "id", "status", "url", "mockup_url", "error", "error.message")
	job := &Job{
		ID:     fields[0].String(),
		Status: fields[1].String(),
		URL:    fields[2].String(),
		Error:  fields[4].String(),
	}
	if job.URL == "" {
		job.URL = fields[3].String()
	}
	if fields[5].Exists() {
		job.Error = fields[5].String()
	}
	return job
}
