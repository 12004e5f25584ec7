// Package printify is a client for the Printify REST API. Only the catalogue
// side (shops, products, uploads) is covered; order webhooks are handled by
// Printify's Shopify app.
package printify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/wanderwoll/mockup-pipeline/internal/httputil"
	"github.com/wanderwoll/mockup-pipeline/pkg/logger"
)

const DefaultBaseURL = "https://api.printify.com/v1"

type Config struct {
	APIKey     string
	ShopID     string
	BaseURL    string
	MaxRetries int
	Timeout    time.Duration
	RateLimit  float64
}

type Shop struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	SalesChannel string `json:"sales_channel"`
}

type Product struct {
	ID          string          `json:"id,omitempty"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Blueprint   int             `json:"blueprint_id,omitempty"`
	Provider    int             `json:"print_provider_id,omitempty"`
	Variants    json.RawMessage `json:"variants,omitempty"`
	PrintAreas  json.RawMessage `json:"print_areas,omitempty"`
}

type UploadedImage struct {
	ID         string `json:"id"`
	FileName   string `json:"file_name"`
	PreviewURL string `json:"preview_url"`
}

type Client struct {
	http   *httputil.Client
	shopID string
	now    func() time.Time
	log    *logger.Logger
}

func New(cfg Config, log *logger.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("Printify API key is required")
	}
	if log == nil {
		log = logger.NewDefault("printify")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http: httputil.NewClient(httputil.ClientConfig{
			Provider:   "printify",
			BaseURL:    baseURL,
			Auth:       httputil.BearerToken(cfg.APIKey),
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
			RateLimit:  cfg.RateLimit,
			Logger:     log,
		}),
		shopID: cfg.ShopID,
		now:    time.Now,
		log:    log,
	}, nil
}

func (c *Client) GetShops(ctx context.Context) ([]Shop, error) {
	var shops []Shop
	if err := c.http.Get(ctx, "/shops.json", &shops); err != nil {
		return nil, err
	}
	return shops, nil
}

func (c *Client) shopPath(suffix string) (string, error) {
	if c.shopID == "" {
		return "", errors.New("Printify shop ID is required")
	}
	return "/shops/" + url.PathEscape(c.shopID) + suffix, nil
}

func (c *Client) GetProducts(ctx context.Context) ([]Product, error) {
	endpoint, err := c.shopPath("/products.json")
	if err != nil {
		return nil, err
	}
	var out struct {
		Data []Product `json:"data"`
	}
	if err := c.http.Get(ctx, endpoint, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) GetProduct(ctx context.Context, productID string) (*Product, error) {
	endpoint, err := c.shopPath("/products/" + url.PathEscape(productID) + ".json")
	if err != nil {
		return nil, err
	}
	var product Product
	if err := c.http.Get(ctx, endpoint, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

func (c *Client) CreateProduct(ctx context.Context, product Product) (*Product, error) {
	endpoint, err := c.shopPath("/products.json")
	if err != nil {
		return nil, err
	}
	var created Product
	if err := c.http.Post(ctx, endpoint, product, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) PublishProduct(ctx context.Context, productID string) error {
	endpoint, err := c.shopPath("/products/" + url.PathEscape(productID) + "/publish.json")
	if err != nil {
		return err
	}
	return c.http.Post(ctx, endpoint, map[string]bool{"title": true, "description": true, "images": true, "variants": true}, nil)
}

// UploadImage uploads a base64 image; a data URL prefix is stripped.
func (c *Client) UploadImage(ctx context.Context, imageData string) (*UploadedImage, error) {
	if i := strings.Index(imageData, ";base64,"); i >= 0 && strings.HasPrefix(imageData, "data:image/") {
		imageData = imageData[i+len(";base64,"):]
	}
	body := map[string]string{
		"file_name": fmt.Sprintf("wanderwoll_custom_design_%d.png", c.now().UnixMilli()),
		"contents":  imageData,
	}
	var img UploadedImage
	if err := c.http.Post(ctx, "/uploads/images.json", body, &img); err != nil {
		return nil, err
	}
	return &img, nil
}
