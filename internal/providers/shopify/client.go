// Package shopify is a client for the Shopify admin REST API covering the
// product, metafield and image endpoints the pipeline writes to.
package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/wanderwoll/mockup-pipeline/internal/httputil"
	"github.com/wanderwoll/mockup-pipeline/pkg/logger"
)

// Config configures the admin API client.
type Config struct {
	ShopName    string
	AccessToken string
	APIVersion  string
	// BaseURL overrides https://<shop>.myshopify.com/admin/api/<version>.
	BaseURL    string
	MaxRetries int
	Timeout    time.Duration
	RateLimit  float64
}

type Metafield struct {
	ID        int64  `json:"id,omitempty"`
	Namespace string `json:"namespace,omitempty"`
	Key       string `json:"key,omitempty"`
	Value     string `json:"value"`
	Type      string `json:"type"`
}

type Image struct {
	ID  int64  `json:"id,omitempty"`
	Src string `json:"src"`
	Alt string `json:"alt,omitempty"`
}

type Product struct {
	ID          int64   `json:"id,omitempty"`
	Title       string  `json:"title"`
	BodyHTML    string  `json:"body_html,omitempty"`
	Vendor      string  `json:"vendor,omitempty"`
	ProductType string  `json:"product_type,omitempty"`
	Tags        string  `json:"tags,omitempty"`
	Status      string  `json:"status,omitempty"`
	Images      []Image `json:"images,omitempty"`
}

type Shop struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

// ListOptions filters GetProducts.
type ListOptions struct {
	Limit int
	IDs   []string
}

type Client struct {
	http *httputil.Client
	log  *logger.Logger
}

// New creates a client. Shop name and access token are required.
func New(cfg Config, log *logger.Logger) (*Client, error) {
	if cfg.AccessToken == "" || (cfg.ShopName == "" && cfg.BaseURL == "") {
		return nil, errors.New("Shopify API credentials are required")
	}
	if log == nil {
		log = logger.NewDefault("shopify")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2023-07"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.myshopify.com/admin/api/%s", cfg.ShopName, cfg.APIVersion)
	}
	return &Client{
		http: httputil.NewClient(httputil.ClientConfig{
			Provider:   "shopify",
			BaseURL:    baseURL,
			Auth:       httputil.ShopifyAccessToken(cfg.AccessToken),
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
			RateLimit:  cfg.RateLimit,
			Logger:     log,
		}),
		log: log,
	}, nil
}

func (c *Client) GetProduct(ctx context.Context, productID string) (*Product, error) {
	var out struct {
		Product Product `json:"product"`
	}
	if err := c.http.Get(ctx, "/products/"+url.PathEscape(productID)+".json", &out); err != nil {
		return nil, err
	}
	return &out.Product, nil
}

func (c *Client) GetProducts(ctx context.Context, opts ListOptions) ([]Product, error) {
	endpoint := "/products.json"
	params := url.Values{}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if len(opts.IDs) > 0 {
		params.Set("ids", strings.Join(opts.IDs, ","))
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var out struct {
		Products []Product `json:"products"`
	}
	if err := c.http.Get(ctx, endpoint, &out); err != nil {
		return nil, err
	}
	return out.Products, nil
}

func (c *Client) CreateProduct(ctx context.Context, product Product) (*Product, error) {
	var out struct {
		Product Product `json:"product"`
	}
	if err := c.http.Post(ctx, "/products.json", map[string]Product{"product": product}, &out); err != nil {
		return nil, err
	}
	return &out.Product, nil
}

func (c *Client) UpdateProduct(ctx context.Context, productID string, product Product) (*Product, error) {
	var out struct {
		Product Product `json:"product"`
	}
	if err := c.http.Put(ctx, "/products/"+url.PathEscape(productID)+".json", map[string]Product{"product": product}, &out); err != nil {
		return nil, err
	}
	return &out.Product, nil
}

func (c *Client) GetProductMetafields(ctx context.Context, productID string) ([]Metafield, error) {
	var out struct {
		Metafields []Metafield `json:"metafields"`
	}
	if err := c.http.Get(ctx, "/products/"+url.PathEscape(productID)+"/metafields.json", &out); err != nil {
		return nil, err
	}
	return out.Metafields, nil
}

// CreateMetafield adds a metafield and returns the id Shopify assigned.
func (c *Client) CreateMetafield(ctx context.Context, productID string, field Metafield) (int64, error) {
	var raw json.RawMessage
	body := map[string]Metafield{"metafield": field}
	if err := c.http.Post(ctx, "/products/"+url.PathEscape(productID)+"/metafields.json", body, &raw); err != nil {
		return 0, err
	}
	return gjson.GetBytes(raw, "metafield.id").Int(), nil
}

// UpdateMetafield overwrites an existing metafield by id.
func (c *Client) UpdateMetafield(ctx context.Context, productID string, field Metafield) (int64, error) {
	var raw json.RawMessage
	endpoint := fmt.Sprintf("/products/%s/metafields/%d.json", url.PathEscape(productID), field.ID)
	if err := c.http.Put(ctx, endpoint, map[string]Metafield{"metafield": field}, &raw); err != nil {
		return 0, err
	}
	if id := gjson.GetBytes(raw, "metafield.id"); id.Exists() {
		return id.Int(), nil
	}
	return field.ID, nil
}

func (c *Client) CreateProductImage(ctx context.Context, productID string, image Image) (*Image, error) {
	var out struct {
		Image Image `json:"image"`
	}
	if err := c.http.Post(ctx, "/products/"+url.PathEscape(productID)+"/images.json", map[string]Image{"image": image}, &out); err != nil {
		return nil, err
	}
	return &out.Image, nil
}

func (c *Client) GetShop(ctx context.Context) (*Shop, error) {
	var out struct {
		Shop Shop `json:"shop"`
	}
	if err := c.http.Get(ctx, "/shop.json", &out); err != nil {
		return nil, err
	}
	return &out.Shop, nil
}
