package pipeline

import (
	"time"

	"github.com/wanderwoll/mockup-pipeline/internal/connector"
)

// Config controls caching and fallback behaviour.
type Config struct {
	CacheEnabled         bool
	CacheExpiry          time.Duration
	FallbackEnabled      bool
	DefaultColorVariants []string
	HealthTimeout        time.Duration
}

// DefaultConfig enables caching for seven days and fallback routing.
func DefaultConfig() Config {
	return Config{
		CacheEnabled:         true,
		CacheExpiry:          7 * 24 * time.Hour,
		FallbackEnabled:      true,
		DefaultColorVariants: []string{"forest-green", "beige", "black"},
		HealthTimeout:        10 * time.Second,
	}
}

// DesignUpload is a customer design to preview on a product.
type DesignUpload struct {
	DesignFile    string                 `json:"designFile" yaml:"designFile"`
	ProductType   string                 `json:"productType" yaml:"productType"`
	ColorVariant  string                 `json:"colorVariant,omitempty" yaml:"colorVariant"`
	CustomOptions map[string]interface{} `json:"customOptions,omitempty" yaml:"customOptions"`
}

// ModelRequest asks for a coloured 3D model of a product. When ModelFile is
// set the asset library lookup is skipped.
type ModelRequest struct {
	ModelFile      string `json:"modelFile,omitempty" yaml:"modelFile"`
	ProductType    string `json:"productType" yaml:"productType"`
	ColorVariant   string `json:"colorVariant,omitempty" yaml:"colorVariant"`
	ProcessingMode string `json:"processingMode,omitempty" yaml:"processingMode"`
}

// MockupSetRequest renders one design in several colour variants.
type MockupSetRequest struct {
	ProductType   string   `json:"productType" yaml:"productType"`
	DesignFile    string   `json:"designFile" yaml:"designFile"`
	ColorVariants []string `json:"colorVariants,omitempty" yaml:"colorVariants"`
}

// ProductRequest prepares a product's Shopify assets and, when ProductID is
// set in a batch, pushes them to the store.
type ProductRequest struct {
	ProductType     string   `json:"productType" yaml:"productType"`
	ColorVariants   []string `json:"colorVariants,omitempty" yaml:"colorVariants"`
	GenerateMockups bool     `json:"generateMockups,omitempty" yaml:"generateMockups"`
	ProductID       string   `json:"productId,omitempty" yaml:"productId"`
}

type ProductResult struct {
	Success       bool                              `json:"success"`
	ProductType   string                            `json:"productType"`
	Models        map[string]connector.ModelResult  `json:"models,omitempty"`
	Mockups       map[string]connector.MockupResult `json:"mockups,omitempty"`
	ShopifyUpdate *ShopifyUpdateResult              `json:"shopifyUpdate,omitempty"`
	Error         string                            `json:"error,omitempty"`
}

// ShopifyUpdate carries pipeline output to write onto a store product.
type ShopifyUpdate struct {
	ProductID string                            `json:"productId"`
	Models    map[string]connector.ModelResult  `json:"models"`
	Mockups   map[string]connector.MockupResult `json:"mockups,omitempty"`
}

type ShopifyUpdateResult struct {
	Success    bool                              `json:"success"`
	ProductID  string                            `json:"productId"`
	Metafields map[string]connector.UpdateResult `json:"metafields"`
	Images     map[string]connector.ImageResult  `json:"images"`
}

// HealthReport aggregates the orchestrator's and every connector's health.
type HealthReport struct {
	Orchestrator connector.HealthStatus            `json:"orchestrator"`
	Connectors   map[string]connector.HealthStatus `json:"connectors"`
}

// Healthy reports whether every connector with a health check is healthy.
func (r HealthReport) Healthy() bool {
	for _, status := range r.Connectors {
		if status.Status == connector.StatusUnhealthy {
			return false
		}
	}
	return r.Orchestrator.Status == connector.StatusHealthy
}
