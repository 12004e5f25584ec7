// Package connector adapts third-party mockup, 3D asset and storefront
// providers to the capability interfaces the pipeline routes between.
//
// A connector advertises what it can do by the interfaces it implements;
// callers type-assert for the capability they need.
package connector

import (
	"context"
	"errors"
	"time"
)

// Provider names a connector variant.
type Provider string

const (
	ProviderVirtualThreads Provider = "virtualthreads"
	ProviderMockey         Provider = "mockey"
	ProviderCGTrader       Provider = "cgtrader"
	ProviderBlender        Provider = "blender"
	ProviderShopify        Provider = "shopify"
	ProviderPrintify       Provider = "printify"
)

// Providers lists every known variant.
func Providers() []Provider {
	return []Provider{
		ProviderVirtualThreads,
		ProviderMockey,
		ProviderCGTrader,
		ProviderBlender,
		ProviderShopify,
		ProviderPrintify,
	}
}

// Valid reports whether p is a known variant.
func (p Provider) Valid() bool {
	for _, known := range Providers() {
		if p == known {
			return true
		}
	}
	return false
}

// Connector is implemented by every registered variant.
type Connector interface {
	Provider() Provider
}

// ErrUnsupported is returned when a connector lacks a required capability.
var ErrUnsupported = errors.New("capability not supported")

type MockupGenerator interface {
	GenerateMockup(ctx context.Context, req MockupRequest) (MockupResult, error)
}

// ProductMockupGenerator renders a product's stock design in one colour.
type ProductMockupGenerator interface {
	GenerateProductMockup(ctx context.Context, productType, colorVariant string) (MockupResult, error)
}

type ModelSource interface {
	GetModel(ctx context.Context, productType string) (ModelResult, error)
}

// FallbackModelSource returns a pre-processed model for a colour variant.
type FallbackModelSource interface {
	GetFallbackModel(ctx context.Context, productType, colorVariant string) (ModelResult, error)
}

type ModelProcessor interface {
	ProcessModel(ctx context.Context, job ModelJob) (ModelResult, error)
}

// MetafieldUpdater upserts product metafields. The returned map has one entry
// per requested key; a failing key does not abort the others.
type MetafieldUpdater interface {
	UpdateProductMetafields(ctx context.Context, productID string, fields map[string]interface{}) (map[string]UpdateResult, error)
}

// ImageUploader attaches an image to a product. API failures are reported in
// the result rather than as an error.
type ImageUploader interface {
	UploadProductImage(ctx context.Context, productID, imageURL, alt string) (ImageResult, error)
}

type HealthChecker interface {
	CheckHealth(ctx context.Context) (HealthStatus, error)
}

// MockupRequest describes one design to render on one product variant.
type MockupRequest struct {
	DesignFile    string                 `json:"designFile"`
	ProductType   string                 `json:"productType"`
	ColorVariant  string                 `json:"colorVariant,omitempty"`
	CustomOptions map[string]interface{} `json:"customOptions,omitempty"`
}

type MockupResult struct {
	Success      bool   `json:"success"`
	MockupID     string `json:"mockupId,omitempty"`
	MockupURL    string `json:"mockupUrl,omitempty"`
	ImageURL     string `json:"imageUrl,omitempty"`
	ProductType  string `json:"productType,omitempty"`
	ColorVariant string `json:"colorVariant,omitempty"`
	UsedFallback bool   `json:"usedFallback,omitempty"`
	Error        string `json:"error,omitempty"`
}

// ModelJob is one Blender invocation.
type ModelJob struct {
	InputFile    string `json:"inputFile"`
	OutputFile   string `json:"outputFile,omitempty"`
	ColorVariant string `json:"colorVariant"`
	Mode         string `json:"mode,omitempty"`
}

type ModelResult struct {
	Success      bool   `json:"success"`
	ProductType  string `json:"productType,omitempty"`
	ColorVariant string `json:"colorVariant,omitempty"`
	FilePath     string `json:"filePath,omitempty"`
	InputFile    string `json:"inputFile,omitempty"`
	OutputFile   string `json:"outputFile,omitempty"`
	Format       string `json:"format,omitempty"`
	Mode         string `json:"mode,omitempty"`
	UsedFallback bool   `json:"usedFallback,omitempty"`
	Error        string `json:"error,omitempty"`
}

type UpdateResult struct {
	Success     bool   `json:"success"`
	MetafieldID int64  `json:"metafieldId,omitempty"`
	Error       string `json:"error,omitempty"`
}

type ImageResult struct {
	Success bool   `json:"success"`
	ImageID int64  `json:"imageId,omitempty"`
	Src     string `json:"src,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Status is a health verdict.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

type HealthStatus struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Error     string                 `json:"error,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Healthy builds a healthy status stamped now.
func Healthy(details map[string]interface{}) HealthStatus {
	return HealthStatus{Status: StatusHealthy, Timestamp: time.Now().UTC(), Details: details}
}

// Unhealthy builds an unhealthy status carrying err's message.
func Unhealthy(err error) HealthStatus {
	status := HealthStatus{Status: StatusUnhealthy, Timestamp: time.Now().UTC()}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}
