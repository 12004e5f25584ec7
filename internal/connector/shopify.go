package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/wanderwoll/mockup-pipeline/internal/providers/shopify"
	"github.com/wanderwoll/mockup-pipeline/pkg/logger"
)

var (
	_ MetafieldUpdater = (*Shopify)(nil)
	_ ImageUploader    = (*Shopify)(nil)
	_ HealthChecker    = (*Shopify)(nil)
)

// Shopify writes pipeline output back to store products.
type Shopify struct {
	client    *shopify.Client
	namespace string
	log       *logger.Logger
}

func NewShopifyConnector(client *shopify.Client, namespace string, log *logger.Logger) *Shopify {
	if log == nil {
		log = logger.NewDefault("shopify-connector")
	}
	if namespace == "" {
		namespace = "wanderwoll"
	}
	return &Shopify{client: client, namespace: namespace, log: log}
}

func (s *Shopify) Provider() Provider { return ProviderShopify }

// UpdateProductMetafields upserts each field under the connector namespace.
// Strings are stored as "string", everything else JSON encoded as
// "json_string".
func (s *Shopify) UpdateProductMetafields(ctx context.Context, productID string, fields map[string]interface{}) (map[string]UpdateResult, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	results := make(map[string]UpdateResult, len(fields))
	for _, key := range keys {
		id, err := s.upsert(ctx, productID, key, fields[key])
		if err != nil {
			s.log.WithError(err).
				WithField("product_id", productID).
				WithField("key", key).
				Error("metafield update failed")
			results[key] = UpdateResult{Success: false, Error: err.Error()}
			continue
		}
		results[key] = UpdateResult{Success: true, MetafieldID: id}
	}
	return results, nil
}

func (s *Shopify) upsert(ctx context.Context, productID, key string, value interface{}) (int64, error) {
	field, err := s.metafield(key, value)
	if err != nil {
		return 0, err
	}

	existing, err := s.client.GetProductMetafields(ctx, productID)
	if err != nil {
		return 0, err
	}
	for _, m := range existing {
		if m.Namespace == s.namespace && m.Key == key {
			field.ID = m.ID
			field.Namespace = ""
			field.Key = ""
			return s.client.UpdateMetafield(ctx, productID, field)
		}
	}
	return s.client.CreateMetafield(ctx, productID, field)
}

func (s *Shopify) metafield(key string, value interface{}) (shopify.Metafield, error) {
	field := shopify.Metafield{Namespace: s.namespace, Key: key}
	if str, ok := value.(string); ok {
		field.Value = str
		field.Type = "string"
		return field, nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return field, fmt.Errorf("encode metafield %s: %w", key, err)
	}
	field.Value = string(encoded)
	field.Type = "json_string"
	return field, nil
}

func (s *Shopify) UploadProductImage(ctx context.Context, productID, imageURL, alt string) (ImageResult, error) {
	img, err := s.client.CreateProductImage(ctx, productID, shopify.Image{Src: imageURL, Alt: alt})
	if err != nil {
		s.log.WithError(err).WithField("product_id", productID).Error("image upload failed")
		return ImageResult{Success: false, Error: err.Error()}, nil
	}
	return ImageResult{Success: true, ImageID: img.ID, Src: img.Src}, nil
}

func (s *Shopify) CheckHealth(ctx context.Context) (HealthStatus, error) {
	shop, err := s.client.GetShop(ctx)
	if err != nil {
		return Unhealthy(err), nil
	}
	return Healthy(map[string]interface{}{"shop": shop.Name, "domain": shop.Domain}), nil
}
