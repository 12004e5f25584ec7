package pipeline

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type batchFile struct {
	Products []ProductRequest `yaml:"products"`
}

// LoadBatch reads products from a YAML (or JSON) file holding either a list
// of products or a document with a top-level "products" list.
func LoadBatch(path string) ([]ProductRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}
	return ParseBatch(data)
}

// ParseBatch decodes a batch document. See LoadBatch.
func ParseBatch(data []byte) ([]ProductRequest, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("batch file is empty")
	}

	var products []ProductRequest
	if err := yaml.Unmarshal(trimmed, &products); err != nil {
		var doc batchFile
		if docErr := yaml.Unmarshal(trimmed, &doc); docErr != nil {
			return nil, fmt.Errorf("decode batch file: %w", docErr)
		}
		products = doc.Products
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("batch file lists no products")
	}
	for i, p := range products {
		if p.ProductType == "" {
			return nil, fmt.Errorf("batch product %d: %w", i, required("productType"))
		}
	}
	return products, nil
}
