package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog describes the product range the pipeline knows how to mock up:
// provider template ids, default designs and the colour palette.
type Catalog struct {
	DefaultColorVariants []string                     `yaml:"default_color_variants"`
	Colors               map[string]string            `yaml:"colors"`
	VirtualThreads       map[string]string            `yaml:"virtualthreads_templates"`
	Mockey               map[string]map[string]string `yaml:"mockey_templates"`
	DefaultDesigns       map[string]string            `yaml:"default_designs"`
	FallbackDesign       string                       `yaml:"fallback_design"`
	DefaultMockeyColor   string                       `yaml:"default_mockey_color"`
}

// DefaultCatalog returns the built-in WanderWoll catalog.
func DefaultCatalog() *Catalog {
	return &Catalog{
		DefaultColorVariants: []string{"forest-green", "beige", "black"},
		Colors: map[string]string{
			"forest-green": "#2E8B57",
			"beige":        "#F5DEB3",
			"black":        "#000000",
		},
		VirtualThreads: map[string]string{
			"tshirt": "vt_template_123",
			"hoodie": "vt_template_456",
			"socks":  "vt_template_789",
			"shorts": "vt_template_012",
			"beanie": "vt_template_345",
		},
		Mockey: map[string]map[string]string{
			"tshirt": {
				"forest-green": "mockey_template_123",
				"beige":        "mockey_template_124",
				"black":        "mockey_template_125",
			},
			"hoodie": {
				"forest-green": "mockey_template_456",
				"beige":        "mockey_template_457",
				"black":        "mockey_template_458",
			},
		},
		DefaultDesigns: map[string]string{
			"tshirt": "https://cdn.wanderwoll.de/designs/default-tshirt.png",
			"hoodie": "https://cdn.wanderwoll.de/designs/default-hoodie.png",
		},
		FallbackDesign:     "https://cdn.wanderwoll.de/designs/default.png",
		DefaultMockeyColor: "forest-green",
	}
}

// LoadCatalog reads a YAML catalog from path. Sections missing from the file
// keep their built-in values.
func LoadCatalog(path string) (*Catalog, error) {
	cat := DefaultCatalog()
	if path == "" {
		return cat, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var override Catalog
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	cat.merge(&override)
	return cat, nil
}

func (c *Catalog) merge(o *Catalog) {
	if len(o.DefaultColorVariants) > 0 {
		c.DefaultColorVariants = o.DefaultColorVariants
	}
	if len(o.Colors) > 0 {
		c.Colors = o.Colors
	}
	if len(o.VirtualThreads) > 0 {
		c.VirtualThreads = o.VirtualThreads
	}
	if len(o.Mockey) > 0 {
		c.Mockey = o.Mockey
	}
	if len(o.DefaultDesigns) > 0 {
		c.DefaultDesigns = o.DefaultDesigns
	}
	if o.FallbackDesign != "" {
		c.FallbackDesign = o.FallbackDesign
	}
	if o.DefaultMockeyColor != "" {
		c.DefaultMockeyColor = o.DefaultMockeyColor
	}
}

// VirtualThreadsTemplate maps a product type to its VirtualThreads template.
func (c *Catalog) VirtualThreadsTemplate(productType string) (string, error) {
	id, ok := c.VirtualThreads[strings.ToLower(productType)]
	if !ok {
		return "", fmt.Errorf("no template found for product type: %s", productType)
	}
	return id, nil
}

// MockeyTemplate maps a product type and colour to a Mockey template. An
// unknown colour falls back to the default Mockey colour.
func (c *Catalog) MockeyTemplate(productType, colorVariant string) (string, error) {
	templates, ok := c.Mockey[strings.ToLower(productType)]
	if !ok {
		return "", fmt.Errorf("no templates found for product type: %s", productType)
	}
	if id, ok := templates[colorVariant]; ok {
		return id, nil
	}
	if id, ok := templates[c.DefaultMockeyColor]; ok {
		return id, nil
	}
	return "", fmt.Errorf("no template found for product type: %s and color: %s", productType, colorVariant)
}

// DefaultDesign returns the stock design URL for a product type.
func (c *Catalog) DefaultDesign(productType string) string {
	if url, ok := c.DefaultDesigns[strings.ToLower(productType)]; ok {
		return url
	}
	return c.FallbackDesign
}

// ColorHex returns the hex code for a colour variant, or "" when unknown.
func (c *Catalog) ColorHex(colorVariant string) string {
	return c.Colors[colorVariant]
}

// ProductTypes lists product types with a VirtualThreads template.
func (c *Catalog) ProductTypes() []string {
	out := make([]string, 0, len(c.VirtualThreads))
	for productType := range c.VirtualThreads {
		out = append(out, productType)
	}
	return out
}
