package connector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wanderwoll/mockup-pipeline/pkg/logger"
)

var (
	_ ModelSource         = (*CGTrader)(nil)
	_ FallbackModelSource = (*CGTrader)(nil)
	_ HealthChecker       = (*CGTrader)(nil)
)

// CGTrader serves purchased CGTrader models from a local asset library laid
// out as <root>/models/<type>.glb with pre-coloured <type>_<color>.glb
// variants next to them.
type CGTrader struct {
	root string
	log  *logger.Logger
}

func NewCGTraderConnector(root string, log *logger.Logger) *CGTrader {
	if log == nil {
		log = logger.NewDefault("cgtrader-connector")
	}
	return &CGTrader{root: root, log: log}
}

func (c *CGTrader) Provider() Provider { return ProviderCGTrader }

func (c *CGTrader) GetModel(ctx context.Context, productType string) (ModelResult, error) {
	if err := ctx.Err(); err != nil {
		return ModelResult{}, err
	}
	path := c.modelPath(strings.ToLower(productType))
	if err := requireFile(path); err != nil {
		return ModelResult{}, fmt.Errorf("model not found for product type %s: %w", productType, err)
	}
	return ModelResult{
		Success:     true,
		ProductType: productType,
		FilePath:    path,
		Format:      "glb",
	}, nil
}

func (c *CGTrader) GetFallbackModel(ctx context.Context, productType, colorVariant string) (ModelResult, error) {
	if err := ctx.Err(); err != nil {
		return ModelResult{}, err
	}
	path := c.modelPath(strings.ToLower(productType) + "_" + colorVariant)
	if err := requireFile(path); err != nil {
		return ModelResult{}, fmt.Errorf("fallback model not found for %s/%s: %w", productType, colorVariant, err)
	}
	return ModelResult{
		Success:      true,
		ProductType:  productType,
		ColorVariant: colorVariant,
		FilePath:     path,
		Format:       "glb",
	}, nil
}

func (c *CGTrader) CheckHealth(ctx context.Context) (HealthStatus, error) {
	matches, err := filepath.Glob(filepath.Join(c.root, "models", "*.glb"))
	if err != nil {
		return Unhealthy(err), nil
	}
	if _, err := os.Stat(filepath.Join(c.root, "models")); err != nil {
		return Unhealthy(fmt.Errorf("asset library unavailable: %w", err)), nil
	}
	return Healthy(map[string]interface{}{"root": c.root, "models": len(matches)}), nil
}

func (c *CGTrader) modelPath(name string) string {
	return filepath.Join(c.root, "models", name+".glb")
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}
