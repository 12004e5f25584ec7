package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/wanderwoll/mockup-pipeline/internal/connector"
)

// ProcessDesignUpload renders a customer design through VirtualThreads,
// falling back to Mockey when VirtualThreads fails.
func (o *Orchestrator) ProcessDesignUpload(ctx context.Context, req DesignUpload) (connector.MockupResult, error) {
	if req.DesignFile == "" {
		return connector.MockupResult{}, required("designFile")
	}
	if req.ProductType == "" {
		return connector.MockupResult{}, required("productType")
	}

	o.log.WithField("product_type", req.ProductType).
		WithField("color", req.ColorVariant).
		Info("processing design upload")

	mockupReq := connector.MockupRequest{
		DesignFile:    req.DesignFile,
		ProductType:   req.ProductType,
		ColorVariant:  req.ColorVariant,
		CustomOptions: req.CustomOptions,
	}

	return run(ctx, o, opDesignUpload, req,
		func(ctx context.Context) (connector.MockupResult, error) {
			gen, err := capability[connector.MockupGenerator](o, VirtualThreads)
			if err != nil {
				return connector.MockupResult{}, err
			}
			return gen.GenerateMockup(ctx, mockupReq)
		},
		func(ctx context.Context) (connector.MockupResult, error) {
			gen, err := capability[connector.MockupGenerator](o, Mockey)
			if err != nil {
				return connector.MockupResult{}, err
			}
			return gen.GenerateMockup(ctx, mockupReq)
		},
		func(r *connector.MockupResult) { r.UsedFallback = true },
	)
}

// Process3DModel fetches the product's base model from CGTrader and recolours
// it with Blender. On failure a pre-processed CGTrader model is used.
func (o *Orchestrator) Process3DModel(ctx context.Context, req ModelRequest) (connector.ModelResult, error) {
	if req.ProductType == "" {
		return connector.ModelResult{}, required("productType")
	}

	o.log.WithField("product_type", req.ProductType).
		WithField("color", req.ColorVariant).
		Info("processing 3D model")

	if req.ProcessingMode == "" {
		req.ProcessingMode = connector.ModeConvert
	}
	mode := req.ProcessingMode

	return run(ctx, o, opModelProcessing, req,
		func(ctx context.Context) (connector.ModelResult, error) {
			input := req.ModelFile
			if input == "" {
				source, err := capability[connector.ModelSource](o, CGTrader)
				if err != nil {
					return connector.ModelResult{}, err
				}
				base, err := source.GetModel(ctx, req.ProductType)
				if err != nil {
					return connector.ModelResult{}, err
				}
				input = base.FilePath
			}

			processor, err := capability[connector.ModelProcessor](o, Blender)
			if err != nil {
				return connector.ModelResult{}, err
			}
			res, err := processor.ProcessModel(ctx, connector.ModelJob{
				InputFile:    input,
				ColorVariant: req.ColorVariant,
				Mode:         mode,
			})
			if err != nil {
				return connector.ModelResult{}, err
			}
			if res.ProductType == "" {
				res.ProductType = req.ProductType
			}
			return res, nil
		},
		func(ctx context.Context) (connector.ModelResult, error) {
			source, err := capability[connector.FallbackModelSource](o, CGTrader)
			if err != nil {
				return connector.ModelResult{}, err
			}
			return source.GetFallbackModel(ctx, req.ProductType, req.ColorVariant)
		},
		func(r *connector.ModelResult) { r.UsedFallback = true },
	)
}

// GenerateProductMockups runs ProcessDesignUpload once per colour variant.
// A failing variant is recorded in its entry and does not stop the others.
func (o *Orchestrator) GenerateProductMockups(ctx context.Context, req MockupSetRequest) (map[string]connector.MockupResult, error) {
	if req.ProductType == "" {
		return nil, required("productType")
	}
	if req.DesignFile == "" {
		return nil, required("designFile")
	}

	variants := o.variants(req.ColorVariants)
	o.log.WithField("product_type", req.ProductType).
		WithField("variants", len(variants)).
		Info("generating product mockups")

	results := make(map[string]connector.MockupResult, len(variants))
	for _, variant := range variants {
		res, err := o.ProcessDesignUpload(ctx, DesignUpload{
			DesignFile:   req.DesignFile,
			ProductType:  req.ProductType,
			ColorVariant: variant,
		})
		if err != nil {
			o.log.WithError(err).WithField("color", variant).Error("mockup generation failed")
			results[variant] = connector.MockupResult{Success: false, Error: err.Error()}
			continue
		}
		results[variant] = res
	}
	return results, nil
}

// ProcessProductForShopify builds models for every variant and, when asked,
// Mockey product mockups. Mockups go straight to Mockey so listings get
// consistent product photography.
func (o *Orchestrator) ProcessProductForShopify(ctx context.Context, req ProductRequest) (ProductResult, error) {
	if req.ProductType == "" {
		return ProductResult{}, required("productType")
	}

	o.log.WithField("product_type", req.ProductType).Info("processing product for Shopify")

	result, err := o.processProduct(ctx, req)
	if err != nil {
		o.log.WithError(err).WithField("product_type", req.ProductType).Error("product processing failed")
		return ProductResult{}, fmt.Errorf("failed to process product for Shopify: %w", err)
	}
	return result, nil
}

func (o *Orchestrator) processProduct(ctx context.Context, req ProductRequest) (ProductResult, error) {
	variants := o.variants(req.ColorVariants)

	models := make(map[string]connector.ModelResult, len(variants))
	for _, variant := range variants {
		model, err := o.Process3DModel(ctx, ModelRequest{
			ProductType:    req.ProductType,
			ColorVariant:   variant,
			ProcessingMode: connector.ModeConvert,
		})
		if err != nil {
			return ProductResult{}, err
		}
		models[variant] = model
	}

	mockups := make(map[string]connector.MockupResult)
	if req.GenerateMockups {
		gen, err := capability[connector.ProductMockupGenerator](o, Mockey)
		if err != nil {
			return ProductResult{}, err
		}
		for _, variant := range variants {
			mockup, err := gen.GenerateProductMockup(ctx, req.ProductType, variant)
			if err != nil {
				return ProductResult{}, err
			}
			mockups[variant] = mockup
		}
	}

	return ProductResult{
		Success:     true,
		ProductType: req.ProductType,
		Models:      models,
		Mockups:     mockups,
	}, nil
}

// UpdateShopifyProduct records the model data in product metafields and
// uploads every successful mockup as a product image.
func (o *Orchestrator) UpdateShopifyProduct(ctx context.Context, req ShopifyUpdate) (ShopifyUpdateResult, error) {
	if req.ProductID == "" {
		return ShopifyUpdateResult{}, required("productId")
	}

	o.log.WithField("product_id", req.ProductID).Info("updating Shopify product")

	result, err := o.updateProduct(ctx, req)
	if err != nil {
		o.log.WithError(err).WithField("product_id", req.ProductID).Error("Shopify update failed")
		return ShopifyUpdateResult{}, fmt.Errorf("failed to update Shopify product: %w", err)
	}
	return result, nil
}

func (o *Orchestrator) updateProduct(ctx context.Context, req ShopifyUpdate) (ShopifyUpdateResult, error) {
	updater, err := capability[connector.MetafieldUpdater](o, Shopify)
	if err != nil {
		return ShopifyUpdateResult{}, err
	}

	modelData, err := json.Marshal(req.Models)
	if err != nil {
		return ShopifyUpdateResult{}, fmt.Errorf("encode model data: %w", err)
	}
	metafields, err := updater.UpdateProductMetafields(ctx, req.ProductID, map[string]interface{}{
		"has3dModel": true,
		"modelData":  string(modelData),
	})
	if err != nil {
		return ShopifyUpdateResult{}, err
	}

	images := make(map[string]connector.ImageResult)
	if len(req.Mockups) > 0 {
		uploader, err := capability[connector.ImageUploader](o, Shopify)
		if err != nil {
			return ShopifyUpdateResult{}, err
		}
		for _, variant := range sortedKeys(req.Mockups) {
			mockup := req.Mockups[variant]
			url := mockup.ImageURL
			if url == "" {
				url = mockup.MockupURL
			}
			if !mockup.Success || url == "" {
				continue
			}
			img, err := uploader.UploadProductImage(ctx, req.ProductID, url, variant+" mockup")
			if err != nil {
				return ShopifyUpdateResult{}, err
			}
			images[variant] = img
		}
	}

	return ShopifyUpdateResult{
		Success:    true,
		ProductID:  req.ProductID,
		Metafields: metafields,
		Images:     images,
	}, nil
}

// BatchProcessProducts processes products one after another. Products with a
// ProductID are pushed to Shopify. Failures are recorded per product.
func (o *Orchestrator) BatchProcessProducts(ctx context.Context, products []ProductRequest) []ProductResult {
	o.log.WithField("products", len(products)).Info("batch processing products")

	results := make([]ProductResult, 0, len(products))
	for _, product := range products {
		res, err := o.ProcessProductForShopify(ctx, product)
		if err == nil && product.ProductID != "" {
			var update ShopifyUpdateResult
			update, err = o.UpdateShopifyProduct(ctx, ShopifyUpdate{
				ProductID: product.ProductID,
				Models:    res.Models,
				Mockups:   res.Mockups,
			})
			if err == nil {
				res.ShopifyUpdate = &update
			}
		}
		if err != nil {
			o.log.WithError(err).WithField("product_type", product.ProductType).Error("batch product failed")
			results = append(results, ProductResult{
				Success:     false,
				ProductType: product.ProductType,
				Error:       err.Error(),
			})
			continue
		}
		results = append(results, res)
	}
	return results
}

func (o *Orchestrator) variants(requested []string) []string {
	if len(requested) > 0 {
		return requested
	}
	return append([]string(nil), o.cfg.DefaultColorVariants...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
