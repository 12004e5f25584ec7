package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCatalogTemplates(t *testing.T) {
	cat := DefaultCatalog()

	tests := []struct {
		productType string
		want        string
	}{
		{"tshirt", "vt_template_123"},
		{"Hoodie", "vt_template_456"},
		{"socks", "vt_template_789"},
		{"shorts", "vt_template_012"},
		{"beanie", "vt_template_345"},
	}
	for _, tt := range tests {
		got, err := cat.VirtualThreadsTemplate(tt.productType)
		if err != nil || got != tt.want {
			t.Errorf("VirtualThreadsTemplate(%q) = %q, %v; want %q", tt.productType, got, err, tt.want)
		}
	}

	if _, err := cat.VirtualThreadsTemplate("scarf"); err == nil || err.Error() != "no template found for product type: scarf" {
		t.Errorf("unexpected error for unknown product type: %v", err)
	}
}

func TestCatalogMockeyColorFallback(t *testing.T) {
	cat := DefaultCatalog()

	if id, _ := cat.MockeyTemplate("tshirt", "black"); id != "mockey_template_125" {
		t.Errorf("tshirt/black = %q", id)
	}
	if id, _ := cat.MockeyTemplate("hoodie", "purple"); id != "mockey_template_456" {
		t.Errorf("unknown colour should fall back to forest-green, got %q", id)
	}
	if _, err := cat.MockeyTemplate("socks", "black"); err == nil {
		t.Error("expected error for product without mockey templates")
	}
}

func TestCatalogDefaultDesign(t *testing.T) {
	cat := DefaultCatalog()
	if got := cat.DefaultDesign("hoodie"); got != "https://cdn.wanderwoll.de/designs/default-hoodie.png" {
		t.Errorf("hoodie design = %s", got)
	}
	if got := cat.DefaultDesign("beanie"); got != "https://cdn.wanderwoll.de/designs/default.png" {
		t.Errorf("beanie design = %s", got)
	}
	if got := cat.ColorHex("forest-green"); got != "#2E8B57" {
		t.Errorf("forest-green hex = %s", got)
	}
}

func TestLoadCatalogMergesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := `
default_color_variants: [black]
virtualthreads_templates:
  tshirt: vt_custom_1
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	cat, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if len(cat.DefaultColorVariants) != 1 || cat.DefaultColorVariants[0] != "black" {
		t.Errorf("DefaultColorVariants = %v", cat.DefaultColorVariants)
	}
	if id, _ := cat.VirtualThreadsTemplate("tshirt"); id != "vt_custom_1" {
		t.Errorf("tshirt template = %s", id)
	}
	if _, err := cat.VirtualThreadsTemplate("hoodie"); err == nil {
		t.Error("overridden template map should replace the default one")
	}
	if id, _ := cat.MockeyTemplate("tshirt", "beige"); id != "mockey_template_124" {
		t.Errorf("mockey templates should keep defaults, got %s", id)
	}
}

func TestLoadCatalogErrors(t *testing.T) {
	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(path, []byte("colors: [unterminated"), 0o600)
	if _, err := LoadCatalog(path); err == nil {
		t.Fatal("expected parse error")
	}
}
