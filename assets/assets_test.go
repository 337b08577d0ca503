package assets

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/font/gofont/gomono"
)

func TestNewFonts(t *testing.T) {
	fonts, err := NewFonts("Rubik-Regular")
	if err != nil {
		t.Fatalf("NewFonts() failed: %v", err)
	}

	face, err := fonts.Face("Rubik-Bold", 40)
	if err != nil {
		t.Fatalf("Face() failed: %v", err)
	}
	if face.Metrics().Height <= 0 {
		t.Error("Face should have a positive line height")
	}

	if _, err := fonts.Face("Comic-Sans", 40); err != nil {
		t.Errorf("Unknown family should fall back, got %v", err)
	}
}

func TestNewFonts_UnknownFallback(t *testing.T) {
	if _, err := NewFonts("Missing"); err == nil {
		t.Error("Expected an error for an unregistered fallback")
	}
}

func TestFonts_RegisterFile(t *testing.T) {
	fonts, _ := NewFonts("Rubik-Regular")
	path := filepath.Join(t.TempDir(), "mono.ttf")
	if err := os.WriteFile(path, gomono.TTF, 0644); err != nil {
		t.Fatalf("failed to write font: %v", err)
	}

	if err := fonts.RegisterFile("Custom-Mono", path); err != nil {
		t.Fatalf("RegisterFile() failed: %v", err)
	}
	if !fonts.Has("Custom-Mono") {
		t.Error("Registered font not found")
	}

	if err := fonts.Register("Broken", []byte("not a font")); err == nil {
		t.Error("Expected an error for invalid font data")
	}
}

func TestLoadCatalog_Default(t *testing.T) {
	catalog, err := LoadCatalog("", nil)
	if err != nil {
		t.Fatalf("LoadCatalog() failed: %v", err)
	}
	if !catalog.HasColor("#FFFFFF") {
		t.Error("Default catalog should offer white")
	}
	fonts, _ := NewFonts("Rubik-Regular")
	for _, f := range catalog.Fonts {
		if !fonts.Has(f.FontFamily) {
			t.Errorf("Default catalog font %s is not bundled", f.FontFamily)
		}
	}
}

func TestLoadCatalog_File(t *testing.T) {
	dir := t.TempDir()
	fontPath := filepath.Join(dir, "mono.ttf")
	if err := os.WriteFile(fontPath, gomono.TTF, 0644); err != nil {
		t.Fatalf("failed to write font: %v", err)
	}
	data := `{
		"colors": [{"id": "sky", "hexCode": "#38BDF8"}],
		"stickers": [{"id": "star", "imageUrl": "https://cdn.example.com/star.png"}],
		"fonts": [{"id": "mono", "name": "Mono", "fontFamily": "Shop-Mono", "file": "` + filepath.ToSlash(fontPath) + `"}]
	}`
	path := filepath.Join(dir, "catalog.json")
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}

	fonts, _ := NewFonts("Rubik-Regular")
	catalog, err := LoadCatalog(path, fonts)
	if err != nil {
		t.Fatalf("LoadCatalog() failed: %v", err)
	}
	if len(catalog.Stickers) != 1 || catalog.Stickers[0].ImageURL != "https://cdn.example.com/star.png" {
		t.Errorf("Stickers mismatch: %+v", catalog.Stickers)
	}
	if !catalog.HasColor("#38BDF8") || catalog.HasColor("#FFFFFF") {
		t.Errorf("Colors mismatch: %+v", catalog.Colors)
	}
	if !catalog.HasSticker("https://cdn.example.com/star.png") || catalog.HasSticker("file:///etc/passwd") {
		t.Errorf("Sticker lookup mismatch: %+v", catalog.Stickers)
	}
	if !fonts.Has("Shop-Mono") {
		t.Error("Catalog font file was not registered")
	}
}

func TestLoadCatalog_Invalid(t *testing.T) {
	dir := t.TempDir()
	testCases := map[string]string{
		"bad json":  `{"colors": [`,
		"bad color": `{"colors": [{"id": "x", "hexCode": "blue"}]}`,
	}
	for name, data := range testCases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, "catalog.json")
			if err := os.WriteFile(path, []byte(data), 0644); err != nil {
				t.Fatalf("failed to write catalog: %v", err)
			}
			if _, err := LoadCatalog(path, nil); err == nil {
				t.Error("Expected an error")
			}
		})
	}

	if _, err := LoadCatalog(filepath.Join(dir, "missing.json"), nil); err == nil {
		t.Error("Expected an error for a missing file")
	}
}
