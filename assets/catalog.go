package assets

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

type Color struct {
	ID      string `json:"id" validate:"required"`
	Name    string `json:"name,omitempty"`
	HexCode string `json:"hexCode" validate:"required,hexcolor"`
}

type Sticker struct {
	ID       string `json:"id" validate:"required"`
	Name     string `json:"name,omitempty"`
	ImageURL string `json:"imageUrl" validate:"required"`
}

type Font struct {
	ID         string `json:"id" validate:"required"`
	Name       string `json:"name" validate:"required"`
	FontFamily string `json:"fontFamily" validate:"required"`
	// File is an optional .ttf path registered under FontFamily.
	File string `json:"file,omitempty"`
}

// Catalog is the read-only set of garment colors, stickers and fonts offered
// to the editor.
type Catalog struct {
	Colors   []Color   `json:"colors" validate:"dive"`
	Stickers []Sticker `json:"stickers" validate:"dive"`
	Fonts    []Font    `json:"fonts" validate:"dive"`
}

// DefaultCatalog is served when no catalog file is configured.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Colors: []Color{
			{ID: "white", Name: "White", HexCode: "#FFFFFF"},
			{ID: "black", Name: "Black", HexCode: "#000000"},
			{ID: "olive", Name: "Olive", HexCode: "#526346"},
			{ID: "lime", Name: "Lime", HexCode: "#8CCD61"},
			{ID: "navy", Name: "Navy", HexCode: "#1E3A8A"},
			{ID: "red", Name: "Red", HexCode: "#F75555"},
			{ID: "grey", Name: "Grey", HexCode: "#999EA1"},
		},
		Stickers: []Sticker{},
		Fonts: []Font{
			{ID: "rubik", Name: "Rubik", FontFamily: "Rubik-Regular"},
			{ID: "rubik-medium", Name: "Rubik Medium", FontFamily: "Rubik-Medium"},
			{ID: "rubik-bold", Name: "Rubik Bold", FontFamily: "Rubik-Bold"},
			{ID: "go-italic", Name: "Italic", FontFamily: "Go-Italic"},
			{ID: "go-mono", Name: "Mono", FontFamily: "Go-Mono"},
		},
	}
}

// LoadCatalog reads a catalog from a JSON file. An empty path yields the
// default catalog. Fonts that name a file are registered with fonts.
func LoadCatalog(path string, fonts *Fonts) (*Catalog, error) {
	if path == "" {
		logrus.Info("No asset catalog configured, using defaults")
		return DefaultCatalog(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read asset catalog: %v", err)
	}
	var catalog Catalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse asset catalog: %v", err)
	}
	if err := validator.New().Struct(&catalog); err != nil {
		return nil, fmt.Errorf("invalid asset catalog: %v", err)
	}

	for _, f := range catalog.Fonts {
		if f.File == "" || fonts == nil {
			continue
		}
		if err := fonts.RegisterFile(f.FontFamily, f.File); err != nil {
			logrus.WithFields(logrus.Fields{
				"font":  f.FontFamily,
				"file":  f.File,
				"error": err,
			}).Warn("Failed to register catalog font")
		}
	}

	logrus.WithFields(logrus.Fields{
		"path":     path,
		"colors":   len(catalog.Colors),
		"stickers": len(catalog.Stickers),
		"fonts":    len(catalog.Fonts),
	}).Info("Asset catalog loaded")
	return &catalog, nil
}

// HasColor reports whether hex is one of the offered garment colors.
func (c *Catalog) HasColor(hex string) bool {
	for _, col := range c.Colors {
		if col.HexCode == hex {
			return true
		}
	}
	return false
}

// HasSticker reports whether uri is the image of an offered sticker.
func (c *Catalog) HasSticker(uri string) bool {
	for _, st := range c.Stickers {
		if st.ImageURL == uri {
			return true
		}
	}
	return false
}
