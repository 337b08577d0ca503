package assets

import (
	"fmt"
	"os"
	"sync"

	"github.com/golang/freetype/truetype"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
)

// Fonts maps font family ids to parsed TrueType fonts. Faces are built per
// call because truetype faces keep an unsynchronized glyph cache.
type Fonts struct {
	mu       sync.RWMutex
	families map[string]*truetype.Font
	fallback string
}

// builtin maps the storefront's Rubik families onto the bundled Go fonts.
var builtin = []struct {
	family string
	ttf    []byte
}{
	{"Rubik-Regular", goregular.TTF},
	{"Rubik-Light", goregular.TTF},
	{"Rubik-Medium", gomedium.TTF},
	{"Rubik-SemiBold", gomedium.TTF},
	{"Rubik-Bold", gobold.TTF},
	{"Rubik-ExtraBold", gobold.TTF},
	{"Go-Regular", goregular.TTF},
	{"Go-Bold", gobold.TTF},
	{"Go-Italic", goitalic.TTF},
	{"Go-Mono", gomono.TTF},
}

// NewFonts returns a registry holding the bundled families. fallback names
// the family used for unknown ids.
func NewFonts(fallback string) (*Fonts, error) {
	f := &Fonts{
		families: make(map[string]*truetype.Font),
		fallback: fallback,
	}
	for _, b := range builtin {
		if err := f.Register(b.family, b.ttf); err != nil {
			return nil, err
		}
	}
	if _, ok := f.families[fallback]; !ok {
		return nil, fmt.Errorf("fallback font %s is not registered", fallback)
	}
	return f, nil
}

// Register parses ttf and makes it available under family, replacing any
// previous font with that id.
func (f *Fonts) Register(family string, ttf []byte) error {
	parsed, err := truetype.Parse(ttf)
	if err != nil {
		return fmt.Errorf("failed to parse font %s: %v", family, err)
	}
	f.mu.Lock()
	f.families[family] = parsed
	f.mu.Unlock()
	return nil
}

// RegisterFile reads a .ttf file from disk and registers it.
func (f *Fonts) RegisterFile(family, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read font %s: %v", family, err)
	}
	return f.Register(family, data)
}

// Has reports whether family is registered.
func (f *Fonts) Has(family string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.families[family]
	return ok
}

// Face returns a face for family at size points. Unknown families fall back
// to the default family and log a warning.
func (f *Fonts) Face(family string, size float64) (font.Face, error) {
	f.mu.RLock()
	parsed, ok := f.families[family]
	if !ok {
		logrus.WithField("font", family).Warn("Unknown font family, using fallback")
		parsed, ok = f.families[f.fallback]
	}
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("font %s not found", family)
	}

	return truetype.NewFace(parsed, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	}), nil
}
