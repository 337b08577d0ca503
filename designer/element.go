package designer

import (
	"context"
	"image"
	"math"
	"strings"
	"sync"
)

// Kind tags the two element variants.
type Kind string

const (
	KindText    Kind = "text"
	KindSticker Kind = "sticker"
)

const (
	MinScale     = 0.5
	MaxScale     = 3.0
	DefaultScale = 1.0

	DefaultTextColor    = "#000000"
	DefaultFontID       = "Rubik-Regular"
	DefaultGarmentColor = "#FFFFFF"
)

// Base half extents per kind, before scaling.
const (
	textHalfWidth     = 50.0
	textHalfHeight    = 25.0
	stickerHalfWidth  = 40.0
	stickerHalfHeight = 40.0
)

// Content is the variant payload of an element. It is implemented only by
// Text and Sticker.
type Content interface {
	Kind() Kind
	clone() Content
}

// Text is a string overlay. Color and FontID only exist on text.
type Text struct {
	Value  string
	Color  string
	FontID string
}

func (Text) Kind() Kind { return KindText }

func (t Text) clone() Content { return t }

// Sticker is an image overlay referenced by a live image handle.
type Sticker struct {
	Source *ImageSource
}

func (Sticker) Kind() Kind { return KindSticker }

func (s Sticker) clone() Content {
	if s.Source == nil {
		return Sticker{}
	}
	return Sticker{Source: s.Source}
}

// URI returns the plain reference the sticker was created from.
func (s Sticker) URI() string {
	if s.Source == nil {
		return ""
	}
	return s.Source.URI
}

// IsInlineImage reports whether uri carries its own image bytes as a data URI.
func IsInlineImage(uri string) bool {
	return strings.HasPrefix(uri, "data:image/")
}

// ImageSource is the live handle the renderer draws stickers from. The
// decoded image is resolved on first use and cached on the handle; failed
// loads are retried on the next draw.
type ImageSource struct {
	URI string

	mu  sync.Mutex
	img image.Image
}

// NewImageSource wraps a plain URI into a live handle.
func NewImageSource(uri string) *ImageSource {
	return &ImageSource{URI: uri}
}

func (s *ImageSource) resolve(ctx context.Context, loader ImageLoader) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img != nil {
		return s.img, nil
	}
	img, err := loader.Load(ctx, s.URI)
	if err != nil {
		return nil, err
	}
	s.img = img
	return img, nil
}

// Transform is the 2D placement of an element. X and Y are offsets from the
// canvas center with y growing downward; Rotation is in radians, positive
// turning clockwise on screen.
type Transform struct {
	X        float64
	Y        float64
	Scale    float64
	Rotation float64
}

// Element is one overlay on the garment canvas.
type Element struct {
	ID        int64
	Content   Content
	Transform Transform
}

// Kind reports the element's variant.
func (e Element) Kind() Kind {
	if e.Content == nil {
		return ""
	}
	return e.Content.Kind()
}

// HalfExtent returns the scaled half width and half height of the element's
// bounding box.
func (e Element) HalfExtent() (float64, float64) {
	w, h := textHalfWidth, textHalfHeight
	if e.Kind() == KindSticker {
		w, h = stickerHalfWidth, stickerHalfHeight
	}
	return w * e.Transform.Scale, h * e.Transform.Scale
}

func (e Element) clone() Element {
	if e.Content != nil {
		e.Content = e.Content.clone()
	}
	return e
}

// Patch is a partial element update. Nil fields are left untouched. Color,
// FontID and Text apply only to text elements and are ignored on stickers.
type Patch struct {
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	Scale    *float64 `json:"scale,omitempty"`
	Rotation *float64 `json:"rotation,omitempty"`
	Color    *string  `json:"color,omitempty" validate:"omitempty,hexcolor"`
	FontID   *string  `json:"fontFamily,omitempty"`
	Text     *string  `json:"value,omitempty"`
}

// ClampScale pins s into [MinScale, MaxScale]. NaN becomes DefaultScale.
func ClampScale(s float64) float64 {
	if math.IsNaN(s) {
		return DefaultScale
	}
	return math.Max(MinScale, math.Min(MaxScale, s))
}

// ClampRotation pins r into [-π, π]. NaN becomes 0.
func ClampRotation(r float64) float64 {
	if math.IsNaN(r) {
		return 0
	}
	return math.Max(-math.Pi, math.Min(math.Pi, r))
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
