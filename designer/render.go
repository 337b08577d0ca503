package designer

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fogleman/gg"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	_ "golang.org/x/image/webp"
)

const (
	textFontSize   = 40.0
	stickerBoxSize = 80.0
	selectionPad   = 6.0
	backgroundHex  = "#F3F4F6"
)

// ImageLoader resolves a sticker URI into a decoded image.
type ImageLoader interface {
	Load(ctx context.Context, uri string) (image.Image, error)
}

// FontSource hands out font faces for the font ids in the asset catalog.
type FontSource interface {
	Face(fontID string, size float64) (font.Face, error)
}

// Renderer composites the garment and its elements. The same code path
// serves live previews and captures; only previews draw the selection.
type Renderer struct {
	Fonts  FontSource
	Loader ImageLoader
	// Garment is an optional base image tinted by the garment color. When
	// nil a plain t-shirt silhouette is drawn instead.
	Garment image.Image

	mu        sync.Mutex
	tintKey   string
	tintImage image.Image
}

// NewRenderer returns a renderer whose loader only draws inline data URIs.
// Callers that serve catalog stickers replace Loader.
func NewRenderer(fonts FontSource, garment image.Image) *Renderer {
	return &Renderer{
		Fonts:   fonts,
		Loader:  NewDefaultLoader(15*time.Second, "", nil),
		Garment: garment,
	}
}

// RenderPNG draws the document with the selection decoration around the
// active element, if any.
func (r *Renderer) RenderPNG(ctx context.Context, canvas Canvas, doc Document, active int64, hasActive bool) ([]byte, error) {
	sel := int64(-1)
	if hasActive {
		sel = active
	}
	img, err := r.draw(ctx, canvas, doc, sel, false)
	if err != nil {
		return nil, err
	}
	return encodePNG(img)
}

// Capture rasterizes the document for export. No decoration is drawn, and a
// sticker that cannot be loaded fails the capture with ErrCaptureUnavailable
// instead of leaving a placeholder in the exported image.
func (r *Renderer) Capture(ctx context.Context, canvas Canvas, doc Document) ([]byte, error) {
	img, err := r.draw(ctx, canvas, doc, -1, true)
	if err != nil {
		return nil, err
	}
	return encodePNG(img)
}

func encodePNG(img image.Image) ([]byte, error) {
	dc := gg.NewContextForImage(img)
	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Render draws doc onto a new image the size of the canvas. selected is the
// id of the element to decorate, or -1 for none. Stickers that cannot be
// loaded are drawn as placeholders.
func (r *Renderer) Render(ctx context.Context, canvas Canvas, doc Document, selected int64) (image.Image, error) {
	return r.draw(ctx, canvas, doc, selected, false)
}

func (r *Renderer) draw(ctx context.Context, canvas Canvas, doc Document, selected int64, strict bool) (image.Image, error) {
	if !canvas.Ready() {
		return nil, fmt.Errorf("%w: canvas has no size", ErrCaptureUnavailable)
	}
	w, h := int(math.Round(canvas.Width)), int(math.Round(canvas.Height))

	dc := gg.NewContext(w, h)
	dc.SetColor(mustHex(backgroundHex))
	dc.Clear()

	garment := doc.GarmentColor
	if garment == "" {
		garment = DefaultGarmentColor
	}
	r.drawGarment(dc, garment, float64(w), float64(h))

	cx, cy := float64(w)/2, float64(h)/2
	for _, el := range doc.Elements {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dc.Push()
		dc.Translate(cx+el.Transform.X, cy+el.Transform.Y)
		dc.Scale(el.Transform.Scale, el.Transform.Scale)
		dc.Rotate(el.Transform.Rotation)
		if err := r.drawElement(ctx, dc, el); err != nil && strict {
			return nil, fmt.Errorf("%w: sticker %d: %v", ErrCaptureUnavailable, el.ID, err)
		}
		if el.ID == selected {
			drawSelection(dc, el)
		}
		dc.Pop()
	}
	return dc.Image(), nil
}

func (r *Renderer) drawElement(ctx context.Context, dc *gg.Context, el Element) error {
	switch c := el.Content.(type) {
	case Text:
		r.drawText(dc, el.ID, c)
	case Sticker:
		return r.drawSticker(ctx, dc, el.ID, c)
	}
	return nil
}

func (r *Renderer) drawText(dc *gg.Context, id int64, t Text) {
	if r.Fonts != nil {
		face, err := r.Fonts.Face(t.FontID, textFontSize)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"element_id": id,
				"font":       t.FontID,
				"error":      err,
			}).Warn("Font unavailable, using default face")
		} else {
			dc.SetFontFace(face)
		}
	}
	col, err := ParseHexColor(t.Color)
	if err != nil {
		col = color.NRGBA{A: 0xff}
	}
	dc.SetColor(col)
	dc.DrawStringAnchored(t.Value, 0, 0, 0.5, 0.5)
}

func (r *Renderer) drawSticker(ctx context.Context, dc *gg.Context, id int64, s Sticker) error {
	var img image.Image
	var err error
	if s.Source == nil {
		err = fmt.Errorf("sticker has no source")
	} else if r.Loader == nil {
		err = fmt.Errorf("no image loader configured")
	} else {
		img, err = s.Source.resolve(ctx, r.Loader)
	}
	if err == nil && img == nil {
		err = fmt.Errorf("loader returned no image")
	}

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"element_id": id,
			"uri":        s.URI(),
			"error":      err,
		}).Warn("Sticker image unavailable, drawing placeholder")
		dc.SetColor(color.NRGBA{R: 0xcc, G: 0xcc, B: 0xcc, A: 0xff})
		dc.SetLineWidth(2)
		dc.DrawRectangle(-stickerBoxSize/2, -stickerBoxSize/2, stickerBoxSize, stickerBoxSize)
		dc.Stroke()
		return err
	}

	b := img.Bounds()
	k := math.Min(stickerBoxSize/float64(b.Dx()), stickerBoxSize/float64(b.Dy()))
	dc.Push()
	dc.Scale(k, k)
	dc.DrawImageAnchored(img, 0, 0, 0.5, 0.5)
	dc.Pop()
	return nil
}

func drawSelection(dc *gg.Context, el Element) {
	hw, hh := textHalfWidth, textHalfHeight
	if el.Kind() == KindSticker {
		hw, hh = stickerHalfWidth, stickerHalfHeight
	}
	dc.SetColor(color.NRGBA{R: 0x3b, G: 0x82, B: 0xf6, A: 0xff})
	dc.SetLineWidth(2)
	dc.SetDash(6, 4)
	dc.DrawRoundedRectangle(-hw-selectionPad, -hh-selectionPad, 2*(hw+selectionPad), 2*(hh+selectionPad), 8)
	dc.Stroke()
	dc.SetDash()
}

func (r *Renderer) drawGarment(dc *gg.Context, hex string, w, h float64) {
	tint, err := ParseHexColor(hex)
	if err != nil {
		tint = mustHex(DefaultGarmentColor)
	}

	if r.Garment != nil {
		img := r.tinted(hex, tint)
		b := img.Bounds()
		k := math.Min(w/float64(b.Dx()), h/float64(b.Dy()))
		dc.Push()
		dc.Translate(w/2, h/2)
		dc.Scale(k, k)
		dc.DrawImageAnchored(img, 0, 0, 0.5, 0.5)
		dc.Pop()
		return
	}

	shirt := [][2]float64{
		{0.38, 0.08}, {0.22, 0.12}, {0.04, 0.30}, {0.14, 0.40}, {0.24, 0.32},
		{0.24, 0.94}, {0.76, 0.94}, {0.76, 0.32}, {0.86, 0.40}, {0.96, 0.30},
		{0.78, 0.12}, {0.62, 0.08},
	}
	dc.MoveTo(shirt[0][0]*w, shirt[0][1]*h)
	for _, p := range shirt[1:] {
		dc.LineTo(p[0]*w, p[1]*h)
	}
	dc.QuadraticTo(0.5*w, 0.18*h, shirt[0][0]*w, shirt[0][1]*h)
	dc.ClosePath()
	dc.SetColor(tint)
	dc.FillPreserve()
	dc.SetColor(color.NRGBA{R: 0x9c, G: 0xa3, B: 0xaf, A: 0xff})
	dc.SetLineWidth(2)
	dc.Stroke()
}

// tinted multiplies the base garment by the tint color, keeping alpha. The
// last result is cached since the color rarely changes between frames.
func (r *Renderer) tinted(key string, tint color.NRGBA) image.Image {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tintImage != nil && r.tintKey == key {
		return r.tintImage
	}

	b := r.Garment.Bounds()
	out := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(r.Garment.At(x, y)).(color.NRGBA)
			out.SetNRGBA(x, y, color.NRGBA{
				R: uint8(uint16(c.R) * uint16(tint.R) / 0xff),
				G: uint8(uint16(c.G) * uint16(tint.G) / 0xff),
				B: uint8(uint16(c.B) * uint16(tint.B) / 0xff),
				A: c.A,
			})
		}
	}
	r.tintKey, r.tintImage = key, out
	return out
}

// ParseHexColor parses #RGB, #RGBA, #RRGGBB and #RRGGBBAA.
func ParseHexColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) == 3 || len(hex) == 4 {
		var b strings.Builder
		for _, ch := range hex {
			b.WriteRune(ch)
			b.WriteRune(ch)
		}
		hex = b.String()
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 || !strings.HasPrefix(s, "#") {
		return color.NRGBA{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

func mustHex(s string) color.NRGBA {
	c, err := ParseHexColor(s)
	if err != nil {
		panic(err)
	}
	return c
}

// DefaultLoader reads sticker images from base64 data URIs, http(s) URLs and
// files under Root. Remote and file URIs are only read when Allow accepts
// them; a nil Allow rejects them all.
type DefaultLoader struct {
	Root  string
	Allow func(uri string) bool

	client *http.Client
}

// NewDefaultLoader returns a loader whose HTTP fetches time out after timeout.
// File URIs resolve below root; an empty root disables them.
func NewDefaultLoader(timeout time.Duration, root string, allow func(uri string) bool) *DefaultLoader {
	return &DefaultLoader{
		Root:   root,
		Allow:  allow,
		client: &http.Client{Timeout: timeout},
	}
}

func (l *DefaultLoader) Load(ctx context.Context, uri string) (image.Image, error) {
	if !IsInlineImage(uri) && (l.Allow == nil || !l.Allow(uri)) {
		return nil, fmt.Errorf("%w: sticker %q is not an offered asset", ErrInvalidContent, uri)
	}

	var rd io.Reader
	switch {
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return nil, err
		}
		resp, err := l.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", uri, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("failed to fetch %s: status %d", uri, resp.StatusCode)
		}
		rd = resp.Body
	case strings.HasPrefix(uri, "data:"):
		comma := strings.IndexByte(uri, ',')
		if comma < 0 || !strings.Contains(uri[:comma], ";base64") {
			return nil, fmt.Errorf("unsupported data uri")
		}
		data, err := base64.StdEncoding.DecodeString(uri[comma+1:])
		if err != nil {
			return nil, fmt.Errorf("failed to decode data uri: %w", err)
		}
		rd = bytes.NewReader(data)
	default:
		if l.Root == "" {
			return nil, fmt.Errorf("no sticker directory configured for %s", uri)
		}
		// Cleaning against "/" keeps ".." from climbing out of Root.
		name := filepath.Clean("/" + strings.TrimPrefix(uri, "file://"))
		f, err := os.Open(filepath.Join(l.Root, name))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		rd = f
	}

	img, _, err := image.Decode(rd)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", uri, err)
	}
	return img, nil
}
