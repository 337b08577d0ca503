package designer

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// DefaultInset is the share of the canvas that elements may occupy.
const DefaultInset = 0.8

// Canvas describes the garment surface in pixels.
type Canvas struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Inset  float64 `json:"inset"`
}

// Ready reports whether the canvas has a drawable size.
func (c Canvas) Ready() bool {
	return c.Width > 0 && c.Height > 0
}

// HalfBounds returns the usable half width and half height around the center.
func (c Canvas) HalfBounds() (float64, float64) {
	inset := c.Inset
	if inset <= 0 || inset > 1 {
		inset = DefaultInset
	}
	return c.Width * inset / 2, c.Height * inset / 2
}

// Point is a canvas-local position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Document is the serializable design held by an editing session.
type Document struct {
	Elements        []Element
	GarmentColor    string
	PreviewImageURL string
}

// Option configures an Editor.
type Option func(*Editor)

// WithIDSource replaces the clock used to mint element ids. Ids stay strictly
// increasing whatever the source returns.
func WithIDSource(next func() int64) Option {
	return func(e *Editor) { e.nextID = next }
}

// WithChangeObserver registers fn to be called with the new revision after
// every committed change.
func WithChangeObserver(fn func(revision uint64)) Option {
	return func(e *Editor) { e.onChange = fn }
}

// WithStickerPolicy limits stickers to inline data URIs and the URIs allow
// accepts. Without a policy every sticker URI is accepted.
func WithStickerPolicy(allow func(uri string) bool) Option {
	return func(e *Editor) {
		e.allowSticker = func(uri string) bool {
			return IsInlineImage(uri) || (allow != nil && allow(uri))
		}
	}
}

// Editor owns one design document for a single editing session: the ordered
// element list, the garment color and the active selection.
//
// An Editor is not safe for concurrent use.
type Editor struct {
	canvas       Canvas
	elements     []Element
	garmentColor string
	previewURL   string

	active    int64
	hasActive bool

	lastID   int64
	nextID   func() int64
	revision uint64
	onChange func(uint64)

	allowSticker func(string) bool

	gesture Gesture
}

// NewEditor returns an editor holding an empty design.
func NewEditor(canvas Canvas, opts ...Option) *Editor {
	if canvas.Inset <= 0 || canvas.Inset > 1 {
		canvas.Inset = DefaultInset
	}
	e := &Editor{
		canvas:       canvas,
		garmentColor: DefaultGarmentColor,
		nextID:       func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(e)
	}
	e.gesture.editor = e
	return e
}

// Canvas returns the canvas the editor clamps against.
func (e *Editor) Canvas() Canvas { return e.canvas }

// Revision counts committed changes since the editor was created.
func (e *Editor) Revision() uint64 { return e.revision }

// Gesture returns the drag controller bound to this editor.
func (e *Editor) Gesture() *Gesture { return &e.gesture }

func (e *Editor) mintID() int64 {
	id := e.nextID()
	if id <= e.lastID {
		id = e.lastID + 1
	}
	e.lastID = id
	return id
}

func (e *Editor) changed() {
	e.revision++
	if e.onChange != nil {
		e.onChange(e.revision)
	}
}

func (e *Editor) stickerAllowed(uri string) bool {
	return e.allowSticker == nil || e.allowSticker(uri)
}

func (e *Editor) indexOf(id int64) int {
	for i := range e.elements {
		if e.elements[i].ID == id {
			return i
		}
	}
	return -1
}

// AddElement appends a new element on top of the stack with the default
// transform, selects it and returns its id.
func (e *Editor) AddElement(content Content) (int64, error) {
	switch c := content.(type) {
	case Text:
		if c.Color == "" {
			c.Color = DefaultTextColor
		}
		if c.FontID == "" {
			c.FontID = DefaultFontID
		}
		content = c
	case Sticker:
		if c.Source == nil || c.Source.URI == "" {
			return 0, fmt.Errorf("%w: sticker needs an image uri", ErrInvalidContent)
		}
		if !e.stickerAllowed(c.Source.URI) {
			return 0, fmt.Errorf("%w: sticker %q is not an offered asset", ErrInvalidContent, c.Source.URI)
		}
	default:
		return 0, fmt.Errorf("%w: %T", ErrInvalidContent, content)
	}

	el := Element{
		ID:        e.mintID(),
		Content:   content,
		Transform: Transform{Scale: DefaultScale},
	}
	e.elements = append(e.elements, el)
	e.active, e.hasActive = el.ID, true
	e.changed()
	return el.ID, nil
}

// UpdateElement merges the patch into the element with the given id. Scale
// and rotation are clamped into range. The id and kind never change. A
// rejected patch leaves the element untouched.
func (e *Editor) UpdateElement(id int64, p Patch) error {
	i := e.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %d", ErrElementNotFound, id)
	}
	el := &e.elements[i]

	t, isText := el.Content.(Text)
	if isText && p.Color != nil {
		if err := validateColor(*p.Color); err != nil {
			return err
		}
	}

	if p.X != nil {
		el.Transform.X = finite(*p.X)
	}
	if p.Y != nil {
		el.Transform.Y = finite(*p.Y)
	}
	if p.Scale != nil {
		el.Transform.Scale = ClampScale(*p.Scale)
	}
	if p.Rotation != nil {
		el.Transform.Rotation = ClampRotation(*p.Rotation)
	}

	if isText {
		if p.Color != nil {
			t.Color = *p.Color
		}
		if p.FontID != nil && *p.FontID != "" {
			t.FontID = *p.FontID
		}
		if p.Text != nil {
			t.Value = *p.Text
		}
		el.Content = t
	}

	e.changed()
	return nil
}

// RemoveElement deletes the element. Removing the active element clears the
// selection.
func (e *Editor) RemoveElement(id int64) error {
	i := e.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %d", ErrElementNotFound, id)
	}
	e.elements = append(e.elements[:i], e.elements[i+1:]...)
	if e.hasActive && e.active == id {
		e.hasActive = false
		e.active = 0
	}
	e.changed()
	return nil
}

// SetActive selects the element, deselecting any other.
func (e *Editor) SetActive(id int64) error {
	if e.indexOf(id) < 0 {
		return fmt.Errorf("%w: %d", ErrElementNotFound, id)
	}
	e.active, e.hasActive = id, true
	return nil
}

// ClearActive leaves no element selected.
func (e *Editor) ClearActive() {
	e.active, e.hasActive = 0, false
}

// Active returns the selected element id, if any.
func (e *Editor) Active() (int64, bool) {
	return e.active, e.hasActive
}

// SetGarmentColor changes the tint of the base garment.
func (e *Editor) SetGarmentColor(hex string) error {
	if err := validateColor(hex); err != nil {
		return err
	}
	e.garmentColor = hex
	e.changed()
	return nil
}

// GarmentColor returns the current garment tint.
func (e *Editor) GarmentColor() string { return e.garmentColor }

// Element returns a copy of the element with the given id.
func (e *Editor) Element(id int64) (Element, bool) {
	i := e.indexOf(id)
	if i < 0 {
		return Element{}, false
	}
	return e.elements[i].clone(), true
}

// Elements returns a copy of the element list in z-order.
func (e *Editor) Elements() []Element {
	out := make([]Element, len(e.elements))
	for i, el := range e.elements {
		out[i] = el.clone()
	}
	return out
}

// Document returns a snapshot of the committed design.
func (e *Editor) Document() Document {
	return Document{
		Elements:        e.Elements(),
		GarmentColor:    e.garmentColor,
		PreviewImageURL: e.previewURL,
	}
}

// PreviewImageURL is the URL of the last successful capture.
func (e *Editor) PreviewImageURL() string { return e.previewURL }

func (e *Editor) setPreviewImageURL(url string) {
	e.previewURL = url
}

func validateColor(hex string) error {
	if err := validate.Var(hex, "required,hexcolor"); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidColor, hex)
	}
	return nil
}
