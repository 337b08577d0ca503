package designer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// wireElement is the persisted shape of an element. Field names match the
// records written by the mobile storefront.
type wireElement struct {
	ID         int64           `json:"id"`
	Type       Kind            `json:"type"`
	Value      json.RawMessage `json:"value"`
	X          float64         `json:"x"`
	Y          float64         `json:"y"`
	Scale      *float64        `json:"scale,omitempty"`
	Rotation   float64         `json:"rotation"`
	Color      string          `json:"color,omitempty"`
	FontFamily string          `json:"fontFamily,omitempty"`
}

// Serialize encodes elements as the flat JSON array stored with a design.
// Sticker handles are normalized to their plain URI.
func Serialize(elements []Element) (string, error) {
	out := make([]wireElement, 0, len(elements))
	for _, el := range elements {
		w, err := toWire(el)
		if err != nil {
			return "", err
		}
		out = append(out, w)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// MarshalJSON encodes a single element in its persisted shape.
func (e Element) MarshalJSON() ([]byte, error) {
	w, err := toWire(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func toWire(el Element) (wireElement, error) {
	scale := el.Transform.Scale
	w := wireElement{
		ID:       el.ID,
		Type:     el.Kind(),
		X:        el.Transform.X,
		Y:        el.Transform.Y,
		Scale:    &scale,
		Rotation: el.Transform.Rotation,
	}

	var value string
	switch c := el.Content.(type) {
	case Text:
		value = c.Value
		w.Color = c.Color
		w.FontFamily = c.FontID
	case Sticker:
		value = c.URI()
	default:
		return w, fmt.Errorf("%w: element %d has no content", ErrInvalidContent, el.ID)
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return w, err
	}
	w.Value = raw
	return w, nil
}

// Rehydrate parses a serialized element list and rewraps sticker URIs into
// live image handles. Elements of unknown type are skipped with a warning.
func Rehydrate(elementsJSON string) ([]Element, error) {
	if strings.TrimSpace(elementsJSON) == "" {
		return nil, nil
	}

	var wire []wireElement
	if err := json.Unmarshal([]byte(elementsJSON), &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDesign, err)
	}

	elements := make([]Element, 0, len(wire))
	for _, w := range wire {
		value, err := decodeValue(w.Value)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"element_id": w.ID,
				"error":      err,
			}).Warn("Skipping element with unreadable value")
			continue
		}

		scale := DefaultScale
		if w.Scale != nil {
			scale = *w.Scale
		}
		el := Element{
			ID: w.ID,
			Transform: Transform{
				X:        finite(w.X),
				Y:        finite(w.Y),
				Scale:    ClampScale(scale),
				Rotation: ClampRotation(w.Rotation),
			},
		}

		switch w.Type {
		case KindText:
			t := Text{Value: value, Color: w.Color, FontID: w.FontFamily}
			if t.Color == "" {
				t.Color = DefaultTextColor
			}
			if t.FontID == "" {
				t.FontID = DefaultFontID
			}
			el.Content = t
		case KindSticker:
			el.Content = Sticker{Source: NewImageSource(value)}
		default:
			logrus.WithFields(logrus.Fields{
				"element_id": w.ID,
				"type":       w.Type,
			}).Warn("Skipping element of unknown type")
			continue
		}
		elements = append(elements, el)
	}
	return elements, nil
}

// decodeValue accepts either a plain string or a {"uri": "..."} object, the
// latter being what older clients stored for stickers.
func decodeValue(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var handle struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(raw, &handle); err != nil {
		return "", err
	}
	return handle.URI, nil
}

// LoadForEditing builds an editor from a previously persisted
// (elementsJSON, garmentColor) pair. On a parse failure the editor starts
// empty and the returned error wraps ErrMalformedDesign; the editor is
// usable either way. Stickers rejected by the editor's sticker policy are
// dropped.
func LoadForEditing(elementsJSON, garmentColor string, canvas Canvas, opts ...Option) (*Editor, error) {
	e := NewEditor(canvas, opts...)

	if garmentColor != "" {
		if err := validateColor(garmentColor); err != nil {
			logrus.WithField("garment_color", garmentColor).Warn("Ignoring invalid garment color")
		} else {
			e.garmentColor = garmentColor
		}
	}

	elements, err := Rehydrate(elementsJSON)
	if err != nil {
		logrus.WithError(err).Warn("Failed to load design, starting empty")
		return e, err
	}

	if e.allowSticker != nil {
		kept := elements[:0]
		for _, el := range elements {
			if st, ok := el.Content.(Sticker); ok && !e.stickerAllowed(st.URI()) {
				logrus.WithFields(logrus.Fields{
					"element_id": el.ID,
					"uri":        st.URI(),
				}).Warn("Dropping sticker that is not an offered asset")
				continue
			}
			kept = append(kept, el)
		}
		elements = kept
	}

	seen := make(map[int64]bool, len(elements))
	var dupes []int
	for i, el := range elements {
		if seen[el.ID] || el.ID <= 0 {
			dupes = append(dupes, i)
			continue
		}
		seen[el.ID] = true
		if el.ID > e.lastID {
			e.lastID = el.ID
		}
	}
	for _, i := range dupes {
		old := elements[i].ID
		elements[i].ID = e.mintID()
		logrus.WithFields(logrus.Fields{
			"old_id": old,
			"new_id": elements[i].ID,
		}).Warn("Reassigned duplicate element id")
	}

	e.elements = elements
	return e, nil
}
