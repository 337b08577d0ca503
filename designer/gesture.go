package designer

import (
	"fmt"
	"math"
)

// GestureState is the drag state machine: Idle -> Dragging -> Idle.
type GestureState int

const (
	GestureIdle GestureState = iota
	GestureDragging
)

func (s GestureState) String() string {
	if s == GestureDragging {
		return "dragging"
	}
	return "idle"
}

// Gesture turns a pointer drag into bounded position updates on its editor.
// Moves only produce ephemeral positions; the element is written once, when
// the drag ends.
type Gesture struct {
	editor *Editor

	state    GestureState
	target   int64
	drags    uint64
	baseline Point
	current  Point
}

// State returns the current gesture state.
func (g *Gesture) State() GestureState { return g.state }

// Drag returns the number of the drag in progress, if any. Every BeginDrag
// takes a new number, so callers can tell their drag from a later one.
func (g *Gesture) Drag() (uint64, bool) {
	return g.drags, g.state == GestureDragging
}

// Target returns the element being dragged, if any.
func (g *Gesture) Target() (int64, bool) {
	return g.target, g.state == GestureDragging
}

// BeginDrag captures the element's committed position as the baseline and
// selects it.
func (g *Gesture) BeginDrag(id int64) error {
	if g.state == GestureDragging {
		return fmt.Errorf("%w: element %d is being dragged", ErrGestureInProgress, g.target)
	}
	el, ok := g.editor.Element(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrElementNotFound, id)
	}
	if err := g.editor.SetActive(id); err != nil {
		return err
	}
	g.state = GestureDragging
	g.target = id
	g.drags++
	g.baseline = Point{X: el.Transform.X, Y: el.Transform.Y}
	g.current = g.baseline
	return nil
}

// MoveDrag applies the cumulative translation since BeginDrag and returns
// the clamped position. The editor's state is not modified.
func (g *Gesture) MoveDrag(dx, dy float64) (Point, error) {
	if g.state != GestureDragging {
		return Point{}, ErrNoGesture
	}
	el, ok := g.editor.Element(g.target)
	if !ok {
		g.reset()
		return Point{}, fmt.Errorf("%w: %d", ErrElementNotFound, g.target)
	}
	g.current = ClampPosition(g.editor.canvas, el, Point{
		X: g.baseline.X + finite(dx),
		Y: g.baseline.Y + finite(dy),
	})
	return g.current, nil
}

// EndDrag commits the last clamped position into the editor.
func (g *Gesture) EndDrag() (Point, error) {
	if g.state != GestureDragging {
		return Point{}, ErrNoGesture
	}
	target, pos := g.target, g.current
	g.reset()

	el, ok := g.editor.Element(target)
	if !ok {
		return Point{}, fmt.Errorf("%w: %d", ErrElementNotFound, target)
	}
	// Scale may have changed mid-drag.
	pos = ClampPosition(g.editor.canvas, el, pos)
	if err := g.editor.UpdateElement(target, Patch{X: &pos.X, Y: &pos.Y}); err != nil {
		return Point{}, err
	}
	return pos, nil
}

// CancelDrag drops the gesture without committing.
func (g *Gesture) CancelDrag() {
	g.reset()
}

// Tap selects the element without moving it.
func (g *Gesture) Tap(id int64) error {
	return g.editor.SetActive(id)
}

func (g *Gesture) reset() {
	g.state = GestureIdle
	g.target = 0
	g.baseline = Point{}
	g.current = Point{}
}

// ClampPosition keeps the element's bounding box inside the canvas's usable
// bounds, one axis at a time. An axis the element cannot fit on pins to the
// center.
func ClampPosition(c Canvas, el Element, p Point) Point {
	bx, by := c.HalfBounds()
	hx, hy := el.HalfExtent()
	return Point{X: clampAxis(p.X, bx, hx), Y: clampAxis(p.Y, by, hy)}
}

func clampAxis(v, bound, half float64) float64 {
	limit := bound - half
	if limit <= 0 {
		return 0
	}
	return math.Max(-limit, math.Min(limit, v))
}
