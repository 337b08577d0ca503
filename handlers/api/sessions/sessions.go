package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"garment-designer/assets"
	"garment-designer/core"
	"garment-designer/designer"
	"garment-designer/handlers/api/respond"
	registry "garment-designer/sessions"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// Previewer renders the live canvas, selection outline included.
type Previewer interface {
	RenderPNG(ctx context.Context, canvas designer.Canvas, doc designer.Document, active int64, hasActive bool) ([]byte, error)
}

// Finisher runs the capture, upload and persist chain for an editor.
type Finisher interface {
	Finish(ctx context.Context, e *designer.Editor, user *core.User, name string) (string, error)
}

type (
	createRequest struct {
		DesignID string `json:"designId,omitempty"`
		// Elements is the serialized element list, either as a JSON array or
		// as the string form stored with a design.
		Elements     json.RawMessage `json:"elements,omitempty"`
		GarmentColor string          `json:"garmentColor,omitempty" validate:"omitempty,hexcolor"`
	}

	sessionResponse struct {
		registry.State
		Warning string `json:"warning,omitempty"`
	}

	addElementRequest struct {
		Type       designer.Kind `json:"type" validate:"required,oneof=text sticker"`
		Value      string        `json:"value" validate:"required"`
		Color      string        `json:"color,omitempty" validate:"omitempty,hexcolor"`
		FontFamily string        `json:"fontFamily,omitempty"`
	}

	activeRequest struct {
		ID *int64 `json:"id"`
	}

	garmentRequest struct {
		Color string `json:"color" validate:"required,hexcolor"`
	}

	targetRequest struct {
		ID int64 `json:"id" validate:"required"`
	}

	moveRequest struct {
		DX float64 `json:"dx"`
		DY float64 `json:"dy"`
	}

	finishRequest struct {
		Name string `json:"name,omitempty" validate:"omitempty,max=120"`
	}

	finishResponse struct {
		ID       string `json:"id"`
		ImageURL string `json:"imageUrl"`
	}
)

func elementsString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	return string(raw), nil
}

// session resolves the {sid} URL parameter against the caller's sessions.
func session(w http.ResponseWriter, r *http.Request, reg *registry.Registry) (*registry.Session, *core.User, bool) {
	user, ok := respond.User(w, r)
	if !ok {
		return nil, nil, false
	}
	s, err := reg.Get(user.Subject, chi.URLParam(r, "sid"))
	if err != nil {
		respond.Error(w, r, err, "Session not found")
		return nil, nil, false
	}
	return s, user, true
}

func elementID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "eid"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: element id must be an integer", respond.ErrBadRequest)
	}
	return id, nil
}

// writeState answers with the session state after fn ran against its editor.
func writeState(w http.ResponseWriter, r *http.Request, s *registry.Session, status int, fn func(e *designer.Editor) error) {
	var st registry.State
	err := s.Do(func(e *designer.Editor) error {
		if err := fn(e); err != nil {
			return err
		}
		st = s.StateOf(e)
		return nil
	})
	if err != nil {
		respond.Error(w, r, err, "Failed to update session")
		return
	}
	render.Status(r, status)
	render.JSON(w, r, st)
}

// HandleCreate opens a session on a new design, a persisted design of the
// caller, or serialized elements sent by the client.
func HandleCreate(reg *registry.Registry, designs core.DesignStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := respond.User(w, r)
		if !ok {
			return
		}

		var req createRequest
		if err := respond.Decode(r, &req, true); err != nil {
			respond.Error(w, r, err, "Invalid session request")
			return
		}

		var (
			s       *registry.Session
			loadErr error
		)
		switch {
		case req.DesignID != "":
			record, err := designs.Get(r.Context(), user.Subject, req.DesignID)
			if err != nil {
				respond.Error(w, r, err, "Failed to load design for editing")
				return
			}
			s, loadErr = reg.Open(user.Subject, record.ID, record.ElementsJSON, record.GarmentColor)
		case len(req.Elements) > 0 || req.GarmentColor != "":
			elements, err := elementsString(req.Elements)
			if err != nil {
				respond.Error(w, r, fmt.Errorf("%w: %v", respond.ErrBadRequest, err), "Invalid session request")
				return
			}
			s, loadErr = reg.Open(user.Subject, "", elements, req.GarmentColor)
		default:
			s = reg.Create(user.Subject)
		}

		resp := sessionResponse{State: s.Snapshot()}
		if loadErr != nil {
			resp.Warning = loadErr.Error()
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, resp)
	}
}

func HandleGet(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, _, ok := session(w, r, reg)
		if !ok {
			return
		}
		render.JSON(w, r, s.Snapshot())
	}
}

func HandleDelete(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := respond.User(w, r)
		if !ok {
			return
		}
		if err := reg.Close(user.Subject, chi.URLParam(r, "sid")); err != nil {
			respond.Error(w, r, err, "Failed to close session")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func HandleAddElement(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, _, ok := session(w, r, reg)
		if !ok {
			return
		}

		var req addElementRequest
		if err := respond.Decode(r, &req, false); err != nil {
			respond.Error(w, r, err, "Invalid element")
			return
		}

		var content designer.Content = designer.Text{Value: req.Value, Color: req.Color, FontID: req.FontFamily}
		if req.Type == designer.KindSticker {
			content = designer.Sticker{Source: designer.NewImageSource(req.Value)}
		}

		var id int64
		err := s.Do(func(e *designer.Editor) error {
			var err error
			id, err = e.AddElement(content)
			return err
		})
		if err != nil {
			respond.Error(w, r, err, "Failed to add element")
			return
		}

		logrus.WithFields(logrus.Fields{
			"session_id": s.ID,
			"element_id": id,
			"type":       req.Type,
		}).Info("Element added")
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, map[string]int64{"id": id})
	}
}

func HandleUpdateElement(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, _, ok := session(w, r, reg)
		if !ok {
			return
		}
		id, err := elementID(r)
		if err != nil {
			respond.Error(w, r, err, "Invalid element id")
			return
		}

		var patch designer.Patch
		if err := respond.Decode(r, &patch, false); err != nil {
			respond.Error(w, r, err, "Invalid element patch")
			return
		}

		var el designer.Element
		err = s.Do(func(e *designer.Editor) error {
			if err := e.UpdateElement(id, patch); err != nil {
				return err
			}
			el, _ = e.Element(id)
			return nil
		})
		if err != nil {
			respond.Error(w, r, err, "Failed to update element")
			return
		}
		render.JSON(w, r, el)
	}
}

func HandleRemoveElement(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, _, ok := session(w, r, reg)
		if !ok {
			return
		}
		id, err := elementID(r)
		if err != nil {
			respond.Error(w, r, err, "Invalid element id")
			return
		}

		err = s.Do(func(e *designer.Editor) error {
			return e.RemoveElement(id)
		})
		if err != nil {
			respond.Error(w, r, err, "Failed to remove element")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleSetActive selects an element, or clears the selection for a null id.
func HandleSetActive(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, _, ok := session(w, r, reg)
		if !ok {
			return
		}
		var req activeRequest
		if err := respond.Decode(r, &req, false); err != nil {
			respond.Error(w, r, err, "Invalid selection")
			return
		}
		writeState(w, r, s, http.StatusOK, func(e *designer.Editor) error {
			if req.ID == nil {
				e.ClearActive()
				return nil
			}
			return e.SetActive(*req.ID)
		})
	}
}

// HandleSetGarmentColor changes the garment tint. Only colors offered by the
// catalog are accepted; an empty catalog accepts any hex color.
func HandleSetGarmentColor(reg *registry.Registry, catalog *assets.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, _, ok := session(w, r, reg)
		if !ok {
			return
		}
		var req garmentRequest
		if err := respond.Decode(r, &req, false); err != nil {
			respond.Error(w, r, err, "Invalid garment color")
			return
		}
		if catalog != nil && len(catalog.Colors) > 0 && !catalog.HasColor(req.Color) {
			respond.Error(w, r, fmt.Errorf("%w: garment color %s is not offered", respond.ErrBadRequest, req.Color), "Invalid garment color")
			return
		}
		writeState(w, r, s, http.StatusOK, func(e *designer.Editor) error {
			return e.SetGarmentColor(req.Color)
		})
	}
}

func HandleDragBegin(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, _, ok := session(w, r, reg)
		if !ok {
			return
		}
		var req targetRequest
		if err := respond.Decode(r, &req, false); err != nil {
			respond.Error(w, r, err, "Invalid drag target")
			return
		}
		writeState(w, r, s, http.StatusOK, func(e *designer.Editor) error {
			return e.Gesture().BeginDrag(req.ID)
		})
	}
}

// HandleDragMove answers with the ephemeral clamped position. The session's
// design does not change until the drag ends.
func HandleDragMove(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, _, ok := session(w, r, reg)
		if !ok {
			return
		}
		var req moveRequest
		if err := respond.Decode(r, &req, false); err != nil {
			respond.Error(w, r, err, "Invalid drag move")
			return
		}

		var pos designer.Point
		err := s.Do(func(e *designer.Editor) error {
			var err error
			pos, err = e.Gesture().MoveDrag(req.DX, req.DY)
			return err
		})
		if err != nil {
			respond.Error(w, r, err, "Failed to move drag")
			return
		}
		render.JSON(w, r, pos)
	}
}

func HandleDragEnd(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, _, ok := session(w, r, reg)
		if !ok {
			return
		}
		writeState(w, r, s, http.StatusOK, func(e *designer.Editor) error {
			_, err := e.Gesture().EndDrag()
			return err
		})
	}
}

func HandleDragCancel(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, _, ok := session(w, r, reg)
		if !ok {
			return
		}
		writeState(w, r, s, http.StatusOK, func(e *designer.Editor) error {
			e.Gesture().CancelDrag()
			return nil
		})
	}
}

func HandleTap(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, _, ok := session(w, r, reg)
		if !ok {
			return
		}
		var req targetRequest
		if err := respond.Decode(r, &req, false); err != nil {
			respond.Error(w, r, err, "Invalid tap target")
			return
		}
		writeState(w, r, s, http.StatusOK, func(e *designer.Editor) error {
			return e.Gesture().Tap(req.ID)
		})
	}
}

// HandlePreview renders the live canvas of the session as PNG.
func HandlePreview(reg *registry.Registry, previewer Previewer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, _, ok := session(w, r, reg)
		if !ok {
			return
		}

		var png []byte
		err := s.Do(func(e *designer.Editor) error {
			active, hasActive := e.Active()
			var err error
			png, err = previewer.RenderPNG(r.Context(), e.Canvas(), e.Document(), active, hasActive)
			return err
		})
		if err != nil {
			respond.Error(w, r, err, "Failed to render preview")
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		if _, err := w.Write(png); err != nil {
			logrus.WithFields(logrus.Fields{
				"error":      err,
				"session_id": s.ID,
			}).Warn("Failed to write preview")
		}
	}
}

// HandleFinish captures, uploads and persists the session's design.
func HandleFinish(reg *registry.Registry, finisher Finisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, user, ok := session(w, r, reg)
		if !ok {
			return
		}
		var req finishRequest
		if err := respond.Decode(r, &req, true); err != nil {
			respond.Error(w, r, err, "Invalid finish request")
			return
		}

		var resp finishResponse
		err := s.Do(func(e *designer.Editor) error {
			id, err := finisher.Finish(r.Context(), e, user, req.Name)
			if err != nil {
				return err
			}
			s.DesignID = id
			resp = finishResponse{ID: id, ImageURL: e.PreviewImageURL()}
			return nil
		})
		if err != nil {
			respond.Error(w, r, err, "Failed to finish design")
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, resp)
	}
}
