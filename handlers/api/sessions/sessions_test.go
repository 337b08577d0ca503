package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"garment-designer/assets"
	"garment-designer/core"
	"garment-designer/designer"
	"garment-designer/handlers/auth"
	"garment-designer/middleware"
	registry "garment-designer/sessions"
	"garment-designer/stores/memory"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

type mockPreviewer struct {
	calls     int
	hasActive bool
	err       error
}

func (m *mockPreviewer) RenderPNG(ctx context.Context, canvas designer.Canvas, doc designer.Document, active int64, hasActive bool) ([]byte, error) {
	m.calls++
	m.hasActive = hasActive
	if m.err != nil {
		return nil, m.err
	}
	return []byte("\x89PNG fake"), nil
}

type mockFinisher struct {
	user *core.User
	name string
	err  error
}

func (m *mockFinisher) Finish(ctx context.Context, e *designer.Editor, user *core.User, name string) (string, error) {
	m.user, m.name = user, name
	if m.err != nil {
		return "", m.err
	}
	return "design-1", nil
}

var testCanvas = designer.Canvas{Width: 300, Height: 300, Inset: 0.8}

const offeredSticker = "https://cdn.example.com/star.png"

func newTestRegistry() *registry.Registry {
	reg := registry.NewRegistry(testCanvas, time.Minute)
	reg.AllowSticker = func(uri string) bool { return uri == offeredSticker }
	return reg
}

func newRequest(method, target, body, subject string, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	if subject != "" {
		ctx = middleware.WithClaims(ctx, &auth.AppClaims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
		})
	}
	return req.WithContext(ctx)
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rr.Body.String(), err)
	}
	return body
}

func elementsOf(t *testing.T, body map[string]any) []map[string]any {
	t.Helper()
	raw, ok := body["elements"].([]any)
	if !ok {
		t.Fatalf("Response has no elements array: %v", body)
	}
	out := make([]map[string]any, len(raw))
	for i, el := range raw {
		out[i] = el.(map[string]any)
	}
	return out
}

func TestHandleCreate(t *testing.T) {
	designs := memory.NewStore("http://localhost:3002")
	stored, err := designs.Create(context.Background(), &core.DesignRecord{
		OwnerID:      "user-1",
		Name:         "Saved",
		ElementsJSON: `[{"id":7,"type":"sticker","value":"https://cdn.example.com/star.png","x":5,"y":5,"scale":2,"rotation":0}]`,
		GarmentColor: "#8CCD61",
	})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	testCases := []struct {
		name         string
		body         string
		subject      string
		wantStatus   int
		wantElements int
		wantColor    string
		wantWarning  bool
	}{
		{"empty body", "", "user-1", http.StatusCreated, 0, "#FFFFFF", false},
		{"empty object", "{}", "user-1", http.StatusCreated, 0, "#FFFFFF", false},
		{"from design", `{"designId":"` + stored + `"}`, "user-1", http.StatusCreated, 1, "#8CCD61", false},
		{"from array", `{"elements":[{"id":1,"type":"text","value":"Hi"}],"garmentColor":"#526346"}`, "user-1", http.StatusCreated, 1, "#526346", false},
		{"from string", `{"elements":"[{\"id\":1,\"type\":\"text\",\"value\":\"Hi\"}]"}`, "user-1", http.StatusCreated, 1, "#FFFFFF", false},
		{"malformed elements", `{"elements":"not json"}`, "user-1", http.StatusCreated, 0, "#FFFFFF", true},
		{"unoffered stickers dropped", `{"elements":[{"id":1,"type":"sticker","value":"file:///etc/passwd"},{"id":2,"type":"sticker","value":"http://10.0.0.1/admin"},{"id":3,"type":"text","value":"Hi"}]}`, "user-1", http.StatusCreated, 1, "#FFFFFF", false},
		{"another owner's design", `{"designId":"` + stored + `"}`, "user-2", http.StatusNotFound, 0, "", false},
		{"bad color", `{"garmentColor":"green"}`, "user-1", http.StatusBadRequest, 0, "", false},
		{"bad json", `{`, "user-1", http.StatusBadRequest, 0, "", false},
		{"no user", `{}`, "", http.StatusUnauthorized, 0, "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			reg := newTestRegistry()
			rr := httptest.NewRecorder()
			HandleCreate(reg, designs).ServeHTTP(rr, newRequest(http.MethodPost, "/api/v2/sessions", tc.body, tc.subject, nil))

			if rr.Code != tc.wantStatus {
				t.Fatalf("Status mismatch: got %d, want %d (%s)", rr.Code, tc.wantStatus, rr.Body.String())
			}
			if tc.wantStatus != http.StatusCreated {
				return
			}

			body := decode(t, rr)
			if n := len(elementsOf(t, body)); n != tc.wantElements {
				t.Errorf("Expected %d elements, got %d", tc.wantElements, n)
			}
			if body["garmentColor"] != tc.wantColor {
				t.Errorf("Expected garment %s, got %v", tc.wantColor, body["garmentColor"])
			}
			if _, has := body["warning"]; has != tc.wantWarning {
				t.Errorf("Warning presence mismatch: %v", body)
			}
			if reg.Len() != 1 {
				t.Errorf("Expected one live session, got %d", reg.Len())
			}
		})
	}
}

func TestHandleCreate_FromDesignKeepsID(t *testing.T) {
	designs := memory.NewStore("http://localhost:3002")
	stored, _ := designs.Create(context.Background(), &core.DesignRecord{OwnerID: "user-1", ElementsJSON: "[]"})

	reg := registry.NewRegistry(testCanvas, time.Minute)
	rr := httptest.NewRecorder()
	HandleCreate(reg, designs).ServeHTTP(rr, newRequest(http.MethodPost, "/", `{"designId":"`+stored+`"}`, "user-1", nil))

	if got := decode(t, rr)["designId"]; got != stored {
		t.Errorf("Expected designId %s, got %v", stored, got)
	}
}

func TestHandleElements(t *testing.T) {
	reg := newTestRegistry()
	s := reg.Create("user-1")
	sid := map[string]string{"sid": s.ID}

	rr := httptest.NewRecorder()
	HandleAddElement(reg).ServeHTTP(rr, newRequest(http.MethodPost, "/", `{"type":"text","value":"HELLO","color":"#F75555"}`, "user-1", sid))
	if rr.Code != http.StatusCreated {
		t.Fatalf("Add text failed: %d %s", rr.Code, rr.Body.String())
	}
	textID := int64(decode(t, rr)["id"].(float64))

	for _, body := range []string{
		`{"type":"shape","value":"x"}`,
		`{"type":"text","value":""}`,
		`{"type":"text","value":"x","color":"red"}`,
		`{"type":"sticker","value":"file:///etc/passwd"}`,
		`{"type":"sticker","value":"/tmp/secret.png"}`,
		`{"type":"sticker","value":"http://169.254.169.254/latest/meta-data"}`,
	} {
		rr = httptest.NewRecorder()
		HandleAddElement(reg).ServeHTTP(rr, newRequest(http.MethodPost, "/", body, "user-1", sid))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("Add %s: expected 400, got %d", body, rr.Code)
		}
	}

	rr = httptest.NewRecorder()
	HandleAddElement(reg).ServeHTTP(rr, newRequest(http.MethodPost, "/", `{"type":"sticker","value":"`+offeredSticker+`"}`, "user-1", sid))
	if rr.Code != http.StatusCreated {
		t.Fatalf("Add sticker failed: %d %s", rr.Code, rr.Body.String())
	}

	eid := func(id string) map[string]string {
		return map[string]string{"sid": s.ID, "eid": id}
	}
	textIDStr := jsonNumber(textID)

	rr = httptest.NewRecorder()
	HandleUpdateElement(reg).ServeHTTP(rr, newRequest(http.MethodPatch, "/", `{"scale":5,"rotation":-10,"value":"BYE"}`, "user-1", eid(textIDStr)))
	if rr.Code != http.StatusOK {
		t.Fatalf("Update failed: %d %s", rr.Code, rr.Body.String())
	}
	el := decode(t, rr)
	if el["scale"] != designer.MaxScale || el["value"] != "BYE" || el["color"] != "#F75555" {
		t.Errorf("Unexpected updated element: %v", el)
	}
	if rot := el["rotation"].(float64); rot > -3.14 || rot < -3.15 {
		t.Errorf("Rotation not clamped to -pi: %v", rot)
	}

	updateCases := []struct {
		name       string
		id         string
		body       string
		wantStatus int
	}{
		{"bad id", "abc", `{"scale":1}`, http.StatusBadRequest},
		{"missing element", "999", `{"scale":1}`, http.StatusNotFound},
		{"bad color", textIDStr, `{"color":"#12345"}`, http.StatusBadRequest},
	}
	for _, tc := range updateCases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			HandleUpdateElement(reg).ServeHTTP(rr, newRequest(http.MethodPatch, "/", tc.body, "user-1", eid(tc.id)))
			if rr.Code != tc.wantStatus {
				t.Errorf("Status mismatch: got %d, want %d", rr.Code, tc.wantStatus)
			}
		})
	}

	rr = httptest.NewRecorder()
	HandleRemoveElement(reg).ServeHTTP(rr, newRequest(http.MethodDelete, "/", "", "user-1", eid(textIDStr)))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("Remove failed: %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	HandleRemoveElement(reg).ServeHTTP(rr, newRequest(http.MethodDelete, "/", "", "user-1", eid(textIDStr)))
	if rr.Code != http.StatusNotFound {
		t.Errorf("Second remove: expected 404, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	HandleGet(reg).ServeHTTP(rr, newRequest(http.MethodGet, "/", "", "user-1", sid))
	if n := len(elementsOf(t, decode(t, rr))); n != 1 {
		t.Errorf("Expected one remaining element, got %d", n)
	}
}

func jsonNumber(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestHandleSelectionAndGarment(t *testing.T) {
	reg := registry.NewRegistry(testCanvas, time.Minute)
	s := reg.Create("user-1")
	var id int64
	_ = s.Do(func(e *designer.Editor) error {
		id, _ = e.AddElement(designer.Text{Value: "A"})
		return nil
	})
	sid := map[string]string{"sid": s.ID}

	rr := httptest.NewRecorder()
	HandleSetActive(reg).ServeHTTP(rr, newRequest(http.MethodPut, "/", `{"id":null}`, "user-1", sid))
	if rr.Code != http.StatusOK || decode(t, rr)["activeId"] != nil {
		t.Errorf("Clearing selection failed: %d %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	HandleSetActive(reg).ServeHTTP(rr, newRequest(http.MethodPut, "/", `{"id":`+jsonNumber(id)+`}`, "user-1", sid))
	if got := decode(t, rr)["activeId"]; got != float64(id) {
		t.Errorf("Expected active %d, got %v", id, got)
	}

	rr = httptest.NewRecorder()
	HandleSetActive(reg).ServeHTTP(rr, newRequest(http.MethodPut, "/", `{"id":42}`, "user-1", sid))
	if rr.Code != http.StatusNotFound {
		t.Errorf("Unknown element: expected 404, got %d", rr.Code)
	}

	catalog := assets.DefaultCatalog()
	garmentCases := []struct {
		name       string
		catalog    *assets.Catalog
		color      string
		wantStatus int
	}{
		{"catalog color", catalog, "#999EA1", http.StatusOK},
		{"not offered", catalog, "#123456", http.StatusBadRequest},
		{"no catalog", nil, "#123456", http.StatusOK},
		{"not hex", nil, "grey", http.StatusBadRequest},
	}
	for _, tc := range garmentCases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			HandleSetGarmentColor(reg, tc.catalog).ServeHTTP(rr, newRequest(http.MethodPut, "/", `{"color":"`+tc.color+`"}`, "user-1", sid))
			if rr.Code != tc.wantStatus {
				t.Fatalf("Status mismatch: got %d, want %d", rr.Code, tc.wantStatus)
			}
			if tc.wantStatus == http.StatusOK {
				if got := decode(t, rr)["garmentColor"]; got != tc.color {
					t.Errorf("Expected garment %s, got %v", tc.color, got)
				}
			}
		})
	}
}

func TestHandleDrag(t *testing.T) {
	reg := registry.NewRegistry(testCanvas, time.Minute)
	s := reg.Create("user-1")
	var id int64
	_ = s.Do(func(e *designer.Editor) error {
		id, _ = e.AddElement(designer.Text{Value: "A"})
		e.ClearActive()
		return nil
	})
	sid := map[string]string{"sid": s.ID}
	target := `{"id":` + jsonNumber(id) + `}`

	rr := httptest.NewRecorder()
	HandleDragMove(reg).ServeHTTP(rr, newRequest(http.MethodPost, "/", `{"dx":1,"dy":1}`, "user-1", sid))
	if rr.Code != http.StatusConflict {
		t.Errorf("Move without drag: expected 409, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	HandleDragBegin(reg).ServeHTTP(rr, newRequest(http.MethodPost, "/", target, "user-1", sid))
	body := decode(t, rr)
	if body["gesture"] != "dragging" || body["activeId"] != float64(id) {
		t.Fatalf("Begin drag state mismatch: %v", body)
	}

	rr = httptest.NewRecorder()
	HandleDragBegin(reg).ServeHTTP(rr, newRequest(http.MethodPost, "/", target, "user-1", sid))
	if rr.Code != http.StatusConflict {
		t.Errorf("Second begin: expected 409, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	HandleDragMove(reg).ServeHTTP(rr, newRequest(http.MethodPost, "/", `{"dx":10000,"dy":-20}`, "user-1", sid))
	pos := decode(t, rr)
	if pos["x"] != 70.0 || pos["y"] != -20.0 {
		t.Errorf("Expected clamped (70, -20), got %v", pos)
	}

	rr = httptest.NewRecorder()
	HandleGet(reg).ServeHTTP(rr, newRequest(http.MethodGet, "/", "", "user-1", sid))
	if x := elementsOf(t, decode(t, rr))[0]["x"]; x != 0.0 {
		t.Errorf("Move must not commit, got x=%v", x)
	}

	rr = httptest.NewRecorder()
	HandleDragEnd(reg).ServeHTTP(rr, newRequest(http.MethodPost, "/", "", "user-1", sid))
	body = decode(t, rr)
	el := elementsOf(t, body)[0]
	if el["x"] != 70.0 || el["y"] != -20.0 || body["gesture"] != "idle" {
		t.Errorf("End drag did not commit: %v", body)
	}

	rr = httptest.NewRecorder()
	HandleDragBegin(reg).ServeHTTP(rr, newRequest(http.MethodPost, "/", target, "user-1", sid))
	rr = httptest.NewRecorder()
	HandleDragCancel(reg).ServeHTTP(rr, newRequest(http.MethodPost, "/", "", "user-1", sid))
	if decode(t, rr)["gesture"] != "idle" {
		t.Error("Cancel should return to idle")
	}

	rr = httptest.NewRecorder()
	HandleTap(reg).ServeHTTP(rr, newRequest(http.MethodPost, "/", `{"id":5}`, "user-1", sid))
	if rr.Code != http.StatusNotFound {
		t.Errorf("Tap unknown element: expected 404, got %d", rr.Code)
	}
}

func TestHandlePreview(t *testing.T) {
	reg := registry.NewRegistry(testCanvas, time.Minute)
	s := reg.Create("user-1")
	_ = s.Do(func(e *designer.Editor) error {
		_, err := e.AddElement(designer.Text{Value: "A"})
		return err
	})

	previewer := &mockPreviewer{}
	rr := httptest.NewRecorder()
	HandlePreview(reg, previewer).ServeHTTP(rr, newRequest(http.MethodGet, "/", "", "user-1", map[string]string{"sid": s.ID}))

	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("Unexpected preview response: %d %s", rr.Code, rr.Header().Get("Content-Type"))
	}
	if !previewer.hasActive {
		t.Error("Preview should pass the active element")
	}

	previewer.err = designer.ErrCaptureUnavailable
	rr = httptest.NewRecorder()
	HandlePreview(reg, previewer).ServeHTTP(rr, newRequest(http.MethodGet, "/", "", "user-1", map[string]string{"sid": s.ID}))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rr.Code)
	}
}

func TestHandleFinish(t *testing.T) {
	testCases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"success", nil, http.StatusCreated},
		{"capture unavailable", designer.ErrCaptureUnavailable, http.StatusServiceUnavailable},
		{"upload failed", errors.Join(designer.ErrUploadFailed, errors.New("s3 down")), http.StatusBadGateway},
		{"persist failed", designer.ErrPersistFailed, http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			reg := registry.NewRegistry(testCanvas, time.Minute)
			s := reg.Create("user-1")
			finisher := &mockFinisher{err: tc.err}

			rr := httptest.NewRecorder()
			HandleFinish(reg, finisher).ServeHTTP(rr, newRequest(http.MethodPost, "/", `{"name":"Summer"}`, "user-1", map[string]string{"sid": s.ID}))

			if rr.Code != tc.wantStatus {
				t.Fatalf("Status mismatch: got %d, want %d", rr.Code, tc.wantStatus)
			}
			if finisher.user == nil || finisher.user.Subject != "user-1" || finisher.name != "Summer" {
				t.Errorf("Finisher got user %+v name %q", finisher.user, finisher.name)
			}
			if tc.err == nil {
				if id := decode(t, rr)["id"]; id != "design-1" {
					t.Errorf("Expected id design-1, got %v", id)
				}
				if got := s.Snapshot().DesignID; got != "design-1" {
					t.Errorf("Session should track the finished design, got %q", got)
				}
			}
			if tc.err != nil && tc.wantStatus == http.StatusInternalServerError {
				if msg := decode(t, rr)["error"]; msg != "Failed to finish design" {
					t.Errorf("Internal errors must not leak details, got %v", msg)
				}
			}
		})
	}
}

func TestSessionScopedToOwner(t *testing.T) {
	reg := registry.NewRegistry(testCanvas, time.Minute)
	s := reg.Create("user-1")
	sid := map[string]string{"sid": s.ID}

	rr := httptest.NewRecorder()
	HandleGet(reg).ServeHTTP(rr, newRequest(http.MethodGet, "/", "", "user-2", sid))
	if rr.Code != http.StatusNotFound {
		t.Errorf("Another user: expected 404, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	HandleDelete(reg).ServeHTTP(rr, newRequest(http.MethodDelete, "/", "", "user-2", sid))
	if rr.Code != http.StatusNotFound {
		t.Errorf("Another user delete: expected 404, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	HandleDelete(reg).ServeHTTP(rr, newRequest(http.MethodDelete, "/", "", "user-1", sid))
	if rr.Code != http.StatusNoContent || reg.Len() != 0 {
		t.Errorf("Owner delete failed: %d, %d sessions left", rr.Code, reg.Len())
	}
}
