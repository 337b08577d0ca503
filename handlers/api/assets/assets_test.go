package assets

import (
	"encoding/json"
	"garment-designer/assets"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandleCatalog(t *testing.T) {
	rr := httptest.NewRecorder()
	HandleCatalog(assets.DefaultCatalog()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v2/assets", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("Status mismatch: got %d", rr.Code)
	}
	var got struct {
		Colors []struct {
			HexCode string `json:"hexCode"`
		} `json:"colors"`
		Stickers []any `json:"stickers"`
		Fonts    []struct {
			FontFamily string `json:"fontFamily"`
		} `json:"fonts"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("Failed to decode catalog: %v", err)
	}
	if len(got.Colors) == 0 || got.Colors[0].HexCode != "#FFFFFF" {
		t.Errorf("Unexpected colors: %+v", got.Colors)
	}
	if got.Stickers == nil {
		t.Error("Stickers should be an empty array, not null")
	}
	if len(got.Fonts) == 0 || got.Fonts[0].FontFamily != "Rubik-Regular" {
		t.Errorf("Unexpected fonts: %+v", got.Fonts)
	}
}
