package sqlite

import (
	"context"
	"errors"
	"garment-designer/core"
	"path/filepath"
	"testing"
	"time"
)

const testBaseURL = "http://localhost:3002"

func newTestStore(t *testing.T) *sqliteStore {
	t.Helper()
	store := NewStore(filepath.Join(t.TempDir(), "test.db"), testBaseURL)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestDesigns_CreateGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, &core.DesignRecord{
		OwnerID:      "user-1",
		Name:         "Custom Design - 2024-01-01",
		ImageURL:     testBaseURL + "/files/a.png",
		ElementsJSON: `[{"id":1,"type":"text","value":"HELLO"}]`,
		GarmentColor: "#1E3A8A",
	})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if len(id) != 26 {
		t.Errorf("Create() returned invalid ID length: got %d, want 26", len(id))
	}

	got, err := store.Get(ctx, "user-1", id)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.ElementsJSON != `[{"id":1,"type":"text","value":"HELLO"}]` || got.GarmentColor != "#1E3A8A" {
		t.Errorf("Get() returned unexpected record: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	if _, err := store.Get(ctx, "user-2", id); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for another owner, got %v", err)
	}
}

func TestDesigns_ListNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	older, _ := store.Create(ctx, &core.DesignRecord{OwnerID: "user-1", Name: "older", ElementsJSON: "[]", StickerCount: 3, CreatedAt: base})
	newer, _ := store.Create(ctx, &core.DesignRecord{OwnerID: "user-1", Name: "newer", ElementsJSON: "[]", CreatedAt: base.Add(time.Hour)})
	_, _ = store.Create(ctx, &core.DesignRecord{OwnerID: "user-2", Name: "other", ElementsJSON: "[]", CreatedAt: base})

	list, err := store.List(ctx, "user-1")
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != newer || list[1].ID != older {
		t.Fatalf("List() order mismatch: %+v", list)
	}
	if list[1].StickerCount != 3 || list[0].StickerCount != 0 {
		t.Errorf("List() sticker counts mismatch: %d, %d", list[0].StickerCount, list[1].StickerCount)
	}
	if list[0].ElementsJSON != "" {
		t.Error("List() should omit element data")
	}
}

func TestImages_UploadOpenDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	url, err := store.Upload(ctx, "design.png", "image/png", []byte{0x89, 'P', 'N', 'G'})
	if err != nil {
		t.Fatalf("Upload() failed: %v", err)
	}
	key, err := core.LocalImageKey(testBaseURL, url)
	if err != nil {
		t.Fatalf("Unexpected url %s: %v", url, err)
	}

	data, contentType, err := store.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if len(data) != 4 || contentType != "image/png" {
		t.Errorf("Open() = %v, %q", data, contentType)
	}

	if err := store.Delete(ctx, url); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, _, err := store.Open(ctx, key); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}
