package memory

import (
	"context"
	"errors"
	"garment-designer/core"
	"strings"
	"sync"
	"testing"
	"time"
)

const testBaseURL = "http://localhost:3002"

func TestCreate_Success(t *testing.T) {
	store := NewStore(testBaseURL)
	ctx := context.Background()

	id, err := store.Create(ctx, &core.DesignRecord{
		OwnerID:      "user-1",
		Name:         "Summer",
		ImageURL:     "http://localhost:3002/files/a.png",
		ElementsJSON: `[{"id":1,"type":"text","value":"hi"}]`,
		GarmentColor: "#FFFFFF",
	})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	// ULIDs are 26 characters.
	if len(id) != 26 {
		t.Errorf("Create() returned invalid ID length: got %d, want 26", len(id))
	}

	got, err := store.Get(ctx, "user-1", id)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Name != "Summer" || got.ElementsJSON == "" || got.CreatedAt.IsZero() {
		t.Errorf("Get() returned unexpected record: %+v", got)
	}
}

func TestCreate_RequiresOwner(t *testing.T) {
	store := NewStore(testBaseURL)
	if _, err := store.Create(context.Background(), &core.DesignRecord{Name: "x"}); err == nil {
		t.Error("Expected an error for a record without owner")
	}
}

func TestGet_ScopedToOwner(t *testing.T) {
	store := NewStore(testBaseURL)
	ctx := context.Background()
	id, _ := store.Create(ctx, &core.DesignRecord{OwnerID: "user-1", Name: "mine"})

	_, err := store.Get(ctx, "user-2", id)
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for another owner, got %v", err)
	}
	if _, err := store.Get(ctx, "user-1", "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestList_NewestFirstWithoutData(t *testing.T) {
	store := NewStore(testBaseURL)
	ctx := context.Background()
	base := time.Now()
	for i, name := range []string{"old", "new", "middle"} {
		offsets := []time.Duration{0, 2 * time.Hour, time.Hour}
		_, err := store.Create(ctx, &core.DesignRecord{
			OwnerID:      "user-1",
			Name:         name,
			ElementsJSON: "[]",
			CreatedAt:    base.Add(offsets[i]),
		})
		if err != nil {
			t.Fatalf("Create() failed: %v", err)
		}
	}
	_, _ = store.Create(ctx, &core.DesignRecord{OwnerID: "user-2", Name: "other"})

	list, err := store.List(ctx, "user-1")
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("Expected 3 designs, got %d", len(list))
	}
	want := []string{"new", "middle", "old"}
	for i, d := range list {
		if d.Name != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, d.Name, want[i])
		}
		if d.ElementsJSON != "" {
			t.Errorf("List() should omit element data, got %q", d.ElementsJSON)
		}
	}

	empty, err := store.List(ctx, "nobody")
	if err != nil || len(empty) != 0 {
		t.Errorf("List() for unknown owner = %v, %v", empty, err)
	}
}

func TestImages_UploadOpenDelete(t *testing.T) {
	store := NewStore(testBaseURL)
	ctx := context.Background()

	url, err := store.Upload(ctx, "design-user-1-1700000000000.png", "image/png", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("Upload() failed: %v", err)
	}
	if !strings.HasPrefix(url, testBaseURL+"/files/") || !strings.HasSuffix(url, "design-user-1-1700000000000.png") {
		t.Errorf("Unexpected image url: %s", url)
	}

	key, _ := core.LocalImageKey(testBaseURL, url)
	data, contentType, err := store.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if string(data) != "png-bytes" || contentType != "image/png" {
		t.Errorf("Open() = %q, %q", data, contentType)
	}

	if err := store.Delete(ctx, url); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, _, err := store.Open(ctx, key); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, "https://elsewhere.example.com/a.png"); err == nil {
		t.Error("Expected an error for a foreign url")
	}
}

func TestConcurrentAccess(t *testing.T) {
	store := NewStore(testBaseURL)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := store.Create(ctx, &core.DesignRecord{OwnerID: "user-1"})
			if err != nil {
				t.Errorf("Create() failed: %v", err)
				return
			}
			if _, err := store.Get(ctx, "user-1", id); err != nil {
				t.Errorf("Get() failed: %v", err)
			}
			_, _ = store.Upload(ctx, "a.png", "image/png", []byte("x"))
		}()
	}
	wg.Wait()

	list, _ := store.List(ctx, "user-1")
	if len(list) != 20 {
		t.Errorf("Expected 20 designs, got %d", len(list))
	}
}
