package core

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrNotFound is wrapped by stores when a record or image does not exist.
var ErrNotFound = errors.New("not found")

type (
	// DesignRecord is a finished custom design as persisted for its owner.
	DesignRecord struct {
		ID           string    `json:"id"`
		OwnerID      string    `json:"-"` // Scoping key, never exposed.
		Name         string    `json:"name"`
		ImageURL     string    `json:"imageUrl"`
		ElementsJSON string    `json:"designData,omitempty"` // Omitted in list views.
		GarmentColor string    `json:"shirtColor"`
		StickerCount int       `json:"stickerCount"` // Kept so listings can be priced without element data.
		CreatedAt    time.Time `json:"createdAt"`
	}

	// DesignStore is the document-persistence collaborator.
	// All reads are scoped to an owner.
	DesignStore interface {
		// Create writes a new record and returns its id. The record is written
		// whole or not at all.
		Create(ctx context.Context, record *DesignRecord) (string, error)

		// List returns the owner's designs, newest first. ElementsJSON is left
		// empty to keep the listing light.
		List(ctx context.Context, ownerID string) ([]*DesignRecord, error)

		// Get returns a single design, ensuring it belongs to the owner.
		Get(ctx context.Context, ownerID, id string) (*DesignRecord, error)
	}

	// ImageStore is the file-storage collaborator for rasterized previews.
	ImageStore interface {
		// Upload stores data and returns a stable URL it can be fetched from.
		Upload(ctx context.Context, name, contentType string, data []byte) (string, error)

		// Delete removes a previously uploaded image by its URL.
		Delete(ctx context.Context, url string) error
	}

	// ImageReader is implemented by image stores that serve their own files
	// (everything except S3, which hands out CDN URLs).
	ImageReader interface {
		Open(ctx context.Context, key string) (data []byte, contentType string, err error)
	}
)

// NewImageKey returns a unique storage key for an uploaded image name.
func NewImageKey(name string) string {
	return ulid.Make().String() + "-" + path.Base(name)
}

// LocalImageURL is the public URL of an image served by this process.
func LocalImageURL(baseURL, key string) string {
	return strings.TrimSuffix(baseURL, "/") + "/files/" + key
}

// LocalImageKey recovers the storage key from a URL built by LocalImageURL.
func LocalImageKey(baseURL, url string) (string, error) {
	prefix := strings.TrimSuffix(baseURL, "/") + "/files/"
	key := strings.TrimPrefix(url, prefix)
	if key == url || key == "" || path.Base(key) != key {
		return "", fmt.Errorf("image url %s is not served by this store", url)
	}
	return key, nil
}
