package memory

import (
	"context"
	"fmt"
	"garment-designer/core"
	"mime"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

type image struct {
	data        []byte
	contentType string
}

// memStore implements DesignStore, ImageStore and ImageReader in memory.
type memStore struct {
	baseURL string

	mu sync.RWMutex
	// designs is keyed by owner id, then design id.
	designs map[string]map[string]*core.DesignRecord
	images  map[string]image
}

// NewStore creates a new in-memory store. Uploaded images are served under
// baseURL/files/.
func NewStore(baseURL string) *memStore {
	return &memStore{
		baseURL: baseURL,
		designs: make(map[string]map[string]*core.DesignRecord),
		images:  make(map[string]image),
	}
}

// Create stores a new design record. Part of the DesignStore interface.
func (s *memStore) Create(ctx context.Context, record *core.DesignRecord) (string, error) {
	if record.OwnerID == "" {
		return "", fmt.Errorf("owner id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *record
	stored.ID = ulid.Make().String()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	owned, ok := s.designs[stored.OwnerID]
	if !ok {
		owned = make(map[string]*core.DesignRecord)
		s.designs[stored.OwnerID] = owned
	}
	owned[stored.ID] = &stored

	logrus.WithFields(logrus.Fields{
		"design_id":   stored.ID,
		"user_id":     stored.OwnerID,
		"data_length": len(stored.ElementsJSON),
	}).Info("Design created successfully")
	return stored.ID, nil
}

// List returns the owner's designs without their element data. Part of the
// DesignStore interface.
func (s *memStore) List(ctx context.Context, ownerID string) ([]*core.DesignRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owned := s.designs[ownerID]
	records := make([]*core.DesignRecord, 0, len(owned))
	for _, d := range owned {
		listed := *d
		listed.ElementsJSON = ""
		records = append(records, &listed)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	logrus.WithField("user_id", ownerID).Infof("Listed %d designs", len(records))
	return records, nil
}

// Get returns a single design, ensuring it belongs to the owner. Part of the
// DesignStore interface.
func (s *memStore) Get(ctx context.Context, ownerID, id string) (*core.DesignRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := logrus.WithFields(logrus.Fields{"user_id": ownerID, "design_id": id})
	d, ok := s.designs[ownerID][id]
	if !ok {
		log.Warn("Design not found for user")
		return nil, fmt.Errorf("design with id %s not found: %w", id, core.ErrNotFound)
	}

	log.Info("Design retrieved successfully")
	found := *d
	return &found, nil
}

// Upload keeps the image in memory. Part of the ImageStore interface.
func (s *memStore) Upload(ctx context.Context, name, contentType string, data []byte) (string, error) {
	key := core.NewImageKey(name)

	s.mu.Lock()
	s.images[key] = image{data: append([]byte(nil), data...), contentType: contentType}
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{"key": key, "size": len(data)}).Info("Image uploaded successfully")
	return core.LocalImageURL(s.baseURL, key), nil
}

// Delete removes an uploaded image. Part of the ImageStore interface.
func (s *memStore) Delete(ctx context.Context, url string) error {
	key, err := core.LocalImageKey(s.baseURL, url)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.images[key]; !ok {
		return fmt.Errorf("image %s not found: %w", key, core.ErrNotFound)
	}
	delete(s.images, key)
	logrus.WithField("key", key).Info("Image deleted successfully")
	return nil
}

// Open returns a stored image. Part of the ImageReader interface.
func (s *memStore) Open(ctx context.Context, key string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	img, ok := s.images[key]
	if !ok {
		return nil, "", fmt.Errorf("image %s not found: %w", key, core.ErrNotFound)
	}
	contentType := img.contentType
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(key))
	}
	return img.data, contentType, nil
}
