package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"garment-designer/core"
	"log"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

type fsStore struct {
	basePath string
	baseURL  string
}

// NewStore creates a new filesystem-based store. Designs are kept as JSON
// files under basePath/designs/<owner>/ and images under basePath/images/.
func NewStore(basePath, baseURL string) *fsStore {
	for _, dir := range []string{"designs", "images"} {
		if err := os.MkdirAll(filepath.Join(basePath, dir), 0755); err != nil {
			log.Fatalf("failed to create %s directory: %v", dir, err)
		}
	}
	return &fsStore{basePath: basePath, baseURL: baseURL}
}

// safeJoin joins name under dir and refuses anything escaping it.
func safeJoin(dir, name string) (string, error) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid path: access denied")
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(absPath, absDir+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid path: access denied")
	}
	return absPath, nil
}

func (s *fsStore) ownerPath(ownerID string) (string, error) {
	return safeJoin(filepath.Join(s.basePath, "designs"), ownerID)
}

// DesignStore implementation
func (s *fsStore) Create(ctx context.Context, record *core.DesignRecord) (string, error) {
	ownerPath, err := s.ownerPath(record.OwnerID)
	if err != nil {
		return "", err
	}

	stored := *record
	stored.ID = ulid.Make().String()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	filePath := filepath.Join(ownerPath, stored.ID+".json")
	log := logrus.WithFields(logrus.Fields{
		"design_id": stored.ID,
		"user_id":   stored.OwnerID,
		"file_path": filePath,
	})

	if err := os.MkdirAll(ownerPath, 0755); err != nil {
		log.WithError(err).Error("Failed to create user directory")
		return "", err
	}
	data, err := json.Marshal(&fileRecord{DesignRecord: stored, OwnerID: stored.OwnerID})
	if err != nil {
		log.WithError(err).Error("Failed to marshal design")
		return "", err
	}

	// Write to a temp file first so a record is never half written.
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.WithError(err).Error("Failed to write design file")
		return "", err
	}
	if err := os.Rename(tmp, filePath); err != nil {
		os.Remove(tmp)
		log.WithError(err).Error("Failed to commit design file")
		return "", err
	}

	log.Info("Design created successfully")
	return stored.ID, nil
}

func (s *fsStore) List(ctx context.Context, ownerID string) ([]*core.DesignRecord, error) {
	ownerPath, err := s.ownerPath(ownerID)
	if err != nil {
		return nil, err
	}
	log := logrus.WithField("user_id", ownerID).WithField("path", ownerPath)

	files, err := os.ReadDir(ownerPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info("User directory does not exist, returning empty list.")
			return []*core.DesignRecord{}, nil
		}
		log.WithError(err).Error("Failed to read user directory")
		return nil, err
	}

	records := make([]*core.DesignRecord, 0, len(files))
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		record, err := readRecord(filepath.Join(ownerPath, file.Name()))
		if err != nil {
			log.WithError(err).Warnf("Failed to read design file %s, skipping", file.Name())
			continue
		}
		// The listing does not carry element data.
		record.ElementsJSON = ""
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	log.Infof("Listed %d designs", len(records))
	return records, nil
}

func (s *fsStore) Get(ctx context.Context, ownerID, id string) (*core.DesignRecord, error) {
	ownerPath, err := s.ownerPath(ownerID)
	if err != nil {
		return nil, err
	}
	filePath, err := safeJoin(ownerPath, id+".json")
	if err != nil {
		return nil, err
	}
	log := logrus.WithFields(logrus.Fields{"user_id": ownerID, "design_id": id, "path": filePath})

	record, err := readRecord(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("Design file not found")
			return nil, fmt.Errorf("design with id %s not found: %w", id, core.ErrNotFound)
		}
		log.WithError(err).Error("Failed to read design file")
		return nil, err
	}

	log.Info("Design retrieved successfully")
	return record, nil
}

// fileRecord is the on-disk shape; the owner id is hidden from API JSON.
type fileRecord struct {
	core.DesignRecord
	OwnerID string `json:"ownerId"`
}

func readRecord(filePath string) (*core.DesignRecord, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var record fileRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	record.DesignRecord.OwnerID = record.OwnerID
	return &record.DesignRecord, nil
}

// ImageStore implementation
func (s *fsStore) imagePath(key string) (string, error) {
	return safeJoin(filepath.Join(s.basePath, "images"), key)
}

func (s *fsStore) Upload(ctx context.Context, name, contentType string, data []byte) (string, error) {
	key := core.NewImageKey(name)
	filePath, err := s.imagePath(key)
	if err != nil {
		return "", err
	}
	log := logrus.WithFields(logrus.Fields{"key": key, "file_path": filePath, "size": len(data)})

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		log.WithError(err).Error("Failed to write image file")
		return "", err
	}

	log.Info("Image uploaded successfully")
	return core.LocalImageURL(s.baseURL, key), nil
}

func (s *fsStore) Delete(ctx context.Context, url string) error {
	key, err := core.LocalImageKey(s.baseURL, url)
	if err != nil {
		return err
	}
	filePath, err := s.imagePath(key)
	if err != nil {
		return err
	}
	log := logrus.WithFields(logrus.Fields{"key": key, "file_path": filePath})

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			log.Warn("Image file not found for deletion, considered successful.")
			return nil
		}
		log.WithError(err).Error("Failed to delete image file")
		return err
	}

	log.Info("Image deleted successfully")
	return nil
}

// ImageReader implementation
func (s *fsStore) Open(ctx context.Context, key string) ([]byte, string, error) {
	filePath, err := s.imagePath(key)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("image %s not found: %w", key, core.ErrNotFound)
		}
		return nil, "", err
	}
	return data, mime.TypeByExtension(filepath.Ext(key)), nil
}
