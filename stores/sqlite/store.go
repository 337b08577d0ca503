package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"garment-designer/core"
	"log"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	db      *sql.DB
	baseURL string
}

// NewStore creates a new SQLite-based store holding both design records and
// uploaded images.
func NewStore(dataSourceName, baseURL string) *sqliteStore {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		log.Fatalf("failed to open sqlite database: %v", err)
	}

	designTableStmt := `
	CREATE TABLE IF NOT EXISTS designs (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		image_url TEXT NOT NULL,
		elements TEXT NOT NULL,
		garment_color TEXT NOT NULL,
		sticker_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_designs_owner ON designs(owner_id, created_at);`
	if _, err = db.Exec(designTableStmt); err != nil {
		log.Fatalf("failed to create designs table: %v", err)
	}

	imageTableStmt := `CREATE TABLE IF NOT EXISTS images (image_key TEXT PRIMARY KEY, content_type TEXT, data BLOB);`
	if _, err = db.Exec(imageTableStmt); err != nil {
		log.Fatalf("failed to create images table: %v", err)
	}

	return &sqliteStore{db: db, baseURL: baseURL}
}

// Close releases the database handle.
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// DesignStore implementation
func (s *sqliteStore) Create(ctx context.Context, record *core.DesignRecord) (string, error) {
	id := ulid.Make().String()
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	log := logrus.WithFields(logrus.Fields{
		"design_id":   id,
		"user_id":     record.OwnerID,
		"data_length": len(record.ElementsJSON),
	})

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO designs (id, owner_id, name, image_url, elements, garment_color, sticker_count, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		id, record.OwnerID, record.Name, record.ImageURL, record.ElementsJSON, record.GarmentColor, record.StickerCount, createdAt.UTC())
	if err != nil {
		log.WithError(err).Error("Failed to create design")
		return "", err
	}
	log.Info("Design created successfully")
	return id, nil
}

func (s *sqliteStore) List(ctx context.Context, ownerID string) ([]*core.DesignRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, image_url, garment_color, sticker_count, created_at FROM designs WHERE owner_id = ? ORDER BY created_at DESC", ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*core.DesignRecord{}
	for rows.Next() {
		d := core.DesignRecord{OwnerID: ownerID}
		if err := rows.Scan(&d.ID, &d.Name, &d.ImageURL, &d.GarmentColor, &d.StickerCount, &d.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	logrus.WithField("user_id", ownerID).Infof("Listed %d designs", len(records))
	return records, nil
}

func (s *sqliteStore) Get(ctx context.Context, ownerID, id string) (*core.DesignRecord, error) {
	log := logrus.WithFields(logrus.Fields{"user_id": ownerID, "design_id": id})
	d := core.DesignRecord{ID: id, OwnerID: ownerID}
	err := s.db.QueryRowContext(ctx,
		"SELECT name, image_url, elements, garment_color, sticker_count, created_at FROM designs WHERE owner_id = ? AND id = ?", ownerID, id).
		Scan(&d.Name, &d.ImageURL, &d.ElementsJSON, &d.GarmentColor, &d.StickerCount, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Warn("Design with specified ID not found")
			return nil, fmt.Errorf("design with id %s not found: %w", id, core.ErrNotFound)
		}
		log.WithError(err).Error("Failed to retrieve design")
		return nil, err
	}
	log.Info("Design retrieved successfully")
	return &d, nil
}

// ImageStore implementation
func (s *sqliteStore) Upload(ctx context.Context, name, contentType string, data []byte) (string, error) {
	key := core.NewImageKey(name)
	log := logrus.WithFields(logrus.Fields{"key": key, "size": len(data)})

	if _, err := s.db.ExecContext(ctx, "INSERT INTO images (image_key, content_type, data) VALUES (?, ?, ?)", key, contentType, data); err != nil {
		log.WithError(err).Error("Failed to store image")
		return "", err
	}
	log.Info("Image uploaded successfully")
	return core.LocalImageURL(s.baseURL, key), nil
}

func (s *sqliteStore) Delete(ctx context.Context, url string) error {
	key, err := core.LocalImageKey(s.baseURL, url)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, "DELETE FROM images WHERE image_key = ?", key)
	return err
}

// ImageReader implementation
func (s *sqliteStore) Open(ctx context.Context, key string) ([]byte, string, error) {
	var data []byte
	var contentType sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT content_type, data FROM images WHERE image_key = ?", key).Scan(&contentType, &data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", fmt.Errorf("image %s not found: %w", key, core.ErrNotFound)
		}
		return nil, "", err
	}
	return data, contentType.String, nil
}
