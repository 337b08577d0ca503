package postgres

import (
	"context"
	"errors"
	"fmt"
	"garment-designer/core"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// pgStore is a DesignStore backed by PostgreSQL. Images live elsewhere.
type pgStore struct {
	pool *pgxpool.Pool
}

// NewStore connects to databaseURL and creates the schema if needed.
func NewStore(ctx context.Context, databaseURL string) (*pgStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &pgStore{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *pgStore) Close() {
	s.pool.Close()
}

func (s *pgStore) Migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS designs (
			id VARCHAR(26) PRIMARY KEY,
			owner_id TEXT NOT NULL,
			name TEXT NOT NULL,
			image_url TEXT NOT NULL,
			elements JSONB NOT NULL DEFAULT '[]'::jsonb,
			garment_color VARCHAR(9) NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);

		ALTER TABLE designs ADD COLUMN IF NOT EXISTS sticker_count INTEGER NOT NULL DEFAULT 0;

		CREATE INDEX IF NOT EXISTS idx_designs_owner_created ON designs(owner_id, created_at DESC);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *pgStore) Create(ctx context.Context, record *core.DesignRecord) (string, error) {
	id := ulid.Make().String()
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	elements := record.ElementsJSON
	if elements == "" {
		elements = "[]"
	}
	log := logrus.WithFields(logrus.Fields{
		"design_id":   id,
		"user_id":     record.OwnerID,
		"data_length": len(elements),
	})

	_, err := s.pool.Exec(ctx, `
		INSERT INTO designs (id, owner_id, name, image_url, elements, garment_color, sticker_count, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8)
	`, id, record.OwnerID, record.Name, record.ImageURL, elements, record.GarmentColor, record.StickerCount, createdAt)
	if err != nil {
		log.WithError(err).Error("Failed to create design")
		return "", err
	}

	log.Info("Design created successfully")
	return id, nil
}

func (s *pgStore) List(ctx context.Context, ownerID string) ([]*core.DesignRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, image_url, garment_color, sticker_count, created_at
		FROM designs WHERE owner_id = $1
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*core.DesignRecord{}
	for rows.Next() {
		d := &core.DesignRecord{OwnerID: ownerID}
		if err := rows.Scan(&d.ID, &d.Name, &d.ImageURL, &d.GarmentColor, &d.StickerCount, &d.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	logrus.WithField("user_id", ownerID).Infof("Listed %d designs", len(records))
	return records, nil
}

func (s *pgStore) Get(ctx context.Context, ownerID, id string) (*core.DesignRecord, error) {
	log := logrus.WithFields(logrus.Fields{"user_id": ownerID, "design_id": id})
	d := &core.DesignRecord{ID: id, OwnerID: ownerID}
	err := s.pool.QueryRow(ctx, `
		SELECT name, image_url, elements::text, garment_color, sticker_count, created_at
		FROM designs WHERE owner_id = $1 AND id = $2
	`, ownerID, id).Scan(&d.Name, &d.ImageURL, &d.ElementsJSON, &d.GarmentColor, &d.StickerCount, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			log.Warn("Design with specified ID not found")
			return nil, fmt.Errorf("design with id %s not found: %w", id, core.ErrNotFound)
		}
		log.WithError(err).Error("Failed to retrieve design")
		return nil, err
	}

	log.Info("Design retrieved successfully")
	return d, nil
}
