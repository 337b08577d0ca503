package config

import (
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

type Config struct {
	StorageType      string
	ImageStorageType string
	LocalStoragePath string
	DataSourceName   string
	DatabaseURL      string
	PublicBaseURL    string
	JWTSecret        string

	// S3 Storage
	S3Bucket          string
	S3Endpoint        string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3CDNURL          string

	// Canvas
	CanvasWidth      float64
	CanvasHeight     float64
	CanvasInset      float64
	GarmentImagePath string
	AssetCatalogPath string
	StickerDir       string

	FinishTimeout      time.Duration
	SessionIdleTimeout time.Duration
}

func Load() *Config {
	return &Config{
		StorageType:      getEnv("STORAGE_TYPE", "memory"),
		ImageStorageType: getEnv("IMAGE_STORAGE_TYPE", ""),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "./data"),
		DataSourceName:   getEnv("DATA_SOURCE_NAME", "designs.db"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		PublicBaseURL:    getEnv("PUBLIC_BASE_URL", "http://localhost:3002"),
		JWTSecret:        getEnv("JWT_SECRET", ""),

		S3Bucket:          getEnv("S3_BUCKET_NAME", ""),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3Region:          getEnv("S3_REGION", "us-east-1"),
		S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
		S3CDNURL:          getEnv("S3_CDN_URL", ""),

		CanvasWidth:      getFloat("CANVAS_WIDTH", 300),
		CanvasHeight:     getFloat("CANVAS_HEIGHT", 300),
		CanvasInset:      getFloat("CANVAS_INSET", 0.8),
		GarmentImagePath: getEnv("GARMENT_IMAGE_PATH", ""),
		AssetCatalogPath: getEnv("ASSET_CATALOG_PATH", ""),
		StickerDir:       getEnv("STICKER_DIR", ""),

		FinishTimeout:      getDuration("FINISH_TIMEOUT", 30*time.Second),
		SessionIdleTimeout: getDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
	}
}

// ImageStorage returns the backend for design images, which follows the
// design storage unless set explicitly. Postgres cannot hold images, so it
// falls back to the filesystem.
func (c *Config) ImageStorage() string {
	if c.ImageStorageType != "" {
		return c.ImageStorageType
	}
	if c.StorageType == "postgres" {
		return "filesystem"
	}
	return c.StorageType
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		logrus.WithFields(logrus.Fields{"key": key, "value": raw}).Warn("Invalid number in environment, using default")
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		logrus.WithFields(logrus.Fields{"key": key, "value": raw}).Warn("Invalid duration in environment, using default")
		return fallback
	}
	return v
}
