package stores

import (
	"context"
	"garment-designer/config"
	"garment-designer/core"
	"garment-designer/stores/aws"
	"garment-designer/stores/filesystem"
	"garment-designer/stores/memory"
	"garment-designer/stores/postgres"
	"garment-designer/stores/sqlite"
	"time"

	"github.com/sirupsen/logrus"
)

// ImageStore is a union of upload and, for self-served backends, read access.
// Reader is nil when images are served from elsewhere (S3/CDN).
type ImageStore struct {
	core.ImageStore
	Reader core.ImageReader
}

// Stores holds the design and image backends chosen by configuration. A
// backend that can do both is shared.
type Stores struct {
	Designs core.DesignStore
	Images  ImageStore
}

type localStore interface {
	core.DesignStore
	core.ImageStore
	core.ImageReader
}

type bucketStore interface {
	core.DesignStore
	core.ImageStore
}

func GetStores(cfg *config.Config) Stores {
	var s Stores
	shared := make(map[string]localStore)

	local := func(kind string) localStore {
		if st, ok := shared[kind]; ok {
			return st
		}
		var st localStore
		switch kind {
		case "filesystem":
			st = filesystem.NewStore(cfg.LocalStoragePath, cfg.PublicBaseURL)
		case "sqlite":
			st = sqlite.NewStore(cfg.DataSourceName, cfg.PublicBaseURL)
		default:
			st = memory.NewStore(cfg.PublicBaseURL)
		}
		shared[kind] = st
		return st
	}

	var bucket bucketStore
	s3Store := func() bucketStore {
		if bucket != nil {
			return bucket
		}
		if cfg.S3Bucket == "" {
			logrus.Fatal("S3_BUCKET_NAME environment variable must be set for s3 storage type")
		}
		st, err := aws.NewStore(context.Background(), aws.Options{
			Bucket:          cfg.S3Bucket,
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			CDNURL:          cfg.S3CDNURL,
		})
		if err != nil {
			logrus.Fatalf("Failed to create s3 store: %v", err)
		}
		bucket = st
		return st
	}

	designField := logrus.Fields{"storageType": cfg.StorageType}
	switch cfg.StorageType {
	case "filesystem", "sqlite":
		s.Designs = local(cfg.StorageType)
	case "postgres":
		if cfg.DatabaseURL == "" {
			logrus.Fatal("DATABASE_URL environment variable must be set for postgres storage type")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		st, err := postgres.NewStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logrus.Fatalf("Failed to create postgres store: %v", err)
		}
		s.Designs = st
	case "s3":
		s.Designs = s3Store()
		designField["bucketName"] = cfg.S3Bucket
	default:
		s.Designs = local("memory")
		designField["storageType"] = "in-memory"
	}
	logrus.WithFields(designField).Info("Use design storage")

	imageKind := cfg.ImageStorage()
	imageField := logrus.Fields{"storageType": imageKind}
	switch imageKind {
	case "s3":
		s.Images = ImageStore{ImageStore: s3Store()}
		imageField["bucketName"] = cfg.S3Bucket
	case "filesystem", "sqlite":
		st := local(imageKind)
		s.Images = ImageStore{ImageStore: st, Reader: st}
	default:
		st := local("memory")
		s.Images = ImageStore{ImageStore: st, Reader: st}
		imageField["storageType"] = "in-memory"
	}
	logrus.WithFields(imageField).Info("Use image storage")
	return s
}
