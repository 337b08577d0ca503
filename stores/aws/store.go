package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"garment-designer/core"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

const (
	designPrefix = "designs"
	imagePrefix  = "design-images"
)

// Options configures the S3 store. When AccessKeyID is empty the default
// AWS credential chain is used.
type Options struct {
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// CDNURL is the public prefix images are served from. Defaults to
	// Endpoint/Bucket.
	CDNURL string
}

type s3Store struct {
	s3Client *s3.Client
	bucket   string
	cdnURL   string
}

// NewStore creates a new S3-based store for design records and images.
func NewStore(ctx context.Context, opts Options) (*s3Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("bucket name must be set")
	}

	var client *s3.Client
	if opts.AccessKeyID != "" {
		s3opts := s3.Options{
			Region:       opts.Region,
			Credentials:  credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
			UsePathStyle: true,
		}
		if opts.Endpoint != "" {
			s3opts.BaseEndpoint = aws.String(opts.Endpoint)
		}
		client = s3.New(s3opts)
	} else {
		cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(opts.Region))
		if err != nil {
			return nil, fmt.Errorf("unable to load SDK config, %v", err)
		}
		client = s3.NewFromConfig(cfg, func(o *s3.Options) {
			if opts.Endpoint != "" {
				o.BaseEndpoint = aws.String(opts.Endpoint)
				o.UsePathStyle = true
			}
		})
	}

	cdnURL := opts.CDNURL
	if cdnURL == "" {
		endpoint := opts.Endpoint
		if endpoint == "" {
			endpoint = fmt.Sprintf("https://s3.%s.amazonaws.com", opts.Region)
		}
		cdnURL = fmt.Sprintf("%s/%s", strings.TrimSuffix(endpoint, "/"), opts.Bucket)
	}

	return &s3Store{
		s3Client: client,
		bucket:   opts.Bucket,
		cdnURL:   strings.TrimSuffix(cdnURL, "/"),
	}, nil
}

// designKey scopes a design object under its owner. Neither part may be a
// path.
func designKey(ownerID, id string) (string, error) {
	for _, part := range []string{ownerID, id} {
		if part == "" || part == "." || part == ".." || path.Base(part) != part {
			return "", fmt.Errorf("invalid key part %q: must be a plain name", part)
		}
	}
	return path.Join(designPrefix, ownerID, id+".json"), nil
}

// s3Record is the stored object; the owner id is hidden from API JSON.
type s3Record struct {
	core.DesignRecord
	OwnerID string `json:"ownerId"`
}

// DesignStore implementation
func (s *s3Store) Create(ctx context.Context, record *core.DesignRecord) (string, error) {
	stored := *record
	stored.ID = ulid.Make().String()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	key, err := designKey(stored.OwnerID, stored.ID)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(&s3Record{DesignRecord: stored, OwnerID: stored.OwnerID})
	if err != nil {
		return "", fmt.Errorf("failed to marshal design: %v", err)
	}
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload design: %v", err)
	}

	logrus.WithFields(logrus.Fields{"design_id": stored.ID, "user_id": stored.OwnerID}).Info("Design created successfully")
	return stored.ID, nil
}

func (s *s3Store) List(ctx context.Context, ownerID string) ([]*core.DesignRecord, error) {
	if _, err := designKey(ownerID, "x"); err != nil {
		return nil, err
	}
	log := logrus.WithField("user_id", ownerID)
	prefix := path.Join(designPrefix, ownerID) + "/"

	records := []*core.DesignRecord{}
	paginator := s3.NewListObjectsV2Paginator(s.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list designs for user %s: %v", ownerID, err)
		}
		for _, object := range page.Contents {
			record, err := s.readRecord(ctx, aws.ToString(object.Key))
			if err != nil {
				log.WithError(err).Warnf("Failed to read design object %s, skipping", aws.ToString(object.Key))
				continue
			}
			record.ElementsJSON = ""
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	log.Infof("Listed %d designs", len(records))
	return records, nil
}

func (s *s3Store) Get(ctx context.Context, ownerID, id string) (*core.DesignRecord, error) {
	key, err := designKey(ownerID, id)
	if err != nil {
		return nil, err
	}
	record, err := s.readRecord(ctx, key)
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			logrus.WithFields(logrus.Fields{"user_id": ownerID, "design_id": id}).Warn("Design not found")
			return nil, fmt.Errorf("design with id %s not found: %w", id, core.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get design %s: %w", id, err)
	}
	return record, nil
}

func (s *s3Store) readRecord(ctx context.Context, key string) (*core.DesignRecord, error) {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read design data: %v", err)
	}
	var record s3Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal design data: %v", err)
	}
	record.DesignRecord.OwnerID = record.OwnerID
	return &record.DesignRecord, nil
}

// ImageStore implementation
func (s *s3Store) Upload(ctx context.Context, name, contentType string, data []byte) (string, error) {
	key := fmt.Sprintf("%s/%s%s", imagePrefix, uuid.New().String(), path.Ext(name))

	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		ACL:         s3types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	logrus.WithFields(logrus.Fields{"key": key, "size": len(data)}).Info("Image uploaded successfully")
	return fmt.Sprintf("%s/%s", s.cdnURL, key), nil
}

func (s *s3Store) Delete(ctx context.Context, fileURL string) error {
	key := strings.TrimPrefix(fileURL, s.cdnURL+"/")
	if key == fileURL {
		return fmt.Errorf("image url %s is not served by this bucket", fileURL)
	}

	_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete file %s: %w", key, err)
	}
	return nil
}
