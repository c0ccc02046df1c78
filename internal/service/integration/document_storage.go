package integration

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/RubachokBoss/thesis-service/internal/config"
	"github.com/RubachokBoss/thesis-service/internal/models"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

type Document struct {
	Kind        models.DocumentKind
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type DocumentStorage interface {
	// Put stores doc and returns its object key.
	Put(ctx context.Context, thesisID string, doc *Document) (string, error)
	PresignedURL(ctx context.Context, key string) (string, time.Time, error)
	Delete(ctx context.Context, key string) error
}

type minioDocumentStorage struct {
	client       *minio.Client
	bucket       string
	presignedTTL time.Duration
	logger       zerolog.Logger
}

func NewMinIODocumentStorage(cfg config.StorageConfig, logger zerolog.Logger) (DocumentStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{
			Region: cfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Info().Str("bucket", cfg.BucketName).Msg("Bucket created")
	}

	return &minioDocumentStorage{
		client:       client,
		bucket:       cfg.BucketName,
		presignedTTL: cfg.PresignedTTL,
		logger:       logger,
	}, nil
}

// DocumentKey builds theses/{thesisID}/{kind}/{uuid}{ext}.
func DocumentKey(thesisID string, kind models.DocumentKind, fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	return path.Join("theses", thesisID, string(kind), uuid.New().String()+ext)
}

func (s *minioDocumentStorage) Put(ctx context.Context, thesisID string, doc *Document) (string, error) {
	key := DocumentKey(thesisID, doc.Kind, doc.FileName)

	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, s.bucket, key, doc.Body, doc.Size, minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"thesis-id":     thesisID,
			"original-name": doc.FileName,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", doc.Kind, err)
	}

	s.logger.Info().
		Str("thesis_id", thesisID).
		Str("kind", string(doc.Kind)).
		Str("key", key).
		Int64("size", doc.Size).
		Msg("Document stored")

	return key, nil
}

func (s *minioDocumentStorage) PresignedURL(ctx context.Context, key string) (string, time.Time, error) {
	expiresAt := time.Now().Add(s.presignedTTL)

	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.presignedTTL, nil)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to presign %s: %w", key, err)
	}

	return u.String(), expiresAt, nil
}

func (s *minioDocumentStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
