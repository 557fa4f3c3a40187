package blob

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	// TranscriptURLExpiry covers transcript reads during rendering.
	TranscriptURLExpiry = 300 * time.Second
	// PlaybackURLExpiry covers thumbnail and video playback.
	PlaybackURLExpiry = 3600 * time.Second
)

// Store is the blob storage boundary. Signed URLs are derived per read and never persisted.
type Store interface {
	Upload(ctx context.Context, objectPath string, data []byte, contentType string) error
	SignedURL(ctx context.Context, objectPath string, expiry time.Duration) (string, error)
	RemovePrefix(ctx context.Context, prefix string) error
}

// Path joins segments under the storage root, e.g.
// Path("remix-engine", "videos", projectID, videoID, "thumbnails", "cinematic-scene.jpg").
func Path(root string, segments ...string) string {
	parts := make([]string, 0, len(segments)+1)
	parts = append(parts, strings.Trim(root, "/"))
	for _, s := range segments {
		parts = append(parts, strings.Trim(s, "/"))
	}
	return path.Join(parts...)
}

// VideoPrefix is the folder holding every object derived from one video.
func VideoPrefix(root, projectID, videoID string) string {
	return Path(root, "videos", projectID, videoID) + "/"
}

func ThumbnailPath(root, projectID, videoID, style string) string {
	return Path(root, "videos", projectID, videoID, "thumbnails", style+".jpg")
}

func TranscriptPath(root, projectID, videoID string) string {
	return Path(root, "videos", projectID, videoID, "transcript.vtt")
}

type MinioStore struct {
	client *miniogo.Client
	bucket string
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

func NewMinioStore(cfg StorageConfig) (*MinioStore, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, miniogo.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// Upload overwrites any existing object at objectPath.
func (s *MinioStore) Upload(ctx context.Context, objectPath string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectPath, bytes.NewReader(data), int64(len(data)), miniogo.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", objectPath, err)
	}
	return nil
}

func (s *MinioStore) SignedURL(ctx context.Context, objectPath string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectPath, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("sign %s: %w", objectPath, err)
	}
	return u.String(), nil
}

func (s *MinioStore) RemovePrefix(ctx context.Context, prefix string) error {
	objects := s.client.ListObjects(ctx, s.bucket, miniogo.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	for rerr := range s.client.RemoveObjects(ctx, s.bucket, objects, miniogo.RemoveObjectsOptions{}) {
		if rerr.Err != nil {
			return fmt.Errorf("remove %s: %w", rerr.ObjectName, rerr.Err)
		}
	}
	return nil
}
