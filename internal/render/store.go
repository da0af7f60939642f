package render

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"mediadiff/internal/config"
)

// ArtifactStore persists rendered files and returns their location.
type ArtifactStore interface {
	Put(ctx context.Context, jobID int64, bucket int, localPath string) (string, error)
	Remove(ctx context.Context, location string) error
}

// NewStore builds the backend selected in [artifacts].
func NewStore(ctx context.Context, cfg *config.Config) (ArtifactStore, error) {
	switch cfg.Artifacts.Backend {
	case config.ArtifactBackendMinIO:
		return NewMinIOStore(ctx, cfg.Artifacts)
	case config.ArtifactBackendLocal, "":
		return NewLocalStore(cfg.Paths.ArtifactDir), nil
	default:
		return nil, fmt.Errorf("unsupported artifact backend %q", cfg.Artifacts.Backend)
	}
}

func objectName(jobID int64, bucket int) string {
	return fmt.Sprintf("job-%d/%06d-%s.png", jobID, bucket, uuid.NewString())
}

// LocalStore keeps artifacts under a directory.
type LocalStore struct {
	dir string
}

// NewLocalStore returns a store rooted at dir.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{dir: dir}
}

// Put copies localPath into the store.
func (s *LocalStore) Put(_ context.Context, jobID int64, bucket int, localPath string) (string, error) {
	dest := filepath.Join(s.dir, filepath.FromSlash(objectName(jobID, bucket)))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create artifact directory: %w", err)
	}
	if err := copyFile(localPath, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// Remove deletes a stored artifact. Locations outside the store are refused.
func (s *LocalStore) Remove(_ context.Context, location string) error {
	rel, err := filepath.Rel(s.dir, location)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("artifact %s is outside %s", location, s.dir)
	}
	if err := os.Remove(location); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open rendered frame: %w", err)
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy artifact: %w", err)
	}
	return out.Close()
}

// MinIOStore uploads artifacts to an S3-compatible bucket.
type MinIOStore struct {
	client *minio.Client
	bucket string
}

// NewMinIOStore connects to the endpoint and creates the bucket if needed.
func NewMinIOStore(ctx context.Context, cfg config.Artifacts) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &MinIOStore{client: client, bucket: cfg.Bucket}, nil
}

// Put uploads localPath and returns the object URL.
func (s *MinIOStore) Put(ctx context.Context, jobID int64, bucket int, localPath string) (string, error) {
	key := objectName(jobID, bucket)
	if _, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: "image/png",
	}); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return s.location(key), nil
}

// Remove deletes an object previously returned by Put.
func (s *MinIOStore) Remove(ctx context.Context, location string) error {
	prefix := s.location("")
	if !strings.HasPrefix(location, prefix) {
		return fmt.Errorf("artifact %s is not in bucket %s", location, s.bucket)
	}
	return s.client.RemoveObject(ctx, s.bucket, strings.TrimPrefix(location, prefix), minio.RemoveObjectOptions{})
}

func (s *MinIOStore) location(key string) string {
	return strings.TrimRight(s.client.EndpointURL().String(), "/") + "/" + s.bucket + "/" + key
}
