package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"time"

	"github.com/gogotex/collabdocs/internal/config"
	"github.com/gogotex/collabdocs/internal/document"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOStorage archives accepted snapshots in an S3 compatible bucket.
type MinIOStorage struct {
	client *minio.Client
	bucket string
}

// NewMinIOStorage connects and makes sure the bucket exists.
func NewMinIOStorage(ctx context.Context, cfg config.MinIOConfig) (*MinIOStorage, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("minio endpoint not configured")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	s := &MinIOStorage{client: mc, bucket: cfg.Bucket}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		exists, xerr := mc.BucketExists(ctx, s.bucket)
		if xerr != nil || !exists {
			return nil, fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return s, nil
}

// SnapshotKey is the object key of the snapshot of id taken at version.
func SnapshotKey(id document.ID, version int64) string {
	return snapshotPrefix(id) + strconv.FormatInt(version, 10) + ".json"
}

// snapshotPrefix holds every archived snapshot of id.
func snapshotPrefix(id document.ID) string {
	return path.Join("snapshots", id.String()) + "/"
}

func (s *MinIOStorage) ArchiveSnapshot(ctx context.Context, id document.ID, version int64, content []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, SnapshotKey(id, version), bytes.NewReader(content), int64(len(content)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("put %s: %w", SnapshotKey(id, version), err)
	}
	return nil
}

// DeleteSnapshots removes every archived snapshot of id.
func (s *MinIOStorage) DeleteSnapshots(ctx context.Context, id document.ID) error {
	prefix := snapshotPrefix(id)
	listErr := make(chan error, 1)
	objects := make(chan minio.ObjectInfo)
	go func() {
		defer close(objects)
		defer close(listErr)
		for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
			if obj.Err != nil {
				listErr <- fmt.Errorf("list %s: %w", prefix, obj.Err)
				return
			}
			select {
			case objects <- obj:
			case <-ctx.Done():
				return
			}
		}
	}()

	var errs []error
	for rerr := range s.client.RemoveObjects(ctx, s.bucket, objects, minio.RemoveObjectsOptions{}) {
		errs = append(errs, fmt.Errorf("remove %s: %w", rerr.ObjectName, rerr.Err))
	}
	if err := <-listErr; err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Ping reports whether the bucket is reachable.
func (s *MinIOStorage) Ping(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %s missing", s.bucket)
	}
	return nil
}
