package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/docledger/docledger/internal/resilience"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig holds MinIO connection configuration. Region is set explicitly
// so presigning never needs a bucket-location round trip.
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
}

// MinIOStorage is a thin wrapper around the minio client. Version content is
// uploaded by clients directly; the service only presigns reads and removes
// objects when a document is purged.
type MinIOStorage struct {
	client *minio.Client
	bucket string
	exec   *resilience.Executor
}

// NewMinIOStorage creates the client without contacting the server.
func NewMinIOStorage(cfg *MinIOConfig, exec *resilience.Executor) (*MinIOStorage, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio config missing")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	return &MinIOStorage{client: mc, bucket: cfg.Bucket, exec: exec}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *MinIOStorage) EnsureBucket(ctx context.Context) error {
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		exist, xerr := s.client.BucketExists(ctx, s.bucket)
		if xerr != nil || !exist {
			return fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return nil
}

// Presign returns a presigned GET URL valid for the given duration.
func (s *MinIOStorage) Presign(ctx context.Context, key string, expires time.Duration) (string, error) {
	reqParams := make(url.Values)
	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, key, expires, reqParams)
	if err != nil {
		return "", err
	}
	return presigned.String(), nil
}

// Remove deletes the given objects. Missing objects are not an error.
func (s *MinIOStorage) Remove(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.exec.Execute(ctx, "minio.remove", func(ctx context.Context) error {
		objects := make(chan minio.ObjectInfo, len(keys))
		for _, k := range keys {
			objects <- minio.ObjectInfo{Key: k}
		}
		close(objects)
		var errs []error
		for rerr := range s.client.RemoveObjects(ctx, s.bucket, objects, minio.RemoveObjectsOptions{}) {
			if minio.ToErrorResponse(rerr.Err).Code == "NoSuchKey" {
				continue
			}
			errs = append(errs, fmt.Errorf("remove %s: %w", rerr.ObjectName, rerr.Err))
		}
		return errors.Join(errs...)
	}, resilience.Transient)
}
