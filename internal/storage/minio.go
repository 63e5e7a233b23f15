package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Ivan-vtr/doc-sign-service/internal/domain"
)

// MinioConfig はMinIO接続の設定。
type MinioConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
	Region          string
}

// MinioStorage はMinIOのバケットにファイルを保存する。
type MinioStorage struct {
	client *minio.Client
	bucket string
}

// NewMinioStorage は新しいMinioStorageを生成する。バケットがなければ作成する。
func NewMinioStorage(ctx context.Context, cfg MinioConfig) (*MinioStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("creating bucket %s: %w", cfg.Bucket, err)
		}
		slog.InfoContext(ctx, "minio bucket created", "bucket", cfg.Bucket)
	}

	return &MinioStorage{client: client, bucket: cfg.Bucket}, nil
}

// Save はオブジェクトをアップロードする。
func (s *MinioStorage) Save(ctx context.Context, key string, data []byte) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	_, err = s.client.PutObject(ctx, s.bucket, cleaned, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to put object", "operation", "Save", "key", cleaned, "error", err)
		return "", fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return cleaned, nil
}

// Read はオブジェクトを取得する。
func (s *MinioStorage) Read(ctx context.Context, key string) ([]byte, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, cleaned, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.wrapErr(ctx, "Read", cleaned, err)
	}
	defer obj.Close()

	// GetObjectは遅延評価のため、NoSuchKeyは読み込み時に判明する
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.wrapErr(ctx, "Read", cleaned, err)
	}
	return data, nil
}

// Delete はオブジェクトを削除する。
func (s *MinioStorage) Delete(ctx context.Context, key string) error {
	cleaned, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, cleaned, minio.RemoveObjectOptions{}); err != nil {
		return s.wrapErr(ctx, "Delete", cleaned, err)
	}
	return nil
}

// Exists はオブジェクトが存在するかどうかを返す。
func (s *MinioStorage) Exists(ctx context.Context, key string) (bool, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return false, err
	}
	_, err = s.client.StatObject(ctx, s.bucket, cleaned, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return true, nil
}

func (s *MinioStorage) wrapErr(ctx context.Context, operation, key string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: %s", domain.ErrStorageNotFound, key)
	}
	slog.ErrorContext(ctx, "minio operation failed", "operation", operation, "key", key, "error", err)
	return fmt.Errorf("%w: %v", domain.ErrStorage, err)
}
