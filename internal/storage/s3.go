package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/Ivan-vtr/doc-sign-service/internal/domain"
)

// S3Config はS3接続の設定。
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // LocalStack等を使う場合のみ
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

// S3Storage はAWS S3にファイルを保存する。
type S3Storage struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Storage は新しいS3Storageを生成する。
// アクセスキーが未指定の場合はデフォルトの認証情報チェーンを使う。
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS SDK config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
			// S3互換ストレージはチェックサム付きのチャンク転送に対応しないことがある
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		}
	})

	return &S3Storage{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *S3Storage) objectKey(key string) (string, string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", "", err
	}
	if s.prefix == "" {
		return cleaned, cleaned, nil
	}
	return cleaned, s.prefix + "/" + cleaned, nil
}

// Save はオブジェクトをアップロードする。
func (s *S3Storage) Save(ctx context.Context, key string, data []byte) (string, error) {
	cleaned, objKey, err := s.objectKey(key)
	if err != nil {
		return "", err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objKey),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to put object", "operation", "Save", "key", objKey, "error", err)
		return "", fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return cleaned, nil
}

// Read はオブジェクトを取得する。
func (s *S3Storage) Read(ctx context.Context, key string) ([]byte, error) {
	_, objKey, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%w: %s", domain.ErrStorageNotFound, objKey)
		}
		slog.ErrorContext(ctx, "failed to get object", "operation", "Read", "key", objKey, "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading object body: %v", domain.ErrStorage, err)
	}
	return data, nil
}

// Delete はオブジェクトを削除する。
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, objKey, err := s.objectKey(key)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to delete object", "operation", "Delete", "key", objKey, "error", err)
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

// Exists はオブジェクトが存在するかどうかを返す。
func (s *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, objKey, err := s.objectKey(key)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return true, nil
}
