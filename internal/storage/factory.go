package storage

import (
	"context"
	"fmt"
)

// Options はバックエンド選択のための設定。
type Options struct {
	Backend   string // local | s3 | minio
	MediaRoot string
	S3        S3Config
	Minio     MinioConfig
}

// New は設定に応じたFileStorageを生成する。wrapperが指定された場合は暗号化デコレータで包む。
func New(ctx context.Context, opts Options, wrapper KeyWrapper) (FileStorage, error) {
	var (
		base FileStorage
		err  error
	)
	switch opts.Backend {
	case "", "local":
		base, err = NewLocalStorage(opts.MediaRoot)
	case "s3":
		base, err = NewS3Storage(ctx, opts.S3)
	case "minio":
		base, err = NewMinioStorage(ctx, opts.Minio)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", opts.Backend)
	}
	if err != nil {
		return nil, err
	}

	if wrapper != nil {
		return NewEncryptedStorage(base, wrapper), nil
	}
	return base, nil
}
