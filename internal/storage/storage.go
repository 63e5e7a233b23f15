// Package storage はファイルストレージの実装を提供する。
// パスは "documents/{document_id}/..." 形式の論理キーとして扱う。
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/Ivan-vtr/doc-sign-service/internal/domain"
)

// FileStorage はバイト列の読み書きのインターフェース。
type FileStorage interface {
	Save(ctx context.Context, key string, data []byte) (string, error)
	Read(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// cleanKey は論理キーを正規化し、ルート外を指すキーを拒否する。
func cleanKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty key", domain.ErrStorage)
	}
	cleaned := path.Clean(strings.ReplaceAll(key, "\\", "/"))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: invalid key %q", domain.ErrStorage, key)
	}
	return cleaned, nil
}
