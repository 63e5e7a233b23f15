package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Ivan-vtr/doc-sign-service/internal/domain"
)

// LocalStorage はローカルディスク上のディレクトリにファイルを保存する。
type LocalStorage struct {
	root string
}

// NewLocalStorage は新しいLocalStorageを生成する。ルートディレクトリがなければ作成する。
func NewLocalStorage(root string) (*LocalStorage, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("%w: creating media root: %v", domain.ErrStorage, err)
	}
	return &LocalStorage{root: root}, nil
}

func (s *LocalStorage) fullPath(key string) (string, string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", "", err
	}
	return cleaned, filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

// Save はファイルを書き込み、正規化したキーを返す。
func (s *LocalStorage) Save(ctx context.Context, key string, data []byte) (string, error) {
	cleaned, full, err := s.fullPath(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		slog.ErrorContext(ctx, "failed to create directory", "operation", "Save", "key", cleaned, "error", err)
		return "", fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	if err := os.WriteFile(full, data, 0o640); err != nil {
		slog.ErrorContext(ctx, "failed to write file", "operation", "Save", "key", cleaned, "error", err)
		return "", fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return cleaned, nil
}

// Read はファイルを読み込む。存在しない場合はErrStorageNotFoundを返す。
func (s *LocalStorage) Read(ctx context.Context, key string) ([]byte, error) {
	cleaned, full, err := s.fullPath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrStorageNotFound, cleaned)
		}
		slog.ErrorContext(ctx, "failed to read file", "operation", "Read", "key", cleaned, "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return data, nil
}

// Delete はファイルを削除する。存在しない場合は何もしない。
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	cleaned, full, err := s.fullPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.ErrorContext(ctx, "failed to delete file", "operation", "Delete", "key", cleaned, "error", err)
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

// Exists はファイルが存在するかどうかを返す。
func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, full, err := s.fullPath(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %v", domain.ErrStorage, err)
}
