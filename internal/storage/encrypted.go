package storage

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/Ivan-vtr/doc-sign-service/internal/domain"
)

const (
	keySize     = 32 // AES-256 = 256 bits = 32 bytes
	lenPrefix   = 4
	maxWrapSize = 4096
)

// KeyWrapper はデータ鍵の暗号化/復号のインターフェース。
type KeyWrapper interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// EncryptedStorage はエンベロープ暗号化を行うFileStorageのデコレータ。
// 保存形式: [u32 ラップ済み鍵長][ラップ済み鍵][12バイトnonce][暗号文]
type EncryptedStorage struct {
	inner   FileStorage
	wrapper KeyWrapper
}

// NewEncryptedStorage は新しいEncryptedStorageを生成する。
func NewEncryptedStorage(inner FileStorage, wrapper KeyWrapper) *EncryptedStorage {
	return &EncryptedStorage{inner: inner, wrapper: wrapper}
}

// generateAESKey はAES-256鍵を生成する。
func generateAESKey() ([]byte, error) {
	key := make([]byte, keySize)
	_, err := rand.Read(key)
	if err != nil {
		return nil, fmt.Errorf("generating random key: %w", err)
	}
	return key, nil
}

// Save はファイルごとに新しいデータ鍵で暗号化して保存する。
func (s *EncryptedStorage) Save(ctx context.Context, key string, data []byte) (string, error) {
	// データ鍵を生成
	dataKey, err := generateAESKey()
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	// KMSでデータ鍵をラップ
	wrapped, err := s.wrapper.Encrypt(ctx, dataKey)
	if err != nil {
		return "", fmt.Errorf("%w: wrapping data key: %v", domain.ErrStorage, err)
	}

	gcm, err := newGCM(dataKey)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("%w: generating nonce: %v", domain.ErrStorage, err)
	}

	out := make([]byte, lenPrefix, lenPrefix+len(wrapped)+len(nonce)+len(data)+gcm.Overhead())
	binary.BigEndian.PutUint32(out, uint32(len(wrapped)))
	out = append(out, wrapped...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, data, nil)

	return s.inner.Save(ctx, key, out)
}

// Read はラップ済み鍵を復号し、本文を復号して返す。
func (s *EncryptedStorage) Read(ctx context.Context, key string) ([]byte, error) {
	blob, err := s.inner.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(blob) < lenPrefix {
		return nil, fmt.Errorf("%w: encrypted blob too short", domain.ErrStorage)
	}
	wrappedLen := int(binary.BigEndian.Uint32(blob))
	if wrappedLen == 0 || wrappedLen > maxWrapSize || len(blob) < lenPrefix+wrappedLen {
		return nil, fmt.Errorf("%w: malformed encrypted blob", domain.ErrStorage)
	}
	wrapped := blob[lenPrefix : lenPrefix+wrappedLen]
	rest := blob[lenPrefix+wrappedLen:]

	dataKey, err := s.wrapper.Decrypt(ctx, wrapped)
	if err != nil {
		return nil, fmt.Errorf("%w: unwrapping data key: %v", domain.ErrStorage, err)
	}

	gcm, err := newGCM(dataKey)
	if err != nil {
		return nil, err
	}
	if len(rest) < gcm.NonceSize() {
		return nil, fmt.Errorf("%w: malformed encrypted blob", domain.ErrStorage)
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypting blob: %v", domain.ErrStorage, err)
	}
	return plaintext, nil
}

func (s *EncryptedStorage) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

func (s *EncryptedStorage) Exists(ctx context.Context, key string) (bool, error) {
	return s.inner.Exists(ctx, key)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return gcm, nil
}
