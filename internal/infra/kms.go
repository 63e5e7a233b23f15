package infra

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"

	kms "cloud.google.com/go/kms/apiv1"
	kmspb "cloud.google.com/go/kms/apiv1/kmspb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// dataKeyAAD はラップ済みデータ鍵を文書ストレージ用途に限定するための追加認証データ。
var dataKeyAAD = []byte("doc-sign-service/storage/data-key")

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// errKMSIntegrity は送受信中にデータが破損した場合のエラー。
var errKMSIntegrity = errors.New("kms: checksum mismatch in transit")

// KMSClient は暗号化ストレージのデータ鍵をCloud KMSのCryptoKeyでラップする。
// storage.KeyWrapperを満たす。
type KMSClient struct {
	client  *kms.KeyManagementClient
	keyName string
}

// NewKMSClient はKMSClientを生成する。keyNameはCryptoKeyのリソース名。
func NewKMSClient(ctx context.Context, keyName string) (*KMSClient, error) {
	if keyName == "" {
		return nil, fmt.Errorf("KMS_KEY_NAME is required when STORAGE_ENCRYPTION=kms")
	}
	client, err := kms.NewKeyManagementClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating KMS client: %w", err)
	}
	return &KMSClient{client: client, keyName: keyName}, nil
}

// Encrypt はデータ鍵をラップする。送受信の両方向でCRC32Cを照合する。
func (c *KMSClient) Encrypt(ctx context.Context, dataKey []byte) ([]byte, error) {
	resp, err := c.client.Encrypt(ctx, &kmspb.EncryptRequest{
		Name:                              c.keyName,
		Plaintext:                         dataKey,
		PlaintextCrc32C:                   checksum(dataKey),
		AdditionalAuthenticatedData:       dataKeyAAD,
		AdditionalAuthenticatedDataCrc32C: checksum(dataKeyAAD),
	})
	if err != nil {
		return nil, fmt.Errorf("wrapping data key: %w", err)
	}
	if !resp.VerifiedPlaintextCrc32C || !resp.VerifiedAdditionalAuthenticatedDataCrc32C {
		return nil, fmt.Errorf("wrapping data key: request %w", errKMSIntegrity)
	}
	if !matchesChecksum(resp.Ciphertext, resp.CiphertextCrc32C) {
		return nil, fmt.Errorf("wrapping data key: response %w", errKMSIntegrity)
	}
	return resp.Ciphertext, nil
}

// Decrypt はラップ済みデータ鍵を復号する。
func (c *KMSClient) Decrypt(ctx context.Context, wrapped []byte) ([]byte, error) {
	resp, err := c.client.Decrypt(ctx, &kmspb.DecryptRequest{
		Name:                              c.keyName,
		Ciphertext:                        wrapped,
		CiphertextCrc32C:                  checksum(wrapped),
		AdditionalAuthenticatedData:       dataKeyAAD,
		AdditionalAuthenticatedDataCrc32C: checksum(dataKeyAAD),
	})
	if err != nil {
		return nil, fmt.Errorf("unwrapping data key: %w", err)
	}
	if !matchesChecksum(resp.Plaintext, resp.PlaintextCrc32C) {
		return nil, fmt.Errorf("unwrapping data key: response %w", errKMSIntegrity)
	}
	return resp.Plaintext, nil
}

// Close はKMSクライアントを閉じる。
func (c *KMSClient) Close() error {
	return c.client.Close()
}

func checksum(data []byte) *wrapperspb.Int64Value {
	return wrapperspb.Int64(int64(crc32.Checksum(data, crc32cTable)))
}

func matchesChecksum(data []byte, sum *wrapperspb.Int64Value) bool {
	return sum != nil && sum.GetValue() == checksum(data).GetValue()
}
