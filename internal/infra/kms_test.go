package infra

import (
	"context"
	"testing"

	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestNewKMSClient_RequiresKeyName(t *testing.T) {
	if _, err := NewKMSClient(context.Background(), ""); err == nil {
		t.Error("want error for empty key name")
	}
}

func TestChecksum(t *testing.T) {
	// RFC 3720 のCRC32C検査値
	if got := checksum([]byte("123456789")).GetValue(); got != 0xE3069283 {
		t.Errorf("want CRC32C 0xE3069283, got %#x", got)
	}

	key := []byte("0123456789abcdef0123456789abcdef")
	if !matchesChecksum(key, checksum(key)) {
		t.Error("want checksum to match its own data")
	}
	if matchesChecksum(key, wrapperspb.Int64(1)) {
		t.Error("want mismatch for wrong checksum")
	}
	if matchesChecksum(key, nil) {
		t.Error("want mismatch when checksum is missing")
	}
}
