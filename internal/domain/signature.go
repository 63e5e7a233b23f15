package domain

import "time"

// SignatureStatus は署名レコードの状態を表す。
type SignatureStatus string

const (
	SignatureStatusPending   SignatureStatus = "pending"
	SignatureStatusCompleted SignatureStatus = "completed"
	SignatureStatusFailed    SignatureStatus = "failed"
	SignatureStatusCancelled SignatureStatus = "cancelled"
)

// Signature は文書に対するCMS署名レコードを表す。
type Signature struct {
	ID            string
	DocumentID    string
	SignerIIN     string
	SignerName    string
	SignerType    SignerType
	SignerBIN     string
	SignerCompany string
	SignatureData string // Base64エンコードされたCMS
	SigexSignID   *int64
	Status        SignatureStatus
	SignedAt      *time.Time // COMPLETEDのときのみ設定
	CreatedAt     time.Time
}

// NewSignature は署名者情報から保留中の署名レコードを生成する。
func NewSignature(documentID string, signer SignerIdentity) *Signature {
	return &Signature{
		DocumentID:    documentID,
		SignerIIN:     signer.IIN,
		SignerName:    signer.FullName,
		SignerType:    signer.Type,
		SignerBIN:     signer.BIN,
		SignerCompany: signer.CompanyName,
		Status:        SignatureStatusPending,
	}
}

// MarkCompleted は署名データを記録して完了状態にする。
func (s *Signature) MarkCompleted(signatureData string, sigexSignID *int64) {
	now := time.Now()
	s.SignatureData = signatureData
	s.SigexSignID = sigexSignID
	s.Status = SignatureStatusCompleted
	s.SignedAt = &now
}

// MarkFailed は署名を失敗状態にする。
func (s *Signature) MarkFailed() {
	s.Status = SignatureStatusFailed
	s.SignedAt = nil
}

// MarkCancelled は署名をキャンセル状態にする。
func (s *Signature) MarkCancelled() {
	s.Status = SignatureStatusCancelled
	s.SignedAt = nil
}
