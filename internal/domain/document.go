// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// DocumentStatus は文書のライフサイクル状態を表す。
type DocumentStatus string

const (
	// DocumentStatusUploaded はアップロード直後の文書を表す。
	DocumentStatusUploaded DocumentStatus = "uploaded"
	// DocumentStatusRegistered は署名プロバイダに登録済みの文書を表す。
	DocumentStatusRegistered DocumentStatus = "registered"
	// DocumentStatusSigning は署名セッション進行中の文書を表す。
	DocumentStatusSigning DocumentStatus = "signing"
	// DocumentStatusSigned は署名と署名済みコピーが保存された文書を表す。
	DocumentStatusSigned DocumentStatus = "signed"
	// DocumentStatusFailed は署名に失敗した文書を表す。
	DocumentStatusFailed DocumentStatus = "failed"
)

// MIMETypePDF はPDFのMIMEタイプ。
const MIMETypePDF = "application/pdf"

var allowedMIMETypes = map[string]struct{}{
	MIMETypePDF:  {},
	"image/png":  {},
	"image/jpeg": {},
}

// IsAllowedMIMEType はアップロード可能なMIMEタイプかどうかを返す。
func IsAllowedMIMEType(mimeType string) bool {
	_, ok := allowedMIMETypes[mimeType]
	return ok
}

// Document は署名対象の文書エンティティを表す。
type Document struct {
	ID                string
	Title             string
	Filename          string
	MIMEType          string
	FileSize          int64
	FilePath          string
	SHA256            string
	Status            DocumentStatus
	SigexDocumentID   string
	SignedFilePath    string
	SignatureFilePath string
	ErrorMessage      string
	OwnerID           string
	PackageID         string
	PackageAddedAt    *time.Time // パッケージへの追加日時
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ComputeSHA256 はバイト列のSHA-256を16進文字列で返す。
func ComputeSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyChecksum は保存時のハッシュと与えられたバイト列のハッシュが一致するか確認する。
func (d *Document) VerifyChecksum(data []byte) bool {
	return d.SHA256 == ComputeSHA256(data)
}

// IsPDF はPDF文書かどうかを返す。
func (d *Document) IsPDF() bool {
	return d.MIMEType == MIMETypePDF
}

// OwnedBy は指定ユーザーが所有者かどうかを返す。
func (d *Document) OwnedBy(ownerID string) bool {
	return d.OwnerID == ownerID
}

// IsSigned は署名済みかどうかを返す。
func (d *Document) IsSigned() bool {
	return d.Status == DocumentStatusSigned
}

// AssignPackage は文書をパッケージに所属させ、追加日時を記録する。
func (d *Document) AssignPackage(packageID string, at time.Time) {
	d.PackageID = packageID
	d.PackageAddedAt = &at
	d.UpdatedAt = at
}

// MarkSigning は署名セッション開始時に呼ばれる。
// 署名済みの文書は再署名できない。
func (d *Document) MarkSigning() error {
	if d.IsSigned() {
		return fmt.Errorf("%w: document %s is already signed", ErrInvalidTransition, d.ID)
	}
	d.Status = DocumentStatusSigning
	d.touch()
	return nil
}

// MarkRegistered はプロバイダが文書を受け付けた後に呼ばれる。
func (d *Document) MarkRegistered(sigexDocumentID string) {
	d.SigexDocumentID = sigexDocumentID
	d.Status = DocumentStatusRegistered
	d.touch()
}

// MarkSigned は署名と署名済みコピーの保存後に呼ばれる。
func (d *Document) MarkSigned() error {
	if d.SignedFilePath == "" || d.SignatureFilePath == "" {
		return fmt.Errorf("%w: document %s has no stored signature artifacts", ErrInvalidTransition, d.ID)
	}
	d.Status = DocumentStatusSigned
	d.ErrorMessage = ""
	d.touch()
	return nil
}

// MarkFailed は回復不能な署名エラー時に呼ばれる。
func (d *Document) MarkFailed(reason string) {
	d.Status = DocumentStatusFailed
	d.ErrorMessage = reason
	d.touch()
}

func (d *Document) touch() {
	d.UpdatedAt = time.Now()
}
