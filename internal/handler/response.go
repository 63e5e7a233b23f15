package handler

import (
	"time"

	"github.com/Ivan-vtr/doc-sign-service/internal/domain"
	"github.com/Ivan-vtr/doc-sign-service/internal/usecase"
)

// DocumentResponse は文書のレスポンス形式。
type DocumentResponse struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Filename        string  `json:"filename"`
	MIMEType        string  `json:"mime_type"`
	FileSize        int64   `json:"file_size"`
	SHA256          string  `json:"sha256"`
	Status          string  `json:"status"`
	SigexDocumentID *string `json:"sigex_document_id"`
	PackageID       *string `json:"package_id"`
	PackageName     string  `json:"package_name,omitempty"`
	ErrorMessage    string  `json:"error_message,omitempty"`
	CreatedAt       string  `json:"created_at"`
}

// UploadResponse はアップロード結果のレスポンス形式。
type UploadResponse struct {
	DocumentID string `json:"document_id,omitempty"`
	Title      string `json:"title,omitempty"`
	Filename   string `json:"filename"`
	SHA256     string `json:"sha256,omitempty"`
	Status     string `json:"status,omitempty"`
	Error      string `json:"error,omitempty"`
}

// SignatureResponse は署名レコードのレスポンス形式。
type SignatureResponse struct {
	ID         string  `json:"id"`
	SignerName string  `json:"signer_name"`
	SignerIIN  string  `json:"signer_iin"`
	SignerType string  `json:"signer_type"`
	Status     string  `json:"status"`
	SignedAt   *string `json:"signed_at"`
}

// DocumentStatusResponse は文書の状態のレスポンス形式。
type DocumentStatusResponse struct {
	DocumentID   string              `json:"document_id"`
	Status       string              `json:"status"`
	ErrorMessage string              `json:"error_message,omitempty"`
	Signatures   []SignatureResponse `json:"signatures"`
}

// VerificationResponse は検証結果のレスポンス形式。
type VerificationResponse struct {
	DocumentID    string `json:"document_id"`
	Verified      bool   `json:"verified"`
	ChecksumMatch bool   `json:"checksum_match"`
	SigexVerified bool   `json:"sigex_verified"`
}

// QRSigningResponse はQR署名開始のレスポンス形式。
type QRSigningResponse struct {
	SessionID        string `json:"session_id"`
	DocumentID       string `json:"document_id,omitempty"`
	PackageID        string `json:"package_id,omitempty"`
	QRCodeBase64     string `json:"qr_code_base64"`
	EgovMobileLink   string `json:"egov_mobile_link"`
	EgovBusinessLink string `json:"egov_business_link"`
	DataURL          string `json:"data_url"`
	SignURL          string `json:"sign_url"`
}

// CompleteSigningResponse は署名完了のレスポンス形式。
type CompleteSigningResponse struct {
	DocumentID      string `json:"document_id"`
	SignatureID     string `json:"signature_id"`
	Signer          string `json:"signer"`
	SigexDocumentID string `json:"sigex_document_id"`
	Status          string `json:"status"`
}

// PackageDocumentResult はパッケージ署名の文書ごとの結果。
type PackageDocumentResult struct {
	DocumentID      string `json:"document_id"`
	SignatureID     string `json:"signature_id,omitempty"`
	SigexDocumentID string `json:"sigex_document_id,omitempty"`
	Status          string `json:"status"`
	Error           string `json:"error,omitempty"`
}

// CompletePackageResponse はパッケージ署名完了のレスポンス形式。
type CompletePackageResponse struct {
	PackageID string                  `json:"package_id"`
	Status    string                  `json:"status"`
	Documents []PackageDocumentResult `json:"documents"`
}

// PackageResponse はパッケージのレスポンス形式。
type PackageResponse struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Status        string   `json:"status"`
	DocumentIDs   []string `json:"document_ids"`
	DocumentCount int      `json:"document_count"`
	CreatedAt     string   `json:"created_at"`
}

// ProfileResponse はユーザープロフィールのレスポンス形式。
type ProfileResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	IIN         string `json:"iin"`
	FullName    string `json:"full_name"`
	SignerType  string `json:"signer_type"`
	BIN         string `json:"bin"`
	CompanyName string `json:"company_name"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func newDocumentResponse(d *domain.Document, packageName string) DocumentResponse {
	return DocumentResponse{
		ID:              d.ID,
		Title:           d.Title,
		Filename:        d.Filename,
		MIMEType:        d.MIMEType,
		FileSize:        d.FileSize,
		SHA256:          d.SHA256,
		Status:          string(d.Status),
		SigexDocumentID: optional(d.SigexDocumentID),
		PackageID:       optional(d.PackageID),
		PackageName:     packageName,
		ErrorMessage:    d.ErrorMessage,
		CreatedAt:       formatTime(d.CreatedAt),
	}
}

func newUploadResponse(filename string, result *usecase.UploadResult, err error) UploadResponse {
	if err != nil {
		return UploadResponse{Filename: filename, Error: err.Error()}
	}
	return UploadResponse{
		DocumentID: result.DocumentID,
		Title:      result.Title,
		Filename:   result.Filename,
		SHA256:     result.SHA256,
		Status:     string(result.Status),
	}
}

func newSignatureResponse(s *domain.Signature) SignatureResponse {
	resp := SignatureResponse{
		ID:         s.ID,
		SignerName: s.SignerName,
		SignerIIN:  s.SignerIIN,
		SignerType: string(s.SignerType),
		Status:     string(s.Status),
	}
	if s.SignedAt != nil {
		signedAt := formatTime(*s.SignedAt)
		resp.SignedAt = &signedAt
	}
	return resp
}

func newQRSigningResponse(r *usecase.InitiateResult, isPackage bool) QRSigningResponse {
	resp := QRSigningResponse{
		SessionID:        r.SessionID,
		QRCodeBase64:     r.QRCodeBase64,
		EgovMobileLink:   r.EgovMobileLink,
		EgovBusinessLink: r.EgovBusinessLink,
		DataURL:          r.DataURL,
		SignURL:          r.SignURL,
	}
	if isPackage {
		resp.PackageID = r.SubjectID
	} else {
		resp.DocumentID = r.SubjectID
	}
	return resp
}

func newPackageResponse(p *domain.Package) PackageResponse {
	ids := p.DocumentIDs
	if ids == nil {
		ids = []string{}
	}
	return PackageResponse{
		ID:            p.ID,
		Title:         p.Title,
		Description:   p.Description,
		Status:        string(p.Status),
		DocumentIDs:   ids,
		DocumentCount: len(ids),
		CreatedAt:     formatTime(p.CreatedAt),
	}
}

func newProfileResponse(u *domain.User) ProfileResponse {
	return ProfileResponse{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		IIN:         u.IIN,
		FullName:    u.FullName,
		SignerType:  string(u.SignerType),
		BIN:         u.BIN,
		CompanyName: u.CompanyName,
	}
}
