package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Ivan-vtr/doc-sign-service/internal/domain"
)

// UploadInput はアップロードする1ファイル分の入力。
type UploadInput struct {
	Data      []byte
	Filename  string
	MIMEType  string
	Title     string
	OwnerID   string
	PackageID string
}

// UploadResult はアップロード結果。
type UploadResult struct {
	DocumentID string
	Title      string
	Filename   string
	SHA256     string
	Status     domain.DocumentStatus
}

// UploadOutcome は複数アップロード時のファイルごとの結果。
type UploadOutcome struct {
	Filename string
	Result   *UploadResult
	Err      error
}

// DocumentSummary は一覧表示用の文書情報。
type DocumentSummary struct {
	*domain.Document
	PackageName string
}

// DocumentStatusResult は文書の状態と署名一覧。
type DocumentStatusResult struct {
	DocumentID   string
	Status       domain.DocumentStatus
	ErrorMessage string
	Signatures   []*domain.Signature
}

// VerificationResult は検証結果。
// VerifiedはChecksumMatchかつ（SigexVerifiedまたは未登録）のときtrue。
type VerificationResult struct {
	DocumentID    string
	Verified      bool
	ChecksumMatch bool
	SigexVerified bool
}

// DocumentService は文書のアップロード・参照・検証を提供する。
type DocumentService struct {
	docs    DocumentRepository
	sigs    SignatureRepository
	pkgs    PackageRepository
	storage FileStorage
	client  SigningClient
}

// NewDocumentService は新しいDocumentServiceを生成する。
func NewDocumentService(docs DocumentRepository, sigs SignatureRepository, pkgs PackageRepository, storage FileStorage, client SigningClient) *DocumentService {
	return &DocumentService{
		docs:    docs,
		sigs:    sigs,
		pkgs:    pkgs,
		storage: storage,
		client:  client,
	}
}

// Upload はファイルを保存して文書を登録する。
// MIMEタイプが許可されていない場合はストレージにもDBにも書き込まない。
func (s *DocumentService) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	if !domain.IsAllowedMIMEType(in.MIMEType) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedMimeType, in.MIMEType)
	}

	// パッケージ指定時は所有者を確認
	if in.PackageID != "" {
		if _, err := findOwnedPackage(ctx, s.pkgs, in.PackageID, in.OwnerID); err != nil {
			return nil, err
		}
	}

	filename := sanitizeFilename(in.Filename)
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = filename
	}

	doc := &domain.Document{
		ID:        uuid.NewString(),
		Title:     title,
		Filename:  filename,
		MIMEType:  in.MIMEType,
		FileSize:  int64(len(in.Data)),
		SHA256:    domain.ComputeSHA256(in.Data),
		Status:    domain.DocumentStatusUploaded,
		OwnerID:   in.OwnerID,
		CreatedAt: time.Now(),
	}
	if in.PackageID != "" {
		doc.AssignPackage(in.PackageID, doc.CreatedAt)
	}

	// ファイルを保存: documents/{doc_id}/{filename}
	filePath, err := s.storage.Save(ctx, fmt.Sprintf("documents/%s/%s", doc.ID, filename), in.Data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}
	doc.FilePath = filePath

	// DBに保存。失敗した場合は保存したファイルを削除する
	if err := s.docs.Create(ctx, doc); err != nil {
		if delErr := s.storage.Delete(context.WithoutCancel(ctx), filePath); delErr != nil {
			slog.WarnContext(ctx, "failed to remove orphaned file",
				"operation", "upload_document",
				"file_path", filePath,
				"error", delErr,
			)
		}
		return nil, fmt.Errorf("creating document: %w", err)
	}

	return &UploadResult{
		DocumentID: doc.ID,
		Title:      doc.Title,
		Filename:   doc.Filename,
		SHA256:     doc.SHA256,
		Status:     doc.Status,
	}, nil
}

// UploadMultiple は複数ファイルを順にアップロードする。1件の失敗は他に影響しない。
func (s *DocumentService) UploadMultiple(ctx context.Context, inputs []UploadInput) []UploadOutcome {
	outcomes := make([]UploadOutcome, 0, len(inputs))
	for _, in := range inputs {
		result, err := s.Upload(ctx, in)
		if err != nil {
			slog.WarnContext(ctx, "upload failed",
				"operation", "upload_multiple",
				"filename", in.Filename,
				"error", err,
			)
		}
		outcomes = append(outcomes, UploadOutcome{Filename: in.Filename, Result: result, Err: err})
	}
	return outcomes
}

// List は所有者の文書一覧をパッケージ名とともに返す。
func (s *DocumentService) List(ctx context.Context, ownerID string) ([]DocumentSummary, error) {
	docs, err := s.docs.FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	pkgs, err := s.pkgs.FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing packages: %w", err)
	}

	names := make(map[string]string, len(pkgs))
	for _, p := range pkgs {
		names[p.ID] = p.Title
	}

	summaries := make([]DocumentSummary, len(docs))
	for i, d := range docs {
		summaries[i] = DocumentSummary{Document: d, PackageName: names[d.PackageID]}
	}
	return summaries, nil
}

// Get は所有者の文書を返す。
func (s *DocumentService) Get(ctx context.Context, documentID, ownerID string) (*domain.Document, error) {
	return findOwnedDocument(ctx, s.docs, documentID, ownerID)
}

// Status は文書の状態と署名一覧を返す。
func (s *DocumentService) Status(ctx context.Context, documentID, ownerID string) (*DocumentStatusResult, error) {
	doc, err := findOwnedDocument(ctx, s.docs, documentID, ownerID)
	if err != nil {
		return nil, err
	}
	sigs, err := s.sigs.FindByDocument(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("listing signatures: %w", err)
	}
	return &DocumentStatusResult{
		DocumentID:   doc.ID,
		Status:       doc.Status,
		ErrorMessage: doc.ErrorMessage,
		Signatures:   sigs,
	}, nil
}

// Download は元のファイルを返す。
func (s *DocumentService) Download(ctx context.Context, documentID, ownerID string) (*FileDownload, error) {
	doc, err := findOwnedDocument(ctx, s.docs, documentID, ownerID)
	if err != nil {
		return nil, err
	}
	data, err := s.storage.Read(ctx, doc.FilePath)
	if err != nil {
		return nil, fmt.Errorf("reading original: %w", err)
	}
	return &FileDownload{Data: data, Filename: doc.Filename, MIMEType: doc.MIMEType}, nil
}

// DownloadSigned は署名済みコピーを返す。
func (s *DocumentService) DownloadSigned(ctx context.Context, documentID, ownerID string) (*FileDownload, error) {
	doc, err := findOwnedDocument(ctx, s.docs, documentID, ownerID)
	if err != nil {
		return nil, err
	}
	if doc.SignedFilePath == "" {
		return nil, fmt.Errorf("%w: signed copy not available for document %s", domain.ErrDocumentNotFound, doc.ID)
	}
	data, err := s.storage.Read(ctx, doc.SignedFilePath)
	if err != nil {
		return nil, fmt.Errorf("reading signed copy: %w", err)
	}
	return &FileDownload{Data: data, Filename: path.Base(doc.SignedFilePath), MIMEType: doc.MIMEType}, nil
}

// DownloadSignature はCMS署名ファイルを返す。
func (s *DocumentService) DownloadSignature(ctx context.Context, documentID, ownerID string) (*FileDownload, error) {
	doc, err := findOwnedDocument(ctx, s.docs, documentID, ownerID)
	if err != nil {
		return nil, err
	}
	if doc.SignatureFilePath == "" {
		return nil, fmt.Errorf("%w: signature not available for document %s", domain.ErrDocumentNotFound, doc.ID)
	}
	data, err := s.storage.Read(ctx, doc.SignatureFilePath)
	if err != nil {
		return nil, fmt.Errorf("reading signature: %w", err)
	}
	return &FileDownload{Data: data, Filename: doc.Filename + ".cms", MIMEType: "application/pkcs7-signature"}, nil
}

// Verify はチェックサムを再計算し、登録済みであればSigex側でも検証する。
// Sigex側の検証失敗はエラーにせずSigexVerified=falseとする。
func (s *DocumentService) Verify(ctx context.Context, documentID, ownerID string) (*VerificationResult, error) {
	doc, err := findOwnedDocument(ctx, s.docs, documentID, ownerID)
	if err != nil {
		return nil, err
	}
	data, err := s.storage.Read(ctx, doc.FilePath)
	if err != nil {
		return nil, fmt.Errorf("reading original: %w", err)
	}

	result := &VerificationResult{
		DocumentID:    doc.ID,
		ChecksumMatch: doc.VerifyChecksum(data),
	}
	if doc.SigexDocumentID != "" {
		ok, err := s.client.VerifyDocument(ctx, doc.SigexDocumentID, data)
		if err != nil {
			slog.WarnContext(ctx, "provider verification failed",
				"operation", "verify_document",
				"document_id", doc.ID,
				"error", err,
			)
		}
		result.SigexVerified = err == nil && ok
	}
	result.Verified = result.ChecksumMatch && (result.SigexVerified || doc.SigexDocumentID == "")
	return result, nil
}

// ProviderInfo はSigexに登録済みの文書情報を返す。
func (s *DocumentService) ProviderInfo(ctx context.Context, documentID, ownerID string) (*domain.ProviderDocument, error) {
	doc, err := findOwnedDocument(ctx, s.docs, documentID, ownerID)
	if err != nil {
		return nil, err
	}
	if doc.SigexDocumentID == "" {
		return nil, fmt.Errorf("%w: document %s is not registered with the provider", domain.ErrInvalidInput, doc.ID)
	}
	return s.client.GetDocumentInfo(ctx, doc.SigexDocumentID)
}

// Delete は文書と署名、保存済みファイルを削除する。
func (s *DocumentService) Delete(ctx context.Context, documentID, ownerID string) error {
	doc, err := findOwnedDocument(ctx, s.docs, documentID, ownerID)
	if err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, doc.ID); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}

	// ファイル削除の失敗はログのみ
	for _, p := range []string{doc.FilePath, doc.SignedFilePath, doc.SignatureFilePath} {
		if p == "" {
			continue
		}
		if err := s.storage.Delete(ctx, p); err != nil {
			slog.WarnContext(ctx, "failed to delete file",
				"operation", "delete_document",
				"document_id", doc.ID,
				"file_path", p,
				"error", err,
			)
		}
	}
	return nil
}

// sanitizeFilename はパス要素を取り除いたファイル名を返す。
func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		return "document"
	}
	return name
}
