package usecase

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/Ivan-vtr/doc-sign-service/internal/domain"
)

// InitiateResult はQR署名開始時に返す情報。
type InitiateResult struct {
	SessionID        string
	SubjectID        string // 文書IDまたはパッケージID
	QRCodeBase64     string
	DataURL          string
	SignURL          string
	EgovMobileLink   string
	EgovBusinessLink string
}

// CompleteInput はQR署名完了の入力。URLは開始時に返したものを使う。
type CompleteInput struct {
	SubjectID string
	OwnerID   string
	Signer    domain.SignerIdentity
	SessionID string
	DataURL   string
	SignURL   string
}

// DocumentOutcome は署名後処理の文書ごとの結果。
type DocumentOutcome struct {
	DocumentID      string
	SignatureID     string
	SigexDocumentID string
	Status          domain.DocumentStatus
	Error           string
}

// CompleteResult は単一文書の署名完了結果。
type CompleteResult struct {
	DocumentID      string
	SignatureID     string
	Signer          string
	SigexDocumentID string
	Status          domain.DocumentStatus
}

// PackageCompleteResult はパッケージの署名完了結果。
type PackageCompleteResult struct {
	PackageID string
	Status    domain.PackageStatus
	Documents []DocumentOutcome
}

// SigningService はQR署名の開始と完了を提供する。
type SigningService struct {
	docs    DocumentRepository
	sigs    SignatureRepository
	pkgs    PackageRepository
	storage FileStorage
	client  SigningClient
	locker  Locker
}

// NewSigningService は新しいSigningServiceを生成する。
func NewSigningService(docs DocumentRepository, sigs SignatureRepository, pkgs PackageRepository, storage FileStorage, client SigningClient, locker Locker) *SigningService {
	return &SigningService{
		docs:    docs,
		sigs:    sigs,
		pkgs:    pkgs,
		storage: storage,
		client:  client,
		locker:  locker,
	}
}

// Initiate は文書のQR署名セッションを作成し、文書をSIGNINGにする。
// 文書のバイト列はまだ送信しない。
func (s *SigningService) Initiate(ctx context.Context, documentID, ownerID string, signer domain.SignerIdentity) (*InitiateResult, error) {
	doc, err := findOwnedDocument(ctx, s.docs, documentID, ownerID)
	if err != nil {
		return nil, err
	}
	if err := doc.MarkSigning(); err != nil {
		return nil, err
	}

	session, err := s.client.RegisterQRSigning(ctx, "Подписание: "+doc.Title)
	if err != nil {
		return nil, err
	}
	session.SubjectID = doc.ID
	session.SignerIIN = signer.IIN
	session.SignerType = signer.Type

	if err := s.docs.Update(ctx, doc); err != nil {
		return nil, fmt.Errorf("updating document: %w", err)
	}

	return newInitiateResult(session), nil
}

// Complete は文書データを送信して署名を待ち、結果を保存する。
// 途中のエラーでは文書をFAILEDにしてからエラーを返す。署名済みの文書はErrInvalidTransitionになる。
func (s *SigningService) Complete(ctx context.Context, in CompleteInput) (*CompleteResult, error) {
	if _, err := findOwnedDocument(ctx, s.docs, in.SubjectID, in.OwnerID); err != nil {
		return nil, err
	}
	session := newSession(in)
	if err := s.client.ValidateSession(session); err != nil {
		return nil, err
	}

	release, err := s.acquireAll(ctx, []string{documentLockKey(in.SubjectID)})
	if err != nil {
		return nil, err
	}
	defer release()

	// ロック取得後の状態で判定する
	doc, err := findOwnedDocument(ctx, s.docs, in.SubjectID, in.OwnerID)
	if err != nil {
		return nil, err
	}
	if doc.IsSigned() {
		return nil, fmt.Errorf("%w: document %s is already signed", domain.ErrInvalidTransition, doc.ID)
	}

	data, err := s.storage.Read(ctx, doc.FilePath)
	if err != nil {
		return nil, fmt.Errorf("reading original: %w", err)
	}

	outcome, err := s.signDocument(ctx, session, doc, data, in.Signer)
	if err != nil {
		slog.ErrorContext(ctx, "signing failed",
			"operation", "complete_signing",
			"document_id", doc.ID,
			"error", err,
		)
		s.failDocument(ctx, doc, err)
		return nil, err
	}

	return &CompleteResult{
		DocumentID:      doc.ID,
		SignatureID:     outcome.SignatureID,
		Signer:          in.Signer.FullName,
		SigexDocumentID: outcome.SigexDocumentID,
		Status:          doc.Status,
	}, nil
}

func (s *SigningService) signDocument(ctx context.Context, session *domain.QRSigningSession, doc *domain.Document, data []byte, signer domain.SignerIdentity) (*DocumentOutcome, error) {
	// データ送信（利用者がQRを読み取るまでブロックする）
	payload := []domain.SigningDocument{signingPayload(1, doc, data)}
	if err := s.client.SendDataForSigning(ctx, session, payload, false); err != nil {
		return nil, err
	}

	// 署名を取得
	signatures, err := s.client.PollSignatures(ctx, session)
	if err != nil {
		return nil, err
	}
	if len(signatures) == 0 {
		return nil, fmt.Errorf("%w: no signatures received", domain.ErrSigning)
	}

	return s.processSigned(ctx, doc, data, signatures[0], signer)
}

// InitiatePackage はパッケージ全体で共有するQR署名セッションを作成する。
func (s *SigningService) InitiatePackage(ctx context.Context, packageID, ownerID string, signer domain.SignerIdentity) (*InitiateResult, error) {
	pkg, err := findOwnedPackage(ctx, s.pkgs, packageID, ownerID)
	if err != nil {
		return nil, err
	}
	if len(pkg.DocumentIDs) == 0 {
		return nil, domain.ErrEmptyPackage
	}

	session, err := s.client.RegisterQRSigning(ctx, "Подписание пакета: "+pkg.Title)
	if err != nil {
		return nil, err
	}
	session.SubjectID = pkg.ID
	session.SignerIIN = signer.IIN
	session.SignerType = signer.Type

	pkg.MarkSigning()
	if err := s.pkgs.Update(ctx, pkg); err != nil {
		return nil, fmt.Errorf("updating package: %w", err)
	}

	return newInitiateResult(session), nil
}

// CompletePackage はパッケージの全文書を1回のセッションで署名する。
// 署名済みの文書と読み込めない文書は送信しない。
// 署名数が送信数と一致しない場合は送信した全文書とパッケージをFAILEDにする。
// 一致した場合は文書ごとに独立して後処理し、1件の失敗が他の文書に影響しないようにする。
func (s *SigningService) CompletePackage(ctx context.Context, in CompleteInput) (*PackageCompleteResult, error) {
	pkg, err := findOwnedPackage(ctx, s.pkgs, in.SubjectID, in.OwnerID)
	if err != nil {
		return nil, err
	}
	session := newSession(in)
	if err := s.client.ValidateSession(session); err != nil {
		return nil, err
	}

	// パッケージと所属文書をまとめてロックし、単一文書の署名と同時に進まないようにする
	keys := []string{packageLockKey(pkg.ID)}
	for _, id := range pkg.DocumentIDs {
		keys = append(keys, documentLockKey(id))
	}
	release, err := s.acquireAll(ctx, keys)
	if err != nil {
		return nil, err
	}
	defer release()

	result := &PackageCompleteResult{PackageID: pkg.ID}
	var (
		docs    []*domain.Document
		files   [][]byte
		payload []domain.SigningDocument
		signed  int
	)
	for _, id := range pkg.DocumentIDs {
		doc, err := s.docs.FindByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("finding document: %w", err)
		}
		if doc == nil {
			slog.WarnContext(ctx, "package document not found, skipping",
				"package_id", pkg.ID,
				"document_id", id,
			)
			continue
		}
		if doc.IsSigned() {
			signed++
			result.Documents = append(result.Documents, DocumentOutcome{
				DocumentID:      doc.ID,
				SigexDocumentID: doc.SigexDocumentID,
				Status:          doc.Status,
			})
			continue
		}
		data, err := s.storage.Read(ctx, doc.FilePath)
		if err != nil {
			slog.WarnContext(ctx, "package document unreadable, skipping",
				"package_id", pkg.ID,
				"document_id", id,
				"error", err,
			)
			continue
		}
		docs = append(docs, doc)
		files = append(files, data)
		payload = append(payload, signingPayload(len(payload)+1, doc, data))
	}
	if len(docs) == 0 {
		if signed > 0 {
			return nil, fmt.Errorf("%w: all documents in package %s are already signed", domain.ErrInvalidTransition, pkg.ID)
		}
		return nil, fmt.Errorf("%w: no valid documents in package %s", domain.ErrEmptyPackage, pkg.ID)
	}

	signatures, err := s.collectSignatures(ctx, session, payload)
	if err != nil {
		slog.ErrorContext(ctx, "package signing failed",
			"operation", "complete_package_signing",
			"package_id", pkg.ID,
			"error", err,
		)
		for _, doc := range docs {
			s.failDocument(ctx, doc, err)
		}
		pkg.MarkFailed()
		s.updatePackage(ctx, pkg)
		return nil, err
	}

	// 署名は送信順に対応付ける
	failed := 0
	for i, doc := range docs {
		outcome, err := s.processSigned(ctx, doc, files[i], signatures[i], in.Signer)
		if err != nil {
			slog.ErrorContext(ctx, "post-signing failed",
				"operation", "complete_package_signing",
				"package_id", pkg.ID,
				"document_id", doc.ID,
				"error", err,
			)
			s.failDocument(ctx, doc, err)
			failed++
			result.Documents = append(result.Documents, DocumentOutcome{
				DocumentID: doc.ID,
				Status:     domain.DocumentStatusFailed,
				Error:      err.Error(),
			})
			continue
		}
		result.Documents = append(result.Documents, *outcome)
	}

	// 既に署名済みの文書は成功として数える
	pkg.ApplyOutcome(failed, len(docs)+signed)
	s.updatePackage(ctx, pkg)
	result.Status = pkg.Status
	return result, nil
}

// collectSignatures はペイロードを送信し、送信数と同じ数の署名を受け取る。
func (s *SigningService) collectSignatures(ctx context.Context, session *domain.QRSigningSession, payload []domain.SigningDocument) ([]string, error) {
	if err := s.client.SendDataForSigning(ctx, session, payload, false); err != nil {
		return nil, err
	}
	signatures, err := s.client.PollSignatures(ctx, session)
	if err != nil {
		return nil, err
	}
	if len(signatures) != len(payload) {
		return nil, fmt.Errorf("%w: expected %d signatures, got %d", domain.ErrSigning, len(payload), len(signatures))
	}
	return signatures, nil
}

// processSigned は署名後の処理を行う。
// Sigexへの登録とアップロードの後、署名ファイルと署名済みコピー、署名レコードの順に保存して文書をSIGNEDにする。
// 途中で失敗した場合は保存済みのファイルを削除し、署名レコードをFAILEDにする。文書は変更しない。
func (s *SigningService) processSigned(ctx context.Context, doc *domain.Document, data []byte, signatureB64 string, signer domain.SignerIdentity) (*DocumentOutcome, error) {
	sigBytes, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding signature: %v", domain.ErrSigning, err)
	}

	// Sigexに登録
	sigexID, err := s.client.RegisterDocument(ctx, doc.Title, "Document: "+doc.Filename, signatureB64)
	if err != nil {
		return nil, err
	}
	if _, err := s.client.UploadDocumentData(ctx, sigexID, data); err != nil {
		return nil, err
	}

	sig := domain.NewSignature(doc.ID, signer)
	sig.ID = uuid.NewString()

	// 署名ファイルを保存
	sigPath, err := s.storage.Save(ctx, fmt.Sprintf("documents/%s/signatures/%s.cms", doc.ID, sig.ID), sigBytes)
	if err != nil {
		return nil, fmt.Errorf("saving signature file: %w", err)
	}

	// 署名済みコピーを保存: {name}-sigex{id}{ext}
	ext := path.Ext(doc.Filename)
	name := strings.TrimSuffix(doc.Filename, ext)
	signedPath, err := s.storage.Save(ctx, fmt.Sprintf("documents/%s/%s-sigex%s%s", doc.ID, name, sigexID, ext), data)
	if err != nil {
		s.removeFiles(ctx, sigPath)
		return nil, fmt.Errorf("saving signed copy: %w", err)
	}

	// 署名レコードを保存
	sig.MarkCompleted(signatureB64, nil)
	if err := s.sigs.Create(ctx, sig); err != nil {
		s.removeFiles(ctx, sigPath, signedPath)
		return nil, fmt.Errorf("saving signature: %w", err)
	}

	if err := s.markSigned(ctx, doc, sigexID, sigPath, signedPath); err != nil {
		slog.WarnContext(ctx, "rolling back signed artifacts",
			"document_id", doc.ID,
			"signature_id", sig.ID,
			"sigex_document_id", sigexID,
			"error", err,
		)
		s.failSignature(ctx, sig)
		s.removeFiles(ctx, sigPath, signedPath)
		return nil, err
	}

	return &DocumentOutcome{
		DocumentID:      doc.ID,
		SignatureID:     sig.ID,
		SigexDocumentID: sigexID,
		Status:          doc.Status,
	}, nil
}

// markSigned は文書を登録済みを経てSIGNEDにして保存する。保存に失敗した場合は文書を元の状態に戻す。
func (s *SigningService) markSigned(ctx context.Context, doc *domain.Document, sigexID, sigPath, signedPath string) error {
	prev := *doc
	doc.MarkRegistered(sigexID)
	doc.SignatureFilePath = sigPath
	doc.SignedFilePath = signedPath
	if err := doc.MarkSigned(); err != nil {
		*doc = prev
		return err
	}
	if err := s.docs.Update(ctx, doc); err != nil {
		*doc = prev
		return fmt.Errorf("updating document: %w", err)
	}
	return nil
}

// failSignature は保存済みの署名レコードをFAILEDにする。
func (s *SigningService) failSignature(ctx context.Context, sig *domain.Signature) {
	ctx = context.WithoutCancel(ctx)
	sig.MarkFailed()
	if err := s.sigs.UpdateStatus(ctx, sig); err != nil {
		slog.ErrorContext(ctx, "failed to mark signature failed",
			"signature_id", sig.ID,
			"error", err,
		)
	}
}

// removeFiles は後処理の途中で保存したファイルを削除する。
func (s *SigningService) removeFiles(ctx context.Context, keys ...string) {
	ctx = context.WithoutCancel(ctx)
	for _, key := range keys {
		if err := s.storage.Delete(ctx, key); err != nil {
			slog.WarnContext(ctx, "failed to remove signing artifact",
				"key", key,
				"error", err,
			)
		}
	}
}

// failDocument は文書をFAILEDにして保存する。リクエストがキャンセルされていても保存する。
func (s *SigningService) failDocument(ctx context.Context, doc *domain.Document, cause error) {
	ctx = context.WithoutCancel(ctx)
	doc.MarkFailed(cause.Error())
	if err := s.docs.Update(ctx, doc); err != nil {
		slog.ErrorContext(ctx, "failed to mark document failed",
			"document_id", doc.ID,
			"error", err,
		)
	}
}

func (s *SigningService) updatePackage(ctx context.Context, pkg *domain.Package) {
	ctx = context.WithoutCancel(ctx)
	if err := s.pkgs.Update(ctx, pkg); err != nil {
		slog.ErrorContext(ctx, "failed to update package status",
			"package_id", pkg.ID,
			"status", pkg.Status,
			"error", err,
		)
	}
}

// acquireAll はキーを順にロックする。1つでも取得できなければ取得済みのロックを解放してエラーを返す。
func (s *SigningService) acquireAll(ctx context.Context, keys []string) (func(), error) {
	releases := make([]func(context.Context) error, 0, len(keys))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			if err := releases[i](context.WithoutCancel(ctx)); err != nil {
				slog.WarnContext(ctx, "failed to release signing lock",
					"key", keys[i],
					"error", err,
				)
			}
		}
	}
	for _, key := range keys {
		release, err := s.locker.Acquire(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

func signingPayload(position int, doc *domain.Document, data []byte) domain.SigningDocument {
	return domain.SigningDocument{
		ID:     position,
		NameRu: doc.Title,
		Data:   data,
		IsPDF:  doc.IsPDF(),
	}
}

func newSession(in CompleteInput) *domain.QRSigningSession {
	return &domain.QRSigningSession{
		ID:         in.SessionID,
		SubjectID:  in.SubjectID,
		SignerIIN:  in.Signer.IIN,
		SignerType: in.Signer.Type,
		DataURL:    in.DataURL,
		SignURL:    in.SignURL,
		Status:     domain.SignatureStatusPending,
	}
}

func newInitiateResult(session *domain.QRSigningSession) *InitiateResult {
	return &InitiateResult{
		SessionID:        session.ID,
		SubjectID:        session.SubjectID,
		QRCodeBase64:     session.QRCodeBase64,
		DataURL:          session.DataURL,
		SignURL:          session.SignURL,
		EgovMobileLink:   session.EgovMobileLink,
		EgovBusinessLink: session.EgovBusinessLink,
	}
}
