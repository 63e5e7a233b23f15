package usecase

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Ivan-vtr/doc-sign-service/internal/domain"
)

// PackageSummary は一覧表示用のパッケージ情報。
type PackageSummary struct {
	*domain.Package
	DocumentCount int
}

// PackageService はパッケージの作成と文書の追加、署名済みZIPの生成を提供する。
type PackageService struct {
	pkgs    PackageRepository
	docs    DocumentRepository
	storage FileStorage
}

// NewPackageService は新しいPackageServiceを生成する。
func NewPackageService(pkgs PackageRepository, docs DocumentRepository, storage FileStorage) *PackageService {
	return &PackageService{
		pkgs:    pkgs,
		docs:    docs,
		storage: storage,
	}
}

// Create はDRAFT状態のパッケージを作成する。
func (s *PackageService) Create(ctx context.Context, title, description, ownerID string) (*domain.Package, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", domain.ErrInvalidInput)
	}

	now := time.Now()
	pkg := &domain.Package{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Status:      domain.PackageStatusDraft,
		OwnerID:     ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.pkgs.Create(ctx, pkg); err != nil {
		return nil, fmt.Errorf("creating package: %w", err)
	}
	return pkg, nil
}

// AddDocument は文書をパッケージに追加する。既に含まれていれば何もしない。
func (s *PackageService) AddDocument(ctx context.Context, packageID, documentID, ownerID string) (*domain.Package, error) {
	pkg, err := findOwnedPackage(ctx, s.pkgs, packageID, ownerID)
	if err != nil {
		return nil, err
	}
	doc, err := findOwnedDocument(ctx, s.docs, documentID, ownerID)
	if err != nil {
		return nil, err
	}

	if !pkg.AddDocument(doc.ID) {
		return pkg, nil
	}
	doc.AssignPackage(pkg.ID, time.Now())
	if err := s.docs.Update(ctx, doc); err != nil {
		return nil, fmt.Errorf("updating document: %w", err)
	}
	return pkg, nil
}

// List は所有者のパッケージ一覧を文書数とともに返す。
func (s *PackageService) List(ctx context.Context, ownerID string) ([]PackageSummary, error) {
	pkgs, err := s.pkgs.FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing packages: %w", err)
	}
	summaries := make([]PackageSummary, len(pkgs))
	for i, p := range pkgs {
		summaries[i] = PackageSummary{Package: p, DocumentCount: len(p.DocumentIDs)}
	}
	return summaries, nil
}

// DownloadSigned は署名済み文書の原本と署名ファイルをZIPにまとめて返す。
// 署名されていない文書は含めない。
func (s *PackageService) DownloadSigned(ctx context.Context, packageID, ownerID string) (*FileDownload, error) {
	pkg, err := findOwnedPackage(ctx, s.pkgs, packageID, ownerID)
	if err != nil {
		return nil, err
	}
	docs, err := s.docs.FindByPackage(ctx, pkg.ID)
	if err != nil {
		return nil, fmt.Errorf("listing package documents: %w", err)
	}

	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	used := make(map[string]bool, len(docs))
	for _, doc := range docs {
		if doc.Status != domain.DocumentStatusSigned {
			continue
		}
		// 同名のファイルは文書IDを前置して区別する
		name := doc.Filename
		if used[name] {
			name = doc.ID + "_" + doc.Filename
		}
		used[name] = true

		if err := s.addToArchive(ctx, zw, "originals/"+name, doc.FilePath); err != nil {
			slog.WarnContext(ctx, "failed to add original to archive",
				"operation", "download_signed_package",
				"document_id", doc.ID,
				"error", err,
			)
			continue
		}
		if doc.SignatureFilePath == "" {
			continue
		}
		if err := s.addToArchive(ctx, zw, "signatures/"+name+".cms", doc.SignatureFilePath); err != nil {
			slog.WarnContext(ctx, "failed to add signature to archive",
				"operation", "download_signed_package",
				"document_id", doc.ID,
				"error", err,
			)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing archive: %w", err)
	}

	return &FileDownload{
		Data:     buf.Bytes(),
		Filename: fmt.Sprintf("package_%s_signed.zip", pkg.ID),
		MIMEType: "application/zip",
	}, nil
}

func (s *PackageService) addToArchive(ctx context.Context, zw *zip.Writer, name, key string) error {
	data, err := s.storage.Read(ctx, key)
	if err != nil {
		return err
	}
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
