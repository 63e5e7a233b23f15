package usecase

import (
	"context"
	"fmt"

	"github.com/Ivan-vtr/doc-sign-service/internal/domain"
)

// FileDownload はダウンロード用のファイル内容。
type FileDownload struct {
	Data     []byte
	Filename string
	MIMEType string
}

// findOwnedDocument は文書を取得し、所有者を確認する。
func findOwnedDocument(ctx context.Context, repo DocumentRepository, documentID, ownerID string) (*domain.Document, error) {
	doc, err := repo.FindByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("finding document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, documentID)
	}
	if !doc.OwnedBy(ownerID) {
		return nil, fmt.Errorf("%w: you do not own this document", domain.ErrAccessDenied)
	}
	return doc, nil
}

// findOwnedPackage はパッケージを取得し、所有者を確認する。
func findOwnedPackage(ctx context.Context, repo PackageRepository, packageID, ownerID string) (*domain.Package, error) {
	pkg, err := repo.FindByID(ctx, packageID)
	if err != nil {
		return nil, fmt.Errorf("finding package: %w", err)
	}
	if pkg == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrPackageNotFound, packageID)
	}
	if !pkg.OwnedBy(ownerID) {
		return nil, fmt.Errorf("%w: you do not own this package", domain.ErrAccessDenied)
	}
	return pkg, nil
}
