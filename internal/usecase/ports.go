// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"

	"github.com/Ivan-vtr/doc-sign-service/internal/domain"
)

// DocumentRepository は文書のデータアクセスのインターフェース。
// 存在しない場合はnil, nilを返す。
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	FindByID(ctx context.Context, id string) (*domain.Document, error)
	FindByOwner(ctx context.Context, ownerID string) ([]*domain.Document, error)
	FindByPackage(ctx context.Context, packageID string) ([]*domain.Document, error)
	Update(ctx context.Context, doc *domain.Document) error
	Delete(ctx context.Context, id string) error
}

// SignatureRepository は署名レコードのデータアクセスのインターフェース。
type SignatureRepository interface {
	Create(ctx context.Context, sig *domain.Signature) error
	UpdateStatus(ctx context.Context, sig *domain.Signature) error
	FindByDocument(ctx context.Context, documentID string) ([]*domain.Signature, error)
}

// PackageRepository はパッケージのデータアクセスのインターフェース。
type PackageRepository interface {
	Create(ctx context.Context, pkg *domain.Package) error
	FindByID(ctx context.Context, id string) (*domain.Package, error)
	FindByOwner(ctx context.Context, ownerID string) ([]*domain.Package, error)
	Update(ctx context.Context, pkg *domain.Package) error
}

// UserRepository はユーザーのデータアクセスのインターフェース。
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
}

// FileStorage はファイル保存のインターフェース。
// 存在しないパスの読み込みはErrStorageNotFoundを返す。
type FileStorage interface {
	Save(ctx context.Context, key string, data []byte) (string, error)
	Read(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// SigningClient は署名プロバイダのインターフェース。
// ValidateSessionはコールバックURLがプロバイダ以外を指す場合にErrInvalidInputを返す。
type SigningClient interface {
	ValidateSession(session *domain.QRSigningSession) error
	RegisterQRSigning(ctx context.Context, description string) (*domain.QRSigningSession, error)
	SendDataForSigning(ctx context.Context, session *domain.QRSigningSession, documents []domain.SigningDocument, attachData bool) error
	PollSignatures(ctx context.Context, session *domain.QRSigningSession) ([]string, error)
	RegisterDocument(ctx context.Context, title, description, signature string) (string, error)
	UploadDocumentData(ctx context.Context, sigexDocumentID string, data []byte) (map[string]any, error)
	AddSignature(ctx context.Context, sigexDocumentID, signature string) (int64, error)
	VerifyDocument(ctx context.Context, sigexDocumentID string, data []byte) (bool, error)
	GetDocumentInfo(ctx context.Context, sigexDocumentID string) (*domain.ProviderDocument, error)
}

// Locker は署名対象ごとのアドバイザリロックのインターフェース。
// 保持中のキーに対してはErrSigningInProgressを返す。
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(context.Context) error, err error)
}

func documentLockKey(documentID string) string {
	return "lock:sign:document:" + documentID
}

func packageLockKey(packageID string) string {
	return "lock:sign:package:" + packageID
}
