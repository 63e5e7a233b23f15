// Package handler はHTTPハンドラを提供する。
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Ivan-vtr/doc-sign-service/internal/domain"
	"github.com/Ivan-vtr/doc-sign-service/internal/middleware"
	"github.com/Ivan-vtr/doc-sign-service/internal/usecase"
	"github.com/Ivan-vtr/doc-sign-service/pkg/httputil"
)

// AuthUsecase はユーザー登録と認証のユースケース。
type AuthUsecase interface {
	Register(ctx context.Context, in usecase.RegisterInput) (*domain.User, error)
	Login(ctx context.Context, username, password string) (string, error)
	Profile(ctx context.Context, userID string) (*domain.User, error)
	SignerIdentity(ctx context.Context, userID string) (domain.SignerIdentity, error)
}

// DocumentUsecase は文書のユースケース。
type DocumentUsecase interface {
	Upload(ctx context.Context, in usecase.UploadInput) (*usecase.UploadResult, error)
	UploadMultiple(ctx context.Context, inputs []usecase.UploadInput) []usecase.UploadOutcome
	List(ctx context.Context, ownerID string) ([]usecase.DocumentSummary, error)
	Status(ctx context.Context, documentID, ownerID string) (*usecase.DocumentStatusResult, error)
	Download(ctx context.Context, documentID, ownerID string) (*usecase.FileDownload, error)
	DownloadSigned(ctx context.Context, documentID, ownerID string) (*usecase.FileDownload, error)
	DownloadSignature(ctx context.Context, documentID, ownerID string) (*usecase.FileDownload, error)
	Verify(ctx context.Context, documentID, ownerID string) (*usecase.VerificationResult, error)
	ProviderInfo(ctx context.Context, documentID, ownerID string) (*domain.ProviderDocument, error)
	Delete(ctx context.Context, documentID, ownerID string) error
}

// SigningUsecase はQR署名のユースケース。
type SigningUsecase interface {
	Initiate(ctx context.Context, documentID, ownerID string, signer domain.SignerIdentity) (*usecase.InitiateResult, error)
	Complete(ctx context.Context, in usecase.CompleteInput) (*usecase.CompleteResult, error)
	InitiatePackage(ctx context.Context, packageID, ownerID string, signer domain.SignerIdentity) (*usecase.InitiateResult, error)
	CompletePackage(ctx context.Context, in usecase.CompleteInput) (*usecase.PackageCompleteResult, error)
}

// PackageUsecase はパッケージのユースケース。
type PackageUsecase interface {
	Create(ctx context.Context, title, description, ownerID string) (*domain.Package, error)
	AddDocument(ctx context.Context, packageID, documentID, ownerID string) (*domain.Package, error)
	List(ctx context.Context, ownerID string) ([]usecase.PackageSummary, error)
	DownloadSigned(ctx context.Context, packageID, ownerID string) (*usecase.FileDownload, error)
}

// currentUser は認証済みユーザーのIDを返す。未認証なら401を書き込んでfalseを返す。
func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return "", false
	}
	return userID, true
}

// decodeJSON はリクエストボディをJSONとして読み込む。
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

func required(fields map[string]string) error {
	for name, value := range fields {
		if value == "" {
			return fmt.Errorf("%w: %s is required", domain.ErrInvalidInput, name)
		}
	}
	return nil
}
