package handler

import (
	"context"

	"github.com/go-chi/chi/v5"

	"github.com/Ivan-vtr/doc-sign-service/internal/domain"
	"github.com/Ivan-vtr/doc-sign-service/internal/middleware"
	"github.com/Ivan-vtr/doc-sign-service/internal/usecase"
)

const testUser = "user-1"

var testSigner = domain.SignerIdentity{
	IIN:      "900101300123",
	FullName: "Иванов Иван",
	Type:     domain.SignerTypeIndividual,
}

// withRoute はchiのURLパラメータと認証済みユーザーをコンテキストに設定する。
func withRoute(ctx context.Context, params map[string]string) context.Context {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	return middleware.WithUserID(ctx, testUser)
}

// mockAuthUsecase はテスト用のモック認証ユースケース。
type mockAuthUsecase struct {
	user        *domain.User
	registerErr error
	token       string
	loginErr    error
	profileErr  error
	signerErr   error
	registered  []usecase.RegisterInput
}

func (m *mockAuthUsecase) Register(ctx context.Context, in usecase.RegisterInput) (*domain.User, error) {
	m.registered = append(m.registered, in)
	if m.registerErr != nil {
		return nil, m.registerErr
	}
	return m.user, nil
}

func (m *mockAuthUsecase) Login(ctx context.Context, username, password string) (string, error) {
	return m.token, m.loginErr
}

func (m *mockAuthUsecase) Profile(ctx context.Context, userID string) (*domain.User, error) {
	if m.profileErr != nil {
		return nil, m.profileErr
	}
	return m.user, nil
}

func (m *mockAuthUsecase) SignerIdentity(ctx context.Context, userID string) (domain.SignerIdentity, error) {
	if m.signerErr != nil {
		return domain.SignerIdentity{}, m.signerErr
	}
	return testSigner, nil
}

// mockDocumentUsecase はテスト用のモック文書ユースケース。
type mockDocumentUsecase struct {
	uploadResult *usecase.UploadResult
	uploadErr    error
	uploads      []usecase.UploadInput
	summaries    []usecase.DocumentSummary
	status       *usecase.DocumentStatusResult
	file         *usecase.FileDownload
	verification *usecase.VerificationResult
	provider     *domain.ProviderDocument
	err          error
	deleted      []string
}

func (m *mockDocumentUsecase) Upload(ctx context.Context, in usecase.UploadInput) (*usecase.UploadResult, error) {
	m.uploads = append(m.uploads, in)
	if m.uploadErr != nil {
		return nil, m.uploadErr
	}
	return m.uploadResult, nil
}

func (m *mockDocumentUsecase) UploadMultiple(ctx context.Context, inputs []usecase.UploadInput) []usecase.UploadOutcome {
	outcomes := make([]usecase.UploadOutcome, len(inputs))
	for i, in := range inputs {
		m.uploads = append(m.uploads, in)
		outcomes[i] = usecase.UploadOutcome{Filename: in.Filename}
		if !domain.IsAllowedMIMEType(in.MIMEType) {
			outcomes[i].Err = domain.ErrUnsupportedMimeType
			continue
		}
		outcomes[i].Result = &usecase.UploadResult{
			DocumentID: "doc-" + in.Filename,
			Title:      in.Title,
			Filename:   in.Filename,
			Status:     domain.DocumentStatusUploaded,
		}
	}
	return outcomes
}

func (m *mockDocumentUsecase) List(ctx context.Context, ownerID string) ([]usecase.DocumentSummary, error) {
	return m.summaries, m.err
}

func (m *mockDocumentUsecase) Status(ctx context.Context, documentID, ownerID string) (*usecase.DocumentStatusResult, error) {
	return m.status, m.err
}

func (m *mockDocumentUsecase) Download(ctx context.Context, documentID, ownerID string) (*usecase.FileDownload, error) {
	return m.file, m.err
}

func (m *mockDocumentUsecase) DownloadSigned(ctx context.Context, documentID, ownerID string) (*usecase.FileDownload, error) {
	return m.file, m.err
}

func (m *mockDocumentUsecase) DownloadSignature(ctx context.Context, documentID, ownerID string) (*usecase.FileDownload, error) {
	return m.file, m.err
}

func (m *mockDocumentUsecase) Verify(ctx context.Context, documentID, ownerID string) (*usecase.VerificationResult, error) {
	return m.verification, m.err
}

func (m *mockDocumentUsecase) ProviderInfo(ctx context.Context, documentID, ownerID string) (*domain.ProviderDocument, error) {
	return m.provider, m.err
}

func (m *mockDocumentUsecase) Delete(ctx context.Context, documentID, ownerID string) error {
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, documentID)
	return nil
}

// mockSigningUsecase はテスト用のモック署名ユースケース。
type mockSigningUsecase struct {
	initiate       *usecase.InitiateResult
	complete       *usecase.CompleteResult
	packageResult  *usecase.PackageCompleteResult
	err            error
	completeInputs []usecase.CompleteInput
	signers        []domain.SignerIdentity
}

func (m *mockSigningUsecase) Initiate(ctx context.Context, documentID, ownerID string, signer domain.SignerIdentity) (*usecase.InitiateResult, error) {
	m.signers = append(m.signers, signer)
	return m.initiate, m.err
}

func (m *mockSigningUsecase) Complete(ctx context.Context, in usecase.CompleteInput) (*usecase.CompleteResult, error) {
	m.completeInputs = append(m.completeInputs, in)
	return m.complete, m.err
}

func (m *mockSigningUsecase) InitiatePackage(ctx context.Context, packageID, ownerID string, signer domain.SignerIdentity) (*usecase.InitiateResult, error) {
	m.signers = append(m.signers, signer)
	return m.initiate, m.err
}

func (m *mockSigningUsecase) CompletePackage(ctx context.Context, in usecase.CompleteInput) (*usecase.PackageCompleteResult, error) {
	m.completeInputs = append(m.completeInputs, in)
	return m.packageResult, m.err
}

// mockPackageUsecase はテスト用のモックパッケージユースケース。
type mockPackageUsecase struct {
	pkg       *domain.Package
	summaries []usecase.PackageSummary
	file      *usecase.FileDownload
	err       error
}

func (m *mockPackageUsecase) Create(ctx context.Context, title, description, ownerID string) (*domain.Package, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.Package{ID: "pkg-1", Title: title, Description: description, OwnerID: ownerID, Status: domain.PackageStatusDraft}, nil
}

func (m *mockPackageUsecase) AddDocument(ctx context.Context, packageID, documentID, ownerID string) (*domain.Package, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.pkg.AddDocument(documentID)
	return m.pkg, nil
}

func (m *mockPackageUsecase) List(ctx context.Context, ownerID string) ([]usecase.PackageSummary, error) {
	return m.summaries, m.err
}

func (m *mockPackageUsecase) DownloadSigned(ctx context.Context, packageID, ownerID string) (*usecase.FileDownload, error) {
	return m.file, m.err
}
