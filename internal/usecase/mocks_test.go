package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Ivan-vtr/doc-sign-service/internal/domain"
)

// mockDocumentRepository はテスト用のインメモリ実装。
type mockDocumentRepository struct {
	docs      map[string]*domain.Document
	findErr   error
	createErr error
	updateErr error
	updates   int
}

func newMockDocumentRepository(docs ...*domain.Document) *mockDocumentRepository {
	m := &mockDocumentRepository{docs: make(map[string]*domain.Document)}
	for _, d := range docs {
		cp := *d
		m.docs[d.ID] = &cp
	}
	return m
}

func (m *mockDocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	if m.createErr != nil {
		return m.createErr
	}
	cp := *doc
	m.docs[doc.ID] = &cp
	return nil
}

func (m *mockDocumentRepository) FindByID(ctx context.Context, id string) (*domain.Document, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	d, ok := m.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (m *mockDocumentRepository) FindByOwner(ctx context.Context, ownerID string) ([]*domain.Document, error) {
	var result []*domain.Document
	for _, d := range m.sorted() {
		if d.OwnerID == ownerID {
			result = append(result, d)
		}
	}
	return result, nil
}

func (m *mockDocumentRepository) FindByPackage(ctx context.Context, packageID string) ([]*domain.Document, error) {
	var result []*domain.Document
	for _, d := range m.sorted() {
		if d.PackageID == packageID {
			result = append(result, d)
		}
	}
	return result, nil
}

func (m *mockDocumentRepository) Update(ctx context.Context, doc *domain.Document) error {
	m.updates++
	if m.updateErr != nil {
		return m.updateErr
	}
	cp := *doc
	m.docs[doc.ID] = &cp
	return nil
}

func (m *mockDocumentRepository) Delete(ctx context.Context, id string) error {
	delete(m.docs, id)
	return nil
}

// sorted は作成日時、IDの順で並べたコピーを返す。
func (m *mockDocumentRepository) sorted() []*domain.Document {
	result := make([]*domain.Document, 0, len(m.docs))
	for _, d := range m.docs {
		cp := *d
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// mockSignatureRepository はテスト用の実装。
type mockSignatureRepository struct {
	sigs      []*domain.Signature
	createErr error
	updateErr error
}

func (m *mockSignatureRepository) Create(ctx context.Context, sig *domain.Signature) error {
	if m.createErr != nil {
		return m.createErr
	}
	cp := *sig
	m.sigs = append(m.sigs, &cp)
	return nil
}

func (m *mockSignatureRepository) UpdateStatus(ctx context.Context, sig *domain.Signature) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	for _, s := range m.sigs {
		if s.ID == sig.ID {
			s.Status = sig.Status
			s.SignedAt = sig.SignedAt
		}
	}
	return nil
}

func (m *mockSignatureRepository) FindByDocument(ctx context.Context, documentID string) ([]*domain.Signature, error) {
	var result []*domain.Signature
	for _, s := range m.sigs {
		if s.DocumentID == documentID {
			result = append(result, s)
		}
	}
	return result, nil
}

// mockPackageRepository はテスト用の実装。
// DocumentIDsは文書側のPackageIDから導出する。
type mockPackageRepository struct {
	pkgs      map[string]*domain.Package
	docs      *mockDocumentRepository
	updateErr error
}

func newMockPackageRepository(docs *mockDocumentRepository, pkgs ...*domain.Package) *mockPackageRepository {
	m := &mockPackageRepository{pkgs: make(map[string]*domain.Package), docs: docs}
	for _, p := range pkgs {
		cp := *p
		m.pkgs[p.ID] = &cp
	}
	return m
}

func (m *mockPackageRepository) Create(ctx context.Context, pkg *domain.Package) error {
	cp := *pkg
	m.pkgs[pkg.ID] = &cp
	return nil
}

func (m *mockPackageRepository) FindByID(ctx context.Context, id string) (*domain.Package, error) {
	p, ok := m.pkgs[id]
	if !ok {
		return nil, nil
	}
	return m.withDocuments(p), nil
}

func (m *mockPackageRepository) FindByOwner(ctx context.Context, ownerID string) ([]*domain.Package, error) {
	var result []*domain.Package
	for _, p := range m.pkgs {
		if p.OwnerID == ownerID {
			result = append(result, m.withDocuments(p))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *mockPackageRepository) Update(ctx context.Context, pkg *domain.Package) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	cp := *pkg
	m.pkgs[pkg.ID] = &cp
	return nil
}

func (m *mockPackageRepository) withDocuments(p *domain.Package) *domain.Package {
	cp := *p
	cp.DocumentIDs = nil
	if m.docs != nil {
		for _, d := range m.docs.sorted() {
			if d.PackageID == p.ID {
				cp.DocumentIDs = append(cp.DocumentIDs, d.ID)
			}
		}
	}
	return &cp
}

// mockUserRepository はテスト用の実装。
type mockUserRepository struct {
	users     map[string]*domain.User
	createErr error
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{users: make(map[string]*domain.User)}
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *mockUserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	u, err := m.FindByUsername(ctx, username)
	return u != nil, err
}

// mockStorage はテスト用のインメモリストレージ。
type mockStorage struct {
	files   map[string][]byte
	saveErr error
	// saveErrPrefix に一致するキーの保存だけ失敗させる
	saveErrPrefix string
	saves         int
}

func newMockStorage() *mockStorage {
	return &mockStorage{files: make(map[string][]byte)}
}

func (m *mockStorage) Save(ctx context.Context, key string, data []byte) (string, error) {
	m.saves++
	if m.saveErr != nil && (m.saveErrPrefix == "" || strings.HasPrefix(key, m.saveErrPrefix)) {
		return "", m.saveErr
	}
	m.files[key] = append([]byte(nil), data...)
	return key, nil
}

func (m *mockStorage) Read(ctx context.Context, key string) ([]byte, error) {
	data, ok := m.files[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrStorageNotFound, key)
	}
	return append([]byte(nil), data...), nil
}

func (m *mockStorage) Delete(ctx context.Context, key string) error {
	delete(m.files, key)
	return nil
}

func (m *mockStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := m.files[key]
	return ok, nil
}

// mockSigningClient はテスト用の署名プロバイダ。
type mockSigningClient struct {
	validateErr error
	session     *domain.QRSigningSession
	registerErr error
	sendErr     error
	signatures  []string
	pollErr     error
	sigexID     string
	// registerDocErr はタイトルごとにRegisterDocumentを失敗させる
	registerDocErr map[string]error
	uploadErr      error
	verified       bool
	verifyErr      error
	info           *domain.ProviderDocument

	descriptions []string
	sent         [][]domain.SigningDocument
	registered   []string
}

func newMockSigningClient() *mockSigningClient {
	return &mockSigningClient{
		session: &domain.QRSigningSession{
			ID:           "session-1",
			QRCodeBase64: "iVBORw0KGgo=",
			DataURL:      "https://sigex.test/api/egovQr/1",
			SignURL:      "https://sigex.test/api/egovQr/1/sign",
			Status:       domain.SignatureStatusPending,
		},
		sigexID:        "remote-1",
		registerDocErr: make(map[string]error),
	}
}

func (m *mockSigningClient) ValidateSession(session *domain.QRSigningSession) error {
	return m.validateErr
}

func (m *mockSigningClient) RegisterQRSigning(ctx context.Context, description string) (*domain.QRSigningSession, error) {
	m.descriptions = append(m.descriptions, description)
	if m.registerErr != nil {
		return nil, m.registerErr
	}
	cp := *m.session
	return &cp, nil
}

func (m *mockSigningClient) SendDataForSigning(ctx context.Context, session *domain.QRSigningSession, documents []domain.SigningDocument, attachData bool) error {
	m.sent = append(m.sent, documents)
	return m.sendErr
}

func (m *mockSigningClient) PollSignatures(ctx context.Context, session *domain.QRSigningSession) ([]string, error) {
	if m.pollErr != nil {
		return nil, m.pollErr
	}
	return m.signatures, nil
}

func (m *mockSigningClient) RegisterDocument(ctx context.Context, title, description, signature string) (string, error) {
	if err := m.registerDocErr[title]; err != nil {
		return "", err
	}
	m.registered = append(m.registered, title)
	return fmt.Sprintf("%s-%d", m.sigexID, len(m.registered)), nil
}

func (m *mockSigningClient) UploadDocumentData(ctx context.Context, sigexDocumentID string, data []byte) (map[string]any, error) {
	if m.uploadErr != nil {
		return nil, m.uploadErr
	}
	return map[string]any{}, nil
}

func (m *mockSigningClient) AddSignature(ctx context.Context, sigexDocumentID, signature string) (int64, error) {
	return 1, nil
}

func (m *mockSigningClient) VerifyDocument(ctx context.Context, sigexDocumentID string, data []byte) (bool, error) {
	return m.verified, m.verifyErr
}

func (m *mockSigningClient) GetDocumentInfo(ctx context.Context, sigexDocumentID string) (*domain.ProviderDocument, error) {
	return m.info, nil
}

// mockLocker はテスト用のロック。
type mockLocker struct {
	err error
	// held に含まれるキーは他の処理が保持中として扱う
	held     map[string]bool
	acquired []string
	released []string
}

func (m *mockLocker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.held[key] {
		return nil, domain.ErrSigningInProgress
	}
	m.acquired = append(m.acquired, key)
	return func(context.Context) error {
		m.released = append(m.released, key)
		return nil
	}, nil
}
