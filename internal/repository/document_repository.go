// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Ivan-vtr/doc-sign-service/internal/domain"
)

// DocumentModel はgorm用のモデル定義。
type DocumentModel struct {
	ID                string    `gorm:"size:36;primaryKey"`
	Title             string    `gorm:"size:255;not null"`
	Filename          string    `gorm:"size:255;not null"`
	MIMEType          string    `gorm:"column:mime_type;size:100;not null"`
	FileSize          int64     `gorm:"not null"`
	FilePath          string    `gorm:"size:500;not null"`
	SHA256            string    `gorm:"column:sha256;size:64;not null"`
	Status            string    `gorm:"size:20;not null;default:'uploaded';index:idx_documents_status"`
	SigexDocumentID   string    `gorm:"size:255;not null;default:''"`
	SignedFilePath    string    `gorm:"size:500;not null;default:''"`
	SignatureFilePath string    `gorm:"size:500;not null;default:''"`
	ErrorMessage      string    `gorm:"type:text"`
	OwnerID           string    `gorm:"size:36;not null;index:idx_documents_owner"`
	PackageID         *string   `gorm:"size:36;index:idx_documents_package"`
	PackageAddedAt    *time.Time
	CreatedAt         time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (DocumentModel) TableName() string {
	return "documents"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *DocumentModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *DocumentModel) toDomain() *domain.Document {
	d := &domain.Document{
		ID:                m.ID,
		Title:             m.Title,
		Filename:          m.Filename,
		MIMEType:          m.MIMEType,
		FileSize:          m.FileSize,
		FilePath:          m.FilePath,
		SHA256:            m.SHA256,
		Status:            domain.DocumentStatus(m.Status),
		SigexDocumentID:   m.SigexDocumentID,
		SignedFilePath:    m.SignedFilePath,
		SignatureFilePath: m.SignatureFilePath,
		ErrorMessage:      m.ErrorMessage,
		OwnerID:           m.OwnerID,
		PackageAddedAt:    m.PackageAddedAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
	if m.PackageID != nil {
		d.PackageID = *m.PackageID
	}
	return d
}

func documentFromDomain(d *domain.Document) *DocumentModel {
	m := &DocumentModel{
		ID:                d.ID,
		Title:             d.Title,
		Filename:          d.Filename,
		MIMEType:          d.MIMEType,
		FileSize:          d.FileSize,
		FilePath:          d.FilePath,
		SHA256:            d.SHA256,
		Status:            string(d.Status),
		SigexDocumentID:   d.SigexDocumentID,
		SignedFilePath:    d.SignedFilePath,
		SignatureFilePath: d.SignatureFilePath,
		ErrorMessage:      d.ErrorMessage,
		OwnerID:           d.OwnerID,
		PackageAddedAt:    d.PackageAddedAt,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
	if d.PackageID != "" {
		pkgID := d.PackageID
		m.PackageID = &pkgID
	}
	return m
}

// packageOrder はパッケージ内の文書の並び順。追加日時のない行は作成日時で並べる。
const packageOrder = "COALESCE(package_added_at, created_at) ASC, id ASC"

// DocumentRepository は文書のデータアクセスを提供する。
type DocumentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository は新しいDocumentRepositoryを生成する。
func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create は新しい文書を保存する。IDが未設定の場合は採番する。
func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	model := documentFromDomain(doc)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create document",
			"operation", "create_document",
			"document_id", doc.ID,
			"error", err,
		)
		return err
	}
	// gormで設定された値をドメインエンティティに反映
	doc.ID = model.ID
	doc.CreatedAt = model.CreatedAt
	doc.UpdatedAt = model.UpdatedAt
	return nil
}

// FindByID は指定されたIDの文書を取得する。存在しない場合はnilを返す。
func (r *DocumentRepository) FindByID(ctx context.Context, id string) (*domain.Document, error) {
	var model DocumentModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find document",
			"operation", "find_document_by_id",
			"document_id", id,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindByOwner は所有者の文書を新しい順に取得する。
func (r *DocumentRepository) FindByOwner(ctx context.Context, ownerID string) ([]*domain.Document, error) {
	var models []DocumentModel
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find documents by owner",
			"operation", "find_documents_by_owner",
			"owner_id", ownerID,
			"error", err,
		)
		return nil, err
	}
	return toDomainDocuments(models), nil
}

// FindByPackage はパッケージに属する文書を追加順に取得する。
func (r *DocumentRepository) FindByPackage(ctx context.Context, packageID string) ([]*domain.Document, error) {
	var models []DocumentModel
	err := r.db.WithContext(ctx).
		Where("package_id = ?", packageID).
		Order(packageOrder).
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find documents by package",
			"operation", "find_documents_by_package",
			"package_id", packageID,
			"error", err,
		)
		return nil, err
	}
	return toDomainDocuments(models), nil
}

// Update は文書の全フィールドを保存する。
func (r *DocumentRepository) Update(ctx context.Context, doc *domain.Document) error {
	model := documentFromDomain(doc)
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to update document",
			"operation", "update_document",
			"document_id", doc.ID,
			"status", doc.Status,
			"error", err,
		)
		return err
	}
	doc.UpdatedAt = model.UpdatedAt
	return nil
}

// Delete は文書とその署名を削除する。
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&SignatureModel{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&DocumentModel{}).Error
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to delete document",
			"operation", "delete_document",
			"document_id", id,
			"error", err,
		)
		return err
	}
	return nil
}

func toDomainDocuments(models []DocumentModel) []*domain.Document {
	docs := make([]*domain.Document, len(models))
	for i := range models {
		docs[i] = models[i].toDomain()
	}
	return docs
}
