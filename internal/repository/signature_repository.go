package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Ivan-vtr/doc-sign-service/internal/domain"
)

// SignatureModel はgorm用のモデル定義。
type SignatureModel struct {
	ID            string     `gorm:"size:36;primaryKey"`
	DocumentID    string     `gorm:"size:36;not null;index:idx_signatures_document"`
	SignerIIN     string     `gorm:"column:signer_iin;size:12;not null"`
	SignerName    string     `gorm:"size:255;not null"`
	SignerType    string     `gorm:"size:20;not null;default:'individual'"`
	SignerBIN     string     `gorm:"column:signer_bin;size:12;not null;default:''"`
	SignerCompany string     `gorm:"size:255;not null;default:''"`
	SignatureData string     `gorm:"type:text;not null"`
	SigexSignID   *int64     `gorm:"column:sigex_sign_id"`
	Status        string     `gorm:"size:20;not null;default:'pending'"`
	SignedAt      *time.Time `gorm:"column:signed_at"`
	CreatedAt     time.Time  `gorm:"not null;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (SignatureModel) TableName() string {
	return "signatures"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *SignatureModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *SignatureModel) toDomain() *domain.Signature {
	return &domain.Signature{
		ID:            m.ID,
		DocumentID:    m.DocumentID,
		SignerIIN:     m.SignerIIN,
		SignerName:    m.SignerName,
		SignerType:    domain.SignerType(m.SignerType),
		SignerBIN:     m.SignerBIN,
		SignerCompany: m.SignerCompany,
		SignatureData: m.SignatureData,
		SigexSignID:   m.SigexSignID,
		Status:        domain.SignatureStatus(m.Status),
		SignedAt:      m.SignedAt,
		CreatedAt:     m.CreatedAt,
	}
}

// SignatureRepository は署名レコードのデータアクセスを提供する。
type SignatureRepository struct {
	db *gorm.DB
}

// NewSignatureRepository は新しいSignatureRepositoryを生成する。
func NewSignatureRepository(db *gorm.DB) *SignatureRepository {
	return &SignatureRepository{db: db}
}

// Create は署名レコードを保存する。
func (r *SignatureRepository) Create(ctx context.Context, sig *domain.Signature) error {
	model := &SignatureModel{
		ID:            sig.ID,
		DocumentID:    sig.DocumentID,
		SignerIIN:     sig.SignerIIN,
		SignerName:    sig.SignerName,
		SignerType:    string(sig.SignerType),
		SignerBIN:     sig.SignerBIN,
		SignerCompany: sig.SignerCompany,
		SignatureData: sig.SignatureData,
		SigexSignID:   sig.SigexSignID,
		Status:        string(sig.Status),
		SignedAt:      sig.SignedAt,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create signature",
			"operation", "create_signature",
			"document_id", sig.DocumentID,
			"error", err,
		)
		return err
	}
	sig.ID = model.ID
	sig.CreatedAt = model.CreatedAt
	return nil
}

// FindByDocument は文書の署名を作成順に取得する。
func (r *SignatureRepository) FindByDocument(ctx context.Context, documentID string) ([]*domain.Signature, error) {
	var models []SignatureModel
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find signatures",
			"operation", "find_signatures_by_document",
			"document_id", documentID,
			"error", err,
		)
		return nil, err
	}

	sigs := make([]*domain.Signature, len(models))
	for i := range models {
		sigs[i] = models[i].toDomain()
	}
	return sigs, nil
}

// UpdateStatus は署名レコードの状態と署名日時を更新する。
func (r *SignatureRepository) UpdateStatus(ctx context.Context, sig *domain.Signature) error {
	err := r.db.WithContext(ctx).
		Model(&SignatureModel{}).
		Where("id = ?", sig.ID).
		Updates(map[string]any{
			"status":    string(sig.Status),
			"signed_at": sig.SignedAt,
		}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to update signature",
			"operation", "update_signature_status",
			"signature_id", sig.ID,
			"status", sig.Status,
			"error", err,
		)
		return err
	}
	return nil
}
