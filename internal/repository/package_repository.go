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

// PackageModel はgorm用のモデル定義。
// 所属文書はdocuments.package_idで管理する。
type PackageModel struct {
	ID          string    `gorm:"size:36;primaryKey"`
	Title       string    `gorm:"size:255;not null"`
	Description string    `gorm:"type:text"`
	Status      string    `gorm:"size:20;not null;default:'draft'"`
	OwnerID     string    `gorm:"size:36;not null;index:idx_packages_owner"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (PackageModel) TableName() string {
	return "packages"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *PackageModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *PackageModel) toDomain(documentIDs []string) *domain.Package {
	return &domain.Package{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		Status:      domain.PackageStatus(m.Status),
		OwnerID:     m.OwnerID,
		DocumentIDs: documentIDs,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// PackageRepository はパッケージのデータアクセスを提供する。
type PackageRepository struct {
	db *gorm.DB
}

// NewPackageRepository は新しいPackageRepositoryを生成する。
func NewPackageRepository(db *gorm.DB) *PackageRepository {
	return &PackageRepository{db: db}
}

// Create は新しいパッケージを保存する。
func (r *PackageRepository) Create(ctx context.Context, pkg *domain.Package) error {
	model := &PackageModel{
		ID:          pkg.ID,
		Title:       pkg.Title,
		Description: pkg.Description,
		Status:      string(pkg.Status),
		OwnerID:     pkg.OwnerID,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create package",
			"operation", "create_package",
			"owner_id", pkg.OwnerID,
			"error", err,
		)
		return err
	}
	pkg.ID = model.ID
	pkg.CreatedAt = model.CreatedAt
	pkg.UpdatedAt = model.UpdatedAt
	return nil
}

// FindByID は指定されたIDのパッケージを所属文書IDとともに取得する。存在しない場合はnilを返す。
func (r *PackageRepository) FindByID(ctx context.Context, id string) (*domain.Package, error) {
	var model PackageModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find package",
			"operation", "find_package_by_id",
			"package_id", id,
			"error", err,
		)
		return nil, err
	}

	ids, err := r.documentIDs(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	return model.toDomain(ids[id]), nil
}

// FindByOwner は所有者のパッケージを新しい順に取得する。
func (r *PackageRepository) FindByOwner(ctx context.Context, ownerID string) ([]*domain.Package, error) {
	var models []PackageModel
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find packages by owner",
			"operation", "find_packages_by_owner",
			"owner_id", ownerID,
			"error", err,
		)
		return nil, err
	}

	pkgIDs := make([]string, len(models))
	for i := range models {
		pkgIDs[i] = models[i].ID
	}
	ids, err := r.documentIDs(ctx, pkgIDs)
	if err != nil {
		return nil, err
	}

	pkgs := make([]*domain.Package, len(models))
	for i := range models {
		pkgs[i] = models[i].toDomain(ids[models[i].ID])
	}
	return pkgs, nil
}

// Update はパッケージの属性を保存する。所属文書は文書側で更新する。
func (r *PackageRepository) Update(ctx context.Context, pkg *domain.Package) error {
	err := r.db.WithContext(ctx).
		Model(&PackageModel{}).
		Where("id = ?", pkg.ID).
		Updates(map[string]any{
			"title":       pkg.Title,
			"description": pkg.Description,
			"status":      string(pkg.Status),
			"updated_at":  time.Now(),
		}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to update package",
			"operation", "update_package",
			"package_id", pkg.ID,
			"status", pkg.Status,
			"error", err,
		)
		return err
	}
	return nil
}

// documentIDs はパッケージごとの所属文書IDを追加順に取得する。
func (r *PackageRepository) documentIDs(ctx context.Context, packageIDs []string) (map[string][]string, error) {
	result := make(map[string][]string, len(packageIDs))
	if len(packageIDs) == 0 {
		return result, nil
	}

	var rows []struct {
		ID        string
		PackageID string
	}
	err := r.db.WithContext(ctx).
		Model(&DocumentModel{}).
		Select("id, package_id").
		Where("package_id IN ?", packageIDs).
		Order(packageOrder).
		Scan(&rows).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find package documents",
			"operation", "find_package_document_ids",
			"error", err,
		)
		return nil, err
	}
	for _, row := range rows {
		result[row.PackageID] = append(result[row.PackageID], row.ID)
	}
	return result, nil
}
