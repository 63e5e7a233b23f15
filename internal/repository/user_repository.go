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

// UserModel はgorm用のモデル定義。
type UserModel struct {
	ID           string    `gorm:"size:36;primaryKey"`
	Username     string    `gorm:"size:150;not null;uniqueIndex:uk_users_username"`
	PasswordHash string    `gorm:"size:255;not null"`
	Email        string    `gorm:"size:255;not null;default:''"`
	IIN          string    `gorm:"column:iin;size:12;not null"`
	FullName     string    `gorm:"size:255;not null"`
	SignerType   string    `gorm:"size:20;not null;default:'individual'"`
	BIN          string    `gorm:"column:bin;size:12;not null;default:''"`
	CompanyName  string    `gorm:"size:255;not null;default:''"`
	CreatedAt    time.Time `gorm:"not null;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (UserModel) TableName() string {
	return "users"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *UserModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *UserModel) toDomain() *domain.User {
	return &domain.User{
		ID:           m.ID,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		Email:        m.Email,
		IIN:          m.IIN,
		FullName:     m.FullName,
		SignerType:   domain.SignerType(m.SignerType),
		BIN:          m.BIN,
		CompanyName:  m.CompanyName,
		CreatedAt:    m.CreatedAt,
	}
}

// UserRepository はユーザーのデータアクセスを提供する。
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository は新しいUserRepositoryを生成する。
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create は新しいユーザーを保存する。ユーザー名が重複する場合はErrUserAlreadyExistsを返す。
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	model := &UserModel{
		ID:           user.ID,
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		Email:        user.Email,
		IIN:          user.IIN,
		FullName:     user.FullName,
		SignerType:   string(user.SignerType),
		BIN:          user.BIN,
		CompanyName:  user.CompanyName,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrUserAlreadyExists
		}
		slog.ErrorContext(ctx, "failed to create user",
			"operation", "create_user",
			"username", user.Username,
			"error", err,
		)
		return err
	}
	user.ID = model.ID
	user.CreatedAt = model.CreatedAt
	return nil
}

// FindByID は指定されたIDのユーザーを取得する。存在しない場合はnilを返す。
func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, "find_user_by_id", "id = ?", id)
}

// FindByUsername は指定されたユーザー名のユーザーを取得する。存在しない場合はnilを返す。
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findOne(ctx, "find_user_by_username", "username = ?", username)
}

// ExistsByUsername はユーザー名が使用済みか確認する。
func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&UserModel{}).
		Where("username = ?", username).
		Count(&count).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to count users by username",
			"operation", "exists_by_username",
			"username", username,
			"error", err,
		)
		return false, err
	}
	return count > 0, nil
}

func (r *UserRepository) findOne(ctx context.Context, operation, query string, arg any) (*domain.User, error) {
	var model UserModel
	err := r.db.WithContext(ctx).Where(query, arg).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find user",
			"operation", operation,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}
