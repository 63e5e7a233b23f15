package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Ivan-vtr/doc-sign-service/internal/domain"
)

const (
	minPasswordLength = 8
	tokenIssuer       = "doc-sign-service"
)

// RegisterInput はユーザー登録の入力。
type RegisterInput struct {
	Username    string
	Password    string
	Email       string
	IIN         string
	FullName    string
	SignerType  string
	BIN         string
	CompanyName string
}

// tokenClaims はJWTのクレーム。
type tokenClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// AuthService はユーザー登録とJWT認証を提供する。
type AuthService struct {
	users    UserRepository
	secret   []byte
	tokenTTL time.Duration
}

// NewAuthService は新しいAuthServiceを生成する。
func NewAuthService(users UserRepository, secret string, tokenTTL time.Duration) *AuthService {
	return &AuthService{
		users:    users,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
	}
}

// Register はユーザーを登録する。署名者情報はSignerIdentityの規則で検証する。
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", domain.ErrInvalidInput)
	}
	if len(in.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidInput, minPasswordLength)
	}
	if strings.TrimSpace(in.FullName) == "" {
		return nil, fmt.Errorf("%w: full name is required", domain.ErrInvalidInput)
	}

	signerType, err := domain.ParseSignerType(in.SignerType)
	if err != nil {
		return nil, err
	}
	signer, err := domain.NewSignerIdentity(in.IIN, strings.TrimSpace(in.FullName), signerType, in.BIN, in.CompanyName)
	if err != nil {
		return nil, err
	}

	exists, err := s.users.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("checking username: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrUserAlreadyExists, username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		Email:        strings.TrimSpace(in.Email),
		IIN:          signer.IIN,
		FullName:     signer.FullName,
		SignerType:   signer.Type,
		BIN:          signer.BIN,
		CompanyName:  signer.CompanyName,
		CreatedAt:    time.Now(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrUserAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return user, nil
}

// Login は認証に成功した場合にJWTを返す。
// ユーザーが存在しない場合とパスワード不一致はどちらもErrInvalidCredentials。
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return "", fmt.Errorf("finding user: %w", err)
	}
	if user == nil {
		return "", domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", domain.ErrInvalidCredentials
	}
	return s.issueToken(user.ID)
}

// Profile はユーザー情報を返す。
func (s *AuthService) Profile(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("finding user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUserNotFound, userID)
	}
	return user, nil
}

// SignerIdentity はユーザーのプロフィールから署名者情報を組み立てる。
func (s *AuthService) SignerIdentity(ctx context.Context, userID string) (domain.SignerIdentity, error) {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return domain.SignerIdentity{}, err
	}
	return user.SignerIdentity()
}

// VerifyToken はJWTを検証してユーザーIDを返す。
func (s *AuthService) VerifyToken(tokenString string) (string, error) {
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil || !token.Valid || claims.UserID == "" {
		return "", domain.ErrInvalidCredentials
	}
	return claims.UserID, nil
}

func (s *AuthService) issueToken(userID string) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}
