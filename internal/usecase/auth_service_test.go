package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Ivan-vtr/doc-sign-service/internal/domain"
)

const testSecret = "test-secret"

func validRegisterInput() RegisterInput {
	return RegisterInput{
		Username:   "ivan",
		Password:   "password123",
		Email:      "ivan@example.kz",
		IIN:        "900101300123",
		FullName:   "Иванов Иван",
		SignerType: "individual",
	}
}

func TestAuthService_Register(t *testing.T) {
	ctx := context.Background()
	repo := newMockUserRepository()
	service := NewAuthService(repo, testSecret, time.Hour)

	user, err := service.Register(ctx, validRegisterInput())
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if user.ID == "" || user.PasswordHash == "" || user.PasswordHash == "password123" {
		t.Errorf("unexpected user: %+v", user)
	}
	if user.SignerType != domain.SignerTypeIndividual {
		t.Errorf("expected individual, got %s", user.SignerType)
	}

	if _, err := service.Register(ctx, validRegisterInput()); !errors.Is(err, domain.ErrUserAlreadyExists) {
		t.Errorf("expected ErrUserAlreadyExists, got %v", err)
	}
}

func TestAuthService_Register_Validation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(in *RegisterInput)
		wantErr error
	}{
		{"missing username", func(in *RegisterInput) { in.Username = " " }, domain.ErrInvalidInput},
		{"short password", func(in *RegisterInput) { in.Password = "short" }, domain.ErrInvalidInput},
		{"missing full name", func(in *RegisterInput) { in.FullName = "" }, domain.ErrInvalidInput},
		{"bad iin", func(in *RegisterInput) { in.IIN = "12345" }, domain.ErrInvalidIIN},
		{"unknown signer type", func(in *RegisterInput) { in.SignerType = "robot" }, domain.ErrInvalidInput},
		{"legal entity without bin", func(in *RegisterInput) {
			in.SignerType = "legal_entity"
			in.CompanyName = "ТОО Ромашка"
		}, domain.ErrInvalidBIN},
		{"legal entity without company", func(in *RegisterInput) {
			in.SignerType = "legal_entity"
			in.BIN = "123456789012"
		}, domain.ErrCompanyNameRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockUserRepository()
			service := NewAuthService(repo, testSecret, time.Hour)
			in := validRegisterInput()
			tt.modify(&in)

			if _, err := service.Register(context.Background(), in); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if len(repo.users) != 0 {
				t.Error("no user must be created")
			}
		})
	}
}

func TestAuthService_Register_LegalEntity(t *testing.T) {
	service := NewAuthService(newMockUserRepository(), testSecret, time.Hour)
	in := validRegisterInput()
	in.SignerType = "legal_entity"
	in.BIN = "123456789012"
	in.CompanyName = "ТОО Ромашка"

	user, err := service.Register(context.Background(), in)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	signer, err := user.SignerIdentity()
	if err != nil {
		t.Fatalf("SignerIdentity failed: %v", err)
	}
	if !signer.IsLegalEntity() || signer.BIN != "123456789012" || signer.CompanyName != "ТОО Ромашка" {
		t.Errorf("unexpected signer: %+v", signer)
	}
}

func TestAuthService_LoginAndVerify(t *testing.T) {
	ctx := context.Background()
	service := NewAuthService(newMockUserRepository(), testSecret, time.Hour)
	user, err := service.Register(ctx, validRegisterInput())
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	token, err := service.Login(ctx, "ivan", "password123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	userID, err := service.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}
	if userID != user.ID {
		t.Errorf("expected user %s, got %s", user.ID, userID)
	}

	if _, err := service.Login(ctx, "ivan", "wrong-password"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := service.Login(ctx, "nobody", "password123"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestAuthService_VerifyToken_Rejects(t *testing.T) {
	service := NewAuthService(newMockUserRepository(), testSecret, time.Hour)

	sign := func(secret string, claims tokenClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		if err != nil {
			t.Fatalf("failed to sign token: %v", err)
		}
		return s
	}
	valid := jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		Issuer:    tokenIssuer,
	}
	expired := jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		Issuer:    tokenIssuer,
	}

	tests := map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": sign("other-secret", tokenClaims{UserID: "u1", RegisteredClaims: valid}),
		"expired":      sign(testSecret, tokenClaims{UserID: "u1", RegisteredClaims: expired}),
		"no user":      sign(testSecret, tokenClaims{RegisteredClaims: valid}),
		"wrong issuer": sign(testSecret, tokenClaims{UserID: "u1", RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone"}}),
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := service.VerifyToken(token); !errors.Is(err, domain.ErrInvalidCredentials) {
				t.Errorf("expected ErrInvalidCredentials, got %v", err)
			}
		})
	}
}

func TestAuthService_SignerIdentity(t *testing.T) {
	ctx := context.Background()
	service := NewAuthService(newMockUserRepository(), testSecret, time.Hour)
	user, err := service.Register(ctx, validRegisterInput())
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	signer, err := service.SignerIdentity(ctx, user.ID)
	if err != nil {
		t.Fatalf("SignerIdentity failed: %v", err)
	}
	if signer.IIN != "900101300123" || signer.FullName != "Иванов Иван" {
		t.Errorf("unexpected signer: %+v", signer)
	}

	if _, err := service.SignerIdentity(ctx, "missing"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}
