package repository

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Ivan-vtr/doc-sign-service/internal/domain"
)

// setupTestDB はテスト用のインメモリSQLiteデータベースを作成する。
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	// インメモリDBは接続ごとに別になるため1接続に固定
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&UserModel{}, &PackageModel{}, &DocumentModel{}, &SignatureModel{}, &SchemaMigrationModel{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func newTestDocument(ownerID, packageID string) *domain.Document {
	return &domain.Document{
		Title:     "Contract",
		Filename:  "contract.pdf",
		MIMEType:  domain.MIMETypePDF,
		FileSize:  9,
		FilePath:  "documents/x/contract.pdf",
		SHA256:    domain.ComputeSHA256([]byte("%PDF-1.4\n")),
		Status:    domain.DocumentStatusUploaded,
		OwnerID:   ownerID,
		PackageID: packageID,
	}
}
