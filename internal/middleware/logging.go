// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"time"
)

// 監査対象の操作名。
const (
	OpRegisterUser           = "REGISTER_USER"
	OpUploadDocument         = "UPLOAD_DOCUMENT"
	OpDeleteDocument         = "DELETE_DOCUMENT"
	OpVerifyDocument         = "VERIFY_DOCUMENT"
	OpInitiateSigning        = "INITIATE_SIGNING"
	OpCompleteSigning        = "COMPLETE_SIGNING"
	OpCreatePackage          = "CREATE_PACKAGE"
	OpAddPackageDocument     = "ADD_PACKAGE_DOCUMENT"
	OpInitiatePackageSigning = "INITIATE_PACKAGE_SIGNING"
	OpCompletePackageSigning = "COMPLETE_PACKAGE_SIGNING"
)

// 監査ログの結果。
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// WriteAuditLog は状態を変更する操作ごとに監査ログを1行出力する。
// subjectIDは文書・パッケージ・ユーザーのいずれかのID。
func WriteAuditLog(ctx context.Context, operation, subjectID, ownerID, result string) {
	slog.InfoContext(ctx, "audit",
		"operation", operation,
		"subject_id", subjectID,
		"owner_id", ownerID,
		"result", result,
		"timestamp", time.Now().UTC().Format(time.RFC3339),
	)
}
