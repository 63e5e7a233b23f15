package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDocumentNotFound は指定された文書が存在しない場合のエラー。
	ErrDocumentNotFound = errors.New("document not found")

	// ErrPackageNotFound は指定されたパッケージが存在しない場合のエラー。
	ErrPackageNotFound = errors.New("package not found")

	// ErrUserNotFound は指定されたユーザーが存在しない場合のエラー。
	ErrUserNotFound = errors.New("user not found")

	// ErrAccessDenied は所有者以外がリソースにアクセスした場合のエラー。
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidInput は入力値が不正な場合のエラー。
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedMimeType は許可されていないMIMEタイプの場合のエラー。
	ErrUnsupportedMimeType = fmt.Errorf("%w: unsupported file type", ErrInvalidInput)

	// ErrInvalidIIN はIINが12桁の数字でない場合のエラー。
	ErrInvalidIIN = fmt.Errorf("%w: IIN must be a 12-digit string", ErrInvalidInput)

	// ErrInvalidBIN は法人のBINが12桁の数字でない場合のエラー。
	ErrInvalidBIN = fmt.Errorf("%w: BIN must be a 12-digit string for legal entities", ErrInvalidInput)

	// ErrCompanyNameRequired は法人の会社名が空の場合のエラー。
	ErrCompanyNameRequired = fmt.Errorf("%w: company name is required for legal entities", ErrInvalidInput)

	// ErrEmptyPackage は署名対象の文書を含まないパッケージの場合のエラー。
	ErrEmptyPackage = fmt.Errorf("%w: package has no documents", ErrInvalidInput)

	// ErrInvalidTransition は状態遷移が許可されていない場合のエラー。
	ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", ErrInvalidInput)

	// ErrSigning は署名処理のエラー。タイムアウトとキャンセルもこれをラップする。
	ErrSigning = errors.New("signing failed")

	// ErrSigningTimeout は利用者が時間内に署名しなかった場合のエラー。
	ErrSigningTimeout = fmt.Errorf("%w: timed out", ErrSigning)

	// ErrSigningCancelled は利用者が署名をキャンセルした場合のエラー。
	ErrSigningCancelled = fmt.Errorf("%w: cancelled", ErrSigning)

	// ErrSigningInProgress は同じ対象の署名が既に進行中の場合のエラー。
	ErrSigningInProgress = errors.New("signing already in progress")

	// ErrVerification はプロバイダ側の検証に失敗した場合のエラー。
	ErrVerification = errors.New("verification failed")

	// ErrStorage はファイルストレージ操作のエラー。
	ErrStorage = errors.New("storage error")

	// ErrStorageNotFound は指定パスにファイルが存在しない場合のエラー。
	ErrStorageNotFound = fmt.Errorf("%w: file not found", ErrStorage)

	// ErrUserAlreadyExists はユーザー名が既に使われている場合のエラー。
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrInvalidCredentials はユーザー名またはパスワードが誤っている場合のエラー。
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrMigrationFileNotFound はマイグレーションファイルが見つからない場合のエラー。
	ErrMigrationFileNotFound = errors.New("migration file not found")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)
