package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Ivan-vtr/doc-sign-service/internal/domain"
	"github.com/Ivan-vtr/doc-sign-service/pkg/httputil"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// 上から順に判定する。ラップ関係にあるものは具体的な方を先に置く。
var errorMappings = []errorMapping{
	{domain.ErrDocumentNotFound, http.StatusNotFound, "DOCUMENT_NOT_FOUND"},
	{domain.ErrPackageNotFound, http.StatusNotFound, "PACKAGE_NOT_FOUND"},
	{domain.ErrUserNotFound, http.StatusNotFound, "USER_NOT_FOUND"},
	{domain.ErrStorageNotFound, http.StatusNotFound, "FILE_NOT_FOUND"},
	{domain.ErrAccessDenied, http.StatusForbidden, "ACCESS_DENIED"},
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
	{domain.ErrUserAlreadyExists, http.StatusConflict, "USER_ALREADY_EXISTS"},
	{domain.ErrSigningInProgress, http.StatusConflict, "SIGNING_IN_PROGRESS"},
	{domain.ErrInvalidTransition, http.StatusConflict, "INVALID_STATE"},
	{domain.ErrUnsupportedMimeType, http.StatusBadRequest, "UNSUPPORTED_MIME_TYPE"},
	{domain.ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT"},
	{domain.ErrVerification, http.StatusUnprocessableEntity, "VERIFICATION_FAILED"},
	{domain.ErrSigningTimeout, http.StatusRequestTimeout, "SIGNING_TIMEOUT"},
	{domain.ErrSigningCancelled, http.StatusConflict, "SIGNING_CANCELLED"},
	{domain.ErrSigning, http.StatusBadGateway, "SIGNING_FAILED"},
}

// writeError はドメインエラーをHTTPステータスに変換して返す。
// 想定外のエラーは内容を隠して500にする。
func writeError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			httputil.Error(w, m.status, m.code, err.Error())
			return
		}
	}

	slog.ErrorContext(r.Context(), "unexpected error",
		"operation", operation,
		"error", err,
	)
	httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
}
