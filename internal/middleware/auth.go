package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Ivan-vtr/doc-sign-service/pkg/httputil"
)

type contextKey string

const userIDKey contextKey = "userID"

// TokenVerifier はBearerトークンを検証してユーザーIDを返す。
type TokenVerifier interface {
	VerifyToken(token string) (string, error)
}

// Authenticator はAuthorizationヘッダーのJWTを検証し、ユーザーIDをコンテキストに格納する。
func Authenticator(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				httputil.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
				return
			}

			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
				httputil.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid authorization header")
				return
			}

			userID, err := verifier.VerifyToken(token)
			if err != nil {
				slog.DebugContext(r.Context(), "token rejected", "error", err)
				httputil.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// WithUserID はユーザーIDを格納したコンテキストを返す。
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext はコンテキストからユーザーIDを取り出す。
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok && userID != ""
}
