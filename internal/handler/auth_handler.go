package handler

import (
	"net/http"

	"github.com/Ivan-vtr/doc-sign-service/internal/middleware"
	"github.com/Ivan-vtr/doc-sign-service/internal/usecase"
	"github.com/Ivan-vtr/doc-sign-service/pkg/httputil"
)

// AuthHandler はユーザー登録と認証のHTTPハンドラ。
type AuthHandler struct {
	auth AuthUsecase
}

// NewAuthHandler は新しいAuthHandlerを生成する。
func NewAuthHandler(auth AuthUsecase) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type registerRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	Email       string `json:"email"`
	IIN         string `json:"iin"`
	FullName    string `json:"full_name"`
	SignerType  string `json:"signer_type"`
	BIN         string `json:"bin"`
	CompanyName string `json:"company_name"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse はログイン結果のレスポンス形式。
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Register はユーザーを登録する。
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "register", err)
		return
	}

	user, err := h.auth.Register(r.Context(), usecase.RegisterInput{
		Username:    req.Username,
		Password:    req.Password,
		Email:       req.Email,
		IIN:         req.IIN,
		FullName:    req.FullName,
		SignerType:  req.SignerType,
		BIN:         req.BIN,
		CompanyName: req.CompanyName,
	})
	if err != nil {
		middleware.WriteAuditLog(r.Context(), middleware.OpRegisterUser, req.Username, "", middleware.ResultFailure)
		writeError(w, r, "register", err)
		return
	}

	middleware.WriteAuditLog(r.Context(), middleware.OpRegisterUser, user.ID, user.ID, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusCreated, newProfileResponse(user))
}

// Login は認証してアクセストークンを返す。
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "login", err)
		return
	}

	token, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, "login", err)
		return
	}
	httputil.JSON(w, http.StatusOK, TokenResponse{AccessToken: token, TokenType: "Bearer"})
}

// Profile は認証済みユーザーのプロフィールを返す。
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	user, err := h.auth.Profile(r.Context(), userID)
	if err != nil {
		writeError(w, r, "profile", err)
		return
	}
	httputil.JSON(w, http.StatusOK, newProfileResponse(user))
}
