package handler

import (
	"net/http"

	"github.com/Ivan-vtr/doc-sign-service/internal/domain"
	"github.com/Ivan-vtr/doc-sign-service/internal/middleware"
	"github.com/Ivan-vtr/doc-sign-service/internal/usecase"
	"github.com/Ivan-vtr/doc-sign-service/pkg/httputil"
)

// SigningHandler はQR署名のHTTPハンドラ。
type SigningHandler struct {
	signing SigningUsecase
	auth    AuthUsecase
}

// NewSigningHandler は新しいSigningHandlerを生成する。
func NewSigningHandler(signing SigningUsecase, auth AuthUsecase) *SigningHandler {
	return &SigningHandler{signing: signing, auth: auth}
}

type initiateRequest struct {
	DocumentID string `json:"document_id"`
	PackageID  string `json:"package_id"`
}

type completeRequest struct {
	DocumentID string `json:"document_id"`
	PackageID  string `json:"package_id"`
	SessionID  string `json:"session_id"`
	DataURL    string `json:"data_url"`
	SignURL    string `json:"sign_url"`
}

// Initiate は文書のQR署名を開始する。
func (h *SigningHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req initiateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "initiate_signing", err)
		return
	}
	if err := required(map[string]string{"document_id": req.DocumentID}); err != nil {
		writeError(w, r, "initiate_signing", err)
		return
	}

	signer, err := h.auth.SignerIdentity(r.Context(), userID)
	if err != nil {
		writeError(w, r, "initiate_signing", err)
		return
	}

	result, err := h.signing.Initiate(r.Context(), req.DocumentID, userID, signer)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), middleware.OpInitiateSigning, req.DocumentID, userID, middleware.ResultFailure)
		writeError(w, r, "initiate_signing", err)
		return
	}
	middleware.WriteAuditLog(r.Context(), middleware.OpInitiateSigning, req.DocumentID, userID, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusOK, newQRSigningResponse(result, false))
}

// Complete はQR署名の完了を待ち、結果を登録する。
// モバイル側の署名が終わるまでレスポンスは返らない。
func (h *SigningHandler) Complete(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req completeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "complete_signing", err)
		return
	}
	if err := required(map[string]string{
		"document_id": req.DocumentID,
		"data_url":    req.DataURL,
		"sign_url":    req.SignURL,
	}); err != nil {
		writeError(w, r, "complete_signing", err)
		return
	}

	signer, err := h.auth.SignerIdentity(r.Context(), userID)
	if err != nil {
		writeError(w, r, "complete_signing", err)
		return
	}

	result, err := h.signing.Complete(r.Context(), completeInput(req, req.DocumentID, userID, signer))
	if err != nil {
		middleware.WriteAuditLog(r.Context(), middleware.OpCompleteSigning, req.DocumentID, userID, middleware.ResultFailure)
		writeError(w, r, "complete_signing", err)
		return
	}
	middleware.WriteAuditLog(r.Context(), middleware.OpCompleteSigning, req.DocumentID, userID, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusOK, CompleteSigningResponse{
		DocumentID:      result.DocumentID,
		SignatureID:     result.SignatureID,
		Signer:          result.Signer,
		SigexDocumentID: result.SigexDocumentID,
		Status:          string(result.Status),
	})
}

// InitiatePackage はパッケージのQR署名を開始する。
func (h *SigningHandler) InitiatePackage(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req initiateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "initiate_package_signing", err)
		return
	}
	if err := required(map[string]string{"package_id": req.PackageID}); err != nil {
		writeError(w, r, "initiate_package_signing", err)
		return
	}

	signer, err := h.auth.SignerIdentity(r.Context(), userID)
	if err != nil {
		writeError(w, r, "initiate_package_signing", err)
		return
	}

	result, err := h.signing.InitiatePackage(r.Context(), req.PackageID, userID, signer)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), middleware.OpInitiatePackageSigning, req.PackageID, userID, middleware.ResultFailure)
		writeError(w, r, "initiate_package_signing", err)
		return
	}
	middleware.WriteAuditLog(r.Context(), middleware.OpInitiatePackageSigning, req.PackageID, userID, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusOK, newQRSigningResponse(result, true))
}

// CompletePackage はパッケージのQR署名を完了する。
// 一部の文書だけが失敗した場合も200で文書ごとの結果を返す。
func (h *SigningHandler) CompletePackage(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req completeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "complete_package_signing", err)
		return
	}
	if err := required(map[string]string{
		"package_id": req.PackageID,
		"data_url":   req.DataURL,
		"sign_url":   req.SignURL,
	}); err != nil {
		writeError(w, r, "complete_package_signing", err)
		return
	}

	signer, err := h.auth.SignerIdentity(r.Context(), userID)
	if err != nil {
		writeError(w, r, "complete_package_signing", err)
		return
	}

	result, err := h.signing.CompletePackage(r.Context(), completeInput(req, req.PackageID, userID, signer))
	if err != nil {
		middleware.WriteAuditLog(r.Context(), middleware.OpCompletePackageSigning, req.PackageID, userID, middleware.ResultFailure)
		writeError(w, r, "complete_package_signing", err)
		return
	}
	middleware.WriteAuditLog(r.Context(), middleware.OpCompletePackageSigning, req.PackageID, userID, middleware.ResultSuccess)

	docs := make([]PackageDocumentResult, len(result.Documents))
	for i, d := range result.Documents {
		docs[i] = PackageDocumentResult{
			DocumentID:      d.DocumentID,
			SignatureID:     d.SignatureID,
			SigexDocumentID: d.SigexDocumentID,
			Status:          string(d.Status),
			Error:           d.Error,
		}
	}
	httputil.JSON(w, http.StatusOK, CompletePackageResponse{
		PackageID: result.PackageID,
		Status:    string(result.Status),
		Documents: docs,
	})
}

func completeInput(req completeRequest, subjectID, ownerID string, signer domain.SignerIdentity) usecase.CompleteInput {
	return usecase.CompleteInput{
		SubjectID: subjectID,
		OwnerID:   ownerID,
		Signer:    signer,
		SessionID: req.SessionID,
		DataURL:   req.DataURL,
		SignURL:   req.SignURL,
	}
}
