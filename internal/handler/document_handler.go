package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Ivan-vtr/doc-sign-service/internal/domain"
	"github.com/Ivan-vtr/doc-sign-service/internal/middleware"
	"github.com/Ivan-vtr/doc-sign-service/internal/usecase"
	"github.com/Ivan-vtr/doc-sign-service/pkg/httputil"
)

const multipartMemory = 32 << 20

// DocumentHandler は文書のHTTPハンドラ。
type DocumentHandler struct {
	documents      DocumentUsecase
	maxUploadBytes int64
}

// NewDocumentHandler は新しいDocumentHandlerを生成する。
func NewDocumentHandler(documents DocumentUsecase, maxUploadBytes int64) *DocumentHandler {
	return &DocumentHandler{documents: documents, maxUploadBytes: maxUploadBytes}
}

// List は文書一覧を返す。
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	docs, err := h.documents.List(r.Context(), userID)
	if err != nil {
		writeError(w, r, "list_documents", err)
		return
	}
	resp := make([]DocumentResponse, len(docs))
	for i, d := range docs {
		resp[i] = newDocumentResponse(d.Document, d.PackageName)
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// Upload はmultipartの "file" を1件アップロードする。
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.parseMultipart(w, r); err != nil {
		writeError(w, r, "upload_document", err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, "upload_document", fmt.Errorf("%w: file is required", domain.ErrInvalidInput))
		return
	}
	defer file.Close()

	in, err := uploadInput(file, header, r.FormValue("title"), userID, r.FormValue("package_id"))
	if err != nil {
		writeError(w, r, "upload_document", err)
		return
	}

	result, err := h.documents.Upload(r.Context(), in)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), middleware.OpUploadDocument, "", userID, middleware.ResultFailure)
		writeError(w, r, "upload_document", err)
		return
	}

	middleware.WriteAuditLog(r.Context(), middleware.OpUploadDocument, result.DocumentID, userID, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusCreated, newUploadResponse(result.Filename, result, nil))
}

// UploadMultiple はmultipartの "files" をまとめてアップロードする。
// 1件の失敗は他のファイルに影響せず、結果にエラーとして含める。
func (h *DocumentHandler) UploadMultiple(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.parseMultipart(w, r); err != nil {
		writeError(w, r, "upload_multiple", err)
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, r, "upload_multiple", fmt.Errorf("%w: no files provided", domain.ErrInvalidInput))
		return
	}

	title := r.FormValue("title")
	packageID := r.FormValue("package_id")
	inputs := make([]usecase.UploadInput, 0, len(headers))
	var readErrs []UploadResponse
	for _, fh := range headers {
		in, err := readUpload(fh, title, userID, packageID)
		if err != nil {
			readErrs = append(readErrs, UploadResponse{Filename: fh.Filename, Error: err.Error()})
			continue
		}
		inputs = append(inputs, in)
	}

	outcomes := h.documents.UploadMultiple(r.Context(), inputs)
	resp := make([]UploadResponse, 0, len(headers))
	for _, o := range outcomes {
		result := middleware.ResultSuccess
		subjectID := ""
		if o.Err != nil {
			result = middleware.ResultFailure
		} else {
			subjectID = o.Result.DocumentID
		}
		middleware.WriteAuditLog(r.Context(), middleware.OpUploadDocument, subjectID, userID, result)
		resp = append(resp, newUploadResponse(o.Filename, o.Result, o.Err))
	}
	resp = append(resp, readErrs...)

	httputil.JSON(w, http.StatusCreated, map[string][]UploadResponse{"documents": resp})
}

// Get は文書の状態と署名一覧を返す。
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	status, err := h.documents.Status(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeError(w, r, "get_document", err)
		return
	}
	sigs := make([]SignatureResponse, len(status.Signatures))
	for i, s := range status.Signatures {
		sigs[i] = newSignatureResponse(s)
	}
	httputil.JSON(w, http.StatusOK, DocumentStatusResponse{
		DocumentID:   status.DocumentID,
		Status:       string(status.Status),
		ErrorMessage: status.ErrorMessage,
		Signatures:   sigs,
	})
}

// Delete は文書を削除する。
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	documentID := chi.URLParam(r, "id")
	if err := h.documents.Delete(r.Context(), documentID, userID); err != nil {
		middleware.WriteAuditLog(r.Context(), middleware.OpDeleteDocument, documentID, userID, middleware.ResultFailure)
		writeError(w, r, "delete_document", err)
		return
	}
	middleware.WriteAuditLog(r.Context(), middleware.OpDeleteDocument, documentID, userID, middleware.ResultSuccess)
	w.WriteHeader(http.StatusNoContent)
}

// Download は原本を返す。
func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, r, "download_document", h.documents.Download)
}

// DownloadSigned は署名済みコピーを返す。
func (h *DocumentHandler) DownloadSigned(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, r, "download_signed_document", h.documents.DownloadSigned)
}

// DownloadSignature はCMS署名ファイルを返す。
func (h *DocumentHandler) DownloadSignature(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, r, "download_signature", h.documents.DownloadSignature)
}

// Verify はチェックサムとSigex上の署名を検証する。
func (h *DocumentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	documentID := chi.URLParam(r, "id")
	result, err := h.documents.Verify(r.Context(), documentID, userID)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), middleware.OpVerifyDocument, documentID, userID, middleware.ResultFailure)
		writeError(w, r, "verify_document", err)
		return
	}
	middleware.WriteAuditLog(r.Context(), middleware.OpVerifyDocument, documentID, userID, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusOK, VerificationResponse{
		DocumentID:    result.DocumentID,
		Verified:      result.Verified,
		ChecksumMatch: result.ChecksumMatch,
		SigexVerified: result.SigexVerified,
	})
}

// ProviderInfo はSigexに登録された文書情報をそのまま返す。
func (h *DocumentHandler) ProviderInfo(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	info, err := h.documents.ProviderInfo(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeError(w, r, "provider_info", err)
		return
	}
	httputil.JSON(w, http.StatusOK, info.Raw)
}

type fileLoader func(ctx context.Context, documentID, ownerID string) (*usecase.FileDownload, error)

func (h *DocumentHandler) serveFile(w http.ResponseWriter, r *http.Request, operation string, load fileLoader) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	file, err := load(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeError(w, r, operation, err)
		return
	}
	httputil.Attachment(w, file.Data, file.Filename, file.MIMEType)
}

func (h *DocumentHandler) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: upload exceeds %d bytes", domain.ErrInvalidInput, tooLarge.Limit)
		}
		return fmt.Errorf("%w: invalid multipart form: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

func readUpload(fh *multipart.FileHeader, title, ownerID, packageID string) (usecase.UploadInput, error) {
	f, err := fh.Open()
	if err != nil {
		return usecase.UploadInput{}, fmt.Errorf("%w: cannot open %s", domain.ErrInvalidInput, fh.Filename)
	}
	defer f.Close()
	if title == "" {
		title = fh.Filename
	}
	return uploadInput(f, fh, title, ownerID, packageID)
}

func uploadInput(f io.Reader, fh *multipart.FileHeader, title, ownerID, packageID string) (usecase.UploadInput, error) {
	data, err := io.ReadAll(f)
	if err != nil {
		return usecase.UploadInput{}, fmt.Errorf("%w: reading %s: %v", domain.ErrInvalidInput, fh.Filename, err)
	}
	return usecase.UploadInput{
		Data:      data,
		Filename:  fh.Filename,
		MIMEType:  detectMIMEType(fh.Header.Get("Content-Type"), data),
		Title:     title,
		OwnerID:   ownerID,
		PackageID: packageID,
	}, nil
}

// detectMIMEType はパートのContent-Typeを使い、未指定なら内容から判定する。
func detectMIMEType(declared string, data []byte) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return http.DetectContentType(data)
}
