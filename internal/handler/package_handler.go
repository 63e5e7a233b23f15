package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Ivan-vtr/doc-sign-service/internal/middleware"
	"github.com/Ivan-vtr/doc-sign-service/pkg/httputil"
)

// PackageHandler はパッケージのHTTPハンドラ。
type PackageHandler struct {
	packages PackageUsecase
}

// NewPackageHandler は新しいPackageHandlerを生成する。
func NewPackageHandler(packages PackageUsecase) *PackageHandler {
	return &PackageHandler{packages: packages}
}

type createPackageRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type addDocumentRequest struct {
	DocumentID string `json:"document_id"`
}

// List はパッケージ一覧を返す。
func (h *PackageHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	pkgs, err := h.packages.List(r.Context(), userID)
	if err != nil {
		writeError(w, r, "list_packages", err)
		return
	}
	resp := make([]PackageResponse, len(pkgs))
	for i, p := range pkgs {
		resp[i] = newPackageResponse(p.Package)
		resp[i].DocumentCount = p.DocumentCount
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// Create はパッケージを作成する。
func (h *PackageHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req createPackageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "create_package", err)
		return
	}

	pkg, err := h.packages.Create(r.Context(), req.Title, req.Description, userID)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), middleware.OpCreatePackage, "", userID, middleware.ResultFailure)
		writeError(w, r, "create_package", err)
		return
	}
	middleware.WriteAuditLog(r.Context(), middleware.OpCreatePackage, pkg.ID, userID, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusCreated, newPackageResponse(pkg))
}

// AddDocument はパッケージに文書を追加する。
func (h *PackageHandler) AddDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req addDocumentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "add_package_document", err)
		return
	}
	if err := required(map[string]string{"document_id": req.DocumentID}); err != nil {
		writeError(w, r, "add_package_document", err)
		return
	}

	packageID := chi.URLParam(r, "id")
	pkg, err := h.packages.AddDocument(r.Context(), packageID, req.DocumentID, userID)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), middleware.OpAddPackageDocument, packageID, userID, middleware.ResultFailure)
		writeError(w, r, "add_package_document", err)
		return
	}
	middleware.WriteAuditLog(r.Context(), middleware.OpAddPackageDocument, packageID, userID, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusOK, newPackageResponse(pkg))
}

// DownloadSigned は署名済み文書と署名をまとめたZIPを返す。
func (h *PackageHandler) DownloadSigned(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	file, err := h.packages.DownloadSigned(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeError(w, r, "download_package", err)
		return
	}
	httputil.Attachment(w, file.Data, file.Filename, file.MIMEType)
}
