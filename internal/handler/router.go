package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Ivan-vtr/doc-sign-service/internal/middleware"
	"github.com/Ivan-vtr/doc-sign-service/pkg/httputil"
)

// Handlers はルーターに登録するハンドラの集合。
type Handlers struct {
	Auth      *AuthHandler
	Documents *DocumentHandler
	Signing   *SigningHandler
	Packages  *PackageHandler
}

// NewRouter はルーターを生成する。
func NewRouter(h Handlers, verifier middleware.TokenVerifier) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Compress(5, "application/json"))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", h.Auth.Register)
		r.Post("/auth/login", h.Auth.Login)

		// 以降は認証必須
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticator(verifier))

			r.Get("/auth/profile", h.Auth.Profile)

			r.Route("/documents", func(r chi.Router) {
				r.Get("/", h.Documents.List)
				r.Post("/upload", h.Documents.Upload)
				r.Post("/upload-multiple", h.Documents.UploadMultiple)
				r.Get("/{id}", h.Documents.Get)
				r.Delete("/{id}", h.Documents.Delete)
				r.Get("/{id}/download", h.Documents.Download)
				r.Get("/{id}/download/original", h.Documents.Download)
				r.Get("/{id}/download/signature", h.Documents.DownloadSignature)
				r.Get("/{id}/download-signed", h.Documents.DownloadSigned)
				r.Post("/{id}/verify", h.Documents.Verify)
				r.Get("/{id}/provider", h.Documents.ProviderInfo)
			})

			r.Route("/signing", func(r chi.Router) {
				r.Post("/initiate", h.Signing.Initiate)
				r.Post("/complete", h.Signing.Complete)
				r.Post("/package/initiate", h.Signing.InitiatePackage)
				r.Post("/package/complete", h.Signing.CompletePackage)
			})

			r.Route("/packages", func(r chi.Router) {
				r.Get("/", h.Packages.List)
				r.Post("/create", h.Packages.Create)
				r.Post("/{id}/add-document", h.Packages.AddDocument)
				r.Get("/{id}/download-signed", h.Packages.DownloadSigned)
			})
		})
	})

	return r
}
