// Package main はAPIサーバーのエントリポイント。
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Ivan-vtr/doc-sign-service/config"
	"github.com/Ivan-vtr/doc-sign-service/internal/handler"
	"github.com/Ivan-vtr/doc-sign-service/internal/infra"
	"github.com/Ivan-vtr/doc-sign-service/internal/lock"
	"github.com/Ivan-vtr/doc-sign-service/internal/repository"
	"github.com/Ivan-vtr/doc-sign-service/internal/sigex"
	"github.com/Ivan-vtr/doc-sign-service/internal/storage"
	"github.com/Ivan-vtr/doc-sign-service/internal/usecase"
)

func main() {
	ctx := context.Background()

	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	// 設定読み込み
	cfg := config.Load()

	// トレーサー初期化（ロガー設定の前に実行）
	tp, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(ctx); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	// トレース情報付きロガーを設定
	infra.SetupLogger(cfg)

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET is not set")
		os.Exit(1)
	}

	// DB初期化
	db, err := infra.NewDB(cfg)
	if err != nil {
		slog.Error("failed to init database", "error", err)
		os.Exit(1)
	}

	// ファイルストレージ初期化
	files, closeStorage, err := newFileStorage(ctx, cfg)
	if err != nil {
		slog.Error("failed to init file storage", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}
	defer closeStorage()

	sigexCfg := sigex.Config{
		BaseURL:         cfg.SigexBaseURL,
		Timeout:         cfg.SigexTimeout,
		LongPollTimeout: cfg.SigexLongPollTimeout,
		PollRetries:     cfg.SigexPollRetries,
		PollInterval:    cfg.SigexPollInterval,
		SendRetries:     cfg.SigexSendRetries,
		SendRetryDelay:  cfg.SigexSendRetryDelay,
	}
	sigexClient := sigex.NewClient(sigexCfg)

	// 署名ロック初期化
	// TTLは署名完了が取りうる最長時間より短くしない
	lockTTL := max(cfg.SigningLockTTL, sigexCfg.MaxSigningDuration())
	locker, closeLocker, err := newLocker(ctx, cfg, lockTTL)
	if err != nil {
		slog.Error("failed to init signing lock", "error", err)
		os.Exit(1)
	}
	defer closeLocker()

	// DI
	documentRepo := repository.NewDocumentRepository(db)
	signatureRepo := repository.NewSignatureRepository(db)
	packageRepo := repository.NewPackageRepository(db)
	userRepo := repository.NewUserRepository(db)

	authService := usecase.NewAuthService(userRepo, cfg.JWTSecret, cfg.JWTTTL)
	documentService := usecase.NewDocumentService(documentRepo, signatureRepo, packageRepo, files, sigexClient)
	signingService := usecase.NewSigningService(documentRepo, signatureRepo, packageRepo, files, sigexClient, locker)
	packageService := usecase.NewPackageService(packageRepo, documentRepo, files)

	router := handler.NewRouter(handler.Handlers{
		Auth:      handler.NewAuthHandler(authService),
		Documents: handler.NewDocumentHandler(documentService, cfg.MaxUploadBytes),
		Signing:   handler.NewSigningHandler(signingService, authService),
		Packages:  handler.NewPackageHandler(packageService),
	}, authService)

	// サーバー起動
	// 署名完了のロングポーリングを切らないようWriteTimeoutは設定しない
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(router, "doc-sign-service"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		slog.Error("failed to listen", "addr", server.Addr, "error", err)
		os.Exit(1)
	}

	slog.Info("starting server",
		"port", cfg.Port,
		"storage_backend", cfg.StorageBackend,
		"storage_encryption", cfg.StorageEncryption,
		"redis_lock", cfg.RedisAddr != "",
		"signing_lock_ttl", lockTTL,
	)

	// Graceful shutdown
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	if err := serve(sigCtx, server, ln, cfg.SigexLongPollTimeout+30*time.Second); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// serve はctxが終了するまでリクエストを処理し、終了後は処理中のリクエストを待ってから戻る。
// shutdownTimeoutを過ぎても終わらない接続は強制的に閉じる。
func serve(ctx context.Context, server *http.Server, ln net.Listener, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down server...", "timeout", shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	shutdownErr := server.Shutdown(shutdownCtx)
	if shutdownErr != nil {
		slog.Error("server shutdown error", "error", shutdownErr)
		_ = server.Close()
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return shutdownErr
}

// newFileStorage は設定に応じたストレージを生成する。
// STORAGE_ENCRYPTION=kmsの場合はCloud KMSで鍵をラップする暗号化ストレージで包む。
func newFileStorage(ctx context.Context, cfg *config.Config) (storage.FileStorage, func(), error) {
	closeFn := func() {}
	var wrapper storage.KeyWrapper

	switch cfg.StorageEncryption {
	case "", "none":
	case "kms":
		kmsClient, err := infra.NewKMSClient(ctx, cfg.KMSKeyName)
		if err != nil {
			return nil, closeFn, err
		}
		wrapper = kmsClient
		closeFn = func() {
			if err := kmsClient.Close(); err != nil {
				slog.Error("failed to close KMS client", "error", err)
			}
		}
	default:
		return nil, closeFn, fmt.Errorf("unknown STORAGE_ENCRYPTION: %s", cfg.StorageEncryption)
	}

	files, err := storage.New(ctx, storage.Options{
		Backend:   cfg.StorageBackend,
		MediaRoot: cfg.MediaRoot,
		S3: storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Prefix:          cfg.S3Prefix,
		},
		Minio: storage.MinioConfig{
			Endpoint:        cfg.MinioEndpoint,
			AccessKeyID:     cfg.MinioAccessKeyID,
			SecretAccessKey: cfg.MinioSecretAccessKey,
			UseSSL:          cfg.MinioUseSSL,
			Bucket:          cfg.MinioBucket,
			Region:          cfg.MinioRegion,
		},
	}, wrapper)
	if err != nil {
		closeFn()
		return nil, func() {}, err
	}
	return files, closeFn, nil
}

// newLocker はREDIS_ADDRが設定されていればRedisロックを、なければ何もしないロックを返す。
func newLocker(ctx context.Context, cfg *config.Config, ttl time.Duration) (usecase.Locker, func(), error) {
	if cfg.RedisAddr == "" {
		return lock.NopLocker{}, func() {}, nil
	}
	client, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, func() {}, err
	}
	return lock.NewRedisLocker(client, ttl), func() {
		if err := client.Close(); err != nil {
			slog.Error("failed to close redis client", "error", err)
		}
	}, nil
}
