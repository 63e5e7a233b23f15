package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/Ivan-vtr/doc-sign-service/internal/domain"
)

// MigrationRepository はスキーマ履歴のデータアクセスのインターフェース。
type MigrationRepository interface {
	EnsureTable(ctx context.Context) error
	FindAllApplied(ctx context.Context) ([]*domain.Migration, error)
	RecordMigration(ctx context.Context, tx *gorm.DB, migration *domain.Migration) error
	IsMigrationApplied(ctx context.Context, version string) (bool, error)
}

// MigrationService はmigrationsディレクトリのSQLを番号順に適用する。
type MigrationService struct {
	repo          MigrationRepository
	db            *gorm.DB
	migrationsDir string
}

// NewMigrationService は新しいMigrationServiceを生成する。
func NewMigrationService(repo MigrationRepository, db *gorm.DB, migrationsDir string) *MigrationService {
	return &MigrationService{
		repo:          repo,
		db:            db,
		migrationsDir: migrationsDir,
	}
}

// ApplyMigrations は未適用のマイグレーションを番号順に適用し、適用したものを返す。
// 失敗した時点で中断し、それまでに適用したものとエラーを返す。
func (s *MigrationService) ApplyMigrations(ctx context.Context) ([]*domain.Migration, error) {
	if err := s.repo.EnsureTable(ctx); err != nil {
		return nil, fmt.Errorf("%w: preparing schema_migrations: %v", domain.ErrMigrationFailed, err)
	}

	all, err := s.scanMigrationFiles()
	if err != nil {
		slog.ErrorContext(ctx, "failed to scan migration files",
			"operation", "apply_migrations",
			"dir", s.migrationsDir,
			"error", err,
		)
		return nil, err
	}

	var applied []*domain.Migration
	for _, m := range all {
		done, err := s.repo.IsMigrationApplied(ctx, m.Version)
		if err != nil {
			return applied, fmt.Errorf("checking migration %s: %w", m.Version, err)
		}
		if done {
			continue
		}

		if err := s.applyMigration(ctx, m); err != nil {
			slog.ErrorContext(ctx, "failed to apply migration",
				"operation", "apply_migrations",
				"version", m.Version,
				"error", err,
			)
			return applied, fmt.Errorf("%w: version %s: %v", domain.ErrMigrationFailed, m.Version, err)
		}

		m.MarkApplied(time.Now())
		applied = append(applied, m)
		slog.InfoContext(ctx, "migration applied",
			"version", m.Version,
			"name", m.Name,
		)
	}
	return applied, nil
}

// GetMigrationStatus は全マイグレーションの適用状況を返す。
func (s *MigrationService) GetMigrationStatus(ctx context.Context) ([]*domain.Migration, error) {
	if err := s.repo.EnsureTable(ctx); err != nil {
		return nil, fmt.Errorf("%w: preparing schema_migrations: %v", domain.ErrMigrationFailed, err)
	}

	all, err := s.scanMigrationFiles()
	if err != nil {
		return nil, err
	}
	applied, err := s.repo.FindAllApplied(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching applied migrations: %w", err)
	}

	byVersion := make(map[string]*domain.Migration, len(applied))
	for _, m := range applied {
		byVersion[m.Version] = m
	}
	for _, m := range all {
		if a, ok := byVersion[m.Version]; ok && a.AppliedAt != nil {
			m.MarkApplied(*a.AppliedAt)
		}
	}
	return all, nil
}

// applyMigration は1つのファイルの全ステートメントと履歴の記録を同じトランザクションで実行する。
func (s *MigrationService) applyMigration(ctx context.Context, m *domain.Migration) error {
	raw, err := os.ReadFile(m.FilePath)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrMigrationFileNotFound, m.FilePath)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, stmt := range splitStatements(string(raw)) {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("executing statement: %w", err)
			}
		}
		return s.repo.RecordMigration(ctx, tx, m)
	})
}

func (s *MigrationService) scanMigrationFiles() ([]*domain.Migration, error) {
	entries, err := os.ReadDir(s.migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrMigrationFileNotFound, s.migrationsDir, err)
	}

	var migrations []*domain.Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, name, err := parseMigrationFileName(entry.Name())
		if err != nil {
			return nil, err
		}
		migrations = append(migrations, &domain.Migration{
			Version:  version,
			Name:     name,
			FilePath: filepath.Join(s.migrationsDir, entry.Name()),
			Status:   domain.MigrationStatusPending,
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// parseMigrationFileName は {version}_{name}.sql からバージョンと名前を取り出す。
func parseMigrationFileName(filename string) (version, name string, err error) {
	parts := strings.SplitN(strings.TrimSuffix(filename, ".sql"), "_", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %s (expected format: {version}_{name}.sql)", domain.ErrInvalidMigrationFile, filename)
	}
	return parts[0], parts[1], nil
}

// splitStatements はSQLをセミコロンで分割する。"--" で始まる行は除く。
// MySQLドライバは既定で複数ステートメントを受け付けない。
func splitStatements(sql string) []string {
	var b strings.Builder
	for _, line := range strings.Split(sql, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	var stmts []string
	for _, stmt := range strings.Split(b.String(), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}
