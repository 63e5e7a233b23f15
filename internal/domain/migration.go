package domain

import "time"

// MigrationStatus はスキーマ変更の適用状態。
type MigrationStatus string

const (
	MigrationStatusPending MigrationStatus = "pending"
	MigrationStatusApplied MigrationStatus = "applied"
)

// Migration は migrations/ 配下の {version}_{name}.sql 1ファイル分のスキーマ変更。
type Migration struct {
	Version   string
	Name      string
	FilePath  string
	Status    MigrationStatus
	AppliedAt *time.Time // 未適用ならnil
}

// MarkApplied は適用済みとして記録する。
func (m *Migration) MarkApplied(at time.Time) {
	m.Status = MigrationStatusApplied
	m.AppliedAt = &at
}

// IsApplied は適用済みかどうかを返す。
func (m *Migration) IsApplied() bool {
	return m.Status == MigrationStatusApplied
}

// Label はログやCLI表示用の "{version}_{name}" を返す。
func (m *Migration) Label() string {
	return m.Version + "_" + m.Name
}
