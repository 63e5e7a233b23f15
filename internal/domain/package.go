package domain

import "time"

// PackageStatus はパッケージのライフサイクル状態を表す。
type PackageStatus string

const (
	PackageStatusDraft           PackageStatus = "draft"
	PackageStatusSigning         PackageStatus = "signing"
	PackageStatusSigned          PackageStatus = "signed"
	PackageStatusPartiallySigned PackageStatus = "partially_signed"
	PackageStatusFailed          PackageStatus = "failed"
)

// Package は一つのQRセッションでまとめて署名される文書の束を表す。
type Package struct {
	ID          string
	Title       string
	Description string
	Status      PackageStatus
	OwnerID     string
	DocumentIDs []string // 重複なし、登録順
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OwnedBy は指定ユーザーが所有者かどうかを返す。
func (p *Package) OwnedBy(ownerID string) bool {
	return p.OwnerID == ownerID
}

// AddDocument は文書IDを追加する。既に含まれている場合は何もしない。
func (p *Package) AddDocument(documentID string) bool {
	for _, id := range p.DocumentIDs {
		if id == documentID {
			return false
		}
	}
	p.DocumentIDs = append(p.DocumentIDs, documentID)
	p.touch()
	return true
}

func (p *Package) MarkSigning() {
	p.Status = PackageStatusSigning
	p.touch()
}

func (p *Package) MarkSigned() {
	p.Status = PackageStatusSigned
	p.touch()
}

func (p *Package) MarkPartiallySigned() {
	p.Status = PackageStatusPartiallySigned
	p.touch()
}

func (p *Package) MarkFailed() {
	p.Status = PackageStatusFailed
	p.touch()
}

// ApplyOutcome は文書ごとの処理結果からパッケージの状態を決定する。
// 失敗0件でSIGNED、全件失敗でFAILED、それ以外はPARTIALLY_SIGNED。
func (p *Package) ApplyOutcome(failed, total int) {
	switch {
	case failed == 0:
		p.MarkSigned()
	case failed < total:
		p.MarkPartiallySigned()
	default:
		p.MarkFailed()
	}
}

func (p *Package) touch() {
	p.UpdatedAt = time.Now()
}
