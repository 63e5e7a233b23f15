package domain

import "time"

// User はサービス利用者と署名用プロフィールを表す。
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Email        string
	IIN          string
	FullName     string
	SignerType   SignerType
	BIN          string
	CompanyName  string
	CreatedAt    time.Time
}

// SignerIdentity はプロフィールから検証済みの署名者情報を組み立てる。
func (u *User) SignerIdentity() (SignerIdentity, error) {
	return NewSignerIdentity(u.IIN, u.FullName, u.SignerType, u.BIN, u.CompanyName)
}
