package domain

import "fmt"

// SignerType は署名者の種別を表す。
type SignerType string

const (
	SignerTypeIndividual  SignerType = "individual"
	SignerTypeLegalEntity SignerType = "legal_entity"
)

// ParseSignerType は文字列から署名者種別を解釈する。空文字は個人として扱う。
func ParseSignerType(s string) (SignerType, error) {
	switch SignerType(s) {
	case "", SignerTypeIndividual:
		return SignerTypeIndividual, nil
	case SignerTypeLegalEntity:
		return SignerTypeLegalEntity, nil
	default:
		return "", fmt.Errorf("%w: unknown signer type %q", ErrInvalidInput, s)
	}
}

// SignerIdentity は署名者の識別情報を表す値オブジェクト。
// 生成はNewSignerIdentity経由でのみ行い、常に検証済みであることを保証する。
type SignerIdentity struct {
	IIN         string
	FullName    string
	Type        SignerType
	BIN         string // 法人のみ
	CompanyName string // 法人のみ
}

// NewSignerIdentity は検証済みの署名者情報を生成する。
func NewSignerIdentity(iin, fullName string, signerType SignerType, bin, companyName string) (SignerIdentity, error) {
	if !isTwelveDigits(iin) {
		return SignerIdentity{}, ErrInvalidIIN
	}
	identity := SignerIdentity{
		IIN:      iin,
		FullName: fullName,
		Type:     signerType,
	}
	switch signerType {
	case SignerTypeIndividual:
	case SignerTypeLegalEntity:
		if !isTwelveDigits(bin) {
			return SignerIdentity{}, ErrInvalidBIN
		}
		if companyName == "" {
			return SignerIdentity{}, ErrCompanyNameRequired
		}
		identity.BIN = bin
		identity.CompanyName = companyName
	default:
		return SignerIdentity{}, fmt.Errorf("%w: unknown signer type %q", ErrInvalidInput, signerType)
	}
	return identity, nil
}

// IsLegalEntity は法人署名者かどうかを返す。
func (s SignerIdentity) IsLegalEntity() bool {
	return s.Type == SignerTypeLegalEntity
}

// isTwelveDigits はIIN/BINの形式（12桁の数字）を確認する。
func isTwelveDigits(s string) bool {
	if len(s) != 12 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
