package domain

import "time"

// QRSigningSession はプロバイダが発行する一時的なQR署名セッションを表す。
// 永続化はせず、リクエスト/レスポンスの間だけ保持する。
type QRSigningSession struct {
	ID               string
	SubjectID        string // 文書IDまたはパッケージID
	SignerIIN        string
	SignerType       SignerType
	QRCodeBase64     string
	DataURL          string
	SignURL          string
	EgovMobileLink   string
	EgovBusinessLink string
	Status           SignatureStatus
	CreatedAt        time.Time
}

// MetaField は署名対象文書に添付するメタ情報。
type MetaField struct {
	Name  string
	Value string
}

// SigningDocument はQRセッションに送信する文書ペイロードを表す。
// IDは送信順の1始まりの位置で、返却される署名との対応付けも位置で行う。
type SigningDocument struct {
	ID     int
	NameRu string
	NameKz string
	NameEn string
	Meta   []MetaField
	Data   []byte
	IsPDF  bool
}

// ProviderSignature はプロバイダに登録済みの署名情報。
type ProviderSignature struct {
	SignID    int64
	Signature string
}

// ProviderDocument はプロバイダに登録済みの文書情報を表す。
type ProviderDocument struct {
	DocumentID  string
	Title       string
	Description string
	Signatures  []ProviderSignature
	Raw         map[string]any
}
