package sigex

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	signMethodSignOnly = "CMS_SIGN_ONLY"
	signMethodWithData = "CMS_WITH_DATA"
	signTypeCMS        = "cms"
	mimePDF            = "@file/pdf"
)

// cancelMarkers はポーリング応答のmessageに含まれるキャンセルの目印（小文字）。
var cancelMarkers = []string{"cancelled", "отменен"}

type qrRegisterRequest struct {
	Description string `json:"description"`
}

type qrRegisterResponse struct {
	QRCode                 string `json:"qrCode"`
	DataURL                string `json:"dataURL"`
	SignURL                string `json:"signURL"`
	EgovMobileLaunchLink   string `json:"eGovMobileLaunchLink"`
	EgovBusinessLaunchLink string `json:"eGovBusinessLaunchLink"`
}

type metaField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type fileData struct {
	Mime string `json:"mime"`
	Data string `json:"data"`
}

type fileEnvelope struct {
	File fileData `json:"file"`
}

type documentToSign struct {
	ID       int          `json:"id"`
	NameRu   string       `json:"nameRu"`
	NameKz   string       `json:"nameKz"`
	NameEn   string       `json:"nameEn"`
	Meta     []metaField  `json:"meta"`
	Document fileEnvelope `json:"document"`
}

type sendDataRequest struct {
	SignMethod      string           `json:"signMethod"`
	DocumentsToSign []documentToSign `json:"documentsToSign"`
}

// signedDocument はポーリング応答の1件分。欠落を検出するためポインタで受ける。
type signedDocument struct {
	Document *struct {
		File *struct {
			Data *string `json:"data"`
		} `json:"file"`
	} `json:"document"`
}

type pollResponse struct {
	DocumentsToSign []signedDocument `json:"documentsToSign"`
}

type registerDocumentRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	SignType    string `json:"signType"`
	Signature   string `json:"signature,omitempty"`
}

type addSignatureRequest struct {
	SignType  string `json:"signType"`
	Signature string `json:"signature"`
}

// flexibleID は文字列と数値のどちらでも受け付けるID。
type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("documentId: %w", err)
	}
	*f = flexibleID(n.String())
	return nil
}

type documentResponse struct {
	DocumentID *flexibleID    `json:"documentId"`
	SignID     *int64         `json:"signId"`
	Digests    map[string]any `json:"digests"`
}

type documentInfoSignature struct {
	SignID    int64  `json:"signId"`
	Signature string `json:"signature"`
}

type documentInfoResponse struct {
	Title       string                  `json:"title"`
	Description string                  `json:"description"`
	Signatures  []documentInfoSignature `json:"signatures"`
}
