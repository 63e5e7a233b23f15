// Package sigex はSigexのQR署名APIと文書APIのHTTPクライアントを提供する。
package sigex

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Ivan-vtr/doc-sign-service/internal/domain"
)

const tracerName = "github.com/Ivan-vtr/doc-sign-service/internal/sigex"

// Config はクライアントの設定。
type Config struct {
	BaseURL         string
	Timeout         time.Duration // 通常のAPI呼び出し
	LongPollTimeout time.Duration // データ送信と署名取得のロングポーリング
	PollRetries     int
	PollInterval    time.Duration
	SendRetries     int
	SendRetryDelay  time.Duration
	Transport       http.RoundTripper // nilの場合はhttp.DefaultTransport
}

// MaxSigningDuration は1回の署名完了が取りうる最長時間を返す。
// データ送信と署名取得の全試行がロングポーリングのタイムアウトまで待ち、その後に登録とアップロードを行った場合の値。
func (c Config) MaxSigningDuration() time.Duration {
	send := max(c.SendRetries, 1)
	poll := max(c.PollRetries, 1)
	d := time.Duration(send)*c.LongPollTimeout + time.Duration(send-1)*c.SendRetryDelay
	d += time.Duration(poll)*c.LongPollTimeout + time.Duration(poll-1)*c.PollInterval
	return d + 2*c.Timeout
}

// Client はSigex APIのクライアント。
type Client struct {
	baseURL        string
	base           *url.URL
	api            *http.Client
	longPoll       *http.Client
	pollRetries    int
	pollInterval   time.Duration
	sendRetries    int
	sendRetryDelay time.Duration
	tracer         trace.Tracer
}

// NewClient は新しいClientを生成する。
func NewClient(cfg Config) *Client {
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	transport := otelhttp.NewTransport(base)

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Host == "" {
		parsed = nil
	}

	return &Client{
		baseURL:        baseURL,
		base:           parsed,
		api:            &http.Client{Timeout: cfg.Timeout, Transport: transport},
		longPoll:       &http.Client{Timeout: cfg.LongPollTimeout, Transport: transport},
		pollRetries:    max(cfg.PollRetries, 1),
		pollInterval:   cfg.PollInterval,
		sendRetries:    max(cfg.SendRetries, 1),
		sendRetryDelay: cfg.SendRetryDelay,
		tracer:         otel.Tracer(tracerName),
	}
}

// RegisterQRSigning はQR署名手続きを登録する。
// POST /api/egovQr
func (c *Client) RegisterQRSigning(ctx context.Context, description string) (*domain.QRSigningSession, error) {
	ctx, span := c.tracer.Start(ctx, "sigex.RegisterQRSigning")
	defer span.End()

	resp, err := c.doJSON(ctx, c.api, http.MethodPost, c.baseURL+"/api/egovQr", qrRegisterRequest{Description: description})
	if err != nil {
		return nil, recordErr(span, fmt.Errorf("%w: registering QR signing: %v", domain.ErrSigning, err))
	}
	if msg, ok := resp.message(); ok {
		return nil, recordErr(span, fmt.Errorf("%w: %s", domain.ErrSigning, msg))
	}
	if !resp.ok() {
		return nil, recordErr(span, fmt.Errorf("%w: registering QR signing: %v", domain.ErrSigning, resp.statusErr()))
	}

	var body qrRegisterResponse
	if err := json.Unmarshal(resp.body, &body); err != nil {
		return nil, recordErr(span, fmt.Errorf("%w: decoding QR session: %v", domain.ErrSigning, err))
	}
	if body.DataURL == "" || body.SignURL == "" {
		return nil, recordErr(span, fmt.Errorf("%w: QR session has no callback URLs", domain.ErrSigning))
	}

	return &domain.QRSigningSession{
		ID:               uuid.NewString(),
		QRCodeBase64:     body.QRCode,
		DataURL:          body.DataURL,
		SignURL:          body.SignURL,
		EgovMobileLink:   body.EgovMobileLaunchLink,
		EgovBusinessLink: body.EgovBusinessLaunchLink,
		Status:           domain.SignatureStatusPending,
		CreatedAt:        time.Now(),
	}, nil
}

// ValidateSession はセッションのdataURLとsignURLがBaseURLと同じスキームとホストを指しているか確認する。
// 一致しない場合はErrInvalidInputを返す。
func (c *Client) ValidateSession(session *domain.QRSigningSession) error {
	if err := c.checkCallbackURL(session.DataURL); err != nil {
		return err
	}
	return c.checkCallbackURL(session.SignURL)
}

func (c *Client) checkCallbackURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || c.base == nil || u.User != nil ||
		!strings.EqualFold(u.Scheme, c.base.Scheme) || !strings.EqualFold(u.Host, c.base.Host) {
		return fmt.Errorf("%w: callback URL %q does not belong to the signing provider", domain.ErrInvalidInput, raw)
	}
	return nil
}

// SendDataForSigning は署名対象の文書をセッションのdataURLに送信する。
// 利用者がQRを読み取って承認するまでサーバ側でブロックする。
// 通信エラーはsendRetries回まで再試行し、messageを含む応答は即座に失敗とする。
func (c *Client) SendDataForSigning(ctx context.Context, session *domain.QRSigningSession, documents []domain.SigningDocument, attachData bool) error {
	ctx, span := c.tracer.Start(ctx, "sigex.SendDataForSigning",
		trace.WithAttributes(attribute.Int("sigex.documents", len(documents))))
	defer span.End()

	if err := c.checkCallbackURL(session.DataURL); err != nil {
		return recordErr(span, err)
	}

	payload := sendDataRequest{
		SignMethod:      signMethodSignOnly,
		DocumentsToSign: buildDocumentsToSign(documents),
	}
	if attachData {
		payload.SignMethod = signMethodWithData
	}

	var lastErr error
	for attempt := 1; attempt <= c.sendRetries; attempt++ {
		out := classifySend(c.doJSON(ctx, c.longPoll, http.MethodPost, session.DataURL, payload))
		switch out.kind {
		case outcomeSuccess:
			return nil
		case outcomeFatal:
			return recordErr(span, out.err)
		}

		lastErr = out.err
		slog.DebugContext(ctx, "send data attempt failed",
			"outcome", out.kind.String(),
			"attempt", attempt,
			"max_attempts", c.sendRetries,
			"error", out.err,
		)
		if err := ctx.Err(); err != nil {
			return recordErr(span, fmt.Errorf("%w: %w", domain.ErrSigning, err))
		}
		if attempt < c.sendRetries {
			if err := sleep(ctx, c.sendRetryDelay); err != nil {
				return recordErr(span, fmt.Errorf("%w: %w", domain.ErrSigning, err))
			}
		}
	}

	return recordErr(span, fmt.Errorf("%w: failed to send data after %d attempts: %v", domain.ErrSigning, c.sendRetries, lastErr))
}

// PollSignatures はsignURLを繰り返し取得し、送信順に並んだBase64署名を返す。
// キャンセルはErrSigningCancelled、試行回数の上限到達はErrSigningTimeoutになる。
func (c *Client) PollSignatures(ctx context.Context, session *domain.QRSigningSession) ([]string, error) {
	ctx, span := c.tracer.Start(ctx, "sigex.PollSignatures")
	defer span.End()

	if err := c.checkCallbackURL(session.SignURL); err != nil {
		return nil, recordErr(span, err)
	}

	var last string
	for attempt := 1; attempt <= c.pollRetries; attempt++ {
		out := classifyPoll(c.do(ctx, c.longPoll, http.MethodGet, session.SignURL, nil, ""))
		switch out.kind {
		case outcomeSuccess:
			span.SetAttributes(attribute.Int("sigex.signatures", len(out.signatures)))
			return out.signatures, nil
		case outcomeFatal:
			return nil, recordErr(span, out.err)
		case outcomePending:
			last = out.message
		case outcomeRetryable:
			last = out.err.Error()
		}

		slog.DebugContext(ctx, "signatures not ready",
			"outcome", out.kind.String(),
			"attempt", attempt,
			"max_attempts", c.pollRetries,
			"detail", last,
		)
		if err := ctx.Err(); err != nil {
			return nil, recordErr(span, fmt.Errorf("%w: %w", domain.ErrSigning, err))
		}
		if attempt < c.pollRetries {
			if err := sleep(ctx, c.pollInterval); err != nil {
				return nil, recordErr(span, fmt.Errorf("%w: %w", domain.ErrSigning, err))
			}
		}
	}

	return nil, recordErr(span, fmt.Errorf("%w after %d attempts: %s", domain.ErrSigningTimeout, c.pollRetries, last))
}

// RegisterDocument は文書をSigexに登録し、SigexのドキュメントIDを返す。
// POST /api
func (c *Client) RegisterDocument(ctx context.Context, title, description, signature string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "sigex.RegisterDocument")
	defer span.End()

	resp, err := c.doJSON(ctx, c.api, http.MethodPost, c.baseURL+"/api", registerDocumentRequest{
		Title:       title,
		Description: description,
		SignType:    signTypeCMS,
		Signature:   signature,
	})
	body, err := decodeDocumentResponse(resp, err, "documentId")
	if err != nil {
		return "", recordErr(span, fmt.Errorf("%w: registering document: %v", domain.ErrSigning, err))
	}
	if body.DocumentID == nil || *body.DocumentID == "" {
		return "", recordErr(span, fmt.Errorf("%w: registering document: no documentId in response", domain.ErrSigning))
	}
	return string(*body.DocumentID), nil
}

// UploadDocumentData は登録済み文書の本文をアップロードし、Sigexが計算したダイジェストを返す。
// POST /api/{id}/data
func (c *Client) UploadDocumentData(ctx context.Context, sigexDocumentID string, data []byte) (map[string]any, error) {
	ctx, span := c.tracer.Start(ctx, "sigex.UploadDocumentData",
		trace.WithAttributes(attribute.String("sigex.document_id", sigexDocumentID)))
	defer span.End()

	resp, err := c.do(ctx, c.api, http.MethodPost, c.documentURL(sigexDocumentID, "/data"), bytes.NewReader(data), "application/octet-stream")
	body, err := decodeDocumentResponse(resp, err, "documentId")
	if err != nil {
		return nil, recordErr(span, fmt.Errorf("%w: uploading document data: %v", domain.ErrSigning, err))
	}
	if body.Digests == nil {
		return map[string]any{}, nil
	}
	return body.Digests, nil
}

// AddSignature は登録済み文書にCMS署名を追加し、署名IDを返す。
// POST /api/{id}
func (c *Client) AddSignature(ctx context.Context, sigexDocumentID, signature string) (int64, error) {
	ctx, span := c.tracer.Start(ctx, "sigex.AddSignature",
		trace.WithAttributes(attribute.String("sigex.document_id", sigexDocumentID)))
	defer span.End()

	resp, err := c.doJSON(ctx, c.api, http.MethodPost, c.documentURL(sigexDocumentID, ""), addSignatureRequest{
		SignType:  signTypeCMS,
		Signature: signature,
	})
	body, err := decodeDocumentResponse(resp, err, "signId")
	if err != nil {
		return 0, recordErr(span, fmt.Errorf("%w: adding signature: %v", domain.ErrSigning, err))
	}
	if body.SignID == nil {
		return 0, nil
	}
	return *body.SignID, nil
}

// VerifyDocument は文書の署名をSigex側で検証する。
// 失敗はすべてErrVerificationとして返す。
// POST /api/{id}/verify
func (c *Client) VerifyDocument(ctx context.Context, sigexDocumentID string, data []byte) (bool, error) {
	ctx, span := c.tracer.Start(ctx, "sigex.VerifyDocument",
		trace.WithAttributes(attribute.String("sigex.document_id", sigexDocumentID)))
	defer span.End()

	resp, err := c.do(ctx, c.api, http.MethodPost, c.documentURL(sigexDocumentID, "/verify"), bytes.NewReader(data), "application/octet-stream")
	if _, err := decodeDocumentResponse(resp, err, "documentId"); err != nil {
		return false, recordErr(span, fmt.Errorf("%w: %v", domain.ErrVerification, err))
	}
	return true, nil
}

// GetDocumentInfo は登録済み文書の情報を署名一覧とともに取得する。
// GET /api/{id}
func (c *Client) GetDocumentInfo(ctx context.Context, sigexDocumentID string) (*domain.ProviderDocument, error) {
	ctx, span := c.tracer.Start(ctx, "sigex.GetDocumentInfo",
		trace.WithAttributes(attribute.String("sigex.document_id", sigexDocumentID)))
	defer span.End()

	resp, err := c.do(ctx, c.api, http.MethodGet, c.documentURL(sigexDocumentID, ""), nil, "")
	if err != nil {
		return nil, recordErr(span, fmt.Errorf("%w: getting document info: %v", domain.ErrSigning, err))
	}
	if msg, ok := resp.message(); ok && !resp.has("title") {
		return nil, recordErr(span, fmt.Errorf("%w: %s", domain.ErrSigning, msg))
	}
	if !resp.ok() {
		return nil, recordErr(span, fmt.Errorf("%w: getting document info: %v", domain.ErrSigning, resp.statusErr()))
	}

	var info documentInfoResponse
	if err := json.Unmarshal(resp.body, &info); err != nil {
		return nil, recordErr(span, fmt.Errorf("%w: decoding document info: %v", domain.ErrSigning, err))
	}
	var raw map[string]any
	if err := json.Unmarshal(resp.body, &raw); err != nil {
		return nil, recordErr(span, fmt.Errorf("%w: decoding document info: %v", domain.ErrSigning, err))
	}

	doc := &domain.ProviderDocument{
		DocumentID:  sigexDocumentID,
		Title:       info.Title,
		Description: info.Description,
		Raw:         raw,
	}
	for _, s := range info.Signatures {
		doc.Signatures = append(doc.Signatures, domain.ProviderSignature{SignID: s.SignID, Signature: s.Signature})
	}
	return doc, nil
}

func (c *Client) documentURL(sigexDocumentID, suffix string) string {
	return c.baseURL + "/api/" + sigexDocumentID + suffix
}

// buildDocumentsToSign はドメインの文書ペイロードを送信形式に変換する。
// IDが未設定の場合は1始まりの位置を使う。
func buildDocumentsToSign(documents []domain.SigningDocument) []documentToSign {
	out := make([]documentToSign, 0, len(documents))
	for i, d := range documents {
		id := d.ID
		if id == 0 {
			id = i + 1
		}
		nameKz, nameEn := d.NameKz, d.NameEn
		if nameKz == "" {
			nameKz = d.NameRu
		}
		if nameEn == "" {
			nameEn = d.NameRu
		}
		meta := make([]metaField, 0, len(d.Meta))
		for _, m := range d.Meta {
			meta = append(meta, metaField{Name: m.Name, Value: m.Value})
		}
		mime := ""
		if d.IsPDF {
			mime = mimePDF
		}
		out = append(out, documentToSign{
			ID:     id,
			NameRu: d.NameRu,
			NameKz: nameKz,
			NameEn: nameEn,
			Meta:   meta,
			Document: fileEnvelope{File: fileData{
				Mime: mime,
				Data: base64.StdEncoding.EncodeToString(d.Data),
			}},
		})
	}
	return out
}

// decodeDocumentResponse は文書APIの応答を解釈する。
// keyが含まれない状態でmessageがあれば失敗とみなす。
func decodeDocumentResponse(resp *response, err error, key string) (*documentResponse, error) {
	if err != nil {
		return nil, err
	}
	if msg, ok := resp.message(); ok && !resp.has(key) {
		return nil, fmt.Errorf("%s", msg)
	}
	if !resp.ok() {
		return nil, resp.statusErr()
	}
	var body documentResponse
	if err := json.Unmarshal(resp.body, &body); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &body, nil
}

// doJSON はJSONボディ付きのリクエストを送信する。
func (c *Client) doJSON(ctx context.Context, hc *http.Client, method, target string, payload any) (*response, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	return c.do(ctx, hc, method, target, bytes.NewReader(b), "application/json")
}

// do はリクエストを送信して応答ボディを読み込む。通信レベルの失敗のみエラーを返す。
func (c *Client) do(ctx context.Context, hc *http.Client, method, target string, body io.Reader, contentType string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	res, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return newResponse(res.StatusCode, b), nil
}

// sleep はコンテキストのキャンセルを考慮して待機する。
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func recordErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
