package sigex

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Ivan-vtr/doc-sign-service/internal/domain"
)

// outcomeKind はロングポーリング1回分の結果の種類。
type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomePending
	outcomeRetryable
	outcomeFatal
)

func (k outcomeKind) String() string {
	switch k {
	case outcomeSuccess:
		return "success"
	case outcomePending:
		return "pending"
	case outcomeRetryable:
		return "retryable"
	case outcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// outcome はロングポーリング呼び出し1回の結果。
type outcome struct {
	kind       outcomeKind
	err        error  // retryable, fatal
	message    string // pending
	signatures []string
}

// response はSigexの応答。bodyがJSONオブジェクトでない場合fieldsはnil。
type response struct {
	status int
	body   []byte
	fields map[string]json.RawMessage
}

func newResponse(status int, body []byte) *response {
	r := &response{status: status, body: body}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err == nil {
		r.fields = fields
	}
	return r
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

func (r *response) has(key string) bool {
	_, ok := r.fields[key]
	return ok
}

// message はmessageキーの値を返す。Sigexではこのキーの存在が常にエラーを意味する。
func (r *response) message() (string, bool) {
	raw, ok := r.fields["message"]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return string(raw), true
	}
	return s, true
}

func (r *response) statusErr() error {
	return fmt.Errorf("unexpected status %d", r.status)
}

// classifySend はデータ送信の結果を分類する。
func classifySend(resp *response, err error) outcome {
	if err != nil {
		return outcome{kind: outcomeRetryable, err: err}
	}
	if msg, ok := resp.message(); ok {
		return outcome{kind: outcomeFatal, err: fmt.Errorf("%w: %s", domain.ErrSigning, msg)}
	}
	if !resp.ok() {
		return outcome{kind: outcomeRetryable, err: resp.statusErr()}
	}
	return outcome{kind: outcomeSuccess}
}

// classifyPoll は署名取得の結果を分類する。
// キャンセル以外のmessageは未完了として扱い、通信エラーや不完全な応答は再試行対象とする。
func classifyPoll(resp *response, err error) outcome {
	if err != nil {
		return outcome{kind: outcomeRetryable, err: err}
	}
	if msg, ok := resp.message(); ok {
		if isCancellation(msg) {
			return outcome{kind: outcomeFatal, err: fmt.Errorf("%w: %s", domain.ErrSigningCancelled, msg)}
		}
		return outcome{kind: outcomePending, message: msg}
	}
	if !resp.ok() {
		return outcome{kind: outcomeRetryable, err: resp.statusErr()}
	}

	var body pollResponse
	if err := json.Unmarshal(resp.body, &body); err != nil {
		return outcome{kind: outcomeRetryable, err: fmt.Errorf("decoding signatures: %w", err)}
	}
	signatures := make([]string, 0, len(body.DocumentsToSign))
	for i, d := range body.DocumentsToSign {
		if d.Document == nil || d.Document.File == nil || d.Document.File.Data == nil {
			return outcome{kind: outcomeRetryable, err: fmt.Errorf("signed document %d has no data", i)}
		}
		signatures = append(signatures, *d.Document.File.Data)
	}
	return outcome{kind: outcomeSuccess, signatures: signatures}
}

func isCancellation(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range cancelMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
