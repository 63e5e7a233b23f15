package sigex

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ivan-vtr/doc-sign-service/internal/domain"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(Config{
		BaseURL:         srv.URL,
		Timeout:         5 * time.Second,
		LongPollTimeout: 5 * time.Second,
		PollRetries:     3,
		PollInterval:    time.Millisecond,
		SendRetries:     3,
		SendRetryDelay:  time.Millisecond,
	})
	return c, srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestRegisterQRSigning_Success(t *testing.T) {
	var gotBody map[string]string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/egovQr", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		writeJSON(w, http.StatusOK, map[string]string{
			"qrCode":                 "base64qrcode",
			"dataURL":                "https://sigex.test/api/egovQr/123/data",
			"signURL":                "https://sigex.test/api/egovQr/123/sign",
			"eGovMobileLaunchLink":   "egov://sign/123",
			"eGovBusinessLaunchLink": "egovbiz://sign/123",
		})
	}))

	session, err := c.RegisterQRSigning(context.Background(), "Подписание: Договор")
	require.NoError(t, err)

	assert.Equal(t, "Подписание: Договор", gotBody["description"])
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "base64qrcode", session.QRCodeBase64)
	assert.Equal(t, "https://sigex.test/api/egovQr/123/data", session.DataURL)
	assert.Equal(t, "https://sigex.test/api/egovQr/123/sign", session.SignURL)
	assert.Equal(t, "egov://sign/123", session.EgovMobileLink)
	assert.Equal(t, "egovbiz://sign/123", session.EgovBusinessLink)
	assert.Equal(t, domain.SignatureStatusPending, session.Status)
}

func TestRegisterQRSigning_MessageIsError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Service unavailable"})
	}))

	_, err := c.RegisterQRSigning(context.Background(), "x")
	require.ErrorIs(t, err, domain.ErrSigning)
	assert.Contains(t, err.Error(), "Service unavailable")
}

func TestRegisterQRSigning_HTTPError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.RegisterQRSigning(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrSigning)
}

func TestSendDataForSigning_Payload(t *testing.T) {
	var got sendDataRequest
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, map[string]any{})
	}))

	session := &domain.QRSigningSession{DataURL: srv.URL + "/data", SignURL: srv.URL + "/sign"}
	docs := []domain.SigningDocument{
		{NameRu: "Договор", Data: []byte("%PDF-1.4\n"), IsPDF: true},
		{ID: 7, NameRu: "Скан", NameEn: "Scan", Data: []byte{0x89, 'P', 'N', 'G'}, Meta: []domain.MetaField{{Name: "k", Value: "v"}}},
	}
	require.NoError(t, c.SendDataForSigning(context.Background(), session, docs, false))

	assert.Equal(t, signMethodSignOnly, got.SignMethod)
	require.Len(t, got.DocumentsToSign, 2)

	first := got.DocumentsToSign[0]
	assert.Equal(t, 1, first.ID)
	assert.Equal(t, "Договор", first.NameKz)
	assert.Equal(t, "Договор", first.NameEn)
	assert.NotNil(t, first.Meta)
	assert.Equal(t, mimePDF, first.Document.File.Mime)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("%PDF-1.4\n")), first.Document.File.Data)

	second := got.DocumentsToSign[1]
	assert.Equal(t, 7, second.ID)
	assert.Equal(t, "Scan", second.NameEn)
	assert.Equal(t, "", second.Document.File.Mime)
	assert.Equal(t, []metaField{{Name: "k", Value: "v"}}, second.Meta)
}

func TestSendDataForSigning_AttachData(t *testing.T) {
	var got sendDataRequest
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, map[string]any{})
	}))

	session := &domain.QRSigningSession{DataURL: srv.URL + "/data"}
	err := c.SendDataForSigning(context.Background(), session, []domain.SigningDocument{{NameRu: "T", Data: []byte("x")}}, true)
	require.NoError(t, err)
	assert.Equal(t, signMethodWithData, got.SignMethod)
}

func TestSendDataForSigning_MessageNotRetried(t *testing.T) {
	var calls atomic.Int32
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusOK, map[string]string{"message": "Invalid data"})
	}))

	session := &domain.QRSigningSession{DataURL: srv.URL + "/data"}
	err := c.SendDataForSigning(context.Background(), session, []domain.SigningDocument{{NameRu: "T", Data: []byte("x")}}, false)
	require.ErrorIs(t, err, domain.ErrSigning)
	assert.Contains(t, err.Error(), "Invalid data")
	assert.EqualValues(t, 1, calls.Load())
}

func TestSendDataForSigning_RetriesTransportFailure(t *testing.T) {
	var calls atomic.Int32
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{})
	}))

	session := &domain.QRSigningSession{DataURL: srv.URL + "/data"}
	err := c.SendDataForSigning(context.Background(), session, []domain.SigningDocument{{NameRu: "T", Data: []byte("x")}}, false)
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())
}

func TestSendDataForSigning_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	session := &domain.QRSigningSession{DataURL: srv.URL + "/data"}
	err := c.SendDataForSigning(context.Background(), session, []domain.SigningDocument{{NameRu: "T", Data: []byte("x")}}, false)
	require.ErrorIs(t, err, domain.ErrSigning)
	assert.NotErrorIs(t, err, domain.ErrSigningTimeout)
	assert.EqualValues(t, 3, calls.Load())
}

func TestSendDataForSigning_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	dataURL := srv.URL + "/data"
	srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Timeout: time.Second, LongPollTimeout: time.Second, SendRetries: 2, SendRetryDelay: time.Millisecond})
	err := c.SendDataForSigning(context.Background(), &domain.QRSigningSession{DataURL: dataURL}, []domain.SigningDocument{{NameRu: "T"}}, false)
	assert.ErrorIs(t, err, domain.ErrSigning)
}

func TestPollSignatures_Success(t *testing.T) {
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		writeJSON(w, http.StatusOK, map[string]any{
			"documentsToSign": []any{
				map[string]any{"document": map[string]any{"file": map[string]any{"data": "sig1"}}},
				map[string]any{"document": map[string]any{"file": map[string]any{"data": "sig2"}}},
			},
		})
	}))

	sigs, err := c.PollSignatures(context.Background(), &domain.QRSigningSession{SignURL: srv.URL + "/sign"})
	require.NoError(t, err)
	assert.Equal(t, []string{"sig1", "sig2"}, sigs)
}

func TestPollSignatures_PendingThenSuccess(t *testing.T) {
	var calls atomic.Int32
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeJSON(w, http.StatusOK, map[string]string{"message": "Not ready yet"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"documentsToSign": []any{map[string]any{"document": map[string]any{"file": map[string]any{"data": "sig"}}}},
		})
	}))

	sigs, err := c.PollSignatures(context.Background(), &domain.QRSigningSession{SignURL: srv.URL + "/sign"})
	require.NoError(t, err)
	assert.Equal(t, []string{"sig"}, sigs)
	assert.EqualValues(t, 2, calls.Load())
}

func TestPollSignatures_Timeout(t *testing.T) {
	var calls atomic.Int32
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusOK, map[string]string{"message": "Not ready yet"})
	}))

	_, err := c.PollSignatures(context.Background(), &domain.QRSigningSession{SignURL: srv.URL + "/sign"})
	require.ErrorIs(t, err, domain.ErrSigningTimeout)
	assert.ErrorIs(t, err, domain.ErrSigning)
	assert.NotErrorIs(t, err, domain.ErrSigningCancelled)
	assert.EqualValues(t, 3, calls.Load())
}

func TestPollSignatures_Cancelled(t *testing.T) {
	for _, msg := range []string{"Operation cancelled by user", "Операция ОТМЕНЕНА пользователем"} {
		t.Run(msg, func(t *testing.T) {
			var calls atomic.Int32
			c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				writeJSON(w, http.StatusOK, map[string]string{"message": msg})
			}))

			_, err := c.PollSignatures(context.Background(), &domain.QRSigningSession{SignURL: srv.URL + "/sign"})
			require.ErrorIs(t, err, domain.ErrSigningCancelled)
			assert.NotErrorIs(t, err, domain.ErrSigningTimeout)
			assert.EqualValues(t, 1, calls.Load())
		})
	}
}

func TestPollSignatures_TransportErrorsRetried(t *testing.T) {
	var calls atomic.Int32
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusInternalServerError)
		case 2:
			// 不完全な応答
			writeJSON(w, http.StatusOK, map[string]any{"documentsToSign": []any{map[string]any{"document": map[string]any{}}}})
		default:
			writeJSON(w, http.StatusOK, map[string]any{
				"documentsToSign": []any{map[string]any{"document": map[string]any{"file": map[string]any{"data": "sig"}}}},
			})
		}
	}))

	sigs, err := c.PollSignatures(context.Background(), &domain.QRSigningSession{SignURL: srv.URL + "/sign"})
	require.NoError(t, err)
	assert.Equal(t, []string{"sig"}, sigs)
}

func TestPollSignatures_MissingListIsEmpty(t *testing.T) {
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{})
	}))

	sigs, err := c.PollSignatures(context.Background(), &domain.QRSigningSession{SignURL: srv.URL + "/sign"})
	require.NoError(t, err)
	assert.Empty(t, sigs)
}

func TestPollSignatures_ContextCancelled(t *testing.T) {
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Not ready yet"})
	}))
	c.pollInterval = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.PollSignatures(ctx, &domain.QRSigningSession{SignURL: srv.URL + "/sign"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, domain.ErrSigning)
}

func TestRegisterDocument(t *testing.T) {
	var got registerDocumentRequest
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, map[string]any{"documentId": "doc-456", "signId": 1})
	}))

	id, err := c.RegisterDocument(context.Background(), "Title", "Document: a.pdf", "base64sig")
	require.NoError(t, err)
	assert.Equal(t, "doc-456", id)
	assert.Equal(t, "cms", got.SignType)
	assert.Equal(t, "base64sig", got.Signature)
	assert.Equal(t, "Document: a.pdf", got.Description)
}

func TestRegisterDocument_NumericID(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"documentId": 98765})
	}))

	id, err := c.RegisterDocument(context.Background(), "Title", "Desc", "")
	require.NoError(t, err)
	assert.Equal(t, "98765", id)
}

func TestRegisterDocument_Error(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"message": "bad signature"})
	}))

	_, err := c.RegisterDocument(context.Background(), "Title", "Desc", "sig")
	require.ErrorIs(t, err, domain.ErrSigning)
	assert.Contains(t, err.Error(), "bad signature")
}

func TestUploadDocumentData(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/doc-1/data", r.URL.Path)
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "file content", string(body))
		writeJSON(w, http.StatusOK, map[string]any{"documentId": "doc-1", "digests": map[string]string{"1.2.3": "hash"}})
	}))

	digests, err := c.UploadDocumentData(context.Background(), "doc-1", []byte("file content"))
	require.NoError(t, err)
	assert.Equal(t, "hash", digests["1.2.3"])
}

func TestAddSignature(t *testing.T) {
	var got addSignatureRequest
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/doc-1", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, map[string]any{"documentId": "doc-1", "signId": 2})
	}))

	signID, err := c.AddSignature(context.Background(), "doc-1", "base64sig")
	require.NoError(t, err)
	assert.EqualValues(t, 2, signID)
	assert.Equal(t, addSignatureRequest{SignType: "cms", Signature: "base64sig"}, got)
}

func TestVerifyDocument(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/ok/verify" {
			writeJSON(w, http.StatusOK, map[string]any{"documentId": "ok"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Verification failed"})
	}))

	ok, err := c.VerifyDocument(context.Background(), "ok", []byte("data"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.VerifyDocument(context.Background(), "bad", []byte("data"))
	assert.ErrorIs(t, err, domain.ErrVerification)
	assert.False(t, ok)
}

func TestGetDocumentInfo(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"title":           "Test",
			"description":     "Desc",
			"signaturesTotal": 1,
			"signatures":      []any{map[string]any{"signId": 3, "signature": "cms"}},
		})
	}))

	info, err := c.GetDocumentInfo(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Test", info.Title)
	assert.Equal(t, "doc-1", info.DocumentID)
	require.Len(t, info.Signatures, 1)
	assert.EqualValues(t, 3, info.Signatures[0].SignID)
	assert.EqualValues(t, 1, info.Raw["signaturesTotal"])
}

func TestGetDocumentInfo_Error(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "document not found"})
	}))

	_, err := c.GetDocumentInfo(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrSigning)
}

func TestValidateSession(t *testing.T) {
	c := NewClient(Config{BaseURL: "https://sigex.kz/"})

	tests := []struct {
		name    string
		dataURL string
		signURL string
		wantErr bool
	}{
		{"provider host", "https://sigex.kz/api/egovQr/1", "https://sigex.kz/api/egovQr/1/sign", false},
		{"host case ignored", "https://SIGEX.kz/api/egovQr/1", "https://sigex.kz/api/egovQr/1/sign", false},
		{"internal data url", "http://169.254.169.254/latest/meta-data", "https://sigex.kz/api/egovQr/1/sign", true},
		{"other sign host", "https://sigex.kz/api/egovQr/1", "https://sigex.kz.evil.test/sign", true},
		{"scheme downgrade", "http://sigex.kz/api/egovQr/1", "https://sigex.kz/api/egovQr/1/sign", true},
		{"other port", "https://sigex.kz:8443/api/egovQr/1", "https://sigex.kz/api/egovQr/1/sign", true},
		{"userinfo", "https://user@sigex.kz/api/egovQr/1", "https://sigex.kz/api/egovQr/1/sign", true},
		{"empty", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.ValidateSession(&domain.QRSigningSession{DataURL: tt.dataURL, SignURL: tt.signURL})
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidInput)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSendDataForSigning_RejectsForeignHost(t *testing.T) {
	var calls atomic.Int32
	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{})
	}))
	t.Cleanup(foreign.Close)

	c, _ := newTestClient(t, http.NotFoundHandler())
	err := c.SendDataForSigning(context.Background(), &domain.QRSigningSession{DataURL: foreign.URL + "/data"}, []domain.SigningDocument{{NameRu: "T"}}, false)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.NotErrorIs(t, err, domain.ErrSigning)

	_, err = c.PollSignatures(context.Background(), &domain.QRSigningSession{SignURL: foreign.URL + "/sign"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Zero(t, calls.Load())
}

func TestConfig_MaxSigningDuration(t *testing.T) {
	cfg := Config{
		Timeout:         30 * time.Second,
		LongPollTimeout: 5 * time.Minute,
		PollRetries:     60,
		PollInterval:    3 * time.Second,
		SendRetries:     5,
		SendRetryDelay:  time.Second,
	}
	// 送信: 5*5m + 4*1s, 取得: 60*5m + 59*3s, 登録とアップロード: 2*30s
	want := 25*time.Minute + 4*time.Second + 300*time.Minute + 177*time.Second + time.Minute
	assert.Equal(t, want, cfg.MaxSigningDuration())

	assert.Equal(t, 2*time.Second+2*time.Millisecond, Config{Timeout: time.Millisecond, LongPollTimeout: time.Second}.MaxSigningDuration())
}
