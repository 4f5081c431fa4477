package remote

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServiceAccountKeyBase64(t *testing.T) string {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pemBlock := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	})

	key := gcpServiceAccountKey{
		PrivateKeyID: "key-1",
		PrivateKey:   string(pemBlock),
		ClientEmail:  "collector@example.iam.gserviceaccount.com",
	}
	raw, err := json.Marshal(key)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

func TestGCPUploadHappyPath(t *testing.T) {
	keyB64 := testServiceAccountKeyBase64(t)

	var uploadedBody []byte
	mux := http.NewServeMux()
	mux.HandleFunc("/o", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "http://"+r.Host+"/session/abc")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/session/abc", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		uploadedBody = body
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"timeCreated":"2026-01-01T00:00:00Z","name":"mft-0000.jsonl"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	err := GCPUpload(server.Client(), server.URL, keyB64, "mft-0000.jsonl", []byte(`{"hello":"world"}`), "application/json-seq")
	require.NoError(t, err)
	assert.Equal(t, `{"hello":"world"}`, string(uploadedBody))
}

func TestGCPUploadResumesOnNonOKResponse(t *testing.T) {
	keyB64 := testServiceAccountKeyBase64(t)
	payload := []byte("0123456789")

	attempts := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/o", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "http://"+r.Host+"/session/resume")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/session/resume", func(w http.ResponseWriter, r *http.Request) {
		attempts++
		contentRange := r.Header.Get("Content-Range")
		if attempts == 1 {
			// initial full-body PUT fails
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if contentRange == "bytes */10" {
			// status check: report 5 bytes already uploaded via redirect
			w.Header().Set("Range", "bytes=0-4")
			w.WriteHeader(http.StatusPermanentRedirect)
			return
		}
		// resumed PUT of remaining bytes succeeds
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	err := GCPUpload(server.Client(), server.URL, keyB64, "resume.jsonl", payload, "application/json-seq")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, attempts, 3)
}

func TestCreateJWTGCPRejectsBadBase64(t *testing.T) {
	_, err := createJWTGCP("not-base64!!")
	assert.Error(t, err)
}

func TestCreateJWTGCPProducesSignedToken(t *testing.T) {
	keyB64 := testServiceAccountKeyBase64(t)
	token, err := createJWTGCP(keyB64)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}
