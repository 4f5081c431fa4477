// Package remote uploads a sink's finished output to a cloud object
// store (spec §5's remote targets), signing requests with each
// provider's own credential scheme rather than a shared one.
package remote

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/forensics-collect/collector/internal/ferrors"
	"github.com/forensics-collect/collector/internal/logging"
)

const gcpComponent = "remote.gcp"

const gcpMaxResumeAttempts = 15

type gcpUploadResponse struct {
	TimeCreated string `json:"timeCreated"`
	Name        string `json:"name"`
}

type gcpServiceAccountKey struct {
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
}

// GCPUpload pushes data to a Google Cloud Storage bucket identified by
// bucketURL (the JSON API root for the bucket, e.g.
// "https://storage.googleapis.com/storage/v1/b/<bucket>") as objectName,
// authenticating with a base64-encoded service account key JSON blob.
func GCPUpload(client *http.Client, bucketURL, apiKeyBase64, objectName string, data []byte, contentType string) error {
	token, err := createJWTGCP(apiKeyBase64)
	if err != nil {
		return err
	}

	session := fmt.Sprintf("%s/o?uploadType=resumable&name=%s", bucketURL, url.QueryEscape(objectName))
	sessionURI, err := gcpCreateSession(client, session, token)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPut, sessionURI, bytes.NewReader(data))
	if err != nil {
		return ferrors.Wrap(ferrors.ErrRemoteUpload, gcpComponent, "build upload request", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Content-Length", strconv.Itoa(len(data)))

	res, err := client.Do(req)
	if err != nil {
		logging.Component(gcpComponent).Warnf("upload failed, attempting resume: %v", err)
		return gcpResumeUpload(client, sessionURI, data, 0)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
		logging.Component(gcpComponent).Warnf("non-200 response from GCP storage: %d", res.StatusCode)
		return gcpResumeUpload(client, sessionURI, data, 0)
	}

	body, _ := io.ReadAll(res.Body)
	var uploaded gcpUploadResponse
	if err := json.Unmarshal(body, &uploaded); err != nil {
		logging.Component(gcpComponent).Warnf("got non-standard upload response: %v", err)
		return nil
	}
	logging.Component(gcpComponent).Infof("uploaded %s at %s", uploaded.Name, uploaded.TimeCreated)
	return nil
}

func gcpCreateSession(client *http.Client, sessionURL, token string) (string, error) {
	req, err := http.NewRequest(http.MethodPost, sessionURL, nil)
	if err != nil {
		return "", ferrors.Wrap(ferrors.ErrRemoteUpload, gcpComponent, "build session request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Length", "0")

	res, err := client.Do(req)
	if err != nil {
		return "", ferrors.Wrap(ferrors.ErrRemoteUpload, gcpComponent, "establish upload session", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", ferrors.Wrap(ferrors.ErrBadResponse, gcpComponent, "non-200 session response", nil)
	}
	location := res.Header.Get("Location")
	if location == "" {
		return "", ferrors.Wrap(ferrors.ErrBadResponse, gcpComponent, "no Location header in session response", nil)
	}
	return location, nil
}

// gcpResumeUpload retries an interrupted upload by asking GCP how many
// bytes it already has, then PUTting the remainder with a Content-Range
// header naming the gap. It recurses up to gcpMaxResumeAttempts times.
func gcpResumeUpload(client *http.Client, sessionURI string, data []byte, attempt int) error {
	if attempt > gcpMaxResumeAttempts {
		return ferrors.Wrap(ferrors.ErrMaxAttempts, gcpComponent, "max resume attempts reached", nil)
	}

	status, err := gcpUploadStatus(client, sessionURI, len(data))
	if err != nil {
		return err
	}
	if status == -1 {
		return nil
	}

	remaining := data[status+1:]
	req, err := http.NewRequest(http.MethodPut, sessionURI, bytes.NewReader(remaining))
	if err != nil {
		return ferrors.Wrap(ferrors.ErrRemoteUpload, gcpComponent, "build resume request", err)
	}
	req.Header.Set("Content-Length", strconv.Itoa(len(remaining)))
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", status+1, len(data)-1, len(data)))

	res, err := client.Do(req)
	if err != nil {
		return gcpResumeUpload(client, sessionURI, data, attempt+1)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
		return gcpResumeUpload(client, sessionURI, data, attempt+1)
	}
	return nil
}

// gcpUploadStatus probes an in-progress resumable upload. It returns -1
// when the upload is already complete; otherwise it returns the last byte
// index named in the response's Range header, and the caller resumes from
// the byte after it.
func gcpUploadStatus(client *http.Client, sessionURI string, total int) (int, error) {
	req, err := http.NewRequest(http.MethodPut, sessionURI, nil)
	if err != nil {
		return 0, ferrors.Wrap(ferrors.ErrRemoteUpload, gcpComponent, "build status request", err)
	}
	req.Header.Set("Content-Length", "0")
	req.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", total))

	res, err := client.Do(req)
	if err != nil {
		return 0, ferrors.Wrap(ferrors.ErrRemoteUpload, gcpComponent, "check upload status", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusOK || res.StatusCode == http.StatusCreated {
		return -1, nil
	}
	if res.StatusCode != http.StatusPermanentRedirect {
		return 0, ferrors.Wrap(ferrors.ErrBadResponse, gcpComponent, "unknown status response", nil)
	}

	rangeHeader := res.Header.Get("Range")
	if rangeHeader == "" {
		return 0, nil
	}
	parts := strings.Split(rangeHeader, "-")
	if len(parts) != 2 {
		return 0, ferrors.Wrap(ferrors.ErrBadResponse, gcpComponent, "unexpected range header: "+rangeHeader, nil)
	}
	bytesReceived, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, ferrors.Wrap(ferrors.ErrBadResponse, gcpComponent, "parse uploaded byte count", err)
	}
	return bytesReceived, nil
}

// createJWTGCP builds a signed RS256 JWT asserting the OAuth2 storage
// scope, using the service account private key embedded in a
// base64-encoded key JSON blob.
func createJWTGCP(apiKeyBase64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(apiKeyBase64)
	if err != nil {
		return "", ferrors.Wrap(ferrors.ErrRemoteAPIKey, gcpComponent, "base64 decode service account key", err)
	}
	var key gcpServiceAccountKey
	if err := json.Unmarshal(raw, &key); err != nil {
		return "", ferrors.Wrap(ferrors.ErrRemoteAPIKey, gcpComponent, "parse service account key json", err)
	}

	signingKey, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(key.PrivateKey))
	if err != nil {
		return "", ferrors.Wrap(ferrors.ErrRemoteAPIKey, gcpComponent, "parse RSA private key", err)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   key.ClientEmail,
		"sub":   key.ClientEmail,
		"scope": "https://www.googleapis.com/auth/devstorage.read_write",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = key.PrivateKeyID

	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", ferrors.Wrap(ferrors.ErrRemoteAPIKey, gcpComponent, "sign jwt", err)
	}
	return signed, nil
}
