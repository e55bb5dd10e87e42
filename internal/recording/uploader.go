// Package recording ships finished session audio to the recording store.
package recording

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/parley-labs/parley/internal/shared"
)

const uploadTimeout = 2 * time.Minute

// Uploader posts a WAV capture and returns the URL the store assigned.
type Uploader struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewUploader(baseURL, apiKey string) *Uploader {
	return &Uploader{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: uploadTimeout},
	}
}

func (u *Uploader) Upload(ctx context.Context, traineeID, sessionID string, wav []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("trainee_id", traineeID); err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrPersistenceFailed, err)
	}
	if err := mw.WriteField("session_id", sessionID); err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrPersistenceFailed, err)
	}
	part, err := mw.CreateFormFile("audio", sessionID+".wav")
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrPersistenceFailed, err)
	}
	if _, err := part.Write(wav); err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrPersistenceFailed, err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrPersistenceFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/v1/recordings", &body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrPersistenceFailed, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if u.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+u.apiKey)
	}

	resp, err := u.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrPersistenceFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: status %d: %s", shared.ErrPersistenceFailed, resp.StatusCode, snippet)
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrPersistenceFailed, err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("%w: empty recording url", shared.ErrPersistenceFailed)
	}
	return out.URL, nil
}
