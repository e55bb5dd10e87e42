package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/parley-labs/parley/internal/shared"
)

const graderTimeout = 30 * time.Second

// Grader asks the grading service to evaluate a finished session. The
// service reads the persisted record itself; we only send the key.
type Grader struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewGrader(baseURL, apiKey string) *Grader {
	return &Grader{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: graderTimeout},
	}
}

func (g *Grader) Grade(ctx context.Context, sessionID string) error {
	body, _ := json.Marshal(map[string]string{"session_id": sessionID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/gradings", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrGradingFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrGradingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", shared.ErrGradingFailed, resp.StatusCode, snippet)
	}
	return nil
}
