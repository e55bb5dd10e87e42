// Package credential obtains the short-lived transport credentials a
// practice call needs: the partner provider's ephemeral secret for the
// handshake, and the trainee's per-session gateway token.
package credential

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

const defaultRequestTimeout = 10 * time.Second

// Request describes the session the credential is scoped to.
type Request struct {
	PersonaID       string `json:"persona_id"`
	SessionKind     string `json:"session_kind"`
	ScreenShare     bool   `json:"screen_share"`
	ScenarioPrompt  string `json:"scenario_prompt,omitempty"`
	TraineeIdentity string `json:"trainee_identity"`
}

// Grant is a one-shot credential. The client secret expires around sixty
// seconds after issuance, so the handshake must complete well inside that
// window or the grant is burned.
type Grant struct {
	SessionID    string        `json:"session_id"`
	ClientSecret string        `json:"client_secret"`
	ExpiresAt    time.Time     `json:"expires_at"`
	Partner      PartnerConfig `json:"partner"`
}

// PartnerConfig is the provider-side persona configuration echoed back with
// the grant.
type PartnerConfig struct {
	Model        string `json:"model"`
	Voice        string `json:"voice,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultRequestTimeout},
	}
}

// Issue requests a grant from the token service. A 429 maps to
// shared.ErrRateLimited so callers can tell the trainee to wait rather than
// retry; every other failure maps to shared.ErrIssuanceFailed.
func (c *Client) Issue(ctx context.Context, req Request) (*Grant, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrIssuanceFailed, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/practice/credentials", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrIssuanceFailed, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrIssuanceFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, shared.ErrRateLimited
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", shared.ErrIssuanceFailed, resp.StatusCode, snippet)
	}

	var grant Grant
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrIssuanceFailed, err)
	}
	if grant.SessionID == "" || grant.ClientSecret == "" {
		return nil, fmt.Errorf("%w: incomplete grant", shared.ErrIssuanceFailed)
	}
	return &grant, nil
}
