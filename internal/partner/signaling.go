package partner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/parley-labs/parley/internal/shared"
)

const maxAnswerSize = 256 * 1024

// Signaler performs the offer/answer exchange with the provider's signaling
// endpoint. The ephemeral secret authenticates exactly one exchange.
type Signaler struct {
	endpoint string
	http     *http.Client
}

func NewSignaler(endpoint string) *Signaler {
	return &Signaler{
		endpoint: endpoint,
		// The surrounding handshake context enforces the real deadline.
		http: &http.Client{Timeout: time.Minute},
	}
}

// Exchange posts the local SDP offer and returns the remote answer.
func (s *Signaler) Exchange(ctx context.Context, secret, model, offerSDP string) (string, error) {
	endpoint := s.endpoint
	if model != "" {
		endpoint += "?model=" + url.QueryEscape(model)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(offerSDP))
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrHandshakeRejected, err)
	}
	req.Header.Set("Content-Type", "application/sdp")
	req.Header.Set("Authorization", "Bearer "+secret)

	resp, err := s.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", shared.ErrHandshakeTimeout
		}
		return "", fmt.Errorf("%w: %v", shared.ErrHandshakeRejected, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: status %d: %s", shared.ErrHandshakeRejected, resp.StatusCode, snippet)
	}

	answer, err := io.ReadAll(io.LimitReader(resp.Body, maxAnswerSize))
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrHandshakeRejected, err)
	}
	if len(answer) == 0 {
		return "", fmt.Errorf("%w: empty answer", shared.ErrHandshakeRejected)
	}
	return string(answer), nil
}
