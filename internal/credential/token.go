package credential

import (
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/parley-labs/parley/internal/shared"
)

// TokenTTL bounds how long a minted gateway token stays valid. It must
// outlive the session ceiling: the abandon beacon and the event feed
// present the same token right up to the end of the call.
const TokenTTL = time.Hour

// TokenService mints and verifies the per-session tokens trainees present
// on gateway endpoints, including the abandon beacon fired during page
// unload.
type TokenService struct {
	apiKey    string
	apiSecret string
}

func NewTokenService(apiKey, apiSecret string) *TokenService {
	return &TokenService{
		apiKey:    apiKey,
		apiSecret: apiSecret,
	}
}

// Mint issues a token binding the trainee identity to one session.
func (s *TokenService) Mint(traineeID, sessionID string) (string, error) {
	at := auth.NewAccessToken(s.apiKey, s.apiSecret)

	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     sessionID,
	}

	at.SetIdentity(traineeID).
		SetValidFor(TokenTTL).
		SetVideoGrant(grant)

	return at.ToJWT()
}

// Verify checks a presented token and returns the trainee identity and the
// session it is scoped to.
func (s *TokenService) Verify(token string) (traineeID, sessionID string, err error) {
	verifier, err := auth.ParseAPIToken(token)
	if err != nil {
		return "", "", shared.ErrUnauthorized
	}
	if verifier.APIKey() != s.apiKey {
		return "", "", shared.ErrUnauthorized
	}

	claims, err := verifier.Verify(s.apiSecret)
	if err != nil {
		return "", "", shared.ErrUnauthorized
	}
	if claims.Video == nil || claims.Video.Room == "" {
		return "", "", shared.ErrUnauthorized
	}
	return claims.Identity, claims.Video.Room, nil
}
