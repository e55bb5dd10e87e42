package bootstrap

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/pion/webrtc/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/parley-labs/parley/internal/abandon"
	"github.com/parley-labs/parley/internal/credential"
	"github.com/parley-labs/parley/internal/gateway"
	"github.com/parley-labs/parley/internal/media"
	"github.com/parley-labs/parley/internal/partner"
	"github.com/parley-labs/parley/internal/practice"
	"github.com/parley-labs/parley/internal/recording"
	"github.com/parley-labs/parley/internal/registry"
	"github.com/parley-labs/parley/internal/shared"
	"github.com/parley-labs/parley/internal/trainee"
	"github.com/parley-labs/parley/internal/transcript"
)

func ProvideHub() *gateway.Hub {
	return gateway.NewHub()
}

func ProvideReporter(redisClient *redis.Client, store *transcript.Store, log *slog.Logger) *abandon.Reporter {
	return abandon.NewReporter(redisClient, store, log)
}

func ProvideTraineeManager(cfg *Config, log *slog.Logger) (*trainee.Manager, error) {
	servers := make([]trainee.ICEServerConfig, 0, len(cfg.RTCICEServers))
	for _, s := range cfg.RTCICEServers {
		servers = append(servers, trainee.ICEServerConfig{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return trainee.NewManager(trainee.Config{
		ICEServers: servers,
		PortRange:  trainee.PortRange{Min: cfg.RTCPortMin, Max: cfg.RTCPortMax},
	}, log)
}

func ProvideSessionManager(
	cfg *Config,
	issuer *credential.Client,
	store *transcript.Store,
	grader *transcript.Grader,
	uploader *recording.Uploader,
	reporter *abandon.Reporter,
	reg *registry.Store,
	hub *gateway.Hub,
	log *slog.Logger,
) *practice.Manager {
	iceServers := make([]webrtc.ICEServer, 0, len(cfg.RTCICEServers))
	for _, s := range cfg.RTCICEServers {
		server := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			server.Username = s.Username
			server.Credential = s.Credential
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		iceServers = append(iceServers, server)
	}

	var mgr *practice.Manager
	newSession := func(traineeID, scenarioID, personaID, prompt string, screenShare bool) *practice.Session {
		dec, err := media.NewOpusDecoder()
		if err != nil {
			// Recording degrades silently without a decoder.
			log.Warn("opus decoder unavailable, recording disabled", "error", err)
			dec = nil
		}
		bundle := media.NewBundle(media.BundleConfig{
			Decoder: dec,
			Logger:  log,
		})
		return practice.NewSession(practice.SessionConfig{
			TraineeID:      traineeID,
			ScenarioID:     scenarioID,
			PersonaID:      personaID,
			ScenarioPrompt: prompt,
			ScreenShare:    screenShare,
			Issuer:         issuer,
			NewTransport: func() practice.PartnerTransport {
				return partner.New(partner.Config{
					SignalingURL:     cfg.SignalingURL,
					HandshakeTimeout: cfg.HandshakeTimeout,
					ICEServers:       iceServers,
					Logger:           log,
				})
			},
			Resources:        practice.BundleResources{Bundle: bundle},
			Store:            store,
			Grader:           grader,
			Uploader:         uploader,
			Reporter:         reporter,
			Sink:             hub,
			Logger:           log,
			WarnAfter:        cfg.WarnAfter,
			Ceiling:          cfg.Ceiling,
			MinGradeSeconds:  cfg.MinGradeSeconds,
			HandshakeTimeout: cfg.HandshakeTimeout,
			FrameInterval:    cfg.FrameInterval,
			FrameMaxWidth:    cfg.FrameMaxWidth,
			OnFinished: func(id string) {
				mgr.Remove(id)
			},
		})
	}
	mgr = practice.NewManager(newSession, reg, log)
	return mgr
}

// ProvideAuthFunc authenticates platform credentials: a bearer token minted
// by the same key pair the session tokens use, carrying the trainee
// identity.
func ProvideAuthFunc(tokens *credential.TokenService) gateway.AuthFunc {
	return func(r *http.Request) (string, error) {
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			return "", shared.ErrUnauthorized
		}
		traineeID, _, err := tokens.Verify(token)
		if err != nil {
			return "", shared.ErrUnauthorized
		}
		return traineeID, nil
	}
}

var EngineModule = fx.Options(
	fx.Provide(
		ProvideHub,
		ProvideReporter,
		ProvideTraineeManager,
		ProvideSessionManager,
		ProvideAuthFunc,
	),
)
