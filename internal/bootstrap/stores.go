package bootstrap

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/parley-labs/parley/internal/credential"
	"github.com/parley-labs/parley/internal/recording"
	"github.com/parley-labs/parley/internal/registry"
	"github.com/parley-labs/parley/internal/transcript"
)

func ProvideTranscriptStore(db *gorm.DB) *transcript.Store {
	return transcript.NewStore(db)
}

func ProvideRegistryStore(redisClient *redis.Client) *registry.Store {
	return registry.NewStore(redisClient)
}

func ProvideCredentialClient(cfg *Config) *credential.Client {
	return credential.NewClient(cfg.CredentialServiceURL, cfg.CredentialAPIKey)
}

func ProvideTokenService(cfg *Config) *credential.TokenService {
	return credential.NewTokenService(cfg.TokenAPIKey, cfg.TokenAPISecret)
}

func ProvideGrader(cfg *Config) *transcript.Grader {
	return transcript.NewGrader(cfg.GradingServiceURL, cfg.GradingAPIKey)
}

func ProvideUploader(cfg *Config) *recording.Uploader {
	return recording.NewUploader(cfg.RecordingServiceURL, cfg.RecordingAPIKey)
}

func RunMigrations(store *transcript.Store) error {
	return store.Migrate()
}

var StoresModule = fx.Options(
	fx.Provide(
		ProvideTranscriptStore,
		ProvideRegistryStore,
		ProvideCredentialClient,
		ProvideTokenService,
		ProvideGrader,
		ProvideUploader,
	),
	fx.Invoke(RunMigrations),
)
