package bootstrap

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/parley-labs/parley/internal/credential"
	"github.com/parley-labs/parley/internal/gateway"
	"github.com/parley-labs/parley/internal/health"
	"github.com/parley-labs/parley/internal/practice"
	"github.com/parley-labs/parley/internal/trainee"
	"github.com/parley-labs/parley/internal/transcript"
)

const version = "1.0.0"

var defaultCORSConfig = middleware.CORSConfig{
	AllowOrigins: []string{"*"},
	AllowMethods: []string{
		http.MethodGet,
		http.MethodHead,
		http.MethodPost,
		http.MethodDelete,
		http.MethodOptions,
	},
	AllowHeaders: []string{
		"Accept",
		"Authorization",
		"Content-Type",
		"X-Requested-With",
	},
	AllowCredentials: true,
	MaxAge:           86400,
}

func NewEchoServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(defaultCORSConfig))
	return e
}

func RegisterRoutes(
	e *echo.Echo,
	sessions *practice.Manager,
	trainees *trainee.Manager,
	records *transcript.Store,
	tokens *credential.TokenService,
	auth gateway.AuthFunc,
	hub *gateway.Hub,
	db *gorm.DB,
	redisClient *redis.Client,
	cfg *Config,
	log *slog.Logger,
) {
	h := gateway.NewHandler(sessions, trainees, records, tokens, auth, hub, log)
	h.RegisterRoutes(e.Group("/api/v1/practice"))

	hh := health.NewHandler(db, redisClient, sessions, cfg.CredentialServiceURL, cfg.GradingServiceURL, version)
	hh.RegisterRoutes(e)
}

func StartServer(lc fx.Lifecycle, e *echo.Echo, sessions *practice.Manager, cfg *Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := e.Start(cfg.ServerAddr); err != nil && err != http.ErrServerClosed {
					e.Logger.Fatal(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			sessions.Shutdown(ctx)
			return e.Shutdown(ctx)
		},
	})
}

var ServerModule = fx.Options(
	fx.Provide(NewEchoServer),
	fx.Invoke(RegisterRoutes),
	fx.Invoke(StartServer),
)

func Run() {
	fx.New(
		fx.Provide(LoadConfig),
		InfrastructureModule,
		StoresModule,
		EngineModule,
		ServerModule,
	).Run()
}
