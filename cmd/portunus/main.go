package main

import (
	"context"
	"fmt"
	"log"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/portunusbank/portunus"
	"github.com/portunusbank/portunus/api"
	"github.com/portunusbank/portunus/audit"
	"github.com/portunusbank/portunus/config"
	"github.com/portunusbank/portunus/flow"
	"github.com/portunusbank/portunus/logger"
	"github.com/portunusbank/portunus/preferences"
	"github.com/portunusbank/portunus/session"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger.InitLogger(cfg.LogLevel)
	defer logger.Log.Sync()

	logger.Log.Info("Starting Portunus Demo Bank",
		zap.Int("port", cfg.Port),
		zap.String("session_store", cfg.SessionStore),
	)

	// Session store selection
	var store session.Store
	switch cfg.SessionStore {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		store = session.NewRedisStore(client, "")
	default:
		store = session.NewMemoryStore()
	}

	recorder := audit.NewZapRecorder(logger.Log)
	core := portunus.NewCore(store, cfg.Revocation, recorder, logger.Log)

	prefs, err := preferences.Open(cfg.DSN)
	if err != nil {
		logger.Log.Fatal("failed to open preferences database", zap.Error(err))
	}

	var oidcManager *flow.OIDCManager
	if cfg.OIDC.Issuer != "" {
		oidcManager, err = flow.NewOIDCManager(context.Background(), cfg.OIDC)
		if err != nil {
			logger.Log.Fatal("failed to initialize OIDC manager", zap.Error(err))
		}
	} else {
		logger.Log.Warn("OIDC_ISSUER not set, login routes will not work")
	}

	// Setup Echo
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Routes
	h := api.NewHandler(oidcManager, store, core.Directory, core.Gate, prefs, recorder, logger.Log)
	h.RegisterRoutes(e)

	core.Revocation.RegisterRoutes(e.Group("/api"))
	e.GET("/health", core.Revocation.HandleHealth)

	logger.Log.Info("Server is starting", zap.Int("port", cfg.Port))
	if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
		logger.Log.Fatal("server failed to start", zap.Error(err))
	}
}
