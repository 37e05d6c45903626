package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/templui/stravasync/internal/cache"
	"github.com/templui/stravasync/internal/config"
	"github.com/templui/stravasync/internal/crypto"
	"github.com/templui/stravasync/internal/db"
	"github.com/templui/stravasync/internal/repository"
	"github.com/templui/stravasync/internal/service"
	"github.com/templui/stravasync/internal/storage"
	"github.com/templui/stravasync/internal/strava"
)

type App struct {
	Cfg             *config.Config
	DB              *sqlx.DB
	Redis           *redis.Client
	Storage         storage.Storage
	IdentityService *service.IdentityService
	LinkService     *service.LinkService
	SyncService     *service.SyncService
	ActivityService *service.ActivityService
	PhotoService    *service.PhotoService
	MockService     *service.MockService
	TokenRepository repository.TokenRepository
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// Initialize database
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Run database migrations
	err = db.RunMigrations(ctx, database.DB, cfg.DBDriver)
	if err != nil {
		_ = db.Close(database)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	a := &App{Cfg: cfg, DB: database}
	if err := a.wire(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Cfg

	// Repositories
	userRepository := repository.NewUserRepository(a.DB)
	tokenRepository := repository.NewTokenRepository(a.DB)
	activityRepository := repository.NewActivityRepository(a.DB)
	photoRepository := repository.NewPhotoRepository(a.DB)

	// Storage
	blobStorage, err := storage.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	encryptor, err := crypto.New(cfg.TokenEncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to initialize token encryption: %w", err)
	}
	if cfg.TokenEncryptionKey == "" {
		slog.Warn("TOKEN_ENCRYPTION_KEY not set, strava tokens are stored unencrypted")
	}

	// Strava
	httpClient := &http.Client{Timeout: cfg.StravaHTTPTimeout}
	oauth := strava.NewOAuth(strava.OAuthConfig{
		ClientID:     cfg.StravaClientID,
		ClientSecret: cfg.StravaClientSecret,
		AuthURL:      cfg.StravaAuthURL,
		TokenURL:     cfg.StravaTokenURL,
		RedirectURL:  cfg.StravaRedirectURL,
		Timeout:      cfg.StravaHTTPTimeout,
		HTTPClient:   httpClient,
	})
	api := strava.NewClient(cfg.StravaAPIURL, cfg.StravaHTTPTimeout, httpClient)

	// Link state
	var states service.LinkStateStore
	switch cfg.LinkStateBackend {
	case "redis":
		client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		a.Redis = client
		states = service.NewRedisLinkStateStore(client, cfg.LinkStateTTL)
		slog.Info("link state stored in redis")
	case "db", "":
		states = service.NewSQLLinkStateStore(tokenRepository, cfg.LinkStateTTL)
	default:
		return fmt.Errorf("unknown link state backend %q", cfg.LinkStateBackend)
	}

	// Services
	credentials := service.NewCredentialStore(userRepository, encryptor)
	refresher := service.NewTokenRefresher(credentials, oauth)
	activityService := service.NewActivityService(activityRepository, refresher, api)

	a.Storage = blobStorage
	a.TokenRepository = tokenRepository
	a.IdentityService = service.NewIdentityService(userRepository, cfg.IdentityJWTSecret, cfg.IdentityJWTIssuer)
	a.LinkService = service.NewLinkService(states, oauth, credentials, refresher, api)
	a.SyncService = service.NewSyncService(activityRepository, photoRepository, refresher, api, blobStorage, cfg.StravaPageSize)
	a.ActivityService = activityService
	a.PhotoService = service.NewPhotoService(photoRepository, activityService, refresher, api, blobStorage, cfg.MaxPhotoSize)
	a.MockService = service.NewMockService(activityRepository, blobStorage, cfg.MockMaxCount)
	return nil
}

func (a *App) Close() error {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			slog.Error("failed to close redis", "error", err)
		}
	}
	if a.DB != nil {
		return db.Close(a.DB)
	}
	return nil
}
