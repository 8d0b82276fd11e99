package common

import (
	"context"
	"log"
	"strings"

	"finlink-client-go/internal/authapi"
	"finlink-client-go/internal/models"
	"finlink-client-go/internal/objectstore"
	"finlink-client-go/internal/postgrest"
	"finlink-client-go/internal/profile"
	"finlink-client-go/internal/session"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via other means (shell
	// export, docker, etc.), so a missing .env file is fine.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	SessionStore *session.Store
	Cache        *session.Cache
	Rows         *postgrest.Service
	Auth         *authapi.Client
	Avatars      *objectstore.Client
	Loader       *profile.Loader
	Dispatcher   *session.Dispatcher
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices wires the client stack: session store and cache,
// row store, identity client, profile loader and auth dispatcher. The
// session store is passed explicitly to everything that needs session
// data; nothing reaches for an ambient singleton.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	sessionStore := session.NewStore()

	cache, err := session.NewCache(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}

	rows, err := postgrest.NewService(cfg.Backend, sessionStore)
	if err != nil {
		cache.Close()
		return nil, err
	}

	auth, err := authapi.NewClient(cfg.Backend)
	if err != nil {
		cache.Close()
		rows.Close()
		return nil, err
	}

	avatars, err := objectstore.NewClient(cfg.Backend, sessionStore)
	if err != nil {
		cache.Close()
		rows.Close()
		return nil, err
	}

	loader := profile.NewLoader(rows, rows)
	dispatcher := session.NewDispatcher(session.DispatcherConfig{
		Auth:          auth,
		Store:         sessionStore,
		Profiles:      loader,
		Cache:         cache,
		RefreshMargin: cfg.Realtime.RefreshMargin,
	})

	return &Services{
		SessionStore: sessionStore,
		Cache:        cache,
		Rows:         rows,
		Auth:         auth,
		Avatars:      avatars,
		Loader:       loader,
		Dispatcher:   dispatcher,
	}, nil
}

func (cs *Services) Close() {
	if cs.Dispatcher != nil {
		cs.Dispatcher.Close()
	}
	if cs.Rows != nil {
		cs.Rows.Close()
	}
	if cs.Cache != nil {
		cs.Cache.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
