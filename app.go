package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/nasermirzaei89/backtalk/articles"
	"github.com/nasermirzaei89/backtalk/db/sqlite3"
	"github.com/nasermirzaei89/backtalk/discuss"
	"github.com/nasermirzaei89/backtalk/identity"
	"github.com/nasermirzaei89/backtalk/live"
	"github.com/nasermirzaei89/backtalk/random"
	"github.com/nasermirzaei89/backtalk/server"
	"github.com/nasermirzaei89/backtalk/web"
	"github.com/nasermirzaei89/env"
)

type App struct {
	server  *server.Server
	handler *web.Handler
	db      *sql.DB
}

func NewApp(ctx context.Context) (*App, error) {
	db, err := sqlite3.NewDB(ctx, env.GetString("DB_DSN", "file::memory:?cache=shared"))
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	err = sqlite3.MigrateUp(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	articleRepo := sqlite3.NewArticleRepository(db)
	postRepo := sqlite3.NewPostRepository(db)

	articlesSvc := articles.NewService(articleRepo)

	hub := live.NewHub()

	discussSvc := discuss.NewService(postRepo, articlesSvc, live.NewAnnouncer(hub))
	composer := discuss.NewComposer(postRepo)

	tokens, err := newTokenManager()
	if err != nil {
		return nil, fmt.Errorf("failed to create token manager: %w", err)
	}

	httpHandler := web.NewHandler(articlesSvc, discussSvc, composer, tokens, hub.Handler())

	app := &App{
		server:  newServer(),
		handler: httpHandler,
		db:      db,
	}

	return app, nil
}

func (app *App) Run(ctx context.Context) error {
	// Handle SIGINT (CTRL+C) gracefully.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	defer func() {
		if app.db != nil {
			err := app.db.Close()
			if err != nil {
				slog.ErrorContext(ctx, "failed to close database", "error", err)
			}
		}
	}()

	err := app.server.Run(ctx, app.handler)
	if err != nil {
		return fmt.Errorf("failed to run server: %w", err)
	}

	return nil
}

func newTokenManager() (*identity.TokenManager, error) {
	// Without a configured secret every restart invalidates issued tokens.
	secret := env.GetString("AUTH_TOKEN_SECRET", random.String(32))

	ttl, err := time.ParseDuration(env.GetString("AUTH_TOKEN_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token ttl: %w", err)
	}

	return identity.NewTokenManager([]byte(secret), ttl), nil
}

func newServer() *server.Server {
	server := &server.Server{
		Port: env.GetString("PORT", server.DefaultPort),
		Host: env.GetString("HOST", ""),
		TLS: server.ServerTLS{
			Enabled: env.GetBool("TLS_ENABLED", false),
			Mode:    env.GetString("TLS_MODE", server.DefaultTLSMode),
			AutoCert: &server.ServerTLSAutoCert{
				CacheDir: env.GetString("TLS_AUTOCERT_CACHE_DIR", "./cert-cache"),
				Domains:  env.GetStringSlice("TLS_AUTOCERT_DOMAINS", []string{}),
				Email:    env.GetString("TLS_AUTOCERT_EMAIL", ""),
			},
			CertFile: env.GetString("TLS_CERT_FILE", ""),
			KeyFile:  env.GetString("TLS_KEY_FILE", ""),
		},
	}

	return server
}

func GetLogLevelFromEnv() slog.Level {
	levelStr := env.GetString("LOG_LEVEL", "info")
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		slog.Warn("unknown log level, defaulting to info", "level", levelStr)

		return slog.LevelInfo
	}
}
