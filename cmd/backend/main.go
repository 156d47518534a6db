package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"secure-file-share/internal/catalog"
	"secure-file-share/internal/config"
	"secure-file-share/internal/content"
	"secure-file-share/internal/db"
	"secure-file-share/internal/identity"
	"secure-file-share/internal/logging"
	"secure-file-share/internal/notify"
	"secure-file-share/internal/server"
	"secure-file-share/internal/store"
)

func main() {
	cfg := config.Load()
	logging.Setup("backend", cfg.LogLevel, cfg.LogFormat, cfg.Env, os.Stdout)

	// Safety: refuse to start on an invalid configuration.
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	// Database
	dbConn, err := db.OpenDB(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("db_connect_failed")
	}
	defer func() { _ = dbConn.Close() }()

	log.Info("running_migrations")
	if err := db.RunMigrations(dbConn); err != nil {
		log.WithError(err).Fatal("migration_failed")
	}
	log.Info("migrations_complete")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	files, err := openContent(ctx, cfg)
	cancel()
	if err != nil {
		log.WithError(err).WithField("backend", cfg.ContentBackend).Fatal("content_store_failed")
	}

	pg := store.NewPostgres(dbConn)
	accounts := identity.NewService(pg)
	hub := notify.NewHub()
	cat := catalog.New(pg, accounts, notify.CatalogSink{Hub: hub})

	srv := server.New(serverConfig(cfg), server.Deps{
		Accounts: accounts,
		Files:    cat,
		Content:  files,
		Hub:      hub,
		Checks: map[string]server.Checker{
			"database": pg,
			"content":  files,
		},
	})

	// Start the HTTP server in a background goroutine.
	// This allows us to listen for OS signals while the server runs.
	errCh := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{
			"addr":    cfg.Addr,
			"version": cfg.Version,
			"commit":  cfg.Commit,
			"content": cfg.ContentBackend,
		}).Info("starting")
		errCh <- srv.Start()
	}()

	// Set up signal handling for graceful shutdown on SIGINT (Ctrl+C) or SIGTERM (container stop).
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting_down")
		// Give the server 5 seconds to finish in-flight requests and cleanup.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Error("shutdown_error")
			os.Exit(1)
		}
		log.Info("shutdown_complete")
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("server_error")
			os.Exit(1)
		}
	}
}

// serverConfig maps the loaded configuration onto the HTTP server settings.
func serverConfig(cfg config.Config) server.Config {
	return server.Config{
		Addr: cfg.Addr,
		Auth: server.AuthConfig{
			SessionSecret: cfg.SessionSecret,
			SessionTTL:    cfg.SessionTTL,
			CookieName:    cfg.CookieName,
			CookieSecure:  cfg.CookieSecure,
		},
		MaxUploadBytes: cfg.MaxUploadBytes,
		ClientDir:      cfg.ClientDir,
		Version:        cfg.Version,
		AuthRate:       cfg.AuthRate,
		AuthWindow:     cfg.AuthWindow,
		TrustedProxies: cfg.TrustedProxies,
	}
}

// openContent builds the configured content backend.
func openContent(ctx context.Context, cfg config.Config) (content.Store, error) {
	switch cfg.ContentBackend {
	case config.BackendDir:
		d, err := content.NewDir(cfg.ContentDir)
		if err != nil {
			return nil, err
		}
		return d, nil
	case config.BackendMinio:
		m, err := content.NewMinio(ctx, cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.Bucket)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown content backend %q", cfg.ContentBackend)
	}
}
