// Package main is the entry point for the sqlguard server binary.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/sync/errgroup"

	"sqlguard/internal/api"
	"sqlguard/internal/app"
	"sqlguard/internal/config"
	"sqlguard/internal/db"
	"sqlguard/internal/middleware"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)
	for _, warning := range cfg.Warnings {
		logger.Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Control plane: policies, templates, approvals, audit trail.
	guardWrite, guardRead, err := db.OpenPair(cfg.GuardDBPath, 0)
	if err != nil {
		return fmt.Errorf("open guard database: %w", err)
	}
	defer guardRead.Close()  //nolint:errcheck
	defer guardWrite.Close() //nolint:errcheck
	if err := db.Migrate(guardWrite); err != nil {
		return fmt.Errorf("migrate guard database: %w", err)
	}

	// Target database enforced statements execute against.
	targetDB, err := db.Open(cfg.TargetDBPath, "write", 0)
	if err != nil {
		return fmt.Errorf("open target database: %w", err)
	}
	defer targetDB.Close() //nolint:errcheck

	application, err := app.New(ctx, app.Deps{
		Cfg:          cfg,
		GuardWriteDB: guardWrite,
		GuardReadDB:  guardRead,
		TargetDB:     targetDB,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	validator, err := middleware.NewHS256Validator(cfg.JWTSecret)
	if err != nil {
		return err
	}

	handler := api.NewHandler(
		application.Services.Query,
		application.Services.Workflow,
		application.Services.Policy,
		application.Services.Audit,
		logger,
	)
	router := handler.Router(api.RouterConfig{
		Validator:      validator,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server listening", "addr", cfg.ListenAddr, "tls", cfg.TLSCertFile != "")
		var err error
		if cfg.TLSCertFile != "" {
			err = server.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	// Periodic snapshot refresh picks up out-of-band policy edits.
	g.Go(func() error {
		application.Store.Run(gctx, cfg.PolicyRefreshInterval)
		return nil
	})

	if application.Exporter != nil {
		if err := application.Exporter.Start(cfg.ExportSchedule); err != nil {
			return fmt.Errorf("start audit exporter: %w", err)
		}
		defer application.Exporter.Stop()
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
