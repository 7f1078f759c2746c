package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/fundme/fundme/internal/auth"
	"github.com/fundme/fundme/internal/config"
	"github.com/fundme/fundme/internal/custody"
	"github.com/fundme/fundme/internal/deploy"
	"github.com/fundme/fundme/internal/infra"
	"github.com/fundme/fundme/internal/logging"
	"github.com/fundme/fundme/internal/monitor"
	"github.com/fundme/fundme/internal/notification"
	"github.com/fundme/fundme/internal/pool"
	"github.com/fundme/fundme/internal/routes"
	"github.com/fundme/fundme/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.AppName)
	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("server exited cleanly")
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	networks, err := config.LoadNetworks(cfg.NetworksFile)
	if err != nil {
		return err
	}

	backends, err := infra.Connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backends.Close(logger)

	var vault custody.Vault
	if backends.DB != nil {
		pgVault := custody.NewPostgresVault(backends.DB)
		if err := pgVault.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate custody: %w", err)
		}
		vault = pgVault
	} else {
		vault = custody.NewInMemory()
	}

	deployment, err := deploy.Provision(ctx, deploy.ParamsFromConfig(cfg, networks, vault, logger))
	if err != nil {
		return fmt.Errorf("provision pool: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := pool.NewMetrics(registry)

	notifiers := notification.Multi{notification.NewLoggerNotifier(logging.Component(logger, "notification"))}
	var challenges auth.ChallengeStore = auth.NewMemoryChallengeStore()
	if backends.Cache != nil {
		notifiers = append(notifiers, notification.NewRedisPublisher(backends.Cache, notification.DefaultChannel))
		challenges = auth.NewRedisChallengeStore(backends.Cache)
	}

	poolSvc, err := pool.NewService(deployment.Ledger, notifiers, metrics, logger)
	if err != nil {
		return err
	}
	authSvc, err := auth.NewService(auth.Options{
		Issuer:       cfg.AppName,
		Secret:       cfg.JWTSecret,
		AccessTTL:    cfg.AccessTokenTTL,
		ChallengeTTL: cfg.ChallengeTTL,
		Store:        challenges,
	})
	if err != nil {
		return err
	}

	mon := monitor.New(deployment.Ledger, metrics, logger)
	if err := mon.Register(cfg.SnapshotCron); err != nil {
		return err
	}

	srv, err := server.New(routes.Deps{
		Cfg:     cfg,
		DB:      backends.DB,
		Cache:   backends.Cache,
		Logger:  logger,
		Pool:    poolSvc,
		Auth:    authSvc,
		Metrics: registry,
	})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	mon.Start()

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-srvErrCh:
		mon.Stop(ctx)
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	mon.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
