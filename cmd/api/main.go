package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/aman-zulfiqar/crosschain-swap/internal/app"
	"github.com/aman-zulfiqar/crosschain-swap/internal/config"
	"github.com/aman-zulfiqar/crosschain-swap/internal/server"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// env bootstrap function
func loadEnv(logger *logrus.Logger) {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	envPath := filepath.Join(projectRoot, ".env")

	if err := godotenv.Load(envPath); err != nil {
		logger.Warnf("no .env file found at %s, using system environment variables", envPath)
	} else {
		logger.Infof("loaded .env from %s", envPath)
	}
}

// main starts the local swap API: it resumes tracking for PENDING swaps,
// serves HTTP and shuts everything down on SIGINT/SIGTERM.
func main() {
	boot := logrus.New()
	boot.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})

	// load .env BEFORE anything reads the environment
	loadEnv(boot)

	cfg, err := config.Load()
	if err != nil {
		boot.WithError(err).Fatal("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		boot.WithError(err).Fatal("invalid configuration")
	}
	logger := cfg.NewLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	svc, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize services")
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.WithError(err).Warn("error during cleanup")
		}
	}()

	resumed, err := svc.Tracker.Reconcile(ctx)
	if err != nil {
		logger.WithError(err).Error("failed to resume pending swaps")
	} else {
		logger.WithField("count", resumed).Info("startup reconcile complete")
	}

	h := &server.Handlers{
		Chains:             svc.Chains,
		Quotes:             svc.Aggregator,
		Tokens:             svc.Catalog,
		Engine:             svc.Engine,
		Ledger:             svc.Ledger,
		Assets:             svc.Assets,
		Tracker:            svc.Tracker,
		Flags:              svc.Flags,
		AI:                 svc.Agent,
		AIBaseConfig:       svc.AIBase,
		DefaultSlippageBps: cfg.DefaultSlippageBps,
		DevMode:            cfg.DevMode,
		Logger:             logger,
	}

	srv, err := server.NewServer(server.ServerDeps{
		Handlers: h,
		Config: server.ServerConfig{
			Addr:    cfg.APIAddr,
			DevMode: cfg.DevMode,
			APIKey:  cfg.APIKey,
		},
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create http server")
	}

	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
		_ = srv.Shutdown(context.Background())
	}()

	logger.WithField("addr", cfg.APIAddr).Info("api server starting")
	if err := srv.Start(); err != nil {
		logger.WithError(err).Error("api server failed")
		return
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer waitCancel()
	if err := srv.WaitClosed(waitCtx); err != nil {
		logger.WithError(err).Warn("server did not close cleanly")
	}
}
