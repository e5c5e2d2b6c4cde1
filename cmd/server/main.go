package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"depositwatch/internal/application/dto"
	"depositwatch/internal/infrastructure/config"
	"depositwatch/internal/infrastructure/di"
	"depositwatch/internal/infrastructure/logging"

	"github.com/rs/zerolog"
)

func main() {
	bootLogger := logging.New(os.Stdout, "info", os.Getenv("LOG_FORMAT"))
	if cfgErr := config.LoadDotEnv(); cfgErr != nil {
		exitOnConfigError(bootLogger, cfgErr)
	}
	cfg, cfgErr := config.LoadConfig()
	if cfgErr != nil {
		exitOnConfigError(bootLogger, cfgErr)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	logger.Info().
		Str("storage_driver", cfg.StorageDriver).
		Bool("scanner_enabled", cfg.Scanner.Enabled).
		Msg("server config loaded")

	container, buildErr := di.Build(cfg, logger, di.ModeServer)
	if buildErr != nil {
		logger.Error().Err(buildErr).Msg("dependency wiring error")
		os.Exit(1)
	}
	defer func() {
		if err := container.Close(); err != nil {
			logger.Warn().Err(err).Msg("resource close warning")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("database_target", cfg.DatabaseTarget).Msg("persistence initialization starting")
	persistenceErr := container.InitializePersistenceUseCase.Execute(ctx, dto.InitializePersistenceCommand{
		ReadinessTimeout:       cfg.DBReadinessTimeout,
		ReadinessRetryInterval: cfg.DBReadinessRetryInterval,
	})
	if persistenceErr != nil {
		logging.Fields(logger.Error(), persistenceErr.Details).
			Str("code", persistenceErr.Code).
			Msg(persistenceErr.Message)
		stop()
		_ = container.Close()
		os.Exit(1)
	}
	logger.Info().Str("database_target", cfg.DatabaseTarget).Msg("persistence initialization completed")

	scannerDone := make(chan struct{})
	if container.Scanner != nil {
		go func() {
			defer close(scannerDone)
			_ = container.Scanner.Run(ctx)
		}()
	} else {
		close(scannerDone)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- container.Server.Start()
	}()

	select {
	case err := <-serverErrCh:
		if err != nil {
			logger.Error().Err(err).Msg("server startup failed")
			stop()
			<-scannerDone
			_ = container.Close()
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := container.Server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
		}
		if err := <-serverErrCh; err != nil {
			logger.Error().Err(err).Msg("server stopped with error")
		}
		<-scannerDone

		logger.Info().Msg("server stopped")
	}
}

func exitOnConfigError(logger zerolog.Logger, cfgErr *config.ConfigError) {
	event := logger.Error().Str("code", cfgErr.Code)
	for key, value := range cfgErr.Metadata {
		event = event.Str(key, value)
	}
	event.Msg(cfgErr.Message)
	os.Exit(1)
}
