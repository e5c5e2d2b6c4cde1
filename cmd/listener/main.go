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

	container, buildErr := di.Build(cfg, logger, di.ModeListener)
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

	logger.Info().Str("storage_driver", cfg.StorageDriver).Msg("listener persistence initialization starting")
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

	if err := container.Scanner.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("listener stopped with error")
		return
	}
	logger.Info().Msg("listener stopped")
}

func exitOnConfigError(logger zerolog.Logger, cfgErr *config.ConfigError) {
	event := logger.Error().Str("code", cfgErr.Code)
	for key, value := range cfgErr.Metadata {
		event = event.Str(key, value)
	}
	event.Msg(cfgErr.Message)
	os.Exit(1)
}
