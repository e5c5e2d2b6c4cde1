// Package scanner drives the deposit scan use case on a fixed interval, one
// worker per chain.
package scanner

import (
	"context"
	"time"

	"depositwatch/internal/application/dto"
	portsin "depositwatch/internal/application/ports/in"
	portsout "depositwatch/internal/application/ports/out"
	valueobjects "depositwatch/internal/domain/value_objects"
	"depositwatch/internal/infrastructure/logging"

	"github.com/rs/zerolog"
)

// TickObserver is implemented by metric recorders that also track tick latency.
type TickObserver interface {
	ObserveTick(chain valueobjects.Chain, elapsed time.Duration)
}

type WorkerConfig struct {
	Chain            valueobjects.Chain
	PollInterval     time.Duration
	MaxBlocksPerTick int
	StartHeight      *int64
}

type Worker struct {
	config  WorkerConfig
	useCase portsin.ScanChainDepositsUseCase
	metrics portsout.ScanMetricsRecorder
	logger  zerolog.Logger
}

func NewWorker(
	config WorkerConfig,
	useCase portsin.ScanChainDepositsUseCase,
	metrics portsout.ScanMetricsRecorder,
	logger zerolog.Logger,
) *Worker {
	if metrics == nil {
		metrics = portsout.NoopScanMetricsRecorder()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	return &Worker{
		config:  config,
		useCase: useCase,
		metrics: metrics,
		logger:  logging.WithChain(logging.WithComponent(logger, "scanner"), config.Chain.String()),
	}
}

func (w *Worker) Chain() valueobjects.Chain {
	return w.config.Chain
}

// Start blocks until ctx is canceled. A failed tick is logged and retried on
// the next interval; a tick that filled its block budget is followed
// immediately by another one so a lagging cursor catches up.
func (w *Worker) Start(ctx context.Context) {
	if w == nil || w.useCase == nil {
		return
	}

	w.logger.Info().
		Dur("poll_interval", w.config.PollInterval).
		Int("max_blocks_per_tick", w.config.MaxBlocksPerTick).
		Msg("deposit scanner started")

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		if behind := w.runCycle(ctx); behind && ctx.Err() == nil {
			continue
		}

		select {
		case <-ctx.Done():
			w.logger.Info().Msg("deposit scanner stopped")
			return
		case <-ticker.C:
		}
	}
}

// runCycle executes one tick and reports whether the chain is still behind.
func (w *Worker) runCycle(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	startedAt := time.Now().UTC()
	output, appErr := w.useCase.Execute(ctx, dto.ScanChainDepositsCommand{
		Chain:            w.config.Chain.String(),
		Now:              startedAt,
		MaxBlocksPerTick: w.config.MaxBlocksPerTick,
		StartHeight:      w.config.StartHeight,
	})
	elapsed := time.Since(startedAt)
	if observer, ok := w.metrics.(TickObserver); ok {
		observer.ObserveTick(w.config.Chain, elapsed)
	}

	if appErr != nil {
		w.metrics.TickFailed(w.config.Chain, appErr.Code)
		logging.Fields(w.logger.Warn(), appErr.Details).
			Str("code", appErr.Code).
			Str("type", string(appErr.Type)).
			Int64("cursor", output.ToCursor).
			Msg(appErr.Message)
		return false
	}

	event := w.logger.Debug()
	if output.DepositsRecorded > 0 || output.Initialized {
		event = w.logger.Info()
	}
	event.
		Bool("initialized", output.Initialized).
		Int64("from_cursor", output.FromCursor).
		Int64("to_cursor", output.ToCursor).
		Int("blocks_scanned", output.BlocksScanned).
		Int("transfers_matched", output.TransfersMatched).
		Int("deposits_recorded", output.DepositsRecorded).
		Int("duplicates", output.Duplicates).
		Int64("latency_ms", elapsed.Milliseconds()).
		Msg("scan tick completed")

	return w.config.MaxBlocksPerTick > 0 && output.BlocksScanned >= w.config.MaxBlocksPerTick
}
