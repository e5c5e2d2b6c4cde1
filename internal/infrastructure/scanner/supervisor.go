package scanner

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Supervisor runs one worker per chain until the context ends.
type Supervisor struct {
	workers []*Worker
	logger  zerolog.Logger
}

func NewSupervisor(workers []*Worker, logger zerolog.Logger) *Supervisor {
	return &Supervisor{workers: workers, logger: logger}
}

func (s *Supervisor) Workers() int {
	if s == nil {
		return 0
	}
	return len(s.workers)
}

func (s *Supervisor) Run(ctx context.Context) error {
	if s.Workers() == 0 {
		s.logger.Warn().Msg("no deposit scanners configured")
		<-ctx.Done()
		return nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, worker := range s.workers {
		group.Go(func() error {
			worker.Start(groupCtx)
			return nil
		})
	}
	return group.Wait()
}
