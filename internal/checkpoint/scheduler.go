package checkpoint

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/excalidraw-organizer/backend/internal/catalog"
	"github.com/excalidraw-organizer/backend/internal/workspace"
)

// DefaultInterval bounds the work lost when the host context closes
// abruptly to roughly one second of edits.
const DefaultInterval = time.Second

var errMissingSaver = errors.New("checkpoint: saver is required")

// SchedulerConfig describes the dependencies of a Scheduler.
type SchedulerConfig struct {
	Saver     *Saver
	Workspace *workspace.Accessor
	Interval  time.Duration
	Logger    *zap.Logger
}

// Scheduler drives the Saver on a fixed interval. A tick that finds the
// suppression flag set consumes it and skips; a failed tick is logged and
// never stops subsequent ticks.
type Scheduler struct {
	saver    *Saver
	ws       *workspace.Accessor
	interval time.Duration
	logger   *zap.Logger
}

// NewScheduler validates the configuration and returns a Scheduler.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Saver == nil {
		return nil, errMissingSaver
	}
	if cfg.Workspace == nil {
		return nil, errMissingWorkspace
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		saver:    cfg.Saver,
		ws:       cfg.Workspace,
		interval: interval,
		logger:   logger,
	}, nil
}

// Run ticks until the context is cancelled, then stops its timer and
// returns. It is meant to be run on its own goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("checkpoint scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs a single scheduled checkpoint pass.
func (s *Scheduler) Tick(ctx context.Context) {
	if s.ws.TakeSuppressCheckpoint() {
		s.logger.Debug("checkpoint tick suppressed after document switch")
		return
	}
	if err := s.saver.SaveIfChanged(ctx); err != nil {
		if errors.Is(err, catalog.ErrStoreUnavailable) {
			s.logger.Debug("checkpoint skipped, store unavailable")
			return
		}
		s.logger.Warn("checkpoint tick failed", zap.Error(err))
	}
}
