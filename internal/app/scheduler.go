package app

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Shih-Wei-Lin/Server-Monitor-System/internal/fleet"
	"github.com/Shih-Wei-Lin/Server-Monitor-System/pkg/metrics"
)

// StartSchedulerService runs the collection tick loop until ctx is
// cancelled. One global tick fires at the finest configured interval;
// hosts with coarser per-host intervals are skipped until due. The
// loop never exits on per-host errors: only ctx cancellation stops it.
func (a *Application) StartSchedulerService(ctx context.Context) error {
	cfg := a.appConfig.Schedule

	runner, err := fleet.NewTickRunner(cfg.MaxWorkers, cfg.HostTimeout.Std(), a.fleetService.RunPipeline)
	if err != nil {
		return err
	}
	defer runner.Release()

	serverRepo := fleet.NewGormServerRepository(a.gormDB)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(cfg.PollInterval.Std())
		defer ticker.Stop()

		a.runTick(gctx, runner, serverRepo)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				a.runTick(gctx, runner, serverRepo)
			}
		}
	})
	return g.Wait()
}

// runTick performs one idle -> dispatching -> awaiting_completion cycle.
func (a *Application) runTick(ctx context.Context, runner *fleet.TickRunner, servers fleet.ServerRepository) {
	enabled, err := servers.ListEnabled(ctx)
	if err != nil {
		zap.L().Error("tick skipped: inventory query failed", zap.Error(err))
		return
	}

	due := fleet.DueHosts(enabled, time.Now(), a.appConfig.Schedule.PollInterval.Std())
	if len(due) == 0 {
		return
	}

	summary := runner.RunTick(ctx, due)

	metrics.SetGauge("fleet_collected", int64(summary.Collected))
	metrics.SetGauge("fleet_unreachable", int64(summary.Unreachable))
	metrics.SetGauge("fleet_failed", int64(summary.Failed+summary.Lost))

	zap.L().Info("tick complete",
		zap.Int("due", summary.Total),
		zap.Int("collected", summary.Collected),
		zap.Int("unreachable", summary.Unreachable),
		zap.Int("failed", summary.Failed),
		zap.Int("lost", summary.Lost),
		zap.Duration("elapsed", summary.Elapsed))
}
