package app

import (
	"context"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/Shih-Wei-Lin/Server-Monitor-System/pkg/metrics"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func (a *Application) initJob() {
	loc, err := time.LoadLocation(a.appConfig.System.Location)
	if err != nil {
		loc = time.Local
	}
	a.sched = cron.New(cron.WithLocation(loc), cron.WithParser(cronParser))

	_, err = a.sched.AddFunc("@every 30s", func() {
		go a.SchedSystemMonitorTask()
		go a.SchedProcessMonitorTask()
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	// Compaction and backup run on their own cadences, never on the
	// collection tick.
	_, err = a.sched.AddFunc(a.appConfig.Schedule.CompactCron, func() {
		a.SchedCompactTask()
	})
	if err != nil {
		zap.S().Errorf("init compact job error %s", err.Error())
	}

	_, err = a.sched.AddFunc(a.appConfig.Schedule.BackupCron, func() {
		a.SchedBackupTask()
	})
	if err != nil {
		zap.S().Errorf("init backup job error %s", err.Error())
	}

	a.sched.Start()
}

// SchedSystemMonitorTask system monitor
func (a *Application) SchedSystemMonitorTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	_cpuuse, err := cpu.Percent(0, false)
	if err == nil && len(_cpuuse) > 0 {
		metrics.SetGauge("system_cpuuse", int64(_cpuuse[0]*100)) // Store as percentage * 100
	}

	_meminfo, err := mem.VirtualMemory()
	if err == nil {
		metrics.SetGauge("system_memuse", int64(_meminfo.Used/1024/1024))
	}
}

// SchedProcessMonitorTask app process monitor
func (a *Application) SchedProcessMonitorTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return
	}

	cpuuse, err := p.CPUPercent()
	if err == nil {
		metrics.SetGauge("servermon_cpuuse", int64(cpuuse*100)) // Store as percentage * 100
	}

	meminfo, err := p.MemoryInfo()
	if err == nil {
		metrics.SetGauge("servermon_memuse", int64(meminfo.RSS/1024/1024))
	}
}

// SchedCompactTask runs one retention compaction pass.
func (a *Application) SchedCompactTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	summary, err := a.compactor.Run(context.Background())
	if err != nil {
		zap.L().Error("compaction run failed", zap.Error(err))
		return
	}
	zap.L().Info("compaction run complete",
		zap.Int("buckets", summary.Buckets),
		zap.Int64("folded_rows", summary.FoldedRows),
		zap.Int("failed", summary.Failed))
}

// SchedBackupTask snapshots the store. Failure is logged and never
// propagates into the collection loop.
func (a *Application) SchedBackupTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	if _, err := a.backupService.Snapshot(context.Background()); err != nil {
		zap.L().Error("backup snapshot failed", zap.Error(err))
	}
}
