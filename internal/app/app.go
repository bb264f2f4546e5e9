package app

import (
	"os"
	"time"
	_ "time/tzdata"

	"github.com/asaskevich/EventBus"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"

	"github.com/Shih-Wei-Lin/Server-Monitor-System/config"
	"github.com/Shih-Wei-Lin/Server-Monitor-System/internal/backup"
	"github.com/Shih-Wei-Lin/Server-Monitor-System/internal/domain"
	"github.com/Shih-Wei-Lin/Server-Monitor-System/internal/fleet"
	"github.com/Shih-Wei-Lin/Server-Monitor-System/internal/retention"
	"github.com/Shih-Wei-Lin/Server-Monitor-System/pkg/metrics"
)

type Application struct {
	appConfig *config.AppConfig
	gormDB    *gorm.DB
	sched     *cron.Cron
	bus       EventBus.Bus

	fleetService  *fleet.Service
	compactor     *retention.Compactor
	backupService *backup.Service
}

// Ensure Application implements all interfaces
var (
	_ DBProvider        = (*Application)(nil)
	_ ConfigProvider    = (*Application)(nil)
	_ SchedulerProvider = (*Application)(nil)
	_ BusProvider       = (*Application)(nil)
)

func NewApplication(appConfig *config.AppConfig) *Application {
	return &Application{appConfig: appConfig}
}

func (a *Application) Config() *config.AppConfig {
	return a.appConfig
}

func (a *Application) DB() *gorm.DB {
	return a.gormDB
}

// OverrideDB replaces the application's database handle (used in tests).
func (a *Application) OverrideDB(db *gorm.DB) {
	a.gormDB = db
}

// Scheduler returns the cron scheduler
func (a *Application) Scheduler() *cron.Cron {
	return a.sched
}

// Bus returns the in-process event bus
func (a *Application) Bus() EventBus.Bus {
	return a.bus
}

// FleetService returns the per-host collection pipeline service
func (a *Application) FleetService() *fleet.Service {
	return a.fleetService
}

// Compactor returns the retention compactor
func (a *Application) Compactor() *retention.Compactor {
	return a.compactor
}

// BackupService returns the store snapshot service
func (a *Application) BackupService() *backup.Service {
	return a.backupService
}

// Init brings up logging, storage, and the wired services. A returned
// error means the process cannot run (fatal configuration or storage
// establishment failure); everything after startup degrades per host.
func (a *Application) Init() error {
	cfg := a.appConfig

	loc, err := time.LoadLocation(cfg.System.Location)
	if err != nil {
		zap.S().Error("timezone config error")
	} else {
		time.Local = loc
	}

	a.initLogger()

	if err := metrics.InitMetrics(cfg.System.Workdir); err != nil {
		zap.S().Warn("Failed to initialize metrics:", err)
	}

	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	a.gormDB, err = getDatabase(cfg.Database, cfg.System.Workdir)
	if err != nil {
		return err
	}
	zap.S().Infof("Database connection successful, type: %s", cfg.Database.Type)

	if err := a.MigrateDB(false); err != nil {
		return err
	}
	if err := a.syncInventory(); err != nil {
		return err
	}

	a.bus = EventBus.New()
	a.subscribeFleetEvents()

	dialer := fleet.NewSSHDialer(cfg.Schedule.ProbeTimeout.Std())
	creds := fleet.NewConfigCredentials(cfg)
	statusRepo := fleet.NewGormStatusRepository(a.gormDB)
	serverRepo := fleet.NewGormServerRepository(a.gormDB)
	sampleRepo := fleet.NewGormSampleRepository(a.gormDB)
	writer := fleet.NewRetryingSampleWriter(sampleRepo, 3, 200*time.Millisecond)

	prober := fleet.NewProber(dialer, creds, statusRepo, cfg.Schedule.ProbeTimeout.Std())
	collector := fleet.NewCollector(dialer, creds)
	a.fleetService = fleet.NewService(prober, collector, serverRepo, writer, a.bus)

	a.compactor = retention.NewCompactor(a.gormDB, cfg.Retention.Cutoff.Std(), cfg.Retention.Bucket.Std())
	a.backupService = backup.NewService(a.gormDB, cfg.Backup, sampleRepo)

	a.initJob()
	return nil
}

func (a *Application) initLogger() {
	cfg := a.appConfig

	var zapConfig zap.Config
	if cfg.Logger.Mode == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	zapConfig.OutputPaths = []string{"stdout"}

	var logger *zap.Logger
	if cfg.Logger.FileEnable {
		lumberJackLogger := &lumberjack.Logger{
			Filename:   cfg.Logger.Filename,
			MaxSize:    64,
			MaxBackups: 7,
			MaxAge:     7,
			Compress:   false,
		}

		core := zapcore.NewTee(
			zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(lumberJackLogger),
				zapConfig.Level,
			),
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(os.Stdout),
				zapConfig.Level,
			),
		)
		logger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	} else {
		var err error
		logger, err = zapConfig.Build(zap.AddCaller(), zap.AddCallerSkip(1))
		if err != nil {
			panic(err)
		}
	}

	zap.ReplaceGlobals(logger)
}

func (a *Application) MigrateDB(track bool) (err error) {
	if track {
		return a.gormDB.Debug().Migrator().AutoMigrate(domain.Tables...)
	}
	return a.gormDB.Migrator().AutoMigrate(domain.Tables...)
}

func (a *Application) DropAll() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
}

func (a *Application) InitDb() error {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
	if err := a.gormDB.Migrator().AutoMigrate(domain.Tables...); err != nil {
		return err
	}
	return a.syncInventory()
}

// subscribeFleetEvents wires pipeline events into logging and gauges.
// Handlers are transactional=false and must stay non-blocking.
func (a *Application) subscribeFleetEvents() {
	_ = a.bus.Subscribe(fleet.TopicSamplePersisted, func(result fleet.PipelineResult) {
		zap.L().Info("sample persisted",
			zap.String("host", result.Server.Name),
			zap.Float64("cpu_pct", result.Sample.CpuPct),
			zap.Float64("mem_pct", result.Sample.MemPct),
			zap.Float64("disk_c_pct", result.Sample.DiskCPct),
			zap.Duration("elapsed", result.Elapsed))
	})
	_ = a.bus.Subscribe(fleet.TopicHostUnreachable, func(result fleet.PipelineResult) {
		zap.L().Info("host unreachable",
			zap.String("host", result.Server.Name),
			zap.Error(result.Err))
	})
	_ = a.bus.Subscribe(fleet.TopicCollectFailed, func(result fleet.PipelineResult) {
		zap.L().Warn("collection failed",
			zap.String("host", result.Server.Name),
			zap.Error(result.Err))
	})
}

// Release releases application resources
func (a *Application) Release() {
	if a.sched != nil {
		a.sched.Stop()
	}
	_ = metrics.Close()
	_ = zap.L().Sync()
}
