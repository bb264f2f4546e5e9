package app

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Shih-Wei-Lin/Server-Monitor-System/config"
	"github.com/Shih-Wei-Lin/Server-Monitor-System/pkg/common"
)

// getDatabase opens the configured store. Postgres is the production
// target; sqlite serves tests and single-box installs and lives under
// the working directory.
func getDatabase(cfg config.DBConfig, workdir string) (*gorm.DB, error) {
	logLevel := logger.Silent
	if cfg.Debug {
		logLevel = logger.Info
	}
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	}

	var dialector gorm.Dialector
	switch cfg.Type {
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			cfg.Host, cfg.Port, cfg.User, cfg.Passwd, cfg.Name)
		dialector = postgres.Open(dsn)
	case "sqlite":
		if err := common.EnsureDir(workdir); err != nil {
			return nil, errors.Wrap(err, "create workdir")
		}
		dialector = sqlite.Open(filepath.Join(workdir, cfg.Name+".db"))
	default:
		return nil, errors.Errorf("unsupported database type %q", cfg.Type)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "access connection pool")
	}
	// The pool is shared by every concurrent host pipeline; writers for
	// unrelated hosts must not serialize behind a single connection.
	maxConn := cfg.MaxConn
	if maxConn <= 0 {
		maxConn = 50
	}
	idleConn := cfg.IdleConn
	if idleConn <= 0 {
		idleConn = 10
	}
	sqlDB.SetMaxOpenConns(maxConn)
	sqlDB.SetMaxIdleConns(idleConn)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, errors.Wrap(err, "ping database")
	}
	return db, nil
}
