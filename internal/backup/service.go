// Package backup snapshots the metrics store to a timestamped SQL dump
// on local disk, optionally mirrored to an SFTP target. Backup is
// best-effort: failures are reported and never block collection.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"gorm.io/gorm"

	"github.com/Shih-Wei-Lin/Server-Monitor-System/config"
	"github.com/Shih-Wei-Lin/Server-Monitor-System/internal/domain"
	"github.com/Shih-Wei-Lin/Server-Monitor-System/pkg/common"
)

const dumpPrefix = "server_resources_"

// SampleWatermark reads the newest collected_at across all hosts,
// normally satisfied by the fleet sample repository.
type SampleWatermark interface {
	LatestCollectedAt(ctx context.Context) (time.Time, error)
}

// StoreError marks a database-side failure, as opposed to a failure
// producing or mirroring the dump artifact. The CLI maps it to the
// fatal exit code.
type StoreError struct {
	Cause error
}

func (e *StoreError) Error() string {
	return e.Cause.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

// Service produces BackupSnapshot artifacts and their metadata rows.
type Service struct {
	db        *gorm.DB
	cfg       config.BackupConfig
	watermark SampleWatermark
}

func NewService(db *gorm.DB, cfg config.BackupConfig, watermark SampleWatermark) *Service {
	return &Service{db: db, cfg: cfg, watermark: watermark}
}

// Snapshot writes a point-in-time dump of the store and records its
// metadata. The snapshot row is append-only and never mutated.
func (s *Service) Snapshot(ctx context.Context) (*domain.BackupSnapshot, error) {
	if err := common.EnsureDir(s.cfg.Dir); err != nil {
		return nil, errors.Wrap(err, "create backup dir")
	}

	// covers_up_to is read before the dump so the metadata never claims
	// more than the artifact contains.
	var coversUpTo time.Time
	if s.watermark != nil {
		watermark, err := s.watermark.LatestCollectedAt(ctx)
		if err != nil {
			return nil, &StoreError{Cause: errors.Wrap(err, "read coverage watermark")}
		}
		coversUpTo = watermark
	}

	dump, err := buildDump(s.db.WithContext(ctx))
	if err != nil {
		return nil, &StoreError{Cause: errors.Wrap(err, "build dump")}
	}

	filename := fmt.Sprintf("%s%s.sql", dumpPrefix, time.Now().Format("20060102_150405"))
	path := filepath.Join(s.cfg.Dir, filename)
	if err := os.WriteFile(path, []byte(dump), 0o600); err != nil {
		return nil, errors.Wrap(err, "write dump file")
	}

	snapshot := &domain.BackupSnapshot{
		ID:         common.UUIDint64(),
		Path:       path,
		SizeBytes:  int64(len(dump)),
		CoversUpTo: coversUpTo,
		CreatedAt:  time.Now(),
	}

	if s.cfg.Sftp.Enabled {
		remotePath, err := s.upload(path, filename)
		if err != nil {
			// Local artifact is still valid; the remote mirror catches
			// up on the next cadence.
			zap.L().Error("sftp upload failed", zap.String("file", filename), zap.Error(err))
		} else {
			snapshot.RemotePath = remotePath
		}
	}

	if err := s.db.WithContext(ctx).Create(snapshot).Error; err != nil {
		return nil, &StoreError{Cause: errors.Wrap(err, "record snapshot")}
	}

	if err := s.prune(); err != nil {
		zap.L().Warn("backup prune failed", zap.Error(err))
	}

	zap.L().Info("backup snapshot complete",
		zap.String("path", path),
		zap.Int64("size_bytes", snapshot.SizeBytes),
		zap.Time("covers_up_to", snapshot.CoversUpTo))
	return snapshot, nil
}

// upload mirrors the dump to the configured SFTP target.
func (s *Service) upload(localPath, filename string) (string, error) {
	sshConfig := &ssh.ClientConfig{
		User:            s.cfg.Sftp.User,
		Auth:            []ssh.AuthMethod{ssh.Password(s.cfg.Sftp.Passwd)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         30 * time.Second,
	}
	conn, err := ssh.Dial("tcp", s.cfg.Sftp.Addr, sshConfig)
	if err != nil {
		return "", errors.Wrap(err, "dial sftp host")
	}
	defer conn.Close()

	client, err := sftp.NewClient(conn)
	if err != nil {
		return "", errors.Wrap(err, "open sftp session")
	}
	defer client.Close()

	if s.cfg.Sftp.RemoteDir != "" {
		if err := client.MkdirAll(s.cfg.Sftp.RemoteDir); err != nil {
			return "", errors.Wrap(err, "create remote dir")
		}
	}
	remotePath := filepath.ToSlash(filepath.Join(s.cfg.Sftp.RemoteDir, filename))

	src, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := client.Create(remotePath)
	if err != nil {
		return "", errors.Wrap(err, "create remote file")
	}
	defer dst.Close()

	if _, err := dst.ReadFrom(src); err != nil {
		return "", errors.Wrap(err, "upload dump")
	}
	return remotePath, nil
}

// prune keeps the newest Keep local dumps and removes the rest. A Keep
// of zero disables pruning.
func (s *Service) prune() error {
	if s.cfg.Keep <= 0 {
		return nil
	}
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return err
	}
	var dumps []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), dumpPrefix) && strings.HasSuffix(entry.Name(), ".sql") {
			dumps = append(dumps, entry.Name())
		}
	}
	if len(dumps) <= s.cfg.Keep {
		return nil
	}
	// Timestamped names sort chronologically.
	sort.Strings(dumps)
	for _, name := range dumps[:len(dumps)-s.cfg.Keep] {
		if err := os.Remove(filepath.Join(s.cfg.Dir, name)); err != nil {
			zap.L().Warn("failed to remove old backup", zap.String("file", name), zap.Error(err))
		}
	}
	return nil
}
