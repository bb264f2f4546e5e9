package fleet

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Shih-Wei-Lin/Server-Monitor-System/internal/domain"
	"github.com/Shih-Wei-Lin/Server-Monitor-System/pkg/common"
)

// ServerRepository interface for inventory host data access
type ServerRepository interface {
	// ListEnabled retrieves all enabled hosts
	ListEnabled(ctx context.Context) ([]domain.Server, error)

	// GetByID retrieves a host by ID
	GetByID(ctx context.Context, id int64) (*domain.Server, error)

	// TouchCollected records the time of the latest collection attempt
	TouchCollected(ctx context.Context, id int64, at time.Time) error
}

// StatusRepository owns the connectivity_status table. The prober is
// its only writer.
type StatusRepository interface {
	// Upsert overwrites the single status row for a host
	Upsert(ctx context.Context, status *domain.ServerConnectivity) error

	// GetByServerID retrieves the status row for a host
	GetByServerID(ctx context.Context, serverID int64) (*domain.ServerConnectivity, error)
}

// SampleRepository owns metric_samples inserts.
type SampleRepository interface {
	// Insert appends one sample. A duplicate (server_id, collected_at)
	// is treated as already recorded, not an error.
	Insert(ctx context.Context, sample *domain.MetricSample) error

	// LatestCollectedAt returns the newest collected_at across all hosts
	LatestCollectedAt(ctx context.Context) (time.Time, error)
}

// GormServerRepository is the GORM implementation of ServerRepository
type GormServerRepository struct {
	db *gorm.DB
}

func NewGormServerRepository(db *gorm.DB) *GormServerRepository {
	return &GormServerRepository{db: db}
}

func (r *GormServerRepository) ListEnabled(ctx context.Context) ([]domain.Server, error) {
	var servers []domain.Server
	err := r.db.WithContext(ctx).
		Where("status = ?", common.ENABLED).
		Order("name ASC").
		Find(&servers).Error
	return servers, err
}

func (r *GormServerRepository) GetByID(ctx context.Context, id int64) (*domain.Server, error) {
	var server domain.Server
	err := r.db.WithContext(ctx).First(&server, id).Error
	if err != nil {
		return nil, err
	}
	return &server, nil
}

func (r *GormServerRepository) TouchCollected(ctx context.Context, id int64, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&domain.Server{}).
		Where("id = ?", id).
		Update("last_collected_at", at).Error
}

// GormStatusRepository is the GORM implementation of StatusRepository
type GormStatusRepository struct {
	db *gorm.DB
}

func NewGormStatusRepository(db *gorm.DB) *GormStatusRepository {
	return &GormStatusRepository{db: db}
}

func (r *GormStatusRepository) Upsert(ctx context.Context, status *domain.ServerConnectivity) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "server_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"last_checked_at", "reachable", "last_error", "updated_at",
			}),
		}).
		Create(status).Error
}

func (r *GormStatusRepository) GetByServerID(ctx context.Context, serverID int64) (*domain.ServerConnectivity, error) {
	var status domain.ServerConnectivity
	err := r.db.WithContext(ctx).
		Where("server_id = ?", serverID).
		First(&status).Error
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// GormSampleRepository is the GORM implementation of SampleRepository
type GormSampleRepository struct {
	db *gorm.DB
}

func NewGormSampleRepository(db *gorm.DB) *GormSampleRepository {
	return &GormSampleRepository{db: db}
}

func (r *GormSampleRepository) Insert(ctx context.Context, sample *domain.MetricSample) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "server_id"}, {Name: "collected_at"}},
			DoNothing: true,
		}).
		Create(sample).Error
}

func (r *GormSampleRepository) LatestCollectedAt(ctx context.Context) (time.Time, error) {
	// Ordered lookup instead of max(): an aggregate column loses its
	// declared type and sqlite hands the value back as a bare string.
	var sample domain.MetricSample
	err := r.db.WithContext(ctx).
		Order("collected_at DESC").
		First(&sample).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return sample.CollectedAt, nil
}

// RetryingSampleWriter wraps a SampleRepository with bounded backoff so
// transient storage errors do not lose a tick's sample immediately.
// Exhausted retries surface the last error; the scheduler counts the
// sample as lost and moves on.
type RetryingSampleWriter struct {
	repo     SampleRepository
	attempts int
	backoff  time.Duration
}

func NewRetryingSampleWriter(repo SampleRepository, attempts int, backoff time.Duration) *RetryingSampleWriter {
	if attempts <= 0 {
		attempts = 3
	}
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return &RetryingSampleWriter{repo: repo, attempts: attempts, backoff: backoff}
}

func (w *RetryingSampleWriter) Insert(ctx context.Context, sample *domain.MetricSample) error {
	var err error
	for attempt := 1; attempt <= w.attempts; attempt++ {
		err = w.repo.Insert(ctx, sample)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		zap.L().Warn("sample insert failed, backing off",
			zap.Int64("server_id", sample.ServerID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.backoff * time.Duration(attempt)):
		}
	}
	return err
}

func (w *RetryingSampleWriter) LatestCollectedAt(ctx context.Context) (time.Time, error) {
	return w.repo.LatestCollectedAt(ctx)
}
