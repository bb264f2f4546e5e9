// Package retention folds aged raw samples into coarse aggregate
// buckets and prunes the raw rows, keeping the metric_samples table
// bounded while preserving long-horizon history.
package retention

import (
	"context"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Shih-Wei-Lin/Server-Monitor-System/internal/domain"
)

// Compactor rolls up raw samples older than Cutoff into Bucket-wide
// aggregates. It is the sole writer of aggregate_samples and the sole
// deleter of compacted metric_samples rows.
type Compactor struct {
	db     *gorm.DB
	cutoff time.Duration
	bucket time.Duration
}

func NewCompactor(db *gorm.DB, cutoff, bucket time.Duration) *Compactor {
	if bucket <= 0 {
		bucket = 10 * time.Minute
	}
	return &Compactor{db: db, cutoff: cutoff, bucket: bucket}
}

// Summary reports one compaction run.
type Summary struct {
	Buckets    int
	FoldedRows int64
	Failed     int
}

// Run compacts every eligible bucket for every host. Each bucket is one
// transaction: the aggregate insert and the raw-row delete commit or
// roll back together, so a crash mid-fold never double-counts or loses
// data. Re-running over an already-compacted range is a no-op because
// the source rows no longer exist.
func (c *Compactor) Run(ctx context.Context) (Summary, error) {
	var summary Summary
	cutoffAt := time.Now().UTC().Add(-c.cutoff)

	var serverIDs []int64
	err := c.db.WithContext(ctx).
		Model(&domain.MetricSample{}).
		Where("collected_at < ?", cutoffAt).
		Distinct("server_id").
		Order("server_id").
		Pluck("server_id", &serverIDs).Error
	if err != nil {
		return summary, errors.Wrap(err, "list hosts with aged samples")
	}

	for _, serverID := range serverIDs {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		folded, buckets, err := c.compactServer(ctx, serverID, cutoffAt)
		summary.Buckets += buckets
		summary.FoldedRows += folded
		if err != nil {
			summary.Failed++
			zap.L().Error("compaction failed for host, bucket left for next run",
				zap.Int64("server_id", serverID), zap.Error(err))
		}
	}
	return summary, nil
}

// compactServer folds buckets for one host oldest-first until no fully
// aged bucket remains. A bucket straddling the cutoff stays raw until
// every row in it has aged past the cutoff, so buckets never overlap.
func (c *Compactor) compactServer(ctx context.Context, serverID int64, cutoffAt time.Time) (int64, int, error) {
	var foldedRows int64
	var buckets int
	for {
		if ctx.Err() != nil {
			return foldedRows, buckets, ctx.Err()
		}

		var oldest domain.MetricSample
		err := c.db.WithContext(ctx).
			Where("server_id = ? AND collected_at < ?", serverID, cutoffAt).
			Order("collected_at ASC").
			First(&oldest).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return foldedRows, buckets, nil
		}
		if err != nil {
			return foldedRows, buckets, errors.Wrap(err, "find oldest aged sample")
		}

		bucketStart := oldest.CollectedAt.UTC().Truncate(c.bucket)
		bucketEnd := bucketStart.Add(c.bucket)
		if bucketEnd.After(cutoffAt) {
			return foldedRows, buckets, nil
		}

		rows, err := c.foldBucket(ctx, serverID, bucketStart, bucketEnd)
		if err != nil {
			return foldedRows, buckets, err
		}
		foldedRows += rows
		buckets++
	}
}

// foldBucket folds one [start, end) range in a single transaction.
func (c *Compactor) foldBucket(ctx context.Context, serverID int64, start, end time.Time) (int64, error) {
	var folded int64
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var samples []domain.MetricSample
		if err := tx.
			Where("server_id = ? AND collected_at >= ? AND collected_at < ?", serverID, start, end).
			Order("collected_at ASC").
			Find(&samples).Error; err != nil {
			return errors.Wrap(err, "load bucket rows")
		}
		if len(samples) == 0 {
			return nil
		}

		agg, err := buildAggregate(serverID, start, end, samples)
		if err != nil {
			return err
		}
		if err := tx.Create(agg).Error; err != nil {
			return errors.Wrap(err, "insert aggregate bucket")
		}

		result := tx.Where("server_id = ? AND collected_at >= ? AND collected_at < ?",
			serverID, start, end).Delete(&domain.MetricSample{})
		if result.Error != nil {
			return errors.Wrap(result.Error, "delete folded rows")
		}
		if result.RowsAffected != int64(len(samples)) {
			// A concurrent write landed inside the range being folded;
			// abort and let the next run fold the larger set.
			return errors.Errorf("bucket changed during fold: read %d rows, deleted %d",
				len(samples), result.RowsAffected)
		}
		folded = result.RowsAffected
		return nil
	})
	return folded, err
}

func buildAggregate(serverID int64, start, end time.Time, samples []domain.MetricSample) (*domain.AggregateSample, error) {
	cpu := make([]float64, len(samples))
	mem := make([]float64, len(samples))
	disk := make([]float64, len(samples))
	for i, s := range samples {
		cpu[i] = s.CpuPct
		mem[i] = s.MemPct
		disk[i] = s.DiskCPct
	}

	agg := &domain.AggregateSample{
		ServerID:    serverID,
		BucketStart: start,
		BucketEnd:   end,
		SampleCount: int64(len(samples)),
	}

	var err error
	if agg.AvgCpu, err = stats.Mean(cpu); err != nil {
		return nil, errors.Wrap(err, "cpu mean")
	}
	if agg.MaxCpu, err = stats.Max(cpu); err != nil {
		return nil, errors.Wrap(err, "cpu max")
	}
	if agg.AvgMem, err = stats.Mean(mem); err != nil {
		return nil, errors.Wrap(err, "mem mean")
	}
	if agg.MaxMem, err = stats.Max(mem); err != nil {
		return nil, errors.Wrap(err, "mem max")
	}
	if agg.AvgDiskC, err = stats.Mean(disk); err != nil {
		return nil, errors.Wrap(err, "disk mean")
	}
	if agg.MaxDiskC, err = stats.Max(disk); err != nil {
		return nil, errors.Wrap(err, "disk max")
	}
	return agg, nil
}
