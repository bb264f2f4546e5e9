package domain

import "time"

// AggregateSample is one compacted bucket of raw samples for a host.
// Produced by the retention compactor; buckets for a host never
// overlap, and SampleCount preserves the number of folded raw rows.
type AggregateSample struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ServerID    int64     `gorm:"uniqueIndex:uniq_agg_host_bucket" json:"server_id,string"`
	BucketStart time.Time `gorm:"uniqueIndex:uniq_agg_host_bucket;index" json:"bucket_start"`
	BucketEnd   time.Time `json:"bucket_end"`
	AvgCpu      float64   `json:"avg_cpu"`
	MaxCpu      float64   `json:"max_cpu"`
	AvgMem      float64   `json:"avg_mem"`
	MaxMem      float64   `json:"max_mem"`
	AvgDiskC    float64   `json:"avg_disk_c"`
	MaxDiskC    float64   `json:"max_disk_c"`
	SampleCount int64     `json:"sample_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName Specify table name
func (AggregateSample) TableName() string {
	return "aggregate_samples"
}
