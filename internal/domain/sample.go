package domain

import "time"

// MetricSample stores one raw utilization reading per host per tick.
// Append-only; the (server_id, collected_at) pair is unique so retried
// writes after a lost acknowledgment stay idempotent.
type MetricSample struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ServerID    int64     `gorm:"uniqueIndex:uniq_sample_host_time" json:"server_id,string"`
	CollectedAt time.Time `gorm:"uniqueIndex:uniq_sample_host_time;index" json:"collected_at"`
	CpuPct      float64   `json:"cpu_pct"`
	MemPct      float64   `json:"mem_pct"`
	DiskCPct    float64   `json:"disk_c_pct"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName Specify table name
func (MetricSample) TableName() string {
	return "metric_samples"
}
